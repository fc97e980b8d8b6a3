package redis

import (
	"context"
	"time"

	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// CachedStandardizer memoizes standardization-service answers keyed by input
// notation.  It satisfies the molecule domain's Standardizer port, so the
// pipeline can use it in place of the bare HTTP client.
type CachedStandardizer struct {
	inner  domainMol.Standardizer
	cache  Cache
	ttl    time.Duration
	logger logging.Logger
}

var _ domainMol.Standardizer = (*CachedStandardizer)(nil)

// NewCachedStandardizer wraps inner with a read-through cache.  A zero TTL
// uses the cache's default.
func NewCachedStandardizer(inner domainMol.Standardizer, cache Cache, ttl time.Duration, log logging.Logger) *CachedStandardizer {
	return &CachedStandardizer{inner: inner, cache: cache, ttl: ttl, logger: log}
}

// Standardize returns the cached normalized form when present, consulting the
// backing service otherwise.  Cache infrastructure failures degrade to a
// direct service call so a broken Redis never blocks preparation.
func (s *CachedStandardizer) Standardize(ctx context.Context, notation string) (string, error) {
	var out string
	err := s.cache.GetOrSet(ctx, "std:"+notation, &out, s.ttl, func(ctx context.Context) (interface{}, error) {
		v, err := s.inner.Standardize(ctx, notation)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err == nil {
		return out, nil
	}
	if errors.IsCode(err, errors.ErrCodeCacheError) || errors.IsCode(err, errors.ErrCodeSerialization) {
		s.logger.Warn("standardization cache unavailable, calling service directly",
			logging.String("notation", notation),
			logging.Err(err))
		return s.inner.Standardize(ctx, notation)
	}
	// Loader failure or a null-cached empty answer: surface it to the caller,
	// which falls back to the engine canonical form.
	return "", err
}
