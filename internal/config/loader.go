package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all engine settings.
const envPrefix = "MOLPREP"

// newViper builds a pre-configured Viper instance with the engine's standard
// settings: YAML file type, MOLPREP_ env prefix, automatic env binding, and a
// key replacer that maps "." → "_" so that nested keys like "database.host"
// resolve to "MOLPREP_DATABASE_HOST".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerKeys(v)
	return v
}

// registerKeys declares every config key with a zero-value default so that
// viper's Unmarshal sees environment-only overrides.  AutomaticEnv resolves
// env vars at Get time but Unmarshal iterates only over known keys, so keys
// set purely through the environment are invisible without this.
func registerKeys(v *viper.Viper) {
	zeroDefaults := map[string]interface{}{
		"conformers.target_count":        0,
		"conformers.rmsd_cutoff":         0.0,
		"conformers.minimize":            false,
		"conformers.seed":                0,
		"standardizer.base_url":          "",
		"standardizer.timeout":           time.Duration(0),
		"standardizer.max_retries":       0,
		"standardizer.cache_ttl":         time.Duration(0),
		"database.host":                  "",
		"database.port":                  0,
		"database.user":                  "",
		"database.password":              "",
		"database.db_name":               "",
		"database.ssl_mode":              "",
		"database.max_conns":             0,
		"database.min_conns":             0,
		"database.conn_max_lifetime":     time.Duration(0),
		"database.conn_max_idle_time":    time.Duration(0),
		"database.migration_path":        "",
		"redis.addr":                     "",
		"redis.password":                 "",
		"redis.db":                       0,
		"redis.pool_size":                0,
		"redis.min_idle_conns":           0,
		"redis.dial_timeout":             time.Duration(0),
		"redis.read_timeout":             time.Duration(0),
		"redis.write_timeout":            time.Duration(0),
		"redis.default_ttl":              time.Duration(0),
		"redis.key_prefix":               "",
		"kafka.brokers":                  []string{},
		"kafka.producer_retries":         0,
		"kafka.batch_size":               0,
		"kafka.auto_create_topics":       false,
		"kafka.topic_prefix":             "",
		"metrics.enabled":                false,
		"metrics.addr":                   "",
		"metrics.namespace":              "",
		"metrics.enable_process_metrics": false,
		"metrics.enable_go_metrics":      false,
		"log.level":                      "",
		"log.format":                     "",
		"log.output":                     "",
	}
	for key, def := range zeroDefaults {
		v.SetDefault(key, def)
	}
}

// Load reads the YAML file at configPath, merges any MOLPREP_* environment
// variable overrides, applies engine defaults for unset fields, and validates
// the result.  It returns a fully-populated *Config or a descriptive error.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from MOLPREP_* environment variables,
// with no config file required.  This is the preferred loading strategy for
// containerised (12-factor) deployments.
//
// Environment variable naming convention:
//
//	MOLPREP_<SECTION>_<FIELD>   e.g.  MOLPREP_DATABASE_HOST, MOLPREP_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	v := newViper()
	// No config file, rely solely on env vars and defaults.
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  It is intended for
// hot-reloading non-critical settings such as log level and conformer
// tunables; callers are responsible for applying only the safe subset of
// changes at runtime.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// If the changed file fails to parse or validate, onChange is NOT called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; errors are ignored here since callers should Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			// Config change produced an invalid config; skip the callback to
			// prevent the application from entering a broken state.
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// It is intended for use in main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
