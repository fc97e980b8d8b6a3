// Package lite is a pure-Go implementation of the chem interfaces with
// deliberately simplified chemistry.  It parses and writes a practical
// subset of SMILES, perceives rings from a cycle basis, derives hydrogen
// counts from standard valences, embeds deterministic pseudo-3D geometries,
// and evaluates a harmonic bond-stretch force field.  Bond stereo markers
// (/ and \) are accepted on input but not tracked.
//
// The engine exists so the preparation pipeline is fully testable without
// cgo; production deployments bind a complete cheminformatics toolkit behind
// the same interfaces.
package lite

import (
	"fmt"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
)

// Engine implements chem.Engine.
type Engine struct {
	seed int64

	// embedSeq counts embeddings across every Mol from this engine, so
	// repeated embeds of the same graph yield distinct but reproducible
	// geometries even when the embeds happen on independent copies.
	embedSeq int

	// Failure injection for tests, keyed by the exact notation passed to
	// ParseSmiles.  Flags propagate through Copy.
	canonicalFailures map[string]bool
	etkdgFailures     map[string]bool
	embedFailures     map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed fixes the embedding random seed so geometries are reproducible
// across runs.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithCanonicalFailures makes CanonicalSmiles fail for molecules parsed from
// any of the given notations.  Test hook.
func WithCanonicalFailures(notations ...string) Option {
	return func(e *Engine) {
		for _, n := range notations {
			e.canonicalFailures[n] = true
		}
	}
}

// WithETKDGFailures makes the ETKDG embedding variant yield no coordinates
// for molecules parsed from any of the given notations, forcing the caller's
// fallback path.  Test hook.
func WithETKDGFailures(notations ...string) Option {
	return func(e *Engine) {
		for _, n := range notations {
			e.etkdgFailures[n] = true
		}
	}
}

// WithEmbedFailures makes every embedding variant fail for molecules parsed
// from any of the given notations.  Test hook.
func WithEmbedFailures(notations ...string) Option {
	return func(e *Engine) {
		for _, n := range notations {
			e.embedFailures[n] = true
		}
	}
}

// New constructs an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		seed:              1,
		canonicalFailures: make(map[string]bool),
		etkdgFailures:     make(map[string]bool),
		embedFailures:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements chem.Engine.
func (e *Engine) Name() string { return "lite" }

// ParseSmiles implements chem.Engine.  The parsed graph is renumbered into
// canonical atom order so that parse(write(m)) preserves atom indices.
func (e *Engine) ParseSmiles(notation string, mode chem.SanitizeMode) (chem.Mol, error) {
	m, err := parseSmiles(notation)
	if err != nil {
		return nil, err
	}
	m.eng = e

	if mode == chem.SanitizeFull {
		for i := range m.atoms {
			if m.atoms[i].explicitH < 0 && m.rawImplicitH(i) < 0 {
				return nil, fmt.Errorf("lite: atom %d (%s) exceeds its valence in %q",
					i, m.atoms[i].symbol, notation)
			}
		}
	}

	m.renumberCanonical()

	m.failCanonical = e.canonicalFailures[notation]
	m.failETKDG = e.etkdgFailures[notation]
	m.failEmbed = e.embedFailures[notation]
	return m, nil
}

var _ chem.Engine = (*Engine)(nil)
