// Package molecule implements the molecule-preparation domain: the
// MoleculeRecord aggregate wrapping one chemical graph with cached derived
// properties, genealogy, and self-healing repair logic; the ConformerRecord
// 3D geometry cache with energy minimization, alignment, and RMSD-based
// deduplication; and the fragment selector that desalts multi-fragment
// inputs down to their largest component.
package molecule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

// ─────────────────────────────────────────────────────────────────────────────
// Cached derived properties
// ─────────────────────────────────────────────────────────────────────────────

type cacheState int

const (
	cacheAbsent cacheState = iota
	cacheFailed
	cacheValue
)

// cached is a three-state lazily computed field: absent (never computed),
// failed (computed and permanently unusable), or a value.
type cached[T any] struct {
	state cacheState
	value T
}

func (c *cached[T]) set(v T) {
	c.state = cacheValue
	c.value = v
}

func (c *cached[T]) fail() {
	var zero T
	c.state = cacheFailed
	c.value = zero
}

func (c *cached[T]) reset() {
	var zero T
	c.state = cacheAbsent
	c.value = zero
}

// ─────────────────────────────────────────────────────────────────────────────
// MoleculeRecord Aggregate Root
// ─────────────────────────────────────────────────────────────────────────────

// Standardizer is the port to the external canonicalization service.  A
// failure is never fatal: callers fall back to the engine canonical form.
type Standardizer interface {
	Standardize(ctx context.Context, notation string) (string, error)
}

// MoleculeRecord is the aggregate root for one candidate structure moving
// through the preparation stage.  It owns a chemical graph (materialized
// lazily from notation), the conformer set, a cache of derived structural
// properties invalidated together whenever the graph is replaced, and an
// append-only genealogy documenting each transformation applied.
//
// Records are not safe for concurrent mutation; the outer harness owns
// scheduling (one logical task per record).
type MoleculeRecord struct {
	common.BaseEntity

	eng chem.Engine
	log logging.Logger

	name           string
	containerIndex int

	originalNotation string
	desaltedNotation string

	// graph is nil until materialized; graphFailed marks a permanent parse
	// failure so the record degrades instead of retrying forever.
	graph       chem.Mol
	graphFailed bool

	canSmiles    cached[string]
	canSmilesNoH cached[string]
	standardized cached[string]

	nonAromaticRings cached[[][]int]
	chiralAll        cached[[]chem.ChiralCenter]
	chiralAssigned   cached[[]chem.ChiralCenter]
	stereoUnspec     cached[[]int]
	implausible      cached[bool]
	fragments        cached[[]*MoleculeRecord]

	conformers []*ConformerRecord
	genealogy  []string
	props      map[string]string

	events []DomainEvent
}

// NewFromNotation constructs a record from a line-notation string.  Parsing
// into a graph is deferred until first needed; construction never fails.
func NewFromNotation(eng chem.Engine, notation, name string, log logging.Logger) *MoleculeRecord {
	if log == nil {
		log = logging.NewNopLogger()
	}
	r := &MoleculeRecord{
		eng:              eng,
		log:              log,
		name:             name,
		originalNotation: notation,
		desaltedNotation: notation,
		props:            map[string]string{},
	}
	r.ID = common.NewID()
	r.Touch(time.Now().UTC())
	r.events = append(r.events, MoleculeCreatedEvent{MoleculeID: r.ID, Notation: notation, Name: name})
	return r
}

// NewFromGraph constructs a record around an already-built graph and derives
// its canonical form immediately.  A graph that cannot be canonicalized
// yields an invalid-but-constructed record with a logged diagnostic, never
// an error.
func NewFromGraph(eng chem.Engine, graph chem.Mol, name string, log logging.Logger) *MoleculeRecord {
	if log == nil {
		log = logging.NewNopLogger()
	}
	r := &MoleculeRecord{
		eng:   eng,
		log:   log,
		name:  name,
		graph: graph,
		props: map[string]string{},
	}
	r.ID = common.NewID()
	r.Touch(time.Now().UTC())

	can, err := graph.CanonicalSmiles()
	if err != nil {
		r.canSmiles.fail()
		r.log.Warn("graph could not be canonicalized",
			logging.String("name", name),
			logging.Err(err))
	} else {
		r.canSmiles.set(can)
		r.originalNotation = can
		r.desaltedNotation = can
	}
	r.events = append(r.events, MoleculeCreatedEvent{MoleculeID: r.ID, Notation: r.originalNotation, Name: name})
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// Identity and bookkeeping accessors
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRecord) Name() string             { return r.name }
func (r *MoleculeRecord) ContainerIndex() int      { return r.containerIndex }
func (r *MoleculeRecord) OriginalNotation() string { return r.originalNotation }
func (r *MoleculeRecord) DesaltedNotation() string { return r.desaltedNotation }

// SetContainerIndex records which owning collection slot this record fills.
func (r *MoleculeRecord) SetContainerIndex(idx int) { r.containerIndex = idx }

// Genealogy returns a copy of the append-only transformation audit trail.
func (r *MoleculeRecord) Genealogy() []string {
	return append([]string(nil), r.genealogy...)
}

// AppendGenealogy records one applied transformation.  Entries are never
// removed or reordered.
func (r *MoleculeRecord) AppendGenealogy(entry string) {
	r.genealogy = append(r.genealogy, entry)
}

// SetProp stores one named molecular property for downstream writers.
func (r *MoleculeRecord) SetProp(key, value string) { r.props[key] = value }

// Prop returns one named molecular property.
func (r *MoleculeRecord) Prop(key string) (string, bool) {
	v, ok := r.props[key]
	return v, ok
}

// Props returns a copy of the molecular property bag.
func (r *MoleculeRecord) Props() map[string]string {
	out := make(map[string]string, len(r.props))
	for k, v := range r.props {
		out[k] = v
	}
	return out
}

// Events returns the accumulated domain events.
func (r *MoleculeRecord) Events() []DomainEvent {
	return append([]DomainEvent(nil), r.events...)
}

// ClearEvents empties the event buffer after publishing.
func (r *MoleculeRecord) ClearEvents() { r.events = nil }

// InheritContainerProperties copies identity metadata from other into this
// record, used when a record is derived mid-pipeline and must retain the
// identity of its source.
func (r *MoleculeRecord) InheritContainerProperties(other *MoleculeRecord) {
	r.containerIndex = other.containerIndex
	r.originalNotation = other.originalNotation
	r.desaltedNotation = other.desaltedNotation
	r.name = other.name
}

// ─────────────────────────────────────────────────────────────────────────────
// Graph materialization and canonicalization
// ─────────────────────────────────────────────────────────────────────────────

// EnsureGraph materializes the graph from the stored notation on first use.
// Malformed notation degrades the record permanently: the failure is logged
// once and every later call returns nil without retrying.  Idempotent.
func (r *MoleculeRecord) EnsureGraph() chem.Mol {
	if r.graph != nil {
		return r.graph
	}
	if r.graphFailed {
		return nil
	}
	g, err := r.eng.ParseSmiles(r.desaltedNotation, chem.SanitizePermissive)
	if err != nil {
		r.graphFailed = true
		r.log.Warn("input notation could not be parsed",
			logging.String("notation", r.desaltedNotation),
			logging.String("name", r.name),
			logging.Err(err))
		return nil
	}
	r.graph = g
	return g
}

// invalidateDerived resets every cached derived property.  Called whenever
// the graph is replaced (fragment promotion, repair rewrite).
func (r *MoleculeRecord) invalidateDerived() {
	r.canSmiles.reset()
	r.canSmilesNoH.reset()
	r.standardized.reset()
	r.nonAromaticRings.reset()
	r.chiralAll.reset()
	r.chiralAssigned.reset()
	r.stereoUnspec.reset()
	r.implausible.reset()
	r.fragments.reset()
}

// CanonicalSmiles returns the cached canonical form, computing it on first
// use.  With includeHydrogens the graph engine's canonicalizer runs against
// the live graph; a failure is cached as a permanent sentinel, logged with
// the original input and name, and reported as ErrCodeCanonicalizationFailed
// on this and every later call.
//
// The hydrogen-excluded form requires the hydrogen-included form to have
// been computed first; calling out of order is a programming error reported
// as ErrCodeContract.
func (r *MoleculeRecord) CanonicalSmiles(includeHydrogens bool) (string, error) {
	if includeHydrogens {
		return r.canonicalWithH()
	}
	return r.canonicalWithoutH()
}

func (r *MoleculeRecord) canonicalWithH() (string, error) {
	switch r.canSmiles.state {
	case cacheValue:
		return r.canSmiles.value, nil
	case cacheFailed:
		return "", errors.New(errors.ErrCodeCanonicalizationFailed, "canonical form unavailable").
			WithDetail(fmt.Sprintf("input=%s name=%s", r.originalNotation, r.name))
	}

	g := r.EnsureGraph()
	if g == nil {
		r.canSmiles.fail()
		return "", errors.New(errors.ErrCodeMoleculeUnparseable, "no graph to canonicalize").
			WithDetail(fmt.Sprintf("input=%s name=%s", r.originalNotation, r.name))
	}
	can, err := g.CanonicalSmiles()
	if err != nil {
		r.canSmiles.fail()
		r.log.Warn("canonicalization failed",
			logging.String("input", r.originalNotation),
			logging.String("name", r.name),
			logging.Err(err))
		return "", errors.Wrap(err, errors.ErrCodeCanonicalizationFailed, "canonicalization failed").
			WithDetail(fmt.Sprintf("input=%s name=%s", r.originalNotation, r.name))
	}
	r.canSmiles.set(can)
	return can, nil
}

func (r *MoleculeRecord) canonicalWithoutH() (string, error) {
	switch r.canSmilesNoH.state {
	case cacheValue:
		return r.canSmilesNoH.value, nil
	case cacheFailed:
		return "", errors.New(errors.ErrCodeCanonicalizationFailed, "hydrogen-excluded canonical form unavailable")
	}
	if r.canSmiles.state == cacheAbsent {
		return "", errors.Contract("hydrogen-excluded canonical form requested before the hydrogen-included form")
	}
	if r.canSmiles.state == cacheFailed || r.graph == nil {
		r.canSmilesNoH.fail()
		return "", errors.New(errors.ErrCodeCanonicalizationFailed, "hydrogen-excluded canonical form unavailable")
	}

	scratch := r.graph.Copy()
	if err := scratch.RemoveHydrogens(); err != nil {
		r.canSmilesNoH.fail()
		return "", errors.Wrap(err, errors.ErrCodeCanonicalizationFailed, "hydrogen removal failed")
	}
	can, err := scratch.CanonicalSmiles()
	if err != nil {
		r.canSmilesNoH.fail()
		return "", errors.Wrap(err, errors.ErrCodeCanonicalizationFailed, "hydrogen-excluded canonicalization failed")
	}
	r.canSmilesNoH.set(can)
	return can, nil
}

// Key returns the identity key used for set-based deduplication: the
// hydrogen-inclusive canonical form, or "" for a record whose
// canonicalization failed.  Equal records always share a key.
func (r *MoleculeRecord) Key() string {
	can, err := r.CanonicalSmiles(true)
	if err != nil {
		return ""
	}
	return can
}

// Equal reports whether both records canonicalize (with hydrogens) to the
// same form.  Records without a usable canonical form equal nothing.
func (r *MoleculeRecord) Equal(other *MoleculeRecord) bool {
	if other == nil {
		return false
	}
	k := r.Key()
	return k != "" && k == other.Key()
}

// StandardizeSmiles normalizes the canonical form through the external
// standardization service, caching the result.  Service failure is logged
// and absorbed: the engine canonical form is returned instead.  A record
// without a canonical form returns "".
func (r *MoleculeRecord) StandardizeSmiles(ctx context.Context, std Standardizer) string {
	if r.standardized.state == cacheValue {
		return r.standardized.value
	}
	can, err := r.CanonicalSmiles(true)
	if err != nil {
		return ""
	}
	if std == nil {
		r.standardized.set(can)
		return can
	}
	out, err := std.Standardize(ctx, can)
	if err != nil || strings.TrimSpace(out) == "" {
		r.log.Warn("standardization service failed, using engine canonical form",
			logging.String("notation", can),
			logging.String("name", r.name),
			logging.Err(err))
		r.standardized.set(can)
		return can
	}
	r.standardized.set(out)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived structural properties
// ─────────────────────────────────────────────────────────────────────────────

// NumHeavyAtoms returns the heavy-atom count, 0 for an invalid graph.
func (r *MoleculeRecord) NumHeavyAtoms() int {
	g := r.EnsureGraph()
	if g == nil {
		return 0
	}
	return g.NumHeavyAtoms()
}

// NonAromaticRingAtomGroups returns, cached, the SSSR ring atom groups that
// contain at least one non-aromatic atom.  Empty on an invalid graph.
func (r *MoleculeRecord) NonAromaticRingAtomGroups() [][]int {
	if r.nonAromaticRings.state == cacheValue {
		return r.nonAromaticRings.value
	}
	g := r.EnsureGraph()
	if g == nil {
		r.nonAromaticRings.set(nil)
		return nil
	}
	var out [][]int
	for _, ring := range g.RingAtomGroups() {
		for _, idx := range ring {
			if !g.AtomIsAromatic(idx) {
				out = append(out, ring)
				break
			}
		}
	}
	r.nonAromaticRings.set(out)
	return out
}

// ChiralCentersAll returns, cached, every stereocenter including unassigned
// candidates.  Empty on an invalid graph.
func (r *MoleculeRecord) ChiralCentersAll() []chem.ChiralCenter {
	if r.chiralAll.state == cacheValue {
		return r.chiralAll.value
	}
	g := r.EnsureGraph()
	if g == nil {
		r.chiralAll.set(nil)
		return nil
	}
	r.chiralAll.set(g.ChiralCenters(true))
	return r.chiralAll.value
}

// ChiralCentersAssigned returns, cached, only the explicitly assigned
// stereocenters.  Empty on an invalid graph.
func (r *MoleculeRecord) ChiralCentersAssigned() []chem.ChiralCenter {
	if r.chiralAssigned.state == cacheValue {
		return r.chiralAssigned.value
	}
	g := r.EnsureGraph()
	if g == nil {
		r.chiralAssigned.set(nil)
		return nil
	}
	r.chiralAssigned.set(g.ChiralCenters(false))
	return r.chiralAssigned.value
}

// UnspecifiedStereoDoubleBonds returns, cached, the indices of double bonds
// carrying no stereo descriptor.  Empty on an invalid graph.
func (r *MoleculeRecord) UnspecifiedStereoDoubleBonds() []int {
	if r.stereoUnspec.state == cacheValue {
		return r.stereoUnspec.value
	}
	g := r.EnsureGraph()
	if g == nil {
		r.stereoUnspec.set(nil)
		return nil
	}
	var out []int
	for _, b := range g.Bonds() {
		if b.Order == 2 && b.Stereo == chem.StereoNone {
			out = append(out, b.Index)
		}
	}
	r.stereoUnspec.set(out)
	return out
}

// HasImplausibleSubstructure reports, cached, whether the structure matches
// any anomaly-catalog entry.  Each pattern is first tested textually against
// the original notation, the desalted notation, and the canonical form (any
// hit short-circuits); patterns not caught textually run as exact
// substructure matches against the graph.
func (r *MoleculeRecord) HasImplausibleSubstructure() bool {
	if r.implausible.state == cacheValue {
		return r.implausible.value
	}

	can, _ := r.CanonicalSmiles(true)
	for _, p := range AnomalyPatterns {
		if strings.Contains(r.originalNotation, p.Pattern) ||
			strings.Contains(r.desaltedNotation, p.Pattern) ||
			(can != "" && strings.Contains(can, p.Pattern)) {
			r.log.Warn("implausible substructure detected",
				logging.String("pattern", p.Name),
				logging.String("notation", r.originalNotation),
				logging.String("name", r.name))
			r.implausible.set(true)
			return true
		}
	}

	g := r.EnsureGraph()
	if g == nil {
		r.implausible.set(false)
		return false
	}
	for _, p := range AnomalyPatterns {
		ok, err := g.HasSubstructure(p.Pattern)
		if err != nil {
			continue
		}
		if ok {
			r.log.Warn("implausible substructure detected",
				logging.String("pattern", p.Name),
				logging.String("notation", r.originalNotation),
				logging.String("name", r.name))
			r.implausible.set(true)
			return true
		}
	}
	r.implausible.set(false)
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Repair loop
// ─────────────────────────────────────────────────────────────────────────────

// FixCommonErrors iteratively rewrites the graph with the repair-rule
// catalog, re-canonicalizing after each full pass, until the canonical form
// reaches a fixed point.  A rule that finds nothing to rewrite is not an
// error; an invalid graph is.
func (r *MoleculeRecord) FixCommonErrors() error {
	g := r.EnsureGraph()
	if g == nil {
		return errors.New(errors.ErrCodeRepairFailed, "repair attempted on an invalid graph").
			WithDetail(fmt.Sprintf("input=%s name=%s", r.originalNotation, r.name))
	}

	before, err := r.CanonicalSmiles(true)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRepairFailed, "repair requires a canonical form")
	}

	prev := before
	changed := false
	for {
		for _, rule := range RepairRules {
			can, err := r.CanonicalSmiles(true)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeRepairFailed, "canonicalization failed mid-repair")
			}
			if !guardMatches(r.graph, can, rule.Guard) {
				continue
			}
			product, ok := r.graph.ApplyTransform(rule.Reaction)
			if !ok {
				continue
			}
			r.graph = product
			r.invalidateDerived()
			changed = true
			r.log.Debug("repair rule applied",
				logging.String("rule", rule.Name),
				logging.String("name", r.name))
		}
		cur, err := r.CanonicalSmiles(true)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeRepairFailed, "canonicalization failed mid-repair")
		}
		if cur == prev {
			break
		}
		prev = cur
	}

	if changed {
		r.AppendGenealogy(fmt.Sprintf("%s (error-fixed)", prev))
		r.events = append(r.events, MoleculeRepairedEvent{MoleculeID: r.ID, Before: before, After: prev})
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Fragmentation
// ─────────────────────────────────────────────────────────────────────────────

// FragmentsOfOriginal returns, cached, this record's connected components.
// A notation without a fragment separator returns the record itself as the
// single element; component wrappers do not receive full record identity
// until the fragment selector promotes one.
func (r *MoleculeRecord) FragmentsOfOriginal() []*MoleculeRecord {
	if r.fragments.state == cacheValue {
		return r.fragments.value
	}
	if !strings.Contains(r.originalNotation, ".") {
		r.fragments.set([]*MoleculeRecord{r})
		return r.fragments.value
	}
	g := r.EnsureGraph()
	if g == nil {
		r.fragments.set([]*MoleculeRecord{r})
		return r.fragments.value
	}
	var out []*MoleculeRecord
	for _, frag := range g.Fragments() {
		out = append(out, NewFromGraph(r.eng, frag, r.name, r.log))
	}
	r.fragments.set(out)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// 3D promotion and conformer access
// ─────────────────────────────────────────────────────────────────────────────

// Make3D promotes the record from 2D to 3D: hydrogens become explicit on the
// live graph (a one-way transition) and exactly one conformer is embedded,
// unminimized, with RMSD filtering disabled.  No-op when a conformer already
// exists.
func (r *MoleculeRecord) Make3D() error {
	if len(r.conformers) > 0 {
		return nil
	}
	g := r.EnsureGraph()
	if g == nil {
		return errors.New(errors.ErrCodeMoleculeUnparseable, "cannot promote an invalid graph to 3D").
			WithDetail(fmt.Sprintf("input=%s name=%s", r.originalNotation, r.name))
	}
	if err := g.AddHydrogens(); err != nil {
		return errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "hydrogen addition failed")
	}
	r.AddConformers(1, -1, false)
	return nil
}

// Conformers returns the retained conformers, sorted ascending by energy
// after any mutating call.
func (r *MoleculeRecord) Conformers() []*ConformerRecord {
	return append([]*ConformerRecord(nil), r.conformers...)
}

// LoadConformersIntoGraph copies the retained conformer geometries back onto
// the owned graph, replacing whatever conformers the graph carried.
func (r *MoleculeRecord) LoadConformersIntoGraph() error {
	g := r.EnsureGraph()
	if g == nil {
		return errors.New(errors.ErrCodeMoleculeUnparseable, "no graph to load conformers into")
	}
	g.RemoveAllConformers()
	for _, c := range r.conformers {
		geom, err := c.Geometry()
		if err != nil {
			return err
		}
		g.AddConformer(geom)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cloning and serialization
// ─────────────────────────────────────────────────────────────────────────────

// Clone produces a full independent deep copy: graph, cached properties,
// genealogy, property bag, and all conformers.  No mutable state is shared
// with the original.  The clone starts with an empty event buffer.
func (r *MoleculeRecord) Clone() *MoleculeRecord {
	cp := &MoleculeRecord{
		BaseEntity:       r.BaseEntity,
		eng:              r.eng,
		log:              r.log,
		name:             r.name,
		containerIndex:   r.containerIndex,
		originalNotation: r.originalNotation,
		desaltedNotation: r.desaltedNotation,
		graphFailed:      r.graphFailed,
		canSmiles:        r.canSmiles,
		canSmilesNoH:     r.canSmilesNoH,
		standardized:     r.standardized,
		implausible:      r.implausible,
		genealogy:        append([]string(nil), r.genealogy...),
		props:            make(map[string]string, len(r.props)),
	}
	for k, v := range r.props {
		cp.props[k] = v
	}
	if r.graph != nil {
		cp.graph = r.graph.Copy()
	}
	if r.nonAromaticRings.state == cacheValue {
		groups := make([][]int, len(r.nonAromaticRings.value))
		for i, g := range r.nonAromaticRings.value {
			groups[i] = append([]int(nil), g...)
		}
		cp.nonAromaticRings.set(groups)
	}
	if r.chiralAll.state == cacheValue {
		cp.chiralAll.set(append([]chem.ChiralCenter(nil), r.chiralAll.value...))
	}
	if r.chiralAssigned.state == cacheValue {
		cp.chiralAssigned.set(append([]chem.ChiralCenter(nil), r.chiralAssigned.value...))
	}
	if r.stereoUnspec.state == cacheValue {
		cp.stereoUnspec.set(append([]int(nil), r.stereoUnspec.value...))
	}
	for _, c := range r.conformers {
		cp.conformers = append(cp.conformers, c.Clone())
	}
	return cp
}

// ToDTO serializes the record for persistence and messaging.  The canonical
// fields are empty when the respective form was never computed or failed.
func (r *MoleculeRecord) ToDTO() *mtypes.MoleculeDTO {
	dto := &mtypes.MoleculeDTO{
		BaseEntity:       r.BaseEntity,
		Name:             r.name,
		ContainerIndex:   r.containerIndex,
		OriginalNotation: r.originalNotation,
		DesaltedNotation: r.desaltedNotation,
		Genealogy:        append([]string(nil), r.genealogy...),
	}
	if r.canSmiles.state == cacheValue {
		dto.CanonicalSmiles = r.canSmiles.value
	}
	if r.canSmilesNoH.state == cacheValue {
		dto.CanonicalSmilesNoH = r.canSmilesNoH.value
	}
	if len(r.props) > 0 {
		dto.Props = r.Props()
	}
	for _, c := range r.conformers {
		geom, err := c.Geometry()
		if err != nil {
			continue
		}
		cd := mtypes.ConformerDTO{Energy: c.Energy(), Minimized: c.Minimized()}
		for _, p := range geom {
			cd.Geometry = append(cd.Geometry, mtypes.Coord{X: p.X, Y: p.Y, Z: p.Z})
		}
		dto.Conformers = append(dto.Conformers, cd)
	}
	return dto
}
