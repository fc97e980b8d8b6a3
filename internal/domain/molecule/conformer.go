package molecule

import (
	"fmt"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// ConformerRecord
// ─────────────────────────────────────────────────────────────────────────────

// ConformerRecord owns one 3D coordinate set for a molecule, attached to a
// private deep copy of the owning record's graph so the geometry can be
// manipulated independently of the live graph.  Construction evaluates the
// force-field energy immediately; minimization is an explicit, idempotent
// follow-up.
type ConformerRecord struct {
	eng   chem.Engine
	graph chem.Mol // private copy holding exactly one conformer

	smilesAtCreation string
	energy           float64
	minimized        bool
	heavyAtomIndices []int
}

// NewConformer builds a conformer for rec.  With a nil geometry a fresh 3D
// embedding is requested: the deterministic-seeded, chirality-respecting
// variant first, falling back to the legacy variant, and failing with
// ErrCodeEmbeddingFailed when both yield nothing (an expected rare
// occurrence the caller discards silently).  A non-nil geometry is assigned
// directly as the sole conformer.
func NewConformer(rec *MoleculeRecord, geometry chem.Geometry) (*ConformerRecord, error) {
	g := rec.EnsureGraph()
	if g == nil {
		return nil, errors.New(errors.ErrCodeMoleculeUnparseable, "no graph to build a conformer for")
	}
	smiles, err := rec.CanonicalSmiles(true)
	if err != nil {
		return nil, err
	}

	cp := g.Copy()
	cp.RemoveAllConformers()

	if geometry == nil {
		if err := cp.Embed(chem.EmbedETKDG); err != nil {
			if err := cp.Embed(chem.EmbedDistanceGeometry); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "both embedding variants produced no conformers")
			}
		}
	} else {
		if len(geometry) != cp.NumAtoms() {
			return nil, errors.New(errors.ErrCodeEmbeddingFailed, "geometry does not cover the graph").
				WithDetail(fmt.Sprintf("atoms=%d coords=%d", cp.NumAtoms(), len(geometry)))
		}
		cp.AddConformer(geometry)
	}

	c := &ConformerRecord{
		eng:              rec.eng,
		graph:            cp,
		smilesAtCreation: smiles,
		heavyAtomIndices: cp.HeavyAtomIndices(),
	}
	ff, err := cp.ForceField()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "force field construction failed")
	}
	c.energy = ff.Energy()
	return c, nil
}

// Energy returns the force-field potential energy of the current geometry.
func (c *ConformerRecord) Energy() float64 { return c.energy }

// Minimized reports whether local minimization has run.
func (c *ConformerRecord) Minimized() bool { return c.minimized }

// SmilesAtCreation returns the canonical form captured when the conformer
// was generated.
func (c *ConformerRecord) SmilesAtCreation() string { return c.smilesAtCreation }

// HeavyAtomIndices returns the cached non-hydrogen atom indices used for
// alignment and RMSD.
func (c *ConformerRecord) HeavyAtomIndices() []int {
	return append([]int(nil), c.heavyAtomIndices...)
}

// Geometry returns the current coordinate set.
func (c *ConformerRecord) Geometry() (chem.Geometry, error) {
	g, err := c.graph.Conformer(0)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// Minimize runs local force-field minimization on the geometry and updates
// the cached energy.  Idempotent: once minimized, later calls return
// immediately.
func (c *ConformerRecord) Minimize() error {
	if c.minimized {
		return nil
	}
	ff, err := c.graph.ForceField()
	if err != nil {
		return err
	}
	if err := ff.Minimize(); err != nil {
		return err
	}
	c.energy = ff.Energy()
	c.minimized = true
	return nil
}

// AlignTo aligns other onto this conformer over heavy atoms and returns a
// NEW aligned conformer; neither receiver nor argument is mutated.  The
// returned record carries other's energy and minimization state, with its
// geometry translated into this conformer's frame.
func (c *ConformerRecord) AlignTo(other *ConformerRecord) (*ConformerRecord, error) {
	selfGeom, err := c.graph.Conformer(0)
	if err != nil {
		return nil, err
	}
	otherGeom, err := other.Geometry()
	if err != nil {
		return nil, err
	}

	// Align a scratch pair, then shift the aligned result back into the
	// receiver's original frame so stored geometries stay comparable.
	scratch := c.graph.Copy()
	idx := scratch.AddConformer(otherGeom)
	if err := scratch.AlignConformers(c.heavyAtomIndices); err != nil {
		return nil, err
	}
	alignedSelf, err := scratch.Conformer(0)
	if err != nil {
		return nil, err
	}
	alignedOther, err := scratch.Conformer(idx)
	if err != nil {
		return nil, err
	}

	ref := c.heavyAtomIndices[0]
	dx := selfGeom[ref].X - alignedSelf[ref].X
	dy := selfGeom[ref].Y - alignedSelf[ref].Y
	dz := selfGeom[ref].Z - alignedSelf[ref].Z

	result := alignedOther.Clone()
	for i := range result {
		result[i].X += dx
		result[i].Y += dy
		result[i].Z += dz
	}

	out := other.Clone()
	if err := out.setGeometry(result); err != nil {
		return nil, err
	}
	return out, nil
}

// RMSDTo computes the heavy-atom root-mean-square deviation between this
// conformer's geometry and other's.  Both geometries must already be
// aligned (typically via AlignTo immediately prior); calling without
// alignment yields a meaninglessly large value, not an error.  The
// comparison runs on a fresh graph rebuilt from the captured canonical form
// with hydrogens stripped.
func (c *ConformerRecord) RMSDTo(other *ConformerRecord) (float64, error) {
	rebuilt, err := c.eng.ParseSmiles(c.smilesAtCreation, chem.SanitizePermissive)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCanonicalizationFailed, "captured canonical form no longer parses")
	}

	selfGeom, err := c.Geometry()
	if err != nil {
		return 0, err
	}
	otherGeom, err := other.Geometry()
	if err != nil {
		return 0, err
	}

	if rebuilt.NumAtoms() != len(selfGeom) {
		if err := rebuilt.AddHydrogens(); err != nil {
			return 0, err
		}
	}
	if rebuilt.NumAtoms() != len(selfGeom) || len(selfGeom) != len(otherGeom) {
		return 0, errors.New(errors.ErrCodeContract, "conformer geometries do not cover the comparison graph").
			WithDetail(fmt.Sprintf("atoms=%d self=%d other=%d", rebuilt.NumAtoms(), len(selfGeom), len(otherGeom)))
	}

	rebuilt.AddConformer(selfGeom)
	rebuilt.AddConformer(otherGeom)
	if err := rebuilt.RemoveHydrogens(); err != nil {
		return 0, err
	}
	return rebuilt.ConformerRMSD(0, 1, rebuilt.HeavyAtomIndices())
}

// Clone returns an independent deep copy.
func (c *ConformerRecord) Clone() *ConformerRecord {
	return &ConformerRecord{
		eng:              c.eng,
		graph:            c.graph.Copy(),
		smilesAtCreation: c.smilesAtCreation,
		energy:           c.energy,
		minimized:        c.minimized,
		heavyAtomIndices: append([]int(nil), c.heavyAtomIndices...),
	}
}

// setGeometry replaces the sole conformer geometry.
func (c *ConformerRecord) setGeometry(g chem.Geometry) error {
	c.graph.RemoveAllConformers()
	if len(g) != c.graph.NumAtoms() {
		return errors.New(errors.ErrCodeContract, "replacement geometry does not cover the graph")
	}
	c.graph.AddConformer(g)
	return nil
}
