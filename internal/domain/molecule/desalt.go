package molecule

import (
	"fmt"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fragment Selector
// ─────────────────────────────────────────────────────────────────────────────

// FragmentSelector desalts multi-fragment inputs: it keeps the fragment most
// likely to be the biologically relevant one (the strictly largest by heavy
// atoms) and promotes it to a full record preserving the source's identity
// and genealogy.
type FragmentSelector struct {
	eng chem.Engine
	log logging.Logger
}

// NewFragmentSelector constructs a selector.
func NewFragmentSelector(eng chem.Engine, log logging.Logger) *FragmentSelector {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &FragmentSelector{eng: eng, log: log}
}

// SelectFragment returns rec unchanged when it is already a single connected
// structure.  Otherwise the fragment with the maximum heavy-atom count is
// promoted to a new record (ties broken deterministically by first
// occurrence), inheriting rec's container index, name, notations, and
// genealogy, with its desalted notation set to the surviving fragment's
// canonical form.
func (s *FragmentSelector) SelectFragment(rec *MoleculeRecord) *MoleculeRecord {
	frags := rec.FragmentsOfOriginal()
	if len(frags) == 1 {
		return rec
	}

	s.log.Info("multi-fragment input, selecting largest fragment",
		logging.String("notation", rec.OriginalNotation()),
		logging.String("name", rec.Name()),
		logging.Int("fragments", len(frags)))

	best := frags[0]
	bestHeavy := best.NumHeavyAtoms()
	for _, f := range frags[1:] {
		if h := f.NumHeavyAtoms(); h > bestHeavy {
			best, bestHeavy = f, h
		}
	}

	promoted := NewFromGraph(s.eng, best.graph.Copy(), rec.Name(), s.log)
	promoted.InheritContainerProperties(rec)
	promoted.genealogy = append([]string(nil), rec.genealogy...)

	if can, err := promoted.CanonicalSmiles(true); err == nil {
		promoted.desaltedNotation = can
	}
	promoted.events = append(promoted.events, MoleculeDesaltedEvent{
		MoleculeID:       promoted.ID,
		OriginalNotation: promoted.originalNotation,
		DesaltedNotation: promoted.desaltedNotation,
		FragmentCount:    len(frags),
	})
	return promoted
}

// DesaltBatch desalts every record independently.  Records whose desalted
// notation differs from the original get a genealogy note recording the
// surviving fragment.  The returned slice is position-aligned with the
// input.
func (s *FragmentSelector) DesaltBatch(records []*MoleculeRecord) []*MoleculeRecord {
	out := make([]*MoleculeRecord, 0, len(records))
	for _, rec := range records {
		desalted := s.SelectFragment(rec)
		if desalted.DesaltedNotation() != desalted.OriginalNotation() {
			desalted.AppendGenealogy(fmt.Sprintf("%s (desalted)", desalted.DesaltedNotation()))
		}
		out = append(out, desalted)
	}
	return out
}
