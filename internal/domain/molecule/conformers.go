package molecule

import (
	"sort"

	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Conformer set management
// ─────────────────────────────────────────────────────────────────────────────

// AddConformers brings the conformer set up to targetCount by generating new
// embeddings, discarding any that fail to build.  With minimize set, every
// conformer (new and pre-existing) is minimized.  The set is re-sorted
// ascending by energy, then deduplicated: survivors never have pairwise
// heavy-atom RMSD at or below rmsdCutoff.  A negative cutoff disables
// deduplication entirely.  Returns the number of conformers generated.
func (r *MoleculeRecord) AddConformers(targetCount int, rmsdCutoff float64, minimize bool) int {
	needed := targetCount - len(r.conformers)
	if needed < 0 {
		needed = 0
	}

	added := 0
	for i := 0; i < needed; i++ {
		c, err := NewConformer(r, nil)
		if err != nil {
			// Embedding failure is an expected rare occurrence; the
			// conformer is discarded without logging at this layer.
			continue
		}
		r.conformers = append(r.conformers, c)
		added++
	}

	if minimize {
		for _, c := range r.conformers {
			if err := c.Minimize(); err != nil {
				r.log.Warn("conformer minimization failed",
					logging.String("name", r.name),
					logging.Err(err))
			}
		}
	}

	sort.SliceStable(r.conformers, func(i, j int) bool {
		return r.conformers[i].Energy() < r.conformers[j].Energy()
	})

	eliminated := 0
	if rmsdCutoff >= 0 {
		eliminated = r.EliminateSimilarConformers(rmsdCutoff)
	}

	r.events = append(r.events, ConformersAddedEvent{
		MoleculeID: r.ID,
		Added:      added,
		Eliminated: eliminated,
		Retained:   len(r.conformers),
	})
	return added
}

// EliminateSimilarConformers greedily removes near-duplicate geometries: for
// every live pair (i, j) with i < j over the energy-sorted list, conformer j
// is aligned onto conformer i and removed when the heavy-atom RMSD is at or
// below the cutoff.  Lower-energy conformers are always the keepers.
// Survivors keep their relative order.  Returns the number removed.
//
// O(n²) alignments for n conformers, acceptable because n stays small.
func (r *MoleculeRecord) EliminateSimilarConformers(rmsdCutoff float64) int {
	n := len(r.conformers)
	doomed := make([]bool, n)
	for i := 0; i < n; i++ {
		if doomed[i] {
			continue
		}
		for j := i + 1; j < n; j++ {
			if doomed[j] {
				continue
			}
			aligned, err := r.conformers[i].AlignTo(r.conformers[j])
			if err != nil {
				r.log.Warn("conformer alignment failed, keeping both",
					logging.String("name", r.name),
					logging.Err(err))
				continue
			}
			r.conformers[j] = aligned
			rmsd, err := r.conformers[i].RMSDTo(aligned)
			if err != nil {
				r.log.Warn("conformer RMSD failed, keeping both",
					logging.String("name", r.name),
					logging.Err(err))
				continue
			}
			if rmsd <= rmsdCutoff {
				doomed[j] = true
			}
		}
	}

	var kept []*ConformerRecord
	removed := 0
	for i, c := range r.conformers {
		if doomed[i] {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	r.conformers = kept
	return removed
}
