// Package molecule defines the data-transfer objects used to move prepared
// molecules across layer boundaries (domain ↔ repository ↔ messaging) without
// exposing live chemistry-engine handles.
package molecule

import (
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
)

// Coord is one 3D atom position in Ångströms.
type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ConformerDTO is a serialized 3D coordinate set plus its metadata.
type ConformerDTO struct {
	Energy    float64 `json:"energy"`
	Minimized bool    `json:"minimized"`
	Geometry  []Coord `json:"geometry"`
}

// MoleculeDTO is the serialized form of a prepared molecule record.
type MoleculeDTO struct {
	common.BaseEntity

	Name           string `json:"name,omitempty"`
	ContainerIndex int    `json:"container_index"`

	// Notation bookkeeping: as-input and post-fragment-selection forms.
	OriginalNotation string `json:"original_notation"`
	DesaltedNotation string `json:"desalted_notation"`

	// CanonicalSmiles is empty when canonicalization failed for this record.
	CanonicalSmiles    string `json:"canonical_smiles,omitempty"`
	CanonicalSmilesNoH string `json:"canonical_smiles_no_h,omitempty"`

	// Genealogy is the append-only transformation audit trail.
	Genealogy []string `json:"genealogy,omitempty"`

	// Props is the free-form molecular property bag carried for downstream
	// structure writers.
	Props map[string]string `json:"props,omitempty"`

	Conformers []ConformerDTO `json:"conformers,omitempty"`
}

// HeavyAtomStats summarizes a batch for reporting.
type HeavyAtomStats struct {
	Count    int `json:"count"`
	MinHeavy int `json:"min_heavy"`
	MaxHeavy int `json:"max_heavy"`
}

// PrepOutcome labels the per-input result of a preparation batch.
type PrepOutcome string

const (
	OutcomePrepared    PrepOutcome = "prepared"
	OutcomeDesalted    PrepOutcome = "desalted"
	OutcomeRepaired    PrepOutcome = "repaired"
	OutcomeImplausible PrepOutcome = "implausible"
	OutcomeUnparseable PrepOutcome = "unparseable"
	OutcomeDiscarded   PrepOutcome = "discarded"
)

// PrepResult is one input's outcome in a batch run.
type PrepResult struct {
	Input    string        `json:"input"`
	Name     string        `json:"name,omitempty"`
	Outcomes []PrepOutcome `json:"outcomes"`
	Molecule *MoleculeDTO  `json:"molecule,omitempty"`
	Error    string        `json:"error,omitempty"`
}
