package molecule

import (
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Domain Events
// ─────────────────────────────────────────────────────────────────────────────

// DomainEvent is a marker interface for all preparation domain events.
type DomainEvent interface {
	EventType() string
}

// MoleculeCreatedEvent is published when a record is first constructed.
type MoleculeCreatedEvent struct {
	MoleculeID common.ID
	Notation   string
	Name       string
}

func (e MoleculeCreatedEvent) EventType() string { return "molecule.created" }

// MoleculeDesaltedEvent is published when fragment selection replaces a
// multi-fragment input with its largest fragment.
type MoleculeDesaltedEvent struct {
	MoleculeID       common.ID
	OriginalNotation string
	DesaltedNotation string
	FragmentCount    int
}

func (e MoleculeDesaltedEvent) EventType() string { return "molecule.desalted" }

// MoleculeRepairedEvent is published when the repair loop rewrites the graph.
type MoleculeRepairedEvent struct {
	MoleculeID common.ID
	Before     string
	After      string
}

func (e MoleculeRepairedEvent) EventType() string { return "molecule.repaired" }

// ConformersAddedEvent is published after a conformer-management pass.
type ConformersAddedEvent struct {
	MoleculeID common.ID
	Added      int
	Eliminated int
	Retained   int
}

func (e ConformersAddedEvent) EventType() string { return "molecule.conformers_added" }
