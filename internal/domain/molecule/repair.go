package molecule

import (
	"strings"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
)

// ─────────────────────────────────────────────────────────────────────────────
// Anomaly and repair rule catalogs
// ─────────────────────────────────────────────────────────────────────────────

// AnomalyPattern is one implausible-substructure check.  Pattern doubles as
// the textual pre-filter string and the engine substructure query: a cheap
// substring test against the known notations runs first, and only patterns
// not caught textually fall through to an exact graph match.
type AnomalyPattern struct {
	Name    string
	Pattern string
}

// AnomalyPatterns is the ordered catalog of structures considered chemically
// implausible.  Records matching any entry are discarded from the pipeline.
var AnomalyPatterns = []AnomalyPattern{
	{Name: "hypervalent oxygen", Pattern: "O(=*)-*"},
	{Name: "iminol tautomer", Pattern: "C(O)=N"},
}

// RepairRule is one graph-rewrite correction.  Guard is a cheap
// applicability check (textual substring against the canonical form, falling
// back to a substructure match); Reaction is the rewrite applied while the
// guard holds.
type RepairRule struct {
	Name     string
	Guard    string
	Reaction string
}

// RepairRules is the ordered catalog of corrections applied by the
// fixed-point repair loop.
var RepairRules = []RepairRule{
	{
		Name:     "neutralize doubly-bonded carbocation",
		Guard:    "[C+]",
		Reaction: "[$([C+](=*)(-*)-*)]>>C",
	},
	{
		Name:     "redraw misdrawn carboxylate",
		Guard:    "C([O-])O",
		Reaction: "[CH1:1](-[OH1:2])-[OX1-:3]>>[C:1](=[O:2])[O-:3]",
	},
	{
		Name:     "strip charge from trivalent nitrogen",
		Guard:    "[NX3+]",
		Reaction: "[NX3+:1]>>[N:1]",
	},
}

// guardMatches reports whether a repair rule applies to the graph.  The
// textual test short-circuits the substructure search for the common case
// where the guard string is visibly present in the canonical notation.
func guardMatches(g chem.Mol, canonical, guard string) bool {
	if strings.Contains(canonical, guard) {
		return true
	}
	ok, err := g.HasSubstructure(guard)
	return err == nil && ok
}
