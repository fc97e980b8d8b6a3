package lite

import (
	"github.com/turtacn/MolPrep-Engine/internal/chem"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// The lite engine matches a fixed catalog of patterns structurally rather
// than interpreting a full pattern grammar.  The keys are the literal SMARTS
// strings the preparation pipeline uses; anything else is reported as
// unsupported so callers can tell a miss from a gap in coverage.

// HasSubstructure implements chem.Mol.
func (m *mol) HasSubstructure(pattern string) (bool, error) {
	switch pattern {
	case "O(=*)-*":
		// An oxygen engaged in both a double and a single bond.
		for i := range m.atoms {
			if m.atoms[i].symbol != "O" || m.atoms[i].aromatic {
				continue
			}
			if m.hasBondOfOrder(i, 2) && m.hasBondOfOrder(i, 1) {
				return true, nil
			}
		}
		return false, nil

	case "C(O)=N":
		// An aliphatic carbon single-bonded to oxygen and double-bonded to
		// nitrogen.
		for i := range m.atoms {
			if m.atoms[i].symbol != "C" || m.atoms[i].aromatic {
				continue
			}
			hasO := false
			hasN := false
			for _, b := range m.bondsOf(i) {
				other := m.bonds[b].begin + m.bonds[b].end - i
				switch {
				case m.atoms[other].symbol == "O" && m.bonds[b].order == 1:
					hasO = true
				case m.atoms[other].symbol == "N" && m.bonds[b].order == 2:
					hasN = true
				}
			}
			if hasO && hasN {
				return true, nil
			}
		}
		return false, nil

	case "C([O-])O":
		return m.findMisdrawnCarboxylate() >= 0, nil

	case "[NX3+]":
		return m.findChargedTrivalentNitrogen() >= 0, nil

	case "[C+]":
		for i := range m.atoms {
			if m.atoms[i].symbol == "C" && m.atoms[i].charge > 0 {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, errors.New(errors.ErrCodePatternUnsupported,
			"pattern not in the lite engine catalog").WithDetail(pattern)
	}
}

// ApplyTransform implements chem.Mol.  Each rule rewrites the first match on
// a copy; (nil, false) means the rule found nothing to rewrite.
func (m *mol) ApplyTransform(rule string) (chem.Mol, bool) {
	switch rule {
	case "[$([C+](=*)(-*)-*)]>>C":
		// A carbocation already engaged in a double bond carries a bogus
		// charge; neutralize it.
		for i := range m.atoms {
			if m.atoms[i].symbol != "C" || m.atoms[i].charge <= 0 {
				continue
			}
			if !m.hasBondOfOrder(i, 2) {
				continue
			}
			cp := m.Copy().(*mol)
			cp.atoms[i].charge = 0
			cp.atoms[i].explicitH = -1
			return cp, true
		}
		return nil, false

	case "[CH1:1](-[OH1:2])-[OX1-:3]>>[C:1](=[O:2])[O-:3]":
		// A carboxylate mis-drawn as a geminal hydroxyl/alkoxide pair:
		// promote the neutral C-O bond to a double bond.
		i := m.findMisdrawnCarboxylate()
		if i < 0 {
			return nil, false
		}
		cp := m.Copy().(*mol)
		for _, b := range cp.bondsOf(i) {
			other := cp.bonds[b].begin + cp.bonds[b].end - i
			if cp.atoms[other].symbol == "O" && cp.atoms[other].charge == 0 && cp.bonds[b].order == 1 {
				cp.bonds[b].order = 2
				cp.atoms[other].explicitH = -1
				cp.atoms[i].explicitH = -1
				return cp, true
			}
		}
		return nil, false

	case "[NX3+:1]>>[N:1]":
		// A nitrogen with only three connections carries no positive charge.
		i := m.findChargedTrivalentNitrogen()
		if i < 0 {
			return nil, false
		}
		cp := m.Copy().(*mol)
		cp.atoms[i].charge = 0
		cp.atoms[i].explicitH = -1
		return cp, true

	default:
		return nil, false
	}
}

// bondsOf returns the indices of all bonds incident to atom i.
func (m *mol) bondsOf(i int) []int {
	var out []int
	for bi, b := range m.bonds {
		if b.begin == i || b.end == i {
			out = append(out, bi)
		}
	}
	return out
}

func (m *mol) hasBondOfOrder(i int, order float64) bool {
	for _, b := range m.bonds {
		if (b.begin == i || b.end == i) && b.order == order {
			return true
		}
	}
	return false
}

// findMisdrawnCarboxylate locates a carbon single-bonded to both an anionic
// terminal oxygen and a neutral hydroxyl oxygen.  Returns -1 when absent.
func (m *mol) findMisdrawnCarboxylate() int {
	for i := range m.atoms {
		if m.atoms[i].symbol != "C" || m.atoms[i].aromatic {
			continue
		}
		anionic := false
		hydroxyl := false
		for _, b := range m.bondsOf(i) {
			if m.bonds[b].order != 1 {
				continue
			}
			other := m.bonds[b].begin + m.bonds[b].end - i
			if m.atoms[other].symbol != "O" {
				continue
			}
			switch {
			case m.atoms[other].charge == -1 && m.heavyDegree(other) == 1:
				anionic = true
			case m.atoms[other].charge == 0 && m.totalH(other) == 1:
				hydroxyl = true
			}
		}
		if anionic && hydroxyl {
			return i
		}
	}
	return -1
}

// findChargedTrivalentNitrogen locates a positively charged nitrogen with
// exactly three total connections (heavy neighbors plus hydrogens).  Returns
// -1 when absent.
func (m *mol) findChargedTrivalentNitrogen() int {
	for i := range m.atoms {
		a := m.atoms[i]
		if a.symbol != "N" || a.charge != 1 {
			continue
		}
		if m.heavyDegree(i)+m.totalH(i) == 3 {
			return i
		}
	}
	return -1
}
