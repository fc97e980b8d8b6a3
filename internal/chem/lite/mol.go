package lite

import (
	"fmt"
	"math"
	"sort"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
)

// ─────────────────────────────────────────────────────────────────────────────
// Graph representation
// ─────────────────────────────────────────────────────────────────────────────

type atom struct {
	symbol   string
	aromatic bool
	charge   int
	isotope  int
	chiral   string // "", "@", "@@"

	// explicitH is the bracket-specified hydrogen count; -1 means hydrogens
	// are implicit from valence.
	explicitH int
}

type bond struct {
	begin, end int
	order      float64
	stereo     chem.BondStereo
}

// mol implements chem.Mol.
type mol struct {
	eng        *Engine
	atoms      []atom
	bonds      []bond
	conformers []chem.Geometry

	// Test-hook failure flags, propagated by Copy.
	failCanonical bool
	failETKDG     bool
	failEmbed     bool
}

var _ chem.Mol = (*mol)(nil)

// defaultValence holds the standard valence used to derive implicit hydrogen
// counts for organic-subset atoms.
var defaultValence = map[string]int{
	"B": 3, "C": 4, "N": 3, "O": 2, "P": 3, "S": 2,
	"F": 1, "Cl": 1, "Br": 1, "I": 1,
}

var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

// ─────────────────────────────────────────────────────────────────────────────
// Adjacency helpers
// ─────────────────────────────────────────────────────────────────────────────

func (m *mol) neighbors(i int) []int {
	var out []int
	for _, b := range m.bonds {
		if b.begin == i {
			out = append(out, b.end)
		} else if b.end == i {
			out = append(out, b.begin)
		}
	}
	return out
}

func (m *mol) bondBetween(i, j int) (int, bool) {
	for bi, b := range m.bonds {
		if (b.begin == i && b.end == j) || (b.begin == j && b.end == i) {
			return bi, true
		}
	}
	return 0, false
}

func (m *mol) isHydrogen(i int) bool { return m.atoms[i].symbol == "H" }

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (m *mol) heavyDegree(i int) int {
	n := 0
	for _, j := range m.neighbors(i) {
		if !m.isHydrogen(j) {
			n++
		}
	}
	return n
}

func (m *mol) bondOrderSum(i int) float64 {
	s := 0.0
	for _, b := range m.bonds {
		if b.begin == i || b.end == i {
			s += b.order
		}
	}
	return s
}

// rawImplicitH computes the valence-derived hydrogen count for atom i without
// clamping; negative results indicate an over-valent atom.
func (m *mol) rawImplicitH(i int) int {
	a := m.atoms[i]
	if a.symbol == "H" {
		return 0
	}
	v, ok := defaultValence[a.symbol]
	if !ok {
		return 0
	}
	// Charge shifts the effective valence: lone-pair elements gain a slot
	// per positive charge (N+ is tetravalent), while carbon and boron lose
	// one either way (C+ and C- are trivalent).
	var eff int
	switch a.symbol {
	case "C", "B":
		eff = v - abs(a.charge)
	default:
		eff = v + a.charge
	}
	if eff < 0 {
		eff = 0
	}
	return eff - int(math.Ceil(m.bondOrderSum(i)))
}

// implicitH returns the implicit hydrogen count for atom i: the bracket count
// when one was specified, otherwise the clamped valence-derived count.
func (m *mol) implicitH(i int) int {
	if m.atoms[i].explicitH >= 0 {
		return m.atoms[i].explicitH
	}
	h := m.rawImplicitH(i)
	if h < 0 {
		return 0
	}
	return h
}

// totalH returns implicit plus explicitly attached hydrogen atoms.
func (m *mol) totalH(i int) int {
	n := m.implicitH(i)
	for _, j := range m.neighbors(i) {
		if m.isHydrogen(j) {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// chem.Mol implementation — structure queries
// ─────────────────────────────────────────────────────────────────────────────

func (m *mol) Copy() chem.Mol {
	cp := &mol{
		eng:           m.eng,
		atoms:         append([]atom(nil), m.atoms...),
		bonds:         append([]bond(nil), m.bonds...),
		failCanonical: m.failCanonical,
		failETKDG:     m.failETKDG,
		failEmbed:     m.failEmbed,
	}
	cp.conformers = make([]chem.Geometry, len(m.conformers))
	for i, g := range m.conformers {
		cp.conformers[i] = g.Clone()
	}
	return cp
}

func (m *mol) NumAtoms() int { return len(m.atoms) }

func (m *mol) NumHeavyAtoms() int {
	n := 0
	for i := range m.atoms {
		if !m.isHydrogen(i) {
			n++
		}
	}
	return n
}

func (m *mol) HeavyAtomIndices() []int {
	var out []int
	for i := range m.atoms {
		if !m.isHydrogen(i) {
			out = append(out, i)
		}
	}
	return out
}

func (m *mol) AtomIsAromatic(idx int) bool {
	if idx < 0 || idx >= len(m.atoms) {
		return false
	}
	return m.atoms[idx].aromatic
}

func (m *mol) Bonds() []chem.Bond {
	out := make([]chem.Bond, len(m.bonds))
	for i, b := range m.bonds {
		out[i] = chem.Bond{Index: i, Begin: b.begin, End: b.end, Order: b.order, Stereo: b.stereo}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Hydrogen handling
// ─────────────────────────────────────────────────────────────────────────────

func (m *mol) AddHydrogens() error {
	heavy := len(m.atoms)
	for i := 0; i < heavy; i++ {
		if m.isHydrogen(i) {
			continue
		}
		n := m.implicitH(i)
		for k := 0; k < n; k++ {
			m.atoms = append(m.atoms, atom{symbol: "H", explicitH: 0})
			hIdx := len(m.atoms) - 1
			m.bonds = append(m.bonds, bond{begin: i, end: hIdx, order: 1})
			for ci := range m.conformers {
				p := m.conformers[ci][i]
				// Offset keeps attached hydrogens near their parent.
				m.conformers[ci] = append(m.conformers[ci], chem.Point3{
					X: p.X + 0.3*float64(k+1),
					Y: p.Y + 0.3,
					Z: p.Z,
				})
			}
		}
		m.atoms[i].explicitH = 0
	}
	return nil
}

func (m *mol) RemoveHydrogens() error {
	removed := make([]bool, len(m.atoms))
	for i := range m.atoms {
		if !m.isHydrogen(i) {
			continue
		}
		nbrs := m.neighbors(i)
		if len(nbrs) == 1 && !m.isHydrogen(nbrs[0]) {
			removed[i] = true
			parent := nbrs[0]
			if m.atoms[parent].explicitH >= 0 {
				m.atoms[parent].explicitH++
			}
		}
	}

	remap := make([]int, len(m.atoms))
	var newAtoms []atom
	for i := range m.atoms {
		if removed[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(newAtoms)
		newAtoms = append(newAtoms, m.atoms[i])
	}

	var newBonds []bond
	for _, b := range m.bonds {
		if remap[b.begin] < 0 || remap[b.end] < 0 {
			continue
		}
		newBonds = append(newBonds, bond{begin: remap[b.begin], end: remap[b.end], order: b.order, stereo: b.stereo})
	}

	for ci := range m.conformers {
		var g chem.Geometry
		for i, p := range m.conformers[ci] {
			if i < len(removed) && removed[i] {
				continue
			}
			g = append(g, p)
		}
		m.conformers[ci] = g
	}

	m.atoms = newAtoms
	m.bonds = newBonds
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Ring perception
// ─────────────────────────────────────────────────────────────────────────────

// RingAtomGroups computes a cycle basis from a BFS spanning forest: every
// non-tree bond closes exactly one fundamental ring.
func (m *mol) RingAtomGroups() [][]int {
	n := len(m.atoms)
	parent := make([]int, n)
	depth := make([]int, n)
	visited := make([]bool, n)
	treeBond := make([]bool, len(m.bonds))

	for root := 0; root < n; root++ {
		if visited[root] {
			continue
		}
		visited[root] = true
		parent[root] = -1
		queue := []int{root}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for bi, b := range m.bonds {
				var v int
				switch {
				case b.begin == u:
					v = b.end
				case b.end == u:
					v = b.begin
				default:
					continue
				}
				if !visited[v] {
					visited[v] = true
					parent[v] = u
					depth[v] = depth[u] + 1
					treeBond[bi] = true
					queue = append(queue, v)
				}
			}
		}
	}

	var rings [][]int
	for bi, b := range m.bonds {
		if treeBond[bi] {
			continue
		}
		ring := m.fundamentalCycle(b.begin, b.end, parent, depth)
		if len(ring) >= 3 {
			rings = append(rings, ring)
		}
	}
	return rings
}

// fundamentalCycle walks u and v up to their lowest common ancestor and
// returns the sorted atom set of the resulting cycle.
func (m *mol) fundamentalCycle(u, v int, parent, depth []int) []int {
	inCycle := map[int]bool{}
	for depth[u] > depth[v] {
		inCycle[u] = true
		u = parent[u]
	}
	for depth[v] > depth[u] {
		inCycle[v] = true
		v = parent[v]
	}
	for u != v {
		inCycle[u] = true
		inCycle[v] = true
		u = parent[u]
		v = parent[v]
	}
	inCycle[u] = true

	out := make([]int, 0, len(inCycle))
	for i := range inCycle {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Chirality
// ─────────────────────────────────────────────────────────────────────────────

func (m *mol) ChiralCenters(includeUnassigned bool) []chem.ChiralCenter {
	ranks := m.canonicalRanks()
	var out []chem.ChiralCenter
	for i, a := range m.atoms {
		if a.chiral != "" {
			desc := "S"
			if a.chiral == "@@" {
				desc = "R"
			}
			out = append(out, chem.ChiralCenter{AtomIndex: i, Assigned: true, Descriptor: desc})
			continue
		}
		if !includeUnassigned {
			continue
		}
		if m.isPotentialCenter(i, ranks) {
			out = append(out, chem.ChiralCenter{AtomIndex: i, Assigned: false, Descriptor: "?"})
		}
	}
	return out
}

// isPotentialCenter reports whether atom i is a tetravalent carbon with four
// distinguishable substituents (at most one hydrogen, all heavy neighbors in
// distinct canonical classes).
func (m *mol) isPotentialCenter(i int, ranks []int) bool {
	a := m.atoms[i]
	if a.symbol != "C" || a.aromatic {
		return false
	}
	h := m.totalH(i)
	heavyNbrs := []int{}
	for _, j := range m.neighbors(i) {
		if !m.isHydrogen(j) {
			heavyNbrs = append(heavyNbrs, j)
		}
	}
	if len(heavyNbrs)+h != 4 || h > 1 {
		return false
	}
	seen := map[int]bool{}
	for _, j := range heavyNbrs {
		if seen[ranks[j]] {
			return false
		}
		seen[ranks[j]] = true
	}
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Fragments
// ─────────────────────────────────────────────────────────────────────────────

func (m *mol) Fragments() []chem.Mol {
	n := len(m.atoms)
	comp := make([]int, n)
	for i := range comp {
		comp[i] = -1
	}
	nComp := 0
	for root := 0; root < n; root++ {
		if comp[root] >= 0 {
			continue
		}
		comp[root] = nComp
		queue := []int{root}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, v := range m.neighbors(u) {
				if comp[v] < 0 {
					comp[v] = nComp
					queue = append(queue, v)
				}
			}
		}
		nComp++
	}

	out := make([]chem.Mol, nComp)
	for c := 0; c < nComp; c++ {
		remap := make([]int, n)
		frag := &mol{eng: m.eng}
		for i := 0; i < n; i++ {
			if comp[i] != c {
				remap[i] = -1
				continue
			}
			remap[i] = len(frag.atoms)
			frag.atoms = append(frag.atoms, m.atoms[i])
		}
		for _, b := range m.bonds {
			if remap[b.begin] < 0 || remap[b.end] < 0 {
				continue
			}
			frag.bonds = append(frag.bonds, bond{begin: remap[b.begin], end: remap[b.end], order: b.order, stereo: b.stereo})
		}
		for _, g := range m.conformers {
			var fg chem.Geometry
			for i := 0; i < n && i < len(g); i++ {
				if comp[i] == c {
					fg = append(fg, g[i])
				}
			}
			frag.conformers = append(frag.conformers, fg)
		}
		out[c] = frag
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Conformer bookkeeping
// ─────────────────────────────────────────────────────────────────────────────

func (m *mol) NumConformers() int { return len(m.conformers) }

func (m *mol) Conformer(idx int) (chem.Geometry, error) {
	if idx < 0 || idx >= len(m.conformers) {
		return nil, fmt.Errorf("lite: conformer index %d out of range [0, %d)", idx, len(m.conformers))
	}
	return m.conformers[idx], nil
}

func (m *mol) AddConformer(g chem.Geometry) int {
	m.conformers = append(m.conformers, g.Clone())
	return len(m.conformers) - 1
}

func (m *mol) RemoveConformer(idx int) error {
	if idx < 0 || idx >= len(m.conformers) {
		return fmt.Errorf("lite: conformer index %d out of range [0, %d)", idx, len(m.conformers))
	}
	m.conformers = append(m.conformers[:idx], m.conformers[idx+1:]...)
	return nil
}

func (m *mol) RemoveAllConformers() { m.conformers = nil }
