package lite

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
)

// ─────────────────────────────────────────────────────────────────────────────
// Scanner
// ─────────────────────────────────────────────────────────────────────────────

type parser struct {
	input string
	pos   int
	m     *mol

	prev        int // index of the previous atom, -1 after a dot or at start
	pendingBond float64
	stack       []int
	closures    map[int]closure
}

type closure struct {
	atom  int
	order float64
}

func parseSmiles(input string) (*mol, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("lite: empty notation")
	}
	p := &parser{
		input:    input,
		m:        &mol{},
		prev:     -1,
		closures: map[int]closure{},
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	if len(p.stack) != 0 {
		return nil, fmt.Errorf("lite: unclosed branch in %q", input)
	}
	if len(p.closures) != 0 {
		return nil, fmt.Errorf("lite: unclosed ring bond in %q", input)
	}
	if p.pendingBond != 0 {
		return nil, fmt.Errorf("lite: dangling bond symbol at end of %q", input)
	}
	if len(p.m.atoms) == 0 {
		return nil, fmt.Errorf("lite: no atoms in %q", input)
	}
	return p.m, nil
}

func (p *parser) run() error {
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch {
		case c == ' ' || c == '\t':
			// Trailing title fields are ignored.
			return nil
		case c == '(':
			if p.prev < 0 {
				return p.errf("branch open with no preceding atom")
			}
			p.stack = append(p.stack, p.prev)
			p.pos++
		case c == ')':
			if len(p.stack) == 0 {
				return p.errf("unmatched branch close")
			}
			p.prev = p.stack[len(p.stack)-1]
			p.stack = p.stack[:len(p.stack)-1]
			p.pos++
		case c == '.':
			p.prev = -1
			p.pendingBond = 0
			p.pos++
		case c == '-':
			p.pendingBond = 1
			p.pos++
		case c == '=':
			p.pendingBond = 2
			p.pos++
		case c == '#':
			p.pendingBond = 3
			p.pos++
		case c == ':':
			p.pendingBond = 1.5
			p.pos++
		case c == '/' || c == '\\':
			// Stereo bond markers parse as plain single bonds.
			p.pendingBond = 1
			p.pos++
		case c >= '0' && c <= '9':
			if err := p.ringClosure(int(c - '0')); err != nil {
				return err
			}
			p.pos++
		case c == '%':
			if p.pos+2 >= len(p.input) {
				return p.errf("truncated %% ring closure")
			}
			n, err := strconv.Atoi(p.input[p.pos+1 : p.pos+3])
			if err != nil {
				return p.errf("bad %% ring closure")
			}
			if err := p.ringClosure(n); err != nil {
				return err
			}
			p.pos += 3
		case c == '[':
			a, err := p.bracketAtom()
			if err != nil {
				return err
			}
			p.addAtom(a)
		default:
			a, width, ok := p.organicAtom()
			if !ok {
				return p.errf("unexpected character %q", c)
			}
			p.addAtom(a)
			p.pos += width
		}
	}
	return nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("lite: %s at position %d in %q", msg, p.pos, p.input)
}

// organicAtom scans an organic-subset atom token at the current position.
func (p *parser) organicAtom() (atom, int, bool) {
	rest := p.input[p.pos:]
	two := ""
	if len(rest) >= 2 {
		two = rest[:2]
	}
	switch {
	case two == "Cl" || two == "Br":
		return atom{symbol: two, explicitH: -1}, 2, true
	}
	c := rest[0]
	switch c {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		return atom{symbol: string(c), explicitH: -1}, 1, true
	case 'b', 'c', 'n', 'o', 'p', 's':
		return atom{symbol: strings.ToUpper(string(c)), aromatic: true, explicitH: -1}, 1, true
	}
	return atom{}, 0, false
}

// bracketAtom scans a [ ... ] atom token, leaving pos just past the ']'.
func (p *parser) bracketAtom() (atom, error) {
	end := strings.IndexByte(p.input[p.pos:], ']')
	if end < 0 {
		return atom{}, p.errf("unclosed bracket atom")
	}
	body := p.input[p.pos+1 : p.pos+end]
	start := p.pos
	p.pos += end + 1
	if body == "" {
		p.pos = start
		return atom{}, p.errf("empty bracket atom")
	}

	a := atom{explicitH: 0}
	i := 0

	// Isotope.
	for i < len(body) && body[i] >= '0' && body[i] <= '9' {
		a.isotope = a.isotope*10 + int(body[i]-'0')
		i++
	}

	// Element symbol, possibly aromatic lowercase.
	if i >= len(body) {
		p.pos = start
		return atom{}, p.errf("bracket atom missing element symbol")
	}
	c := body[i]
	switch {
	case c >= 'A' && c <= 'Z':
		a.symbol = string(c)
		i++
		if i < len(body) && body[i] >= 'a' && body[i] <= 'z' && body[i] != 'b' && isElementTail(a.symbol, body[i]) {
			a.symbol += string(body[i])
			i++
		}
	case c >= 'a' && c <= 'z':
		a.symbol = strings.ToUpper(string(c))
		a.aromatic = true
		i++
	default:
		p.pos = start
		return atom{}, p.errf("bad element symbol in bracket atom")
	}

	// Chirality.
	if i < len(body) && body[i] == '@' {
		a.chiral = "@"
		i++
		if i < len(body) && body[i] == '@' {
			a.chiral = "@@"
			i++
		}
	}

	// Hydrogen count.
	if i < len(body) && body[i] == 'H' {
		i++
		a.explicitH = 1
		if i < len(body) && body[i] >= '0' && body[i] <= '9' {
			a.explicitH = int(body[i] - '0')
			i++
		}
	}

	// Charge.
	for i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		i++
		if i < len(body) && body[i] >= '0' && body[i] <= '9' {
			a.charge += sign * int(body[i]-'0')
			i++
		} else {
			a.charge += sign
		}
	}

	if i != len(body) {
		p.pos = start
		return atom{}, p.errf("unparsed bracket atom content %q", body[i:])
	}
	return a, nil
}

// isElementTail reports whether first+tail forms a recognized two-letter
// element symbol.
func isElementTail(first string, tail byte) bool {
	twoLetter := map[string]bool{
		"Cl": true, "Br": true, "Si": true, "Se": true, "Na": true, "Li": true,
		"Ca": true, "Mg": true, "Al": true, "Fe": true, "Zn": true, "Cu": true,
		"Mn": true, "As": true, "Sn": true, "Ag": true, "Au": true, "Hg": true,
		"Pb": true, "Pt": true, "Ni": true, "Co": true, "Cr": true, "Ti": true,
		"Ba": true, "Sr": true, "Cs": true, "Rb": true, "He": true, "Ne": true,
		"Ar": true, "Kr": true, "Xe": true, "Be": true,
	}
	return twoLetter[first+string(tail)]
}

func (p *parser) addAtom(a atom) {
	idx := len(p.m.atoms)
	p.m.atoms = append(p.m.atoms, a)
	if p.prev >= 0 {
		order := p.pendingBond
		if order == 0 {
			order = 1
			if p.m.atoms[p.prev].aromatic && a.aromatic {
				order = 1.5
			}
		}
		p.m.bonds = append(p.m.bonds, bond{begin: p.prev, end: idx, order: order})
	}
	p.pendingBond = 0
	p.prev = idx
}

func (p *parser) ringClosure(num int) error {
	if p.prev < 0 {
		return p.errf("ring closure with no preceding atom")
	}
	if open, ok := p.closures[num]; ok {
		delete(p.closures, num)
		if open.atom == p.prev {
			return p.errf("ring closure %d bonds an atom to itself", num)
		}
		order := p.pendingBond
		if order == 0 {
			order = open.order
		}
		if order == 0 {
			order = 1
			if p.m.atoms[open.atom].aromatic && p.m.atoms[p.prev].aromatic {
				order = 1.5
			}
		}
		p.m.bonds = append(p.m.bonds, bond{begin: open.atom, end: p.prev, order: order})
	} else {
		p.closures[num] = closure{atom: p.prev, order: p.pendingBond}
	}
	p.pendingBond = 0
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Canonical ranking
// ─────────────────────────────────────────────────────────────────────────────

// canonicalRanks assigns each atom a rank in [0, n) that is invariant under
// input atom reordering: a Morgan-style iterative refinement over local
// invariants, with deterministic tie-breaking.  Atoms left tied after full
// refinement are treated as symmetry-equivalent.
func (m *mol) canonicalRanks() []int {
	n := len(m.atoms)
	if n == 0 {
		return nil
	}

	keys := make([]string, n)
	for i, a := range m.atoms {
		keys[i] = fmt.Sprintf("%s|%t|%d|%d|%d|%d",
			a.symbol, a.aromatic, a.charge, a.isotope, m.heavyDegree(i), m.totalH(i))
	}
	ranks := ranksFromKeys(keys)

	refine := func() int {
		for {
			before := classCount(ranks)
			next := make([]string, n)
			for i := range m.atoms {
				nbr := []int{}
				for _, j := range m.neighbors(i) {
					nbr = append(nbr, ranks[j])
				}
				sort.Ints(nbr)
				next[i] = fmt.Sprintf("%d|%v", ranks[i], nbr)
			}
			ranks = ranksFromKeys(next)
			if classCount(ranks) == before {
				return before
			}
		}
	}

	classes := refine()
	for classes < n {
		// Break the smallest tied class deterministically and re-refine.
		tied := -1
		for r := 0; r < n; r++ {
			count := 0
			for i := range ranks {
				if ranks[i] == r {
					count++
				}
			}
			if count > 1 {
				tied = r
				break
			}
		}
		if tied < 0 {
			break
		}
		for i := range ranks {
			if ranks[i] == tied {
				keys := make([]string, n)
				for j := range ranks {
					promote := 0
					if j == i {
						promote = 1
					}
					keys[j] = fmt.Sprintf("%d|%d", ranks[j], promote)
				}
				ranks = ranksFromKeys(keys)
				break
			}
		}
		classes = refine()
	}
	return ranks
}

func ranksFromKeys(keys []string) []int {
	uniq := append([]string(nil), keys...)
	sort.Strings(uniq)
	uniq = dedupStrings(uniq)
	pos := make(map[string]int, len(uniq))
	for i, k := range uniq {
		pos[k] = i
	}
	out := make([]int, len(keys))
	for i, k := range keys {
		out[i] = pos[k]
	}
	return out
}

func dedupStrings(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func classCount(ranks []int) int {
	seen := map[int]bool{}
	for _, r := range ranks {
		seen[r] = true
	}
	return len(seen)
}

// renumberCanonical reorders atom storage into canonical rank order so that
// a parse of this molecule's canonical notation reproduces atom indices.
func (m *mol) renumberCanonical() {
	ranks := m.canonicalRanks()
	n := len(m.atoms)
	perm := make([]int, n) // perm[newIdx] = oldIdx
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool { return ranks[perm[a]] < ranks[perm[b]] })

	inv := make([]int, n)
	for newIdx, oldIdx := range perm {
		inv[oldIdx] = newIdx
	}

	newAtoms := make([]atom, n)
	for newIdx, oldIdx := range perm {
		newAtoms[newIdx] = m.atoms[oldIdx]
	}
	newBonds := make([]bond, len(m.bonds))
	for i, b := range m.bonds {
		nb := bond{begin: inv[b.begin], end: inv[b.end], order: b.order, stereo: b.stereo}
		if nb.begin > nb.end {
			nb.begin, nb.end = nb.end, nb.begin
		}
		newBonds[i] = nb
	}
	sort.SliceStable(newBonds, func(a, b int) bool {
		if newBonds[a].begin != newBonds[b].begin {
			return newBonds[a].begin < newBonds[b].begin
		}
		return newBonds[a].end < newBonds[b].end
	})

	for ci, g := range m.conformers {
		ng := make(chem.Geometry, len(g))
		for newIdx, oldIdx := range perm {
			if oldIdx < len(g) {
				ng[newIdx] = g[oldIdx]
			}
		}
		m.conformers[ci] = ng
	}

	m.atoms = newAtoms
	m.bonds = newBonds
}

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

// CanonicalSmiles implements chem.Mol.  Explicit terminal hydrogens are
// folded back into their parent's hydrogen count, so hydrogen-explicit and
// hydrogen-implicit graphs of the same structure serialize identically.
func (m *mol) CanonicalSmiles() (string, error) {
	if m.failCanonical {
		return "", fmt.Errorf("lite: canonical serialization failed (injected)")
	}
	if len(m.atoms) == 0 {
		return "", fmt.Errorf("lite: cannot serialize an empty graph")
	}
	return m.write(), nil
}

type writer struct {
	m       *mol
	ranks   []int
	skip    []bool // foldable explicit hydrogens
	visited []bool

	closureNum  int
	ringSeen    map[[2]int]bool // closure bonds already assigned a digit
	atomClosure map[int][]ringRef
}

type ringRef struct {
	digit string
	order float64
	other int
}

func (m *mol) write() string {
	w := &writer{
		m:           m,
		ranks:       m.canonicalRanks(),
		skip:        make([]bool, len(m.atoms)),
		visited:     make([]bool, len(m.atoms)),
		ringSeen:    map[[2]int]bool{},
		atomClosure: map[int][]ringRef{},
	}
	for i := range m.atoms {
		if m.isHydrogen(i) {
			nbrs := m.neighbors(i)
			if len(nbrs) == 1 && !m.isHydrogen(nbrs[0]) && m.atoms[i].isotope == 0 && m.atoms[i].charge == 0 {
				w.skip[i] = true
			}
		}
	}

	// Component roots ordered by canonical rank.
	type comp struct {
		root    int
		minRank int
	}
	var comps []comp
	seen := make([]bool, len(m.atoms))
	for i := range m.atoms {
		if seen[i] || w.skip[i] {
			continue
		}
		root, minRank := i, w.ranks[i]
		queue := []int{i}
		seen[i] = true
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			if !w.skip[u] && w.ranks[u] < minRank {
				minRank = w.ranks[u]
				root = u
			}
			for _, v := range m.neighbors(u) {
				if !seen[v] {
					seen[v] = true
					queue = append(queue, v)
				}
			}
		}
		comps = append(comps, comp{root: root, minRank: minRank})
	}
	sort.Slice(comps, func(a, b int) bool { return comps[a].minRank < comps[b].minRank })

	var parts []string
	for _, c := range comps {
		w.markRingClosures(c.root)
	}
	for i := range w.visited {
		w.visited[i] = false
	}
	for _, c := range comps {
		var sb strings.Builder
		w.writeAtom(&sb, c.root, -1)
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ".")
}

// markRingClosures runs a DFS to find back edges and assigns closure digits.
func (w *writer) markRingClosures(root int) {
	type frame struct{ atom, parent int }
	stack := []frame{{root, -1}}
	inTree := map[[2]int]bool{}
	w.visited[root] = true
	var order []frame
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, f)
		for _, v := range w.orderedNeighbors(f.atom) {
			if !w.visited[v] {
				w.visited[v] = true
				inTree[bondKey(f.atom, v)] = true
				stack = append(stack, frame{v, f.atom})
			}
		}
	}
	for _, f := range order {
		for _, v := range w.orderedNeighbors(f.atom) {
			key := bondKey(f.atom, v)
			if inTree[key] || w.ringSeen[key] {
				continue
			}
			w.closureNum++
			digit := strconv.Itoa(w.closureNum)
			if w.closureNum > 9 {
				digit = "%" + fmt.Sprintf("%02d", w.closureNum)
			}
			w.ringSeen[key] = true
			bi, _ := w.m.bondBetween(f.atom, v)
			bo := w.m.bonds[bi].order
			w.atomClosure[f.atom] = append(w.atomClosure[f.atom], ringRef{digit: digit, order: bo, other: v})
			w.atomClosure[v] = append(w.atomClosure[v], ringRef{digit: digit, order: bo, other: f.atom})
		}
	}
}

func bondKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// orderedNeighbors returns non-skipped neighbors sorted by canonical rank.
func (w *writer) orderedNeighbors(i int) []int {
	var out []int
	for _, j := range w.m.neighbors(i) {
		if !w.skip[j] {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return w.ranks[out[a]] < w.ranks[out[b]] })
	return out
}

func (w *writer) writeAtom(sb *strings.Builder, i, parent int) {
	w.visited[i] = true
	sb.WriteString(w.atomToken(i))

	// Ring-closure digits.
	closureAtoms := map[int]bool{}
	for _, ref := range w.atomClosure[i] {
		sb.WriteString(bondToken(w.m, i, ref.other, ref.order))
		sb.WriteString(ref.digit)
		closureAtoms[ref.other] = true
	}

	var children []int
	for _, j := range w.orderedNeighbors(i) {
		if j == parent || w.visited[j] || closureAtoms[j] {
			continue
		}
		children = append(children, j)
	}
	for k, j := range children {
		bi, _ := w.m.bondBetween(i, j)
		tok := bondToken(w.m, i, j, w.m.bonds[bi].order)
		if k < len(children)-1 {
			sb.WriteString("(")
			sb.WriteString(tok)
			w.writeAtom(sb, j, i)
			sb.WriteString(")")
		} else {
			sb.WriteString(tok)
			w.writeAtom(sb, j, i)
		}
	}
}

func bondToken(m *mol, i, j int, order float64) string {
	switch order {
	case 2:
		return "="
	case 3:
		return "#"
	case 1.5:
		return ""
	default:
		return ""
	}
}

// atomToken serializes one atom, bracketing only when required.
func (w *writer) atomToken(i int) string {
	m := w.m
	a := m.atoms[i]

	h := m.implicitH(i)
	for _, j := range m.neighbors(i) {
		if w.skip[j] {
			h++
		}
	}

	sym := a.symbol
	if a.aromatic {
		sym = strings.ToLower(sym)
	}

	needBracket := a.charge != 0 || a.isotope != 0 || a.chiral != "" || !organicSubset[a.symbol] || a.symbol == "H"
	if !needBracket {
		// Bracket when the reader would derive a different hydrogen count.
		expected := m.valenceDerivedH(i)
		if h != expected {
			needBracket = true
		}
	}
	if !needBracket {
		return sym
	}

	var sb strings.Builder
	sb.WriteString("[")
	if a.isotope != 0 {
		sb.WriteString(strconv.Itoa(a.isotope))
	}
	sb.WriteString(sym)
	sb.WriteString(a.chiral)
	if h == 1 {
		sb.WriteString("H")
	} else if h > 1 {
		sb.WriteString("H")
		sb.WriteString(strconv.Itoa(h))
	}
	switch {
	case a.charge == 1:
		sb.WriteString("+")
	case a.charge == -1:
		sb.WriteString("-")
	case a.charge > 1:
		sb.WriteString("+")
		sb.WriteString(strconv.Itoa(a.charge))
	case a.charge < -1:
		sb.WriteString("-")
		sb.WriteString(strconv.Itoa(-a.charge))
	}
	sb.WriteString("]")
	return sb.String()
}

// valenceDerivedH computes the hydrogen count a reader would infer for atom i
// written without a bracket, counting only bonds to non-folded atoms.
func (m *mol) valenceDerivedH(i int) int {
	v, ok := defaultValence[m.atoms[i].symbol]
	if !ok {
		return 0
	}
	s := 0.0
	for _, b := range m.bonds {
		var other int
		switch {
		case b.begin == i:
			other = b.end
		case b.end == i:
			other = b.begin
		default:
			continue
		}
		if m.isHydrogen(other) && len(m.neighbors(other)) == 1 {
			continue // folded into the H count
		}
		s += b.order
	}
	h := v - int(math.Ceil(s))
	if h < 0 {
		h = 0
	}
	return h
}
