package lite

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
)

// Bond lengths in Ångströms for the harmonic model.
const (
	heavyBondLength = 1.5
	hydrogenLength  = 1.0
	stretchConstant = 100.0
)

// ─────────────────────────────────────────────────────────────────────────────
// Embedding
// ─────────────────────────────────────────────────────────────────────────────

// Embed implements chem.Mol.  The geometry is a deterministic breadth-first
// chain layout plus a per-call jitter, seeded from the engine seed, the
// graph, the algorithm, and the engine-wide embed sequence, so repeated
// embeds yield distinct but reproducible coordinates.
func (m *mol) Embed(alg chem.EmbedAlgorithm) error {
	if m.failEmbed {
		return fmt.Errorf("lite: embedding produced no conformers (injected)")
	}
	if alg == chem.EmbedETKDG && m.failETKDG {
		return fmt.Errorf("lite: embedding produced no conformers (injected)")
	}
	if len(m.atoms) == 0 {
		return fmt.Errorf("lite: cannot embed an empty graph")
	}

	// The base layout depends only on the graph, so every conformer of the
	// same molecule shares it; the per-call jitter is what distinguishes
	// successive embeds.
	g := m.baseLayout(rand.New(rand.NewSource(m.graphSeed(0, 0))))

	seq := len(m.conformers) + 1
	if m.eng != nil {
		m.eng.embedSeq++
		seq = m.eng.embedSeq
	}
	jitter := rand.New(rand.NewSource(m.graphSeed(int(alg)+1, seq)))
	for i := range g {
		g[i].X += (jitter.Float64() - 0.5) * 0.5
		g[i].Y += (jitter.Float64() - 0.5) * 0.5
		g[i].Z += (jitter.Float64() - 0.5) * 0.5
	}

	m.conformers = append(m.conformers, g)
	return nil
}

// graphSeed mixes the engine seed with graph identity and the given salts.
func (m *mol) graphSeed(salt, salt2 int) int64 {
	h := fnv.New64a()
	for _, a := range m.atoms {
		fmt.Fprintf(h, "%s%d%t|", a.symbol, a.charge, a.aromatic)
	}
	fmt.Fprintf(h, "#%d#%d", salt, salt2)
	seed := int64(1)
	if m.eng != nil {
		seed = m.eng.seed
	}
	return seed ^ int64(h.Sum64())
}

// baseLayout places atoms breadth-first from atom 0: each atom sits one bond
// length away from its discovery parent in a pseudo-random direction.
func (m *mol) baseLayout(rng *rand.Rand) chem.Geometry {
	n := len(m.atoms)
	g := make(chem.Geometry, n)
	placed := make([]bool, n)

	for root := 0; root < n; root++ {
		if placed[root] {
			continue
		}
		g[root] = chem.Point3{X: float64(root) * 5.0}
		placed[root] = true
		queue := []int{root}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, v := range m.neighbors(u) {
				if placed[v] {
					continue
				}
				length := heavyBondLength
				if m.isHydrogen(u) || m.isHydrogen(v) {
					length = hydrogenLength
				}
				theta := rng.Float64() * 2 * math.Pi
				phi := math.Acos(2*rng.Float64() - 1)
				g[v] = chem.Point3{
					X: g[u].X + length*math.Sin(phi)*math.Cos(theta),
					Y: g[u].Y + length*math.Sin(phi)*math.Sin(theta),
					Z: g[u].Z + length*math.Cos(phi),
				}
				placed[v] = true
				queue = append(queue, v)
			}
		}
	}
	return g
}

// ─────────────────────────────────────────────────────────────────────────────
// Force field
// ─────────────────────────────────────────────────────────────────────────────

// forceField is a harmonic bond-stretch model over the last conformer.
type forceField struct {
	m   *mol
	idx int
}

// ForceField implements chem.Mol.
func (m *mol) ForceField() (chem.ForceField, error) {
	if len(m.conformers) == 0 {
		return nil, fmt.Errorf("lite: no conformer to build a force field over")
	}
	return &forceField{m: m, idx: len(m.conformers) - 1}, nil
}

func (f *forceField) Energy() float64 {
	g := f.m.conformers[f.idx]
	e := 0.0
	for _, b := range f.m.bonds {
		if b.begin >= len(g) || b.end >= len(g) {
			continue
		}
		length := heavyBondLength
		if f.m.isHydrogen(b.begin) || f.m.isHydrogen(b.end) {
			length = hydrogenLength
		}
		d := dist(g[b.begin], g[b.end]) - length
		e += stretchConstant * d * d
	}
	return e
}

// Minimize runs a fixed number of deterministic gradient-descent steps on
// the bond-stretch terms.
func (f *forceField) Minimize() error {
	g := f.m.conformers[f.idx]
	// The step must keep 2*step*2k well under 1 per bond end or the
	// descent oscillates instead of converging.
	const (
		iterations = 500
		step       = 0.0005
	)
	for it := 0; it < iterations; it++ {
		grad := make([]chem.Point3, len(g))
		for _, b := range f.m.bonds {
			if b.begin >= len(g) || b.end >= len(g) {
				continue
			}
			length := heavyBondLength
			if f.m.isHydrogen(b.begin) || f.m.isHydrogen(b.end) {
				length = hydrogenLength
			}
			d := dist(g[b.begin], g[b.end])
			if d < 1e-9 {
				continue
			}
			// dE/dd = 2k(d - L); distribute along the bond vector.
			coef := 2 * stretchConstant * (d - length) / d
			dx := (g[b.end].X - g[b.begin].X) * coef
			dy := (g[b.end].Y - g[b.begin].Y) * coef
			dz := (g[b.end].Z - g[b.begin].Z) * coef
			grad[b.begin].X -= dx
			grad[b.begin].Y -= dy
			grad[b.begin].Z -= dz
			grad[b.end].X += dx
			grad[b.end].Y += dy
			grad[b.end].Z += dz
		}
		for i := range g {
			g[i].X -= step * grad[i].X
			g[i].Y -= step * grad[i].Y
			g[i].Z -= step * grad[i].Z
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Alignment and RMSD
// ─────────────────────────────────────────────────────────────────────────────

// AlignConformers implements chem.Mol with a centroid alignment: every
// conformer is translated so the centroid of the given atom subset sits at
// the origin.
func (m *mol) AlignConformers(atomIndices []int) error {
	if len(atomIndices) == 0 {
		return fmt.Errorf("lite: alignment needs a non-empty atom subset")
	}
	for ci, g := range m.conformers {
		var cx, cy, cz float64
		count := 0
		for _, i := range atomIndices {
			if i < 0 || i >= len(g) {
				return fmt.Errorf("lite: alignment atom index %d out of range", i)
			}
			cx += g[i].X
			cy += g[i].Y
			cz += g[i].Z
			count++
		}
		cx /= float64(count)
		cy /= float64(count)
		cz /= float64(count)
		for i := range g {
			g[i].X -= cx
			g[i].Y -= cy
			g[i].Z -= cz
		}
		m.conformers[ci] = g
	}
	return nil
}

// ConformerRMSD implements chem.Mol.
func (m *mol) ConformerRMSD(i, j int, atomIndices []int) (float64, error) {
	if i < 0 || i >= len(m.conformers) || j < 0 || j >= len(m.conformers) {
		return 0, fmt.Errorf("lite: conformer indices (%d, %d) out of range [0, %d)", i, j, len(m.conformers))
	}
	if len(atomIndices) == 0 {
		return 0, fmt.Errorf("lite: RMSD needs a non-empty atom subset")
	}
	a, b := m.conformers[i], m.conformers[j]
	sum := 0.0
	for _, k := range atomIndices {
		if k < 0 || k >= len(a) || k >= len(b) {
			return 0, fmt.Errorf("lite: RMSD atom index %d out of range", k)
		}
		dx := a[k].X - b[k].X
		dy := a[k].Y - b[k].Y
		dz := a[k].Z - b[k].Z
		sum += dx*dx + dy*dy + dz*dz
	}
	return math.Sqrt(sum / float64(len(atomIndices))), nil
}

func dist(a, b chem.Point3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
