package lite

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolPrep-Engine/internal/chem"
)

func TestAddRemoveHydrogens(t *testing.T) {
	e := New()
	m := mustParse(t, e, "CCO")

	require.NoError(t, m.AddHydrogens())
	assert.Equal(t, 9, m.NumAtoms())
	assert.Equal(t, 3, m.NumHeavyAtoms())
	assert.Equal(t, "CCO", canonical(t, m))

	require.NoError(t, m.RemoveHydrogens())
	assert.Equal(t, 3, m.NumAtoms())
	assert.Equal(t, "CCO", canonical(t, m))
}

func TestAddHydrogens_ExtendsConformers(t *testing.T) {
	e := New()
	m := mustParse(t, e, "CO")
	require.NoError(t, m.Embed(chem.EmbedETKDG))

	require.NoError(t, m.AddHydrogens())
	g, err := m.Conformer(0)
	require.NoError(t, err)
	assert.Len(t, g, m.NumAtoms())

	require.NoError(t, m.RemoveHydrogens())
	g, err = m.Conformer(0)
	require.NoError(t, err)
	assert.Len(t, g, 2)
}

func TestHeavyAtomIndices(t *testing.T) {
	e := New()
	m := mustParse(t, e, "[H]O[H]")
	assert.Len(t, m.HeavyAtomIndices(), 1)

	m = mustParse(t, e, "CCO")
	require.NoError(t, m.AddHydrogens())
	idx := m.HeavyAtomIndices()
	assert.Len(t, idx, 3)
	assert.True(t, sort.IntsAreSorted(idx))
}

func TestRingAtomGroups(t *testing.T) {
	tests := []struct {
		name     string
		notation string
		sizes    []int
	}{
		{"acyclic", "CCO", nil},
		{"cyclopropane", "C1CC1", []int{3}},
		{"cyclohexane", "C1CCCCC1", []int{6}},
		{"benzene", "c1ccccc1", []int{6}},
		{"two separate rings", "C1CC1CC1CC1", []int{3, 3}},
	}
	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, e, tt.notation)
			groups := m.RingAtomGroups()
			var sizes []int
			for _, g := range groups {
				sizes = append(sizes, len(g))
			}
			sort.Ints(sizes)
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestChiralCenters(t *testing.T) {
	e := New()

	t.Run("assigned", func(t *testing.T) {
		m := mustParse(t, e, "C[C@H](N)C(=O)O")
		centers := m.ChiralCenters(false)
		require.Len(t, centers, 1)
		assert.True(t, centers[0].Assigned)
		assert.Equal(t, "S", centers[0].Descriptor)
	})

	t.Run("assigned clockwise", func(t *testing.T) {
		m := mustParse(t, e, "C[C@@H](N)C(=O)O")
		centers := m.ChiralCenters(false)
		require.Len(t, centers, 1)
		assert.Equal(t, "R", centers[0].Descriptor)
	})

	t.Run("unassigned candidate", func(t *testing.T) {
		m := mustParse(t, e, "CC(N)(O)F")
		assert.Empty(t, m.ChiralCenters(false))

		centers := m.ChiralCenters(true)
		require.Len(t, centers, 1)
		assert.False(t, centers[0].Assigned)
		assert.Equal(t, "?", centers[0].Descriptor)
	})

	t.Run("symmetric carbon is no candidate", func(t *testing.T) {
		m := mustParse(t, e, "CC(C)O")
		assert.Empty(t, m.ChiralCenters(true))
	})
}

func TestFragments(t *testing.T) {
	e := New()

	t.Run("connected graph is one fragment", func(t *testing.T) {
		m := mustParse(t, e, "CCO")
		frags := m.Fragments()
		require.Len(t, frags, 1)
		assert.Equal(t, 3, frags[0].NumHeavyAtoms())
	})

	t.Run("salt splits into components", func(t *testing.T) {
		m := mustParse(t, e, "CCO.[Na+].[Cl-]")
		frags := m.Fragments()
		require.Len(t, frags, 3)

		var heavy []int
		for _, f := range frags {
			heavy = append(heavy, f.NumHeavyAtoms())
		}
		sort.Ints(heavy)
		assert.Equal(t, []int{1, 1, 3}, heavy)
	})

	t.Run("fragments carry conformer slices", func(t *testing.T) {
		m := mustParse(t, e, "CC.O")
		require.NoError(t, m.Embed(chem.EmbedETKDG))
		for _, f := range m.Fragments() {
			assert.Equal(t, 1, f.NumConformers())
			g, err := f.Conformer(0)
			require.NoError(t, err)
			assert.Len(t, g, f.NumAtoms())
		}
	})
}

func TestCopy_IsDeep(t *testing.T) {
	e := New()
	m := mustParse(t, e, "CCO")
	require.NoError(t, m.Embed(chem.EmbedETKDG))

	cp := m.Copy()
	require.NoError(t, cp.AddHydrogens())
	assert.Equal(t, 3, m.NumAtoms())
	assert.Equal(t, 9, cp.NumAtoms())

	g, err := m.Conformer(0)
	require.NoError(t, err)
	assert.Len(t, g, 3)
}

func TestConformerBookkeeping(t *testing.T) {
	e := New()
	m := mustParse(t, e, "CCO")
	assert.Equal(t, 0, m.NumConformers())

	g := make(chem.Geometry, m.NumAtoms())
	idx := m.AddConformer(g)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, m.NumConformers())

	_, err := m.Conformer(1)
	assert.Error(t, err)

	require.NoError(t, m.RemoveConformer(0))
	assert.Equal(t, 0, m.NumConformers())
	assert.Error(t, m.RemoveConformer(0))

	m.AddConformer(g)
	m.AddConformer(g)
	m.RemoveAllConformers()
	assert.Equal(t, 0, m.NumConformers())
}

func TestBonds_ReportOrders(t *testing.T) {
	e := New()
	m := mustParse(t, e, "CC(=O)O")

	var orders []float64
	for _, b := range m.Bonds() {
		orders = append(orders, b.Order)
	}
	sort.Float64s(orders)
	assert.Equal(t, []float64{1, 1, 2}, orders)
}

func TestAtomIsAromatic(t *testing.T) {
	e := New()
	m := mustParse(t, e, "c1ccccc1")
	for _, i := range m.HeavyAtomIndices() {
		assert.True(t, m.AtomIsAromatic(i))
	}
	assert.False(t, m.AtomIsAromatic(-1))
	assert.False(t, m.AtomIsAromatic(99))

	m = mustParse(t, e, "CCO")
	assert.False(t, m.AtomIsAromatic(0))
}
