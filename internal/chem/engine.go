// Package chem defines the narrow interface through which the preparation
// pipeline consumes a chemical-graph engine: notation parsing, canonical
// serialization, ring and stereo queries, substructure matching, graph
// rewriting, 3D embedding, force-field evaluation, and conformer alignment.
//
// The domain layer depends only on these interfaces.  internal/chem/lite
// provides an in-tree pure-Go implementation with simplified chemistry;
// production deployments can bind a full cheminformatics toolkit behind the
// same contract.
package chem

// SanitizeMode controls how strictly ParseSmiles normalizes a freshly parsed
// graph.
type SanitizeMode int

const (
	// SanitizePermissive applies every sanitize operation except the
	// aggressive cleanup passes.  Used when materializing graphs from
	// possibly imperfect input, where a structural failure must surface as
	// an explicit error rather than a mangled graph.
	SanitizePermissive SanitizeMode = iota

	// SanitizeFull applies the engine's complete sanitization.
	SanitizeFull
)

// EmbedAlgorithm selects the 3D coordinate embedding variant.
type EmbedAlgorithm int

const (
	// EmbedETKDG is the deterministic-seeded, chirality-respecting variant.
	EmbedETKDG EmbedAlgorithm = iota

	// EmbedDistanceGeometry is the legacy fallback variant.
	EmbedDistanceGeometry
)

// BondStereo is the stereo descriptor attached to a bond.
type BondStereo int

const (
	StereoNone BondStereo = iota
	StereoZ
	StereoE
	StereoAny
)

// Point3 is one atom position in Ångströms.
type Point3 struct {
	X, Y, Z float64
}

// Geometry is a full 3D coordinate assignment over a graph's atoms, indexed
// by atom index.
type Geometry []Point3

// Clone returns an independent copy of the geometry.
func (g Geometry) Clone() Geometry {
	if g == nil {
		return nil
	}
	out := make(Geometry, len(g))
	copy(out, g)
	return out
}

// Bond describes one bond for iteration purposes.
type Bond struct {
	Index  int
	Begin  int
	End    int
	Order  float64 // 1, 2, 3, or 1.5 for aromatic
	Stereo BondStereo
}

// ChiralCenter is one stereocenter report.
type ChiralCenter struct {
	AtomIndex  int
	Assigned   bool
	Descriptor string // "R", "S", or "?" when unassigned
}

// Engine parses line notation into graph handles.
type Engine interface {
	// ParseSmiles decodes notation into a Mol.  Malformed input returns an
	// error; it never panics.
	ParseSmiles(notation string, mode SanitizeMode) (Mol, error)

	// Name identifies the engine implementation for diagnostics.
	Name() string
}

// Mol is an opaque handle over one chemical graph plus any attached
// conformers.  Implementations are not safe for concurrent mutation.
type Mol interface {
	// Copy returns a deep copy sharing no mutable state with the receiver,
	// including conformer geometries.
	Copy() Mol

	NumAtoms() int
	NumHeavyAtoms() int

	// HeavyAtomIndices returns the indices of all non-hydrogen atoms in
	// ascending order.
	HeavyAtomIndices() []int

	AtomIsAromatic(idx int) bool

	// Bonds returns every bond with its order and stereo descriptor.
	Bonds() []Bond

	// CanonicalSmiles serializes the graph to its unique canonical notation.
	// The output is deterministic: two graphs encoding the same structure
	// serialize identically regardless of input atom ordering.
	CanonicalSmiles() (string, error)

	// AddHydrogens makes implicit hydrogens explicit, mutating the graph in
	// place.  Existing conformers are extended with positions for the new
	// atoms.
	AddHydrogens() error

	// RemoveHydrogens folds explicit terminal hydrogens back into implicit
	// counts, mutating the graph and any conformers in place.
	RemoveHydrogens() error

	// RingAtomGroups returns the atom-index groups of the smallest set of
	// smallest rings.
	RingAtomGroups() [][]int

	// ChiralCenters enumerates stereocenters, optionally including atoms
	// that could be stereocenters but carry no assignment.
	ChiralCenters(includeUnassigned bool) []ChiralCenter

	// HasSubstructure reports whether the graph contains a match for the
	// given pattern.  Unsupported patterns return an error.
	HasSubstructure(pattern string) (bool, error)

	// ApplyTransform applies a reaction-style rewrite rule and returns the
	// single product, or (nil, false) when the rule finds nothing to
	// rewrite.
	ApplyTransform(rule string) (Mol, bool)

	// Fragments splits the graph into its connected components.
	Fragments() []Mol

	// Conformer management.
	NumConformers() int
	Conformer(idx int) (Geometry, error)
	AddConformer(g Geometry) int
	RemoveConformer(idx int) error
	RemoveAllConformers()

	// Embed generates one new conformer with the selected algorithm and
	// appends it.  Returns an error when the algorithm yields no
	// coordinates.
	Embed(alg EmbedAlgorithm) error

	// ForceField builds a force field over the last conformer.
	ForceField() (ForceField, error)

	// AlignConformers aligns all attached conformers to each other using
	// only the given atom subset.
	AlignConformers(atomIndices []int) error

	// ConformerRMSD computes the root-mean-square deviation between two
	// attached conformers restricted to the given atom subset.  The
	// conformers are assumed to be aligned already.
	ConformerRMSD(i, j int, atomIndices []int) (float64, error)
}

// ForceField evaluates and locally minimizes the potential energy of a
// conformer.
type ForceField interface {
	// Energy returns the current potential energy in arbitrary force-field
	// units.
	Energy() float64

	// Minimize runs local minimization, updating the conformer geometry in
	// place.
	Minimize() error
}
