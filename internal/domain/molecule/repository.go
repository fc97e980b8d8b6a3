package molecule

import (
	"context"

	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

// Repository defines the persistence contract for prepared molecules.
// Records cross the boundary as DTOs so implementations never hold live
// chemistry-engine handles.
type Repository interface {
	// Save persists a new prepared molecule or updates an existing one by ID.
	// Returns errors.CodeConflict on a Version mismatch (optimistic lock).
	Save(ctx context.Context, mol *mtypes.MoleculeDTO) error

	// FindByID retrieves a prepared molecule.
	// Returns errors.CodeNotFound if no molecule with the given ID exists.
	FindByID(ctx context.Context, id common.ID) (*mtypes.MoleculeDTO, error)

	// FindByCanonicalSmiles retrieves a prepared molecule by its
	// hydrogen-inclusive canonical form.
	// Returns errors.CodeNotFound if no matching molecule exists.
	FindByCanonicalSmiles(ctx context.Context, smiles string) (*mtypes.MoleculeDTO, error)

	// List returns prepared molecules ordered by creation time descending.
	List(ctx context.Context, page common.Pagination) ([]*mtypes.MoleculeDTO, error)

	// BatchSave persists multiple molecules in a single transaction.
	BatchSave(ctx context.Context, mols []*mtypes.MoleculeDTO) error

	// Delete removes a prepared molecule by ID.
	// Returns errors.CodeNotFound if the molecule does not exist.
	Delete(ctx context.Context, id common.ID) error
}
