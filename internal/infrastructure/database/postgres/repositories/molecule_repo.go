// Package repositories contains the PostgreSQL implementations of the domain
// persistence ports.
package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainMol "github.com/turtacn/MolPrep-Engine/internal/domain/molecule"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
	"github.com/turtacn/MolPrep-Engine/pkg/types/common"
	mtypes "github.com/turtacn/MolPrep-Engine/pkg/types/molecule"
)

const moleculeColumns = `
	id, name, container_index, original_notation, desalted_notation,
	canonical_smiles, canonical_smiles_no_h, genealogy, props, conformers,
	created_at, updated_at, version`

// MoleculeRepository is the PostgreSQL implementation of the molecule
// domain's Repository interface.  Genealogy, props, and conformer geometries
// are serialized as JSONB columns.
type MoleculeRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

var _ domainMol.Repository = (*MoleculeRepository)(nil)

// NewMoleculeRepository constructs a ready-to-use MoleculeRepository.
func NewMoleculeRepository(pool *pgxpool.Pool, logger logging.Logger) *MoleculeRepository {
	return &MoleculeRepository{pool: pool, logger: logger}
}

// ─────────────────────────────────────────────────────────────────────────────
// Save
// ─────────────────────────────────────────────────────────────────────────────

// Save persists a molecule.  An existing row is updated only when the stored
// version matches the DTO's; a mismatch returns a conflict error so stale
// writers never clobber newer state.
func (r *MoleculeRepository) Save(ctx context.Context, m *mtypes.MoleculeDTO) error {
	r.logger.Debug("MoleculeRepository.Save", logging.String("molecule_id", string(m.ID)))

	genealogyJSON, propsJSON, conformersJSON, err := marshalMoleculePayload(m)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE molecules SET
			name = $2, container_index = $3, original_notation = $4,
			desalted_notation = $5, canonical_smiles = $6,
			canonical_smiles_no_h = $7, genealogy = $8, props = $9,
			conformers = $10, updated_at = $11, version = version + 1
		WHERE id = $1 AND version = $12`,
		m.ID, m.Name, m.ContainerIndex, m.OriginalNotation,
		m.DesaltedNotation, m.CanonicalSmiles,
		m.CanonicalSmilesNoH, genealogyJSON, propsJSON,
		conformersJSON, now, m.Version,
	)
	if err != nil {
		r.logger.Error("MoleculeRepository.Save: update", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update molecule")
	}
	if tag.RowsAffected() == 1 {
		m.Version++
		m.UpdatedAt = now
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM molecules WHERE id = $1)`, m.ID,
	).Scan(&exists); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check molecule existence")
	}
	if exists {
		return errors.New(errors.ErrCodeConflict, "molecule was modified concurrently").
			WithDetail(string(m.ID))
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO molecules (`+moleculeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID, m.Name, m.ContainerIndex, m.OriginalNotation, m.DesaltedNotation,
		m.CanonicalSmiles, m.CanonicalSmilesNoH, genealogyJSON, propsJSON, conformersJSON,
		m.CreatedAt, m.UpdatedAt, m.Version,
	)
	if err != nil {
		r.logger.Error("MoleculeRepository.Save: insert", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert molecule")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// BatchSave — bulk insert via pgx.CopyFrom
// ─────────────────────────────────────────────────────────────────────────────

// BatchSave inserts multiple molecules in one transaction using the
// PostgreSQL COPY protocol.
func (r *MoleculeRepository) BatchSave(ctx context.Context, mols []*mtypes.MoleculeDTO) error {
	r.logger.Debug("MoleculeRepository.BatchSave", logging.Int("count", len(mols)))

	if len(mols) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(mols))
	for _, m := range mols {
		genealogyJSON, propsJSON, conformersJSON, err := marshalMoleculePayload(m)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			m.ID, m.Name, m.ContainerIndex, m.OriginalNotation, m.DesaltedNotation,
			m.CanonicalSmiles, m.CanonicalSmilesNoH, genealogyJSON, propsJSON, conformersJSON,
			m.CreatedAt, m.UpdatedAt, m.Version,
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	copied, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"molecules"},
		[]string{
			"id", "name", "container_index", "original_notation", "desalted_notation",
			"canonical_smiles", "canonical_smiles_no_h", "genealogy", "props", "conformers",
			"created_at", "updated_at", "version",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		r.logger.Error("MoleculeRepository.BatchSave", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to batch insert molecules")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit batch insert")
	}

	r.logger.Debug("MoleculeRepository.BatchSave: done", logging.Int64("inserted", copied))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Lookups
// ─────────────────────────────────────────────────────────────────────────────

func (r *MoleculeRepository) FindByID(ctx context.Context, id common.ID) (*mtypes.MoleculeDTO, error) {
	r.logger.Debug("MoleculeRepository.FindByID", logging.String("id", string(id)))

	return scanMolecule(r.pool.QueryRow(ctx,
		`SELECT `+moleculeColumns+` FROM molecules WHERE id = $1`, id))
}

func (r *MoleculeRepository) FindByCanonicalSmiles(ctx context.Context, smiles string) (*mtypes.MoleculeDTO, error) {
	r.logger.Debug("MoleculeRepository.FindByCanonicalSmiles", logging.String("smiles", smiles))

	return scanMolecule(r.pool.QueryRow(ctx,
		`SELECT `+moleculeColumns+` FROM molecules WHERE canonical_smiles = $1`, smiles))
}

func (r *MoleculeRepository) List(ctx context.Context, page common.Pagination) ([]*mtypes.MoleculeDTO, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+moleculeColumns+` FROM molecules
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, page.PageSize, page.Offset())
	if err != nil {
		r.logger.Error("MoleculeRepository.List", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list query failed")
	}
	defer rows.Close()

	var out []*mtypes.MoleculeDTO
	for rows.Next() {
		m, err := scanMolecule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "list iteration failed")
	}
	return out, nil
}

func (r *MoleculeRepository) Delete(ctx context.Context, id common.ID) error {
	r.logger.Debug("MoleculeRepository.Delete", logging.String("id", string(id)))

	tag, err := r.pool.Exec(ctx, `DELETE FROM molecules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete molecule")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeNotFound, "molecule not found").WithDetail(string(id))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row scanning
// ─────────────────────────────────────────────────────────────────────────────

func marshalMoleculePayload(m *mtypes.MoleculeDTO) (genealogy, props, conformers []byte, err error) {
	if genealogy, err = json.Marshal(m.Genealogy); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal genealogy")
	}
	if props, err = json.Marshal(m.Props); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal props")
	}
	if conformers, err = json.Marshal(m.Conformers); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal conformers")
	}
	return genealogy, props, conformers, nil
}

func scanMolecule(row pgx.Row) (*mtypes.MoleculeDTO, error) {
	var (
		m              mtypes.MoleculeDTO
		genealogyJSON  []byte
		propsJSON      []byte
		conformersJSON []byte
	)

	err := row.Scan(
		&m.ID, &m.Name, &m.ContainerIndex, &m.OriginalNotation, &m.DesaltedNotation,
		&m.CanonicalSmiles, &m.CanonicalSmilesNoH, &genealogyJSON, &propsJSON, &conformersJSON,
		&m.CreatedAt, &m.UpdatedAt, &m.Version,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNotFound, "molecule not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan molecule row")
	}

	if len(genealogyJSON) > 0 {
		if err := json.Unmarshal(genealogyJSON, &m.Genealogy); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal genealogy")
		}
	}
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &m.Props); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal props")
		}
	}
	if len(conformersJSON) > 0 {
		if err := json.Unmarshal(conformersJSON, &m.Conformers); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal conformers")
		}
	}

	return &m, nil
}
