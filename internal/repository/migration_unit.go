package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/masgolf/assetsync/internal/model"
)

var (
	ErrUnitNotFound = errors.New("migration unit not found")
)

// MigrationUnitRepository stores per-unit checkpoints of the path migrator.
type MigrationUnitRepository interface {
	Get(ctx context.Context, oldPath, newPath string) (*model.MigrationUnit, error)
	Save(ctx context.Context, unit *model.MigrationUnit) error
	ByRun(ctx context.Context, runID string) ([]*model.MigrationUnit, error)
}

type migrationUnitRepository struct {
	db *sqlx.DB
}

func NewMigrationUnitRepository(db *sqlx.DB) *migrationUnitRepository {
	return &migrationUnitRepository{db: db}
}

func (r *migrationUnitRepository) Get(ctx context.Context, oldPath, newPath string) (*model.MigrationUnit, error) {
	unit := &model.MigrationUnit{}
	query := `SELECT old_path, new_path, state, run_id, error, rows_moved, updated_at
	          FROM asset_migration_units WHERE old_path = $1 AND new_path = $2`

	err := r.db.GetContext(ctx, unit, query, oldPath, newPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnitNotFound
	}
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// Save inserts or overwrites the checkpoint of (old_path, new_path).
func (r *migrationUnitRepository) Save(ctx context.Context, unit *model.MigrationUnit) error {
	unit.UpdatedAt = time.Now().UTC()
	query := `INSERT INTO asset_migration_units (old_path, new_path, state, run_id, error, rows_moved, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (old_path, new_path) DO UPDATE SET
	            state = excluded.state,
	            run_id = excluded.run_id,
	            error = excluded.error,
	            rows_moved = excluded.rows_moved,
	            updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		unit.OldPath,
		unit.NewPath,
		unit.State,
		unit.RunID,
		unit.Error,
		unit.RowsMoved,
		unit.UpdatedAt,
	)
	return err
}

func (r *migrationUnitRepository) ByRun(ctx context.Context, runID string) ([]*model.MigrationUnit, error) {
	var units []*model.MigrationUnit
	query := `SELECT old_path, new_path, state, run_id, error, rows_moved, updated_at
	          FROM asset_migration_units WHERE run_id = $1 ORDER BY old_path ASC`

	err := r.db.SelectContext(ctx, &units, query, runID)
	if err != nil {
		return nil, err
	}
	return units, nil
}
