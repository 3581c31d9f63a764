package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
	"golang.org/x/sync/errgroup"
)

// MigrationRequest moves everything under OldPrefix to NewPrefix. When
// OldPrefix names a single object only that object is moved.
type MigrationRequest struct {
	OldPrefix string
	NewPrefix string
	DryRun    bool
}

type MigrationResult struct {
	Report       *model.BatchReport    `json:"report" yaml:"report"`
	RunID        string                `json:"run_id" yaml:"run_id"`
	Units        []model.MigrationUnit `json:"units" yaml:"units"`
	Inconsistent []string              `json:"inconsistent,omitempty" yaml:"inconsistent,omitempty"`
}

// Migrator runs each unit through planned, copied, index_updated and
// old_deleted. Copies of all units finish before any old object is
// deleted, and a unit's old object is deleted only after its index rows
// point at the new path.
type Migrator struct {
	assetRepo   repository.AssetRepository
	unitRepo    repository.MigrationUnitRepository
	store       storage.ObjectStore
	concurrency int
}

func NewMigrator(assetRepo repository.AssetRepository, unitRepo repository.MigrationUnitRepository, store storage.ObjectStore, concurrency int) *Migrator {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Migrator{
		assetRepo:   assetRepo,
		unitRepo:    unitRepo,
		store:       store,
		concurrency: concurrency,
	}
}

type unitRun struct {
	unit    *model.MigrationUnit
	resumed bool
	err     error
	skipped bool
}

func (m *Migrator) Migrate(ctx context.Context, req MigrationRequest) (*MigrationResult, error) {
	oldPrefix := strings.Trim(req.OldPrefix, "/")
	newPrefix := strings.Trim(req.NewPrefix, "/")
	if err := validatePrefixes(oldPrefix, newPrefix); err != nil {
		return nil, err
	}

	report := model.NewBatchReport("migrate")
	report.DryRun = req.DryRun
	result := &MigrationResult{Report: report, RunID: uuid.NewString(), Units: []model.MigrationUnit{}}
	report.Detail("run_id", result.RunID)
	report.Detail("old_prefix", oldPrefix)
	report.Detail("new_prefix", newPrefix)
	defer report.Finish()

	log := slog.With("run_id", result.RunID, "old_prefix", oldPrefix, "new_prefix", newPrefix)

	runs, err := m.plan(ctx, oldPrefix, newPrefix, result.RunID)
	if err != nil {
		return result, err
	}
	report.Count("planned", len(runs))
	log.Info("migration planned", "units", len(runs), "dry_run", req.DryRun)

	refs, err := loadObjectRefs(ctx, m.assetRepo, m.store)
	if err != nil {
		return result, err
	}
	if err := m.checkIndex(ctx, oldPrefix, runs, refs, result); err != nil {
		return result, err
	}

	if req.DryRun {
		for _, run := range runs {
			log.Info("would migrate", "old_path", run.unit.OldPath, "new_path", run.unit.NewPath, "resume", run.resumed)
			report.Success()
			result.Units = append(result.Units, *run.unit)
		}
		return result, nil
	}

	m.copyPhase(ctx, runs)
	m.indexPhase(ctx, runs, refs)
	m.deletePhase(ctx, runs)

	for _, run := range runs {
		result.Units = append(result.Units, *run.unit)
		switch {
		case run.skipped:
			report.Skip()
			report.Count("cancelled", 1)
		case run.err != nil:
			report.Fail(run.unit.OldPath, run.err)
		default:
			report.Success()
		}
	}

	log.Info("migration finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return result, ctx.Err()
}

func validatePrefixes(oldPrefix, newPrefix string) error {
	switch {
	case oldPrefix == "" || newPrefix == "":
		return errors.New("old and new prefix are required")
	case oldPrefix == newPrefix:
		return errors.New("old and new prefix are the same")
	case assetpath.HasPrefix(newPrefix, oldPrefix) || assetpath.HasPrefix(oldPrefix, newPrefix):
		return fmt.Errorf("prefixes %q and %q are nested", oldPrefix, newPrefix)
	}
	return nil
}

// plan lists the units and attaches any checkpoint a previous run left.
// Resumable checkpoints skip the copy; anything else restarts from planned.
func (m *Migrator) plan(ctx context.Context, oldPrefix, newPrefix, runID string) ([]*unitRun, error) {
	var objects []model.Asset

	single, err := m.store.Stat(ctx, oldPrefix)
	switch {
	case err == nil:
		objects = []model.Asset{*single}
	case errors.Is(err, storage.ErrObjectNotFound):
		objects, err = m.store.List(ctx, oldPrefix, storage.ListOptions{Recursive: true})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", oldPrefix, err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", oldPrefix, err)
	}

	runs := make([]*unitRun, 0, len(objects))
	for _, obj := range objects {
		newPath, err := assetpath.Rebase(obj.Path, oldPrefix, newPrefix)
		if err != nil {
			return nil, err
		}
		unit := &model.MigrationUnit{
			OldPath: obj.Path,
			NewPath: newPath,
			State:   model.UnitPlanned,
			RunID:   runID,
		}
		run := &unitRun{unit: unit}

		cp, err := m.unitRepo.Get(ctx, obj.Path, newPath)
		switch {
		case err == nil && cp.State.Resumable():
			unit.State = cp.State
			unit.RowsMoved = cp.RowsMoved
			run.resumed = true
		case err != nil && !errors.Is(err, repository.ErrUnitNotFound):
			return nil, fmt.Errorf("failed to read checkpoint of %s: %w", obj.Path, err)
		}

		runs = append(runs, run)
	}
	return runs, nil
}

// checkIndex reports rows under the old prefix whose object was not found
// by the listing. Such rows cannot be moved and are left for reconcile.
func (m *Migrator) checkIndex(ctx context.Context, oldPrefix string, runs []*unitRun, refs *objectRefs, result *MigrationResult) error {
	rows, err := m.assetRepo.FindByFolder(ctx, oldPrefix, true)
	if err != nil {
		return fmt.Errorf("failed to load rows under %s: %w", oldPrefix, err)
	}
	single, err := m.assetRepo.FindByPath(ctx, oldPrefix)
	if err != nil {
		return fmt.Errorf("failed to load rows at %s: %w", oldPrefix, err)
	}
	rows = append(rows, single...)
	rows = append(rows, refs.under(oldPrefix)...)

	seen := make(map[int64]bool, len(rows))
	planned := make(map[string]bool, len(runs))
	for _, run := range runs {
		planned[run.unit.OldPath] = true
	}

	for _, row := range rows {
		p := objectPath(m.store, row)
		if seen[row.ID] || planned[p] || !assetpath.HasPrefix(p, oldPrefix) {
			continue
		}
		seen[row.ID] = true
		inconsistency := &IndexInconsistencyError{RowID: row.ID, Path: p, Reason: "no object under the old prefix"}
		slog.Warn("row cannot be migrated", "row_id", row.ID, "path", p, "error", inconsistency)
		result.Inconsistent = append(result.Inconsistent, inconsistency.Error())
		result.Report.Skip()
		result.Report.Count("inconsistent_rows", 1)
	}
	return nil
}

// copyPhase copies with bounded fan-out. A unit that has started runs to
// completion; cancellation only stops units that have not started yet.
func (m *Migrator) copyPhase(ctx context.Context, runs []*unitRun) {
	work := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for _, run := range runs {
		if run.resumed {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				run.skipped = true
				return nil
			}
			m.save(work, run.unit)
			err := m.copyUnit(work, run.unit)
			if err != nil {
				run.err = err
				m.transition(work, run.unit, model.UnitFailed, err)
				return nil
			}
			m.transition(work, run.unit, model.UnitCopied, nil)
			return nil
		})
	}
	_ = g.Wait()
}

// copyUnit copies and verifies one object. A destination that already
// holds the same bytes counts as copied; different bytes are never
// overwritten.
func (m *Migrator) copyUnit(ctx context.Context, unit *model.MigrationUnit) error {
	dst, err := m.store.Stat(ctx, unit.NewPath)
	switch {
	case err == nil:
		src, err := m.store.Stat(ctx, unit.OldPath)
		if err != nil {
			return fmt.Errorf("failed to stat source: %w", err)
		}
		if src.Size == dst.Size && src.ETag != "" && src.ETag == dst.ETag {
			slog.Debug("destination already holds the object", "old_path", unit.OldPath, "new_path", unit.NewPath)
			return nil
		}
		return fmt.Errorf("%w: %s holds different content", storage.ErrObjectExists, unit.NewPath)
	case !errors.Is(err, storage.ErrObjectNotFound):
		return fmt.Errorf("failed to stat destination: %w", err)
	}

	return storage.CopyVerified(ctx, m.store, unit.OldPath, unit.NewPath)
}

// indexPhase rewrites the rows of each copied unit, one transaction per
// unit. Colliding URLs at the destination are nulled in the same step.
// A row belongs to a unit when its resolved object path is the old path,
// however its URL is escaped.
func (m *Migrator) indexPhase(ctx context.Context, runs []*unitRun, refs *objectRefs) {
	work := context.WithoutCancel(ctx)

	for _, run := range runs {
		if run.unit.State != model.UnitCopied {
			continue
		}
		if ctx.Err() != nil {
			// Checkpoint stays at copied; the next run re-verifies and continues.
			run.skipped = true
			continue
		}

		rows, err := refs.at(work, run.unit.OldPath)
		if err != nil {
			run.err = fmt.Errorf("failed to find rows: %w", err)
			m.transition(work, run.unit, model.UnitFailed, run.err)
			continue
		}

		to := locationOf(m.store, run.unit.NewPath)
		moves := make([]repository.Relocation, 0, len(rows))
		for _, row := range rows {
			moves = append(moves, repository.Relocation{ID: row.ID, To: to})
		}

		nulled, err := m.assetRepo.Relocate(work, moves)
		if err != nil {
			run.err = fmt.Errorf("failed to update index: %w", err)
			m.transition(work, run.unit, model.UnitFailed, run.err)
			continue
		}
		if len(rows) == 0 {
			slog.Warn("migrating object without index rows", "old_path", run.unit.OldPath)
		}
		if nulled > 0 {
			slog.Info("nulled colliding urls", "new_path", run.unit.NewPath, "rows", nulled)
		}

		run.unit.RowsMoved = len(rows)
		m.transition(work, run.unit, model.UnitIndexUpdated, nil)
	}
}

// deletePhase removes the old objects of all index-updated units in one
// batch. A failed delete leaves the unit at index_updated for the next run.
func (m *Migrator) deletePhase(ctx context.Context, runs []*unitRun) {
	work := context.WithoutCancel(ctx)

	byPath := make(map[string]*unitRun)
	var paths []string
	for _, run := range runs {
		if run.unit.State != model.UnitIndexUpdated || run.skipped {
			continue
		}
		if ctx.Err() != nil {
			run.skipped = true
			continue
		}
		byPath[run.unit.OldPath] = run
		paths = append(paths, run.unit.OldPath)
	}
	if len(paths) == 0 {
		return
	}

	for _, res := range m.store.Delete(work, paths) {
		run := byPath[res.Path]
		if run == nil {
			continue
		}
		if res.Err != nil {
			run.err = fmt.Errorf("old object not deleted, index already points at %s: %w", run.unit.NewPath, res.Err)
			run.unit.Error = run.err.Error()
			m.save(work, run.unit)
			slog.Warn("old object not deleted", "old_path", run.unit.OldPath, "error", res.Err)
			continue
		}
		m.transition(work, run.unit, model.UnitOldDeleted, nil)
	}
}

func (m *Migrator) transition(ctx context.Context, unit *model.MigrationUnit, to model.UnitState, cause error) {
	if !unit.State.CanTransitionTo(to) {
		slog.Error("invalid unit transition", "old_path", unit.OldPath, "from", unit.State, "to", to)
		return
	}
	unit.State = to
	unit.Error = ""
	if cause != nil {
		unit.Error = cause.Error()
	}
	slog.Info("migration unit", "old_path", unit.OldPath, "new_path", unit.NewPath, "state", to, "error", unit.Error)
	m.save(ctx, unit)
}

// save writes a checkpoint. Checkpoints only speed up a rerun, which
// re-verifies the store anyway, so a failed write does not fail the unit.
func (m *Migrator) save(ctx context.Context, unit *model.MigrationUnit) {
	if err := m.unitRepo.Save(ctx, unit); err != nil {
		slog.Warn("failed to save checkpoint", "old_path", unit.OldPath, "state", unit.State, "error", err)
	}
}
