package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
)

// IdentityMode selects what makes two rows duplicates.
type IdentityMode string

const (
	ByURL  IdentityMode = "url"
	ByPath IdentityMode = "path"
)

type DedupeOptions struct {
	Mode         IdentityMode
	FolderPrefix string // optional scope
	DryRun       bool
}

// DuplicateResolver keeps the oldest row of each identity group and removes
// the others from the index, and their bytes from the store when nothing
// else still points at them.
type DuplicateResolver struct {
	assetRepo repository.AssetRepository
	store     storage.ObjectStore
}

func NewDuplicateResolver(assetRepo repository.AssetRepository, store storage.ObjectStore) *DuplicateResolver {
	return &DuplicateResolver{
		assetRepo: assetRepo,
		store:     store,
	}
}

func (d *DuplicateResolver) Resolve(ctx context.Context, opts DedupeOptions) (*model.BatchReport, error) {
	if opts.Mode == "" {
		opts.Mode = ByURL
	}
	report := model.NewBatchReport("dedupe")
	report.DryRun = opts.DryRun
	defer report.Finish()

	var rows []*model.IndexRow
	var err error
	if opts.FolderPrefix != "" {
		rows, err = d.assetRepo.FindByFolder(ctx, opts.FolderPrefix, true)
	} else {
		rows, err = d.assetRepo.All(ctx)
	}
	if err != nil {
		return report, fmt.Errorf("failed to load index rows: %w", err)
	}

	refs, err := loadObjectRefs(ctx, d.assetRepo, d.store)
	if err != nil {
		return report, err
	}

	groups, order := d.group(rows, opts.Mode)
	report.Count("groups", 0)
	report.Count("removed", 0)

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		live, err := d.withoutGhosts(ctx, group, report)
		if err != nil {
			return report, err
		}
		if len(live) < 2 {
			continue
		}

		report.Count("groups", 1)
		d.resolveGroup(ctx, key, live, refs, opts.DryRun, report)
	}

	slog.Info("dedupe finished",
		"groups", report.Counters["groups"],
		"removed", report.Counters["removed"],
		"failed", report.Failed,
		"skipped", report.Skipped,
		"dry_run", opts.DryRun,
	)
	return report, nil
}

func (d *DuplicateResolver) group(rows []*model.IndexRow, mode IdentityMode) (map[string][]*model.IndexRow, []string) {
	groups := make(map[string][]*model.IndexRow)
	var order []string
	for _, row := range rows {
		key := d.identity(row, mode)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}
	return groups, order
}

func (d *DuplicateResolver) identity(row *model.IndexRow, mode IdentityMode) string {
	if mode == ByPath {
		return objectPath(d.store, row)
	}
	if row.ImageURL != "" {
		return row.ImageURL
	}
	if row.FilePath != "" {
		return d.store.PublicURL(row.FilePath)
	}
	return ""
}

// withoutGhosts drops rows whose object is missing. They belong to the
// reconciler and must never be picked as keeper or removed as duplicates.
func (d *DuplicateResolver) withoutGhosts(ctx context.Context, group []*model.IndexRow, report *model.BatchReport) ([]*model.IndexRow, error) {
	var live []*model.IndexRow
	for _, row := range group {
		p := objectPath(d.store, row)
		if p == "" {
			d.skipGhost(row, p, report)
			continue
		}
		ok, err := storage.Exists(ctx, d.store, p)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			report.Fail(rowUnit(row), fmt.Errorf("failed to check object: %w", err))
			continue
		}
		if !ok {
			d.skipGhost(row, p, report)
			continue
		}
		live = append(live, row)
	}
	return live, nil
}

func (d *DuplicateResolver) skipGhost(row *model.IndexRow, p string, report *model.BatchReport) {
	inconsistency := &IndexInconsistencyError{RowID: row.ID, Path: p, Reason: "no backing object, left for reconcile"}
	slog.Warn("skipping ghost row in duplicate group", "row_id", row.ID, "path", p, "error", inconsistency)
	report.Skip()
	report.Count("ghosts_skipped", 1)
}

func (d *DuplicateResolver) resolveGroup(ctx context.Context, key string, group []*model.IndexRow, refs *objectRefs, dryRun bool, report *model.BatchReport) {
	sort.SliceStable(group, func(i, j int) bool { return group[i].EarlierThan(group[j]) })
	keeper := group[0]

	for _, dup := range group[1:] {
		unit := rowUnit(dup)
		log := slog.With("identity", key, "keeper_id", keeper.ID, "row_id", dup.ID)

		if dryRun {
			log.Info("would remove duplicate row")
			report.Success()
			report.Count("removed", 1)
			continue
		}

		err := d.removeDuplicate(ctx, keeper, dup, refs)
		if err != nil {
			log.Error("failed to remove duplicate row", "error", err)
			report.Fail(unit, err)
			continue
		}

		log.Info("removed duplicate row")
		report.Success()
		report.Count("removed", 1)
	}

	if dryRun || keeper.ImageURL != "" {
		return
	}
	// The keeper inherits a URL if it only had a path.
	p := objectPath(d.store, keeper)
	if p == "" {
		return
	}
	if err := d.assetRepo.SetLocation(ctx, keeper.ID, locationOf(d.store, p)); err != nil {
		slog.Error("failed to set keeper url", "row_id", keeper.ID, "error", err)
		report.Fail(rowUnit(keeper), err)
	}
}

// removeDuplicate folds dup into keeper. The bytes are deleted first and
// only if no other row still resolves to them; a failed delete keeps the
// row so the next run can retry.
func (d *DuplicateResolver) removeDuplicate(ctx context.Context, keeper, dup *model.IndexRow, refs *objectRefs) error {
	if len(dup.Tags) > 0 {
		tags, err := d.assetRepo.UpsertTags(ctx, keeper.ID, dup.Tags, nil)
		if err != nil {
			return fmt.Errorf("failed to merge tags into keeper: %w", err)
		}
		keeper.Tags = tags
	}

	p := objectPath(d.store, dup)
	holders, err := refs.at(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to re-check references: %w", err)
	}

	shared := false
	for _, r := range holders {
		if r.ID != dup.ID {
			shared = true
			break
		}
	}

	if !shared {
		results := d.store.Delete(ctx, []string{p})
		if failed := storage.FailedDeletes(results); len(failed) > 0 {
			return fmt.Errorf("failed to delete object %s: %w", p, failed[0].Err)
		}
	}

	err = d.assetRepo.Delete(ctx, dup.ID)
	if err != nil && !errors.Is(err, repository.ErrAssetNotFound) {
		return fmt.Errorf("failed to delete index row: %w", err)
	}
	refs.forget(p, dup.ID)
	return nil
}
