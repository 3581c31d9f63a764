package service

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
)

// objectRefs answers which index rows point at an object. Rows with a
// file_path are found by it. Rows with only a URL are resolved once through
// PathFromURL, so raw and percent-encoded URLs of one object agree.
type objectRefs struct {
	assetRepo repository.AssetRepository
	store     storage.ObjectStore
	pathless  map[string][]*model.IndexRow
}

func loadObjectRefs(ctx context.Context, assetRepo repository.AssetRepository, store storage.ObjectStore) (*objectRefs, error) {
	rows, err := assetRepo.FindPathless(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load url-only rows: %w", err)
	}
	refs := &objectRefs{
		assetRepo: assetRepo,
		store:     store,
		pathless:  make(map[string][]*model.IndexRow),
	}
	for _, row := range rows {
		if p := objectPath(store, row); p != "" {
			refs.pathless[p] = append(refs.pathless[p], row)
		}
	}
	return refs, nil
}

// at returns every row whose object path is p.
func (r *objectRefs) at(ctx context.Context, p string) ([]*model.IndexRow, error) {
	rows, err := r.assetRepo.FindByPath(ctx, p)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		seen[row.ID] = true
	}
	for _, row := range r.pathless[p] {
		if !seen[row.ID] {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// under returns the url-only rows whose object lies below prefix.
func (r *objectRefs) under(prefix string) []*model.IndexRow {
	var rows []*model.IndexRow
	for _, p := range slices.Sorted(maps.Keys(r.pathless)) {
		if assetpath.HasPrefix(p, prefix) {
			rows = append(rows, r.pathless[p]...)
		}
	}
	return rows
}

// forget drops a row that no longer points at p.
func (r *objectRefs) forget(p string, id int64) {
	refs := r.pathless[p]
	for i, row := range refs {
		if row.ID == id {
			r.pathless[p] = append(refs[:i:i], refs[i+1:]...)
			return
		}
	}
}
