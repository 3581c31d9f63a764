package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/content"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
)

// GhostPolicy decides what happens to a row whose object is missing.
type GhostPolicy string

const (
	GhostReport GhostPolicy = "report"
	GhostDelete GhostPolicy = "delete"
	GhostRelink GhostPolicy = "relink"
)

func ParseGhostPolicy(s string) (GhostPolicy, error) {
	switch p := GhostPolicy(s); p {
	case GhostReport, GhostDelete, GhostRelink:
		return p, nil
	case "":
		return GhostReport, nil
	default:
		return "", fmt.Errorf("unknown ghost policy %q (report, delete, relink)", s)
	}
}

type GhostOptions struct {
	Prefix string // optional folder scope
	Policy GhostPolicy
	DryRun bool
}

// Ghost is an index row that does not resolve to an object.
type Ghost struct {
	RowID      int64  `json:"row_id" yaml:"row_id"`
	Path       string `json:"path" yaml:"path"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty"`
	Reason     string `json:"reason" yaml:"reason"`
	Resolution string `json:"resolution" yaml:"resolution"`
	RelinkedTo string `json:"relinked_to,omitempty" yaml:"relinked_to,omitempty"`
}

type GhostResult struct {
	Report *model.BatchReport `json:"report" yaml:"report"`
	Ghosts []Ghost            `json:"ghosts" yaml:"ghosts"`
}

type OrphanOptions struct {
	Prefix string
}

// Orphan is an object that no index row points at.
type Orphan struct {
	Path         string   `json:"path" yaml:"path"`
	URL          string   `json:"url" yaml:"url"`
	Size         int64    `json:"size" yaml:"size"`
	ReferencedBy []string `json:"referenced_by,omitempty" yaml:"referenced_by,omitempty"`
}

type OrphanResult struct {
	Report  *model.BatchReport `json:"report" yaml:"report"`
	Orphans []Orphan           `json:"orphans" yaml:"orphans"`
}

// Reconciler diffs the index against the object store in both directions.
type Reconciler struct {
	assetRepo repository.AssetRepository
	store     storage.ObjectStore
	scanner   *content.Scanner // optional
}

func NewReconciler(assetRepo repository.AssetRepository, store storage.ObjectStore, scanner *content.Scanner) *Reconciler {
	return &Reconciler{
		assetRepo: assetRepo,
		store:     store,
		scanner:   scanner,
	}
}

// Ghosts checks that every row's path and URL resolve to an object and
// applies the policy to the rows that do not.
func (r *Reconciler) Ghosts(ctx context.Context, opts GhostOptions) (*GhostResult, error) {
	if opts.Policy == "" {
		opts.Policy = GhostReport
	}
	report := model.NewBatchReport("reconcile_ghosts")
	report.DryRun = opts.DryRun
	report.Detail("policy", string(opts.Policy))
	result := &GhostResult{Report: report, Ghosts: []Ghost{}}
	defer report.Finish()

	var rows []*model.IndexRow
	var err error
	if opts.Prefix != "" {
		rows, err = r.assetRepo.FindByFolder(ctx, opts.Prefix, true)
	} else {
		rows, err = r.assetRepo.All(ctx)
	}
	if err != nil {
		return result, fmt.Errorf("failed to load index rows: %w", err)
	}

	report.Count("ghosts", 0)
	listings := make(map[string][]model.Asset)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ghost, err := r.check(ctx, row)
		if err != nil {
			slog.Error("ghost check failed", "row_id", row.ID, "error", err)
			report.Fail(rowUnit(row), err)
			continue
		}
		if ghost == nil {
			report.Success()
			continue
		}

		report.Count("ghosts", 1)
		err = r.resolveGhost(ctx, row, ghost, opts, listings)
		if err != nil {
			slog.Error("ghost resolution failed", "row_id", row.ID, "policy", opts.Policy, "error", err)
			report.Fail(rowUnit(row), err)
		} else {
			report.Success()
		}
		report.Count(ghost.Resolution, 1)
		result.Ghosts = append(result.Ghosts, *ghost)
		slog.Info("ghost row", "row_id", row.ID, "path", ghost.Path, "reason", ghost.Reason, "resolution", ghost.Resolution)
	}

	slog.Info("ghost pass finished", "rows", len(rows), "ghosts", report.Counters["ghosts"], "failed", report.Failed)
	return result, nil
}

// check returns a Ghost when the row's path is missing, or when its URL
// is stale, i.e. points somewhere other than an existing object.
func (r *Reconciler) check(ctx context.Context, row *model.IndexRow) (*Ghost, error) {
	p := objectPath(r.store, row)
	if p == "" {
		return &Ghost{RowID: row.ID, URL: row.ImageURL, Reason: "no resolvable path"}, nil
	}

	ok, err := storage.Exists(ctx, r.store, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Ghost{RowID: row.ID, Path: p, URL: row.ImageURL, Reason: "object missing"}, nil
	}

	if row.ImageURL == "" {
		return nil, nil
	}
	urlPath, ours := r.store.PathFromURL(row.ImageURL)
	if !ours || urlPath == p {
		return nil, nil
	}
	ok, err = storage.Exists(ctx, r.store, urlPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Ghost{RowID: row.ID, Path: p, URL: row.ImageURL, Reason: "stale url"}, nil
	}
	return nil, nil
}

func (r *Reconciler) resolveGhost(ctx context.Context, row *model.IndexRow, g *Ghost, opts GhostOptions, listings map[string][]model.Asset) error {
	// A stale URL with a live path is repaired under any policy but report:
	// deleting the row would lose a reachable asset.
	if g.Reason == "stale url" {
		if opts.Policy == GhostReport {
			g.Resolution = "reported"
			return nil
		}
		g.Resolution = "url_repaired"
		g.RelinkedTo = g.Path
		if opts.DryRun {
			return nil
		}
		return r.assetRepo.SetLocation(ctx, row.ID, locationOf(r.store, g.Path))
	}

	switch opts.Policy {
	case GhostDelete:
		g.Resolution = "deleted"
		if opts.DryRun {
			return nil
		}
		err := r.assetRepo.Delete(ctx, row.ID)
		if errors.Is(err, repository.ErrAssetNotFound) {
			return nil
		}
		return err

	case GhostRelink:
		target, err := r.relinkTarget(ctx, g.Path, listings)
		if err != nil {
			g.Resolution = "unresolved"
			return err
		}
		if target == "" {
			g.Resolution = "unresolved"
			return nil
		}
		g.Resolution = "relinked"
		g.RelinkedTo = target
		if opts.DryRun {
			return nil
		}
		return r.assetRepo.SetLocation(ctx, row.ID, locationOf(r.store, target))

	default:
		g.Resolution = "reported"
		return nil
	}
}

// relinkTarget looks for one object with the same file name elsewhere under
// the entity root, e.g. a dotted date folder left by a partial migration.
// More than one match is ambiguous and returns "".
func (r *Reconciler) relinkTarget(ctx context.Context, p string, listings map[string][]model.Asset) (string, error) {
	if p == "" {
		return "", nil
	}
	root, ok := assetpath.EntityRoot(p)
	if !ok {
		// Date-keyed kinds: search the kind folder above the date segment.
		dir, _ := assetpath.Decompose(p)
		root = path.Dir(dir)
		if root == "." || root == "" {
			return "", nil
		}
	}

	objects, ok := listings[root]
	if !ok {
		var err error
		objects, err = r.store.List(ctx, root, storage.ListOptions{Recursive: true})
		if err != nil {
			return "", fmt.Errorf("failed to list %s: %w", root, err)
		}
		listings[root] = objects
	}

	name := path.Base(p)
	_, wantDate := assetpath.Decompose(p)

	var sameName, sameDate []string
	for _, obj := range objects {
		if obj.Name() != name || obj.Path == p {
			continue
		}
		sameName = append(sameName, obj.Path)
		if _, d := assetpath.Decompose(obj.Path); wantDate != "" && d == wantDate {
			sameDate = append(sameDate, obj.Path)
		}
	}

	switch {
	case len(sameDate) == 1:
		return sameDate[0], nil
	case len(sameDate) == 0 && len(sameName) == 1:
		return sameName[0], nil
	default:
		return "", nil
	}
}

// Orphans lists objects under prefix that no row references by URL or
// path. Orphans are reported only: content may still embed their URL.
func (r *Reconciler) Orphans(ctx context.Context, opts OrphanOptions) (*OrphanResult, error) {
	report := model.NewBatchReport("reconcile_orphans")
	result := &OrphanResult{Report: report, Orphans: []Orphan{}}
	defer report.Finish()

	objects, err := r.store.List(ctx, opts.Prefix, storage.ListOptions{Recursive: true})
	if err != nil {
		return result, fmt.Errorf("failed to list %q: %w", opts.Prefix, err)
	}

	rows, err := r.assetRepo.All(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load index rows: %w", err)
	}
	byURL := make(map[string]bool, len(rows))
	byPath := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.ImageURL != "" {
			byURL[row.ImageURL] = true
		}
		if row.FilePath != "" {
			byPath[row.FilePath] = true
		}
	}

	var refs content.References
	if r.scanner != nil {
		refs, err = r.scanner.Scan(ctx)
		if err != nil {
			// Orphans are still worth reporting without annotations.
			slog.Warn("content scan failed, orphans are not annotated", "error", err)
			report.Detail("content_scan", err.Error())
			refs = nil
		}
	}

	report.Count("orphans", 0)
	for _, obj := range objects {
		u := r.store.PublicURL(obj.Path)
		if byURL[u] || byPath[obj.Path] {
			report.Success()
			continue
		}

		orphan := Orphan{Path: obj.Path, URL: u, Size: obj.Size}
		if refs != nil {
			orphan.ReferencedBy = refs.Lookup(u)
			if len(orphan.ReferencedBy) > 0 {
				report.Count("referenced_by_content", 1)
			}
		}
		report.Success()
		report.Count("orphans", 1)
		result.Orphans = append(result.Orphans, orphan)
		slog.Info("orphan object", "path", obj.Path, "referenced_by", len(orphan.ReferencedBy))
	}

	slog.Info("orphan pass finished", "objects", len(objects), "orphans", report.Counters["orphans"])
	return result, nil
}
