package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
)

var ErrReservedTag = errors.New("tag uses a reserved association prefix")

// EntityRef names an entity by its association tag and, for folder-keyed
// kinds, its folder under originals/.
type EntityRef struct {
	Association model.Association
	Kind        assetpath.Kind // optional
	Folder      string         // optional
}

type TagService struct {
	assetRepo repository.AssetRepository
}

func NewTagService(assetRepo repository.AssetRepository) *TagService {
	return &TagService{
		assetRepo: assetRepo,
	}
}

// Link adds associations to a row. Linking twice is a no-op.
func (s *TagService) Link(ctx context.Context, rowID int64, assocs ...model.Association) ([]string, error) {
	tags, err := associationTags(assocs)
	if err != nil {
		return nil, err
	}
	return s.assetRepo.UpsertTags(ctx, rowID, tags, nil)
}

// Unlink removes exactly the given associations and nothing else.
func (s *TagService) Unlink(ctx context.Context, rowID int64, assocs ...model.Association) ([]string, error) {
	tags, err := associationTags(assocs)
	if err != nil {
		return nil, err
	}
	return s.assetRepo.UpsertTags(ctx, rowID, nil, tags)
}

// Classify adds plain classification tags such as survey or mms.
// Association tags must go through Link so they are well-formed.
func (s *TagService) Classify(ctx context.Context, rowID int64, labels ...string) ([]string, error) {
	tags, err := classificationTags(labels)
	if err != nil {
		return nil, err
	}
	return s.assetRepo.UpsertTags(ctx, rowID, tags, nil)
}

func (s *TagService) Declassify(ctx context.Context, rowID int64, labels ...string) ([]string, error) {
	tags, err := classificationTags(labels)
	if err != nil {
		return nil, err
	}
	return s.assetRepo.UpsertTags(ctx, rowID, nil, tags)
}

// LinkMany links one association to several rows. A failing row is
// recorded and the rest still get linked.
func (s *TagService) LinkMany(ctx context.Context, rowIDs []int64, assoc model.Association, remove bool) *model.BatchReport {
	op := "tag_add"
	if remove {
		op = "tag_remove"
	}
	report := model.NewBatchReport(op)
	defer report.Finish()

	for _, id := range rowIDs {
		if ctx.Err() != nil {
			break
		}
		unit := fmt.Sprintf("row %d", id)

		var err error
		if remove {
			_, err = s.Unlink(ctx, id, assoc)
		} else {
			_, err = s.Link(ctx, id, assoc)
		}
		if err != nil {
			slog.Error("tag update failed", "row_id", id, "tag", assoc.String(), "error", err)
			report.Fail(unit, err)
			continue
		}
		report.Success()
	}
	return report
}

// AssetsFor returns every row belonging to an entity: rows tagged with the
// association OR rows stored under the entity folder. Historical rows
// often satisfy only one of the two.
func (s *TagService) AssetsFor(ctx context.Context, ref EntityRef) ([]*model.IndexRow, error) {
	if ref.Association.IsZero() {
		return nil, fmt.Errorf("%w: entity has no association", model.ErrMalformedTag)
	}
	if ref.Folder == "" {
		return s.assetRepo.FindByTag(ctx, ref.Association.String())
	}

	prefix, err := assetpath.Prefix(ref.Kind, ref.Folder)
	if err != nil {
		return nil, err
	}
	return s.assetRepo.FindForEntity(ctx, ref.Association.String(), prefix)
}

func associationTags(assocs []model.Association) ([]string, error) {
	tags := make([]string, 0, len(assocs))
	for _, a := range assocs {
		if a.IsZero() {
			return nil, fmt.Errorf("%w: zero association", model.ErrMalformedTag)
		}
		tags = append(tags, a.String())
	}
	return tags, nil
}

func classificationTags(labels []string) ([]string, error) {
	tags := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if model.IsAssociation(l) {
			return nil, fmt.Errorf("%w: %q", ErrReservedTag, l)
		}
		tags = append(tags, l)
	}
	return tags, nil
}
