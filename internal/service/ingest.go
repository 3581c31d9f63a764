package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
	"github.com/masgolf/assetsync/internal/validation"
)

// IngestRequest describes one new asset.
type IngestRequest struct {
	Kind         assetpath.Kind
	Folder       string // entity folder; empty or unresolved routes to unmatched/
	Date         string // defaults to today
	SubKind      string
	FileName     string
	Body         []byte
	Source       string
	Channel      string
	Associations []model.Association
	Labels       []string
}

// Ingester creates an object and its index row together.
type Ingester struct {
	assetRepo repository.AssetRepository
	store     storage.ObjectStore
	now       func() time.Time
}

func NewIngester(assetRepo repository.AssetRepository, store storage.ObjectStore) *Ingester {
	return &Ingester{
		assetRepo: assetRepo,
		store:     store,
		now:       time.Now,
	}
}

// Ingest validates the bytes, computes the canonical path, uploads without
// overwriting and writes the index row. If the row cannot be written the
// uploaded object is removed again.
func (s *Ingester) Ingest(ctx context.Context, req IngestRequest) (*model.IndexRow, error) {
	contentType, err := validation.ValidateMedia(req.FileName, req.Body, validation.ImageConstraints, validation.VideoConstraints)
	if err != nil {
		return nil, fmt.Errorf("invalid media %s: %w", req.FileName, err)
	}

	date := req.Date
	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	storagePath, err := s.storagePath(req, date)
	if err != nil {
		return nil, err
	}

	tags, err := associationTags(req.Associations)
	if err != nil {
		return nil, err
	}
	labels, err := classificationTags(req.Labels)
	if err != nil {
		return nil, err
	}
	if visit, err := model.VisitTag(date); err == nil && req.Kind == assetpath.KindCustomers {
		tags = append(tags, visit.String())
	}

	asset, err := s.store.Upload(ctx, storagePath, req.Body, contentType, storage.UploadOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", storagePath, err)
	}

	loc := locationOf(s.store, storagePath)
	row := &model.IndexRow{
		ImageURL:    asset.PublicURL,
		FilePath:    loc.Path,
		FolderPath:  loc.FolderPath,
		DateFolder:  loc.DateFolder,
		FileName:    asset.Name(),
		ContentType: contentType,
		FileSize:    asset.Size,
		Source:      req.Source,
		Channel:     req.Channel,
		Tags:        append(tags, labels...),
	}

	err = s.assetRepo.Create(ctx, row)
	if err != nil {
		// If the insert fails, try to clean up the uploaded object
		for _, res := range storage.FailedDeletes(s.store.Delete(context.WithoutCancel(ctx), []string{storagePath})) {
			slog.Error("failed to delete object during cleanup", "error", res.Err, "path", res.Path)
		}
		return nil, fmt.Errorf("failed to create index row: %w", err)
	}

	slog.Info("asset ingested", "row_id", row.ID, "path", storagePath, "size", row.FileSize)
	return row, nil
}

// storagePath routes assets of folder-keyed kinds without a resolvable
// folder to the unmatched area. Bad file names and dates fail outright.
func (s *Ingester) storagePath(req IngestRequest, date string) (string, error) {
	key := assetpath.Key{
		Kind:     req.Kind,
		Folder:   req.Folder,
		Date:     req.Date,
		SubKind:  req.SubKind,
		FileName: req.FileName,
	}
	if key.Date == "" && assetpath.RequiresDate(req.Kind) {
		key.Date = date
	}
	if !assetpath.RequiresFolder(req.Kind) {
		return assetpath.Canonical(key)
	}

	if _, err := assetpath.ValidateFolder(req.Folder); err != nil {
		var nameErr *assetpath.InvalidNameError
		if errors.As(err, &nameErr) {
			slog.Warn("unresolved entity folder, routing to unmatched", "folder", req.Folder, "reason", nameErr.Reason)
			return assetpath.UnmatchedPath(date, req.FileName)
		}
		return "", err
	}
	return assetpath.Canonical(key)
}
