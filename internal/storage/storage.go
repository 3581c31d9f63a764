package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/masgolf/assetsync/internal/model"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
)

// ObjectNotFoundError is a store miss on a path the caller expected to exist.
type ObjectNotFoundError struct {
	Path string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s", e.Path)
}

func (e *ObjectNotFoundError) Is(target error) bool {
	return target == ErrObjectNotFound
}

// CopyVerificationFailedError means a copy reported success but the
// destination could not be read back.
type CopyVerificationFailedError struct {
	Src string
	Dst string
	Err error
}

func (e *CopyVerificationFailedError) Error() string {
	return fmt.Sprintf("copy %s -> %s not present at destination: %v", e.Src, e.Dst, e.Err)
}

func (e *CopyVerificationFailedError) Unwrap() error {
	return e.Err
}

// ListOptions controls List.
type ListOptions struct {
	// Recursive lists every object below the prefix instead of only the
	// immediate children.
	Recursive bool
}

// UploadOptions controls Upload.
type UploadOptions struct {
	// Upsert allows overwriting an existing object. Without it Upload
	// returns ErrObjectExists.
	Upsert bool
}

// DeleteResult is the outcome for one path of a batch delete.
type DeleteResult struct {
	Path string
	Err  error
}

// ObjectStore is a hierarchical-key blob bucket. Every method is scoped to
// one bucket.
type ObjectStore interface {
	// List returns the objects under prefix. It pages internally and never
	// truncates.
	List(ctx context.Context, prefix string, opts ListOptions) ([]model.Asset, error)

	// Stat returns the object at path or an error matching ErrObjectNotFound.
	Stat(ctx context.Context, path string) (*model.Asset, error)

	Upload(ctx context.Context, path string, body []byte, contentType string, opts UploadOptions) (*model.Asset, error)

	// Download returns the bytes and content type of the object at path.
	Download(ctx context.Context, path string) ([]byte, string, error)

	// Copy duplicates src to dst and preserves the content type.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes paths best-effort. There is one result per path, in
	// input order. A path that is already gone counts as deleted.
	Delete(ctx context.Context, paths []string) []DeleteResult

	// PublicURL is a deterministic function of the bucket and path.
	PublicURL(path string) string

	// PathFromURL reverses PublicURL. It returns false for URLs that do not
	// belong to this bucket.
	PathFromURL(url string) (string, bool)
}

// Exists is a cheap existence check.
func Exists(ctx context.Context, store ObjectStore, path string) (bool, error) {
	_, err := store.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return false, err
}

// CopyVerified copies src to dst and confirms dst is present afterwards.
func CopyVerified(ctx context.Context, store ObjectStore, src, dst string) error {
	if err := store.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if _, err := store.Stat(ctx, dst); err != nil {
		return &CopyVerificationFailedError{Src: src, Dst: dst, Err: err}
	}
	return nil
}

// Move copies src to dst and deletes src only once the copy is confirmed.
// Every move in the engine goes through here; a failure at any point leaves
// src in place.
func Move(ctx context.Context, store ObjectStore, src, dst string) error {
	if src == dst {
		return nil
	}
	if err := CopyVerified(ctx, store, src, dst); err != nil {
		return err
	}

	res := store.Delete(ctx, []string{src})
	if len(res) == 1 && res[0].Err != nil {
		// The copy is in place; the source is merely extra storage.
		slog.Warn("move left source behind", "src", src, "dst", dst, "error", res[0].Err)
		return fmt.Errorf("delete %s after copy: %w", src, res[0].Err)
	}
	return nil
}

// FailedDeletes filters results down to the failures.
func FailedDeletes(results []DeleteResult) []DeleteResult {
	var failed []DeleteResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
