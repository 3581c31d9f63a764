package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/masgolf/assetsync/internal/model"
	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds the retries of idempotent reads.
type RetryConfig struct {
	MaxRetries uint64
	Base       time.Duration
}

// RetryingStore retries List, Stat and Download with jittered exponential
// backoff. Upload, Copy and Delete pass straight through: a retried delete
// cannot tell a second delete from a first, so the caller decides.
type RetryingStore struct {
	ObjectStore
	cfg RetryConfig
}

func NewRetryingStore(next ObjectStore, cfg RetryConfig) *RetryingStore {
	if cfg.Base <= 0 {
		cfg.Base = 200 * time.Millisecond
	}
	return &RetryingStore{ObjectStore: next, cfg: cfg}
}

func (r *RetryingStore) backoff() retry.Backoff {
	b := retry.NewExponential(r.cfg.Base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(10*time.Second, b)
	return retry.WithMaxRetries(r.cfg.MaxRetries, b)
}

func (r *RetryingStore) do(ctx context.Context, op, path string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || errors.Is(err, ErrObjectNotFound) || errors.Is(err, context.Canceled) {
			return err
		}
		slog.Debug("storage read failed, retrying", "op", op, "path", path, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

func (r *RetryingStore) List(ctx context.Context, prefix string, opts ListOptions) ([]model.Asset, error) {
	var assets []model.Asset
	err := r.do(ctx, "list", prefix, func(ctx context.Context) error {
		var err error
		assets, err = r.ObjectStore.List(ctx, prefix, opts)
		return err
	})
	return assets, err
}

func (r *RetryingStore) Stat(ctx context.Context, path string) (*model.Asset, error) {
	var asset *model.Asset
	err := r.do(ctx, "stat", path, func(ctx context.Context) error {
		var err error
		asset, err = r.ObjectStore.Stat(ctx, path)
		return err
	})
	return asset, err
}

func (r *RetryingStore) Download(ctx context.Context, path string) ([]byte, string, error) {
	var body []byte
	var contentType string
	err := r.do(ctx, "download", path, func(ctx context.Context) error {
		var err error
		body, contentType, err = r.ObjectStore.Download(ctx, path)
		return err
	})
	return body, contentType, err
}
