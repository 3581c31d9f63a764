package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/masgolf/assetsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://store.example/storage/v1/object/public/blog-images"

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore(testBaseURL)
}

func TestMemoryStoreListPaginatesWithoutTruncating(t *testing.T) {
	store := newTestStore(t)
	store.SetPageSize(3)
	for i := range 10 {
		store.Put(fmt.Sprintf("originals/mms/2025-12-13/%02d.jpg", i), []byte{byte(i)}, "image/jpeg")
	}
	store.Put("originals/mms/other.jpg", []byte("x"), "image/jpeg")

	assets, err := store.List(context.Background(), "originals/mms/2025-12-13", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, assets, 10)

	// Object count is an exact multiple of the page size.
	store.SetPageSize(5)
	assets, err = store.List(context.Background(), "originals/mms/2025-12-13", ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, assets, 10)

	assets, err = store.List(context.Background(), "originals/mms", ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, assets, 11)
}

func TestMemoryStoreListImmediateChildrenByDefault(t *testing.T) {
	store := newTestStore(t)
	store.Put("originals/customers/kim-1234/2024-01-01/a.webp", []byte("a"), "image/webp")
	store.Put("originals/customers/kim-1234/cover.webp", []byte("c"), "image/webp")
	store.Put("originals/customers/kim-12345/b.webp", []byte("b"), "image/webp")

	assets, err := store.List(context.Background(), "originals/customers/kim-1234/", ListOptions{})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "originals/customers/kim-1234/cover.webp", assets[0].Path)
	assert.Equal(t, "cover.webp", assets[0].Name())

	assets, err = store.List(context.Background(), "originals/customers/kim-1234", ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestUploadDoesNotClobberWithoutUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Upload(ctx, "a/b.webp", []byte("one"), "image/webp", UploadOptions{})
	require.NoError(t, err)

	_, err = store.Upload(ctx, "a/b.webp", []byte("two"), "image/webp", UploadOptions{})
	assert.ErrorIs(t, err, ErrObjectExists)

	body, _, err := store.Download(ctx, "a/b.webp")
	require.NoError(t, err)
	assert.Equal(t, "one", string(body))

	_, err = store.Upload(ctx, "a/b.webp", []byte("two"), "image/webp", UploadOptions{Upsert: true})
	require.NoError(t, err)
	body, _, err = store.Download(ctx, "a/b.webp")
	require.NoError(t, err)
	assert.Equal(t, "two", string(body))
}

func TestCopyPreservesContentType(t *testing.T) {
	store := newTestStore(t)
	store.Put("src/clip.mov", []byte("video"), "video/quicktime")

	require.NoError(t, store.Copy(context.Background(), "src/clip.mov", "dst/clip.mov"))

	asset, err := store.Stat(context.Background(), "dst/clip.mov")
	require.NoError(t, err)
	assert.Equal(t, "video/quicktime", asset.ContentType)
	assert.Equal(t, int64(5), asset.Size)
}

func TestMoveDeletesSourceOnlyAfterVerifiedCopy(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		store := newTestStore(t)
		store.Put("old/a.webp", []byte("a"), "image/webp")

		require.NoError(t, Move(ctx, store, "old/a.webp", "new/a.webp"))
		assert.Equal(t, []string{"new/a.webp"}, store.Paths())
	})

	t.Run("copy fails", func(t *testing.T) {
		store := newTestStore(t)
		store.Put("old/a.webp", []byte("a"), "image/webp")
		store.Hooks.Copy = func(src, dst string) error { return errors.New("network down") }

		err := Move(ctx, store, "old/a.webp", "new/a.webp")
		require.Error(t, err)
		assert.Equal(t, []string{"old/a.webp"}, store.Paths())
	})

	t.Run("destination not readable after copy", func(t *testing.T) {
		store := newTestStore(t)
		store.Put("old/a.webp", []byte("a"), "image/webp")
		store.Hooks.Stat = func(path string) error {
			if path == "new/a.webp" {
				return &ObjectNotFoundError{Path: path}
			}
			return nil
		}

		err := Move(ctx, store, "old/a.webp", "new/a.webp")
		var verr *CopyVerificationFailedError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, store.Paths(), "old/a.webp")
	})

	t.Run("delete fails after copy", func(t *testing.T) {
		store := newTestStore(t)
		store.Put("old/a.webp", []byte("a"), "image/webp")
		store.Hooks.Delete = func(path string) error { return errors.New("denied") }

		err := Move(ctx, store, "old/a.webp", "new/a.webp")
		require.Error(t, err)
		// Never both missing.
		assert.Equal(t, []string{"new/a.webp", "old/a.webp"}, store.Paths())
	})
}

func TestDeleteReturnsPerPathResults(t *testing.T) {
	store := newTestStore(t)
	store.Put("a.webp", []byte("a"), "image/webp")
	store.Put("b.webp", []byte("b"), "image/webp")
	store.Hooks.Delete = func(path string) error {
		if path == "b.webp" {
			return errors.New("locked")
		}
		return nil
	}

	results := store.Delete(context.Background(), []string{"a.webp", "b.webp", "missing.webp"})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)

	failed := FailedDeletes(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "b.webp", failed[0].Path)
	assert.Equal(t, []string{"b.webp"}, store.Paths())
}

func TestPublicURLRoundTrip(t *testing.T) {
	store := newTestStore(t)

	u := store.PublicURL("originals/customers/leenamgu-8768/2024-10-29/a.webp")
	assert.Equal(t, testBaseURL+"/originals/customers/leenamgu-8768/2024-10-29/a.webp", u)

	p, ok := store.PathFromURL(u + "?t=123")
	require.True(t, ok)
	assert.Equal(t, "originals/customers/leenamgu-8768/2024-10-29/a.webp", p)

	p, ok = store.PathFromURL(testBaseURL + "/originals/blog/%EC%9D%B4.webp")
	require.True(t, ok)
	assert.Equal(t, "originals/blog/\uc774.webp", p)

	_, ok = store.PathFromURL("https://elsewhere.example/a.webp")
	assert.False(t, ok)
}

func TestExists(t *testing.T) {
	store := newTestStore(t)
	store.Put("a.webp", []byte("a"), "image/webp")

	ok, err := Exists(context.Background(), store, "a.webp")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Exists(context.Background(), store, "b.webp")
	require.NoError(t, err)
	assert.False(t, ok)

	store.Hooks.Stat = func(string) error { return errors.New("timeout") }
	_, err = Exists(context.Background(), store, "a.webp")
	assert.Error(t, err)
}

func TestRetryingStoreRetriesReadsOnly(t *testing.T) {
	mem := newTestStore(t)
	mem.Put("a.webp", []byte("a"), "image/webp")
	store := NewRetryingStore(mem, RetryConfig{MaxRetries: 3, Base: time.Millisecond})
	ctx := context.Background()

	listCalls := 0
	mem.Hooks.List = func(string) error {
		listCalls++
		if listCalls < 3 {
			return errors.New("503 slow down")
		}
		return nil
	}
	assets, err := store.List(ctx, "", ListOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, assets, 1)
	assert.Equal(t, 3, listCalls)

	statCalls := 0
	mem.Hooks.Stat = func(string) error {
		statCalls++
		return errors.New("timeout")
	}
	_, err = store.Stat(ctx, "a.webp")
	require.Error(t, err)
	assert.Equal(t, 4, statCalls, "one attempt plus three retries")

	mem.Hooks.Stat = nil
	statCalls = 0
	_, err = store.Stat(ctx, "missing.webp")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	deleteCalls := 0
	mem.Hooks.Delete = func(string) error {
		deleteCalls++
		return errors.New("timeout")
	}
	results := store.Delete(ctx, []string{"a.webp"})
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 1, deleteCalls)
}

var _ ObjectStore = (*MemoryStore)(nil)
var _ ObjectStore = (*S3Store)(nil)
var _ ObjectStore = (*RetryingStore)(nil)

func TestAssetNameWithoutDirectory(t *testing.T) {
	assert.Equal(t, "a.webp", model.Asset{Path: "a.webp"}.Name())
}
