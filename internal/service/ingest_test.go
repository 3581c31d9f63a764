package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type failingCreateRepo struct {
	repository.AssetRepository
}

func (failingCreateRepo) Create(context.Context, *model.IndexRow) error {
	return errors.New("connection reset")
}

func newTestIngester(env *testEnv) *Ingester {
	ing := NewIngester(env.assets, env.store)
	ing.now = func() time.Time { return day("2025-07-21") }
	return ing
}

func TestIngestCustomerVisit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row, err := newTestIngester(env).Ingest(ctx, IngestRequest{
		Kind:         assetpath.KindCustomers,
		Folder:       "leenamgu-8768",
		Date:         "2025.07.21",
		FileName:     "swing.png",
		Body:         pngBytes,
		Channel:      "kakao",
		Associations: []model.Association{mustTag(t)(model.CustomerTag("8768"))},
		Labels:       []string{"survey", " "},
	})
	require.NoError(t, err)

	const p = "originals/customers/leenamgu-8768/2025-07-21/swing.png"
	assert.Equal(t, []string{p}, env.store.Paths())

	got := env.row(t, row.ID)
	assert.Equal(t, p, got.FilePath)
	assert.Equal(t, testBaseURL+"/"+p, got.ImageURL)
	assert.Equal(t, "originals/customers/leenamgu-8768/2025-07-21", got.FolderPath)
	assert.Equal(t, "2025-07-21", got.DateFolder)
	assert.Equal(t, "image/png", got.ContentType)
	assert.Equal(t, int64(len(pngBytes)), got.FileSize)
	assert.Equal(t, model.SourceUpload, got.Source)
	assert.Equal(t, "kakao", got.Channel)
	assert.Equal(t, []string{"customer-8768", "visit-2025-07-21", "survey"}, []string(got.Tags))
}

func TestIngestPathPerKind(t *testing.T) {
	tests := []struct {
		name string
		req  IngestRequest
		want string
	}{
		{
			name: "product detail has no date",
			req:  IngestRequest{Kind: assetpath.KindProducts, Folder: "driver-x1", SubKind: "detail", FileName: "a.png"},
			want: "originals/products/driver-x1/detail/a.png",
		},
		{
			name: "blog defaults to today",
			req:  IngestRequest{Kind: assetpath.KindBlog, FileName: "a.png"},
			want: "originals/blog/2025-07-21/a.png",
		},
		{
			name: "unresolved customer goes to unmatched",
			req:  IngestRequest{Kind: assetpath.KindCustomers, Folder: "unknown", FileName: "a.png"},
			want: "unmatched/2025-07-21/a.png",
		},
		{
			name: "missing customer folder goes to unmatched",
			req:  IngestRequest{Kind: assetpath.KindCustomers, Date: "20250801", FileName: "a.png"},
			want: "unmatched/2025-08-01/a.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.req.Body = pngBytes

			row, err := newTestIngester(env).Ingest(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, row.FilePath)
			assert.Equal(t, []string{tt.want}, env.store.Paths())
		})
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"not an image", IngestRequest{Kind: assetpath.KindBlog, FileName: "a.png", Body: []byte("hello world")}},
		{"reserved label", IngestRequest{Kind: assetpath.KindBlog, FileName: "a.png", Body: pngBytes, Labels: []string{"customer-1"}}},
		{"bad date", IngestRequest{Kind: assetpath.KindBlog, Date: "2025-13-40", FileName: "a.png", Body: pngBytes}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := newTestIngester(env).Ingest(context.Background(), tt.req)
			assert.Error(t, err)
			assert.Empty(t, env.store.Paths())
		})
	}
}

func TestIngestDoesNotClobber(t *testing.T) {
	env := newTestEnv(t)
	const p = "originals/blog/2025-07-21/a.png"
	env.store.Put(p, []byte("original"), "image/png")

	_, err := newTestIngester(env).Ingest(context.Background(), IngestRequest{Kind: assetpath.KindBlog, FileName: "a.png", Body: pngBytes})
	assert.ErrorIs(t, err, storage.ErrObjectExists)

	body, _, err := env.store.Download(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "original", string(body))

	rows, err := env.assets.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestIngestRemovesObjectWhenIndexWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ing := NewIngester(failingCreateRepo{env.assets}, env.store)

	_, err := ing.Ingest(context.Background(), IngestRequest{Kind: assetpath.KindBlog, Date: "2025-07-21", FileName: "a.png", Body: pngBytes})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, env.store.Paths())
}
