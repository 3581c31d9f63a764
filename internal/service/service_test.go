package service

import (
	"context"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/masgolf/assetsync/internal/assetpath"
	"github.com/masgolf/assetsync/internal/db"
	"github.com/masgolf/assetsync/internal/model"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/storage"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://store/x"

type testEnv struct {
	db     *sqlx.DB
	assets repository.AssetRepository
	units  repository.MigrationUnitRepository
	store  *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Init("sqlite", filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))
	t.Cleanup(func() { _ = database.Close() })

	return &testEnv{
		db:     database,
		assets: repository.NewAssetRepository(database),
		units:  repository.NewMigrationUnitRepository(database),
		store:  storage.NewMemoryStore(testBaseURL),
	}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// putAsset stores an object and a matching index row.
func (e *testEnv) putAsset(t *testing.T, p string, created time.Time, tags ...string) *model.IndexRow {
	t.Helper()
	e.store.Put(p, []byte("bytes of "+p), "image/webp")
	return e.putRow(t, p, e.store.PublicURL(p), created, tags...)
}

// putRow creates an index row without touching the store.
func (e *testEnv) putRow(t *testing.T, p, url string, created time.Time, tags ...string) *model.IndexRow {
	t.Helper()
	folder, date := assetpath.Decompose(p)
	row := &model.IndexRow{
		ImageURL:   url,
		FilePath:   p,
		FolderPath: folder,
		DateFolder: date,
		FileName:   path.Base(p),
		Tags:       tags,
		CreatedAt:  created,
	}
	require.NoError(t, e.assets.Create(context.Background(), row))
	return row
}

// insertRow creates a row with a fixed id.
func (e *testEnv) insertRow(t *testing.T, id int64, p, url string, created time.Time) {
	t.Helper()
	folder, date := assetpath.Decompose(p)
	_, err := e.db.Exec(`INSERT INTO image_metadata (id, image_url, file_path, folder_path, date_folder, file_name, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '{}', $7, $7)`,
		id, url, p, folder, date, path.Base(p), created.UTC())
	require.NoError(t, err)
}

func (e *testEnv) row(t *testing.T, id int64) *model.IndexRow {
	t.Helper()
	row, err := e.assets.ByID(context.Background(), id)
	require.NoError(t, err)
	return row
}
