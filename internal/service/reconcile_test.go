package service

import (
	"context"
	"errors"
	"testing"

	"github.com/masgolf/assetsync/internal/content"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []content.Document

func (s staticSource) Documents(context.Context) ([]content.Document, error) {
	return s, nil
}

type failingSource struct{}

func (failingSource) Documents(context.Context) ([]content.Document, error) {
	return nil, errors.New("content table missing")
}

func TestParseGhostPolicy(t *testing.T) {
	p, err := ParseGhostPolicy("")
	require.NoError(t, err)
	assert.Equal(t, GhostReport, p)

	p, err = ParseGhostPolicy("relink")
	require.NoError(t, err)
	assert.Equal(t, GhostRelink, p)

	_, err = ParseGhostPolicy("purge")
	assert.Error(t, err)
}

func TestGhostsReportOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.putAsset(t, "originals/blog/2024-10-29/live.webp", day("2024-10-29"))
	ghost := env.putRow(t, "originals/blog/2024-10-29/gone.webp", testBaseURL+"/originals/blog/2024-10-29/gone.webp", day("2024-10-29"))

	result, err := NewReconciler(env.assets, env.store, nil).Ghosts(ctx, GhostOptions{})
	require.NoError(t, err)
	require.Len(t, result.Ghosts, 1)
	assert.Equal(t, ghost.ID, result.Ghosts[0].RowID)
	assert.Equal(t, "object missing", result.Ghosts[0].Reason)
	assert.Equal(t, "reported", result.Ghosts[0].Resolution)
	assert.Equal(t, 1, result.Report.Counters["ghosts"])
	assert.Equal(t, 2, result.Report.Succeeded)

	env.row(t, ghost.ID)
}

func TestGhostsDeletePolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := NewReconciler(env.assets, env.store, nil)

	ghost := env.putRow(t, "originals/mms/2025-01-02/gone.jpg", "", day("2025-01-02"))

	result, err := rec.Ghosts(ctx, GhostOptions{Policy: GhostDelete, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Report.Counters["deleted"])
	env.row(t, ghost.ID)

	result, err = rec.Ghosts(ctx, GhostOptions{Policy: GhostDelete})
	require.NoError(t, err)
	assert.Equal(t, "deleted", result.Ghosts[0].Resolution)
	_, err = env.assets.ByID(ctx, ghost.ID)
	assert.ErrorIs(t, err, repository.ErrAssetNotFound)
}

func TestGhostsScopedToPrefix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.putRow(t, "originals/mms/2025-01-02/gone.jpg", "", day("2025-01-02"))
	env.putRow(t, "originals/blog/2025-01-02/gone.jpg", "", day("2025-01-02"))

	result, err := NewReconciler(env.assets, env.store, nil).Ghosts(ctx, GhostOptions{Prefix: "originals/mms"})
	require.NoError(t, err)
	require.Len(t, result.Ghosts, 1)
	assert.Equal(t, "originals/mms/2025-01-02/gone.jpg", result.Ghosts[0].Path)
}

func TestGhostsRelinkToDottedDateFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A partial migration left the object in a dotted date folder.
	env.store.Put("originals/customers/kim-1234/2025.07.21/swing.jpg", []byte("swing"), "image/jpeg")
	env.store.Put("originals/customers/kim-1234/2025-08-01/swing.jpg", []byte("other"), "image/jpeg")
	ghost := env.putRow(t, "originals/customers/kim-1234/2025-07-21/swing.jpg",
		testBaseURL+"/originals/customers/kim-1234/2025-07-21/swing.jpg", day("2025-07-21"))

	result, err := NewReconciler(env.assets, env.store, nil).Ghosts(ctx, GhostOptions{Policy: GhostRelink})
	require.NoError(t, err)
	require.Len(t, result.Ghosts, 1)
	assert.Equal(t, "relinked", result.Ghosts[0].Resolution)
	assert.Equal(t, "originals/customers/kim-1234/2025.07.21/swing.jpg", result.Ghosts[0].RelinkedTo)

	row := env.row(t, ghost.ID)
	assert.Equal(t, "originals/customers/kim-1234/2025.07.21/swing.jpg", row.FilePath)
	assert.Equal(t, testBaseURL+"/originals/customers/kim-1234/2025.07.21/swing.jpg", row.ImageURL)
	assert.Equal(t, "2025-07-21", row.DateFolder)
}

func TestGhostsRelinkAmbiguousIsUnresolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.Put("originals/customers/kim-1234/2025-08-01/swing.jpg", []byte("a"), "image/jpeg")
	env.store.Put("originals/customers/kim-1234/2025-09-01/swing.jpg", []byte("b"), "image/jpeg")
	ghost := env.putRow(t, "originals/customers/kim-1234/2025-07-21/swing.jpg", "", day("2025-07-21"))

	result, err := NewReconciler(env.assets, env.store, nil).Ghosts(ctx, GhostOptions{Policy: GhostRelink})
	require.NoError(t, err)
	require.Len(t, result.Ghosts, 1)
	assert.Equal(t, "unresolved", result.Ghosts[0].Resolution)
	assert.Equal(t, 1, result.Report.Counters["unresolved"])
	assert.Equal(t, 0, result.Report.Failed)
	assert.Equal(t, "originals/customers/kim-1234/2025-07-21/swing.jpg", env.row(t, ghost.ID).FilePath)
}

func TestGhostsRepairStaleURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := NewReconciler(env.assets, env.store, nil)

	env.store.Put("originals/blog/2024-10-29/a.webp", []byte("a"), "image/webp")
	stale := env.putRow(t, "originals/blog/2024-10-29/a.webp", testBaseURL+"/blog/a.webp", day("2024-10-29"))

	result, err := rec.Ghosts(ctx, GhostOptions{})
	require.NoError(t, err)
	require.Len(t, result.Ghosts, 1)
	assert.Equal(t, "stale url", result.Ghosts[0].Reason)
	assert.Equal(t, "reported", result.Ghosts[0].Resolution)
	assert.Equal(t, testBaseURL+"/blog/a.webp", env.row(t, stale.ID).ImageURL)

	result, err = rec.Ghosts(ctx, GhostOptions{Policy: GhostDelete})
	require.NoError(t, err)
	assert.Equal(t, "url_repaired", result.Ghosts[0].Resolution)
	assert.Equal(t, testBaseURL+"/originals/blog/2024-10-29/a.webp", env.row(t, stale.ID).ImageURL)

	result, err = rec.Ghosts(ctx, GhostOptions{Policy: GhostDelete})
	require.NoError(t, err)
	assert.Empty(t, result.Ghosts)
}

func TestOrphansAnnotatedWithContentReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.putAsset(t, "originals/blog/2024-10-29/indexed.webp", day("2024-10-29"))
	env.store.Put("originals/blog/2024-10-29/embedded.webp", []byte("e"), "image/webp")
	env.store.Put("originals/blog/2024-10-29/lost.webp", []byte("l"), "image/webp")
	env.store.Put("originals/mms/2024-10-29/elsewhere.jpg", []byte("m"), "image/jpeg")

	scanner := content.NewScanner(staticSource{{
		ID:   "blog/fitting-day.md",
		Body: []byte("# Fitting day\n\n![swing](" + testBaseURL + "/originals/blog/2024-10-29/embedded.webp?v=2)\n"),
	}})

	result, err := NewReconciler(env.assets, env.store, scanner).Orphans(ctx, OrphanOptions{Prefix: "originals/blog"})
	require.NoError(t, err)
	require.Len(t, result.Orphans, 2)

	assert.Equal(t, "originals/blog/2024-10-29/embedded.webp", result.Orphans[0].Path)
	assert.Equal(t, []string{"blog/fitting-day.md"}, result.Orphans[0].ReferencedBy)
	assert.Equal(t, "originals/blog/2024-10-29/lost.webp", result.Orphans[1].Path)
	assert.Empty(t, result.Orphans[1].ReferencedBy)

	assert.Equal(t, 2, result.Report.Counters["orphans"])
	assert.Equal(t, 1, result.Report.Counters["referenced_by_content"])
	assert.Equal(t, 3, result.Report.Succeeded)
}

func TestOrphansSurviveContentScanFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.Put("originals/blog/2024-10-29/lost.webp", []byte("l"), "image/webp")

	result, err := NewReconciler(env.assets, env.store, content.NewScanner(failingSource{})).Orphans(ctx, OrphanOptions{})
	require.NoError(t, err)
	require.Len(t, result.Orphans, 1)
	assert.Equal(t, "content table missing", result.Report.Details["content_scan"])
}
