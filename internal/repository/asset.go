package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/masgolf/assetsync/internal/model"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
)

// Relocation moves one index row to a new location.
type Relocation struct {
	ID int64
	To model.Location
}

type AssetRepository interface {
	Create(ctx context.Context, row *model.IndexRow) error
	ByID(ctx context.Context, id int64) (*model.IndexRow, error)
	Delete(ctx context.Context, id int64) error
	All(ctx context.Context) ([]*model.IndexRow, error)
	FindByURL(ctx context.Context, url string) ([]*model.IndexRow, error)
	FindByPath(ctx context.Context, path string) ([]*model.IndexRow, error)
	FindPathless(ctx context.Context) ([]*model.IndexRow, error)
	FindByFolder(ctx context.Context, folderPrefix string, includeChildren bool) ([]*model.IndexRow, error)
	FindByTag(ctx context.Context, tag string) ([]*model.IndexRow, error)
	FindForEntity(ctx context.Context, tag, folderPrefix string) ([]*model.IndexRow, error)
	UpsertTags(ctx context.Context, id int64, add, remove []string) ([]string, error)
	Relocate(ctx context.Context, moves []Relocation) (nulled int, err error)
	SetLocation(ctx context.Context, id int64, loc model.Location) error
}

// image_url is nullable; an empty string in IndexRow means NULL.
const assetColumns = `id, COALESCE(image_url, '') AS image_url, file_path, folder_path, date_folder,
	file_name, content_type, file_size, source, channel, tags, created_at, updated_at`

type assetRepository struct {
	db       *sqlx.DB
	postgres bool
}

func NewAssetRepository(db *sqlx.DB) *assetRepository {
	return &assetRepository{db: db, postgres: db.DriverName() == "pgx"}
}

func (r *assetRepository) Create(ctx context.Context, row *model.IndexRow) error {
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	if row.Source == "" {
		row.Source = model.SourceUpload
	}
	row.Tags = pq.StringArray(applyTags(nil, row.Tags, nil))

	query := `INSERT INTO image_metadata (image_url, file_path, folder_path, date_folder, file_name, content_type,
	          file_size, source, channel, tags, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING id`

	err := r.db.QueryRowxContext(ctx, query,
		nullString(row.ImageURL),
		row.FilePath,
		row.FolderPath,
		row.DateFolder,
		row.FileName,
		row.ContentType,
		row.FileSize,
		row.Source,
		row.Channel,
		row.Tags,
		row.CreatedAt.UTC(),
		row.UpdatedAt.UTC(),
	).Scan(&row.ID)
	if err != nil {
		return fmt.Errorf("failed to create index row: %w", err)
	}
	return nil
}

func (r *assetRepository) ByID(ctx context.Context, id int64) (*model.IndexRow, error) {
	row := &model.IndexRow{}
	query := `SELECT ` + assetColumns + ` FROM image_metadata WHERE id = $1`

	err := r.db.GetContext(ctx, row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *assetRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM image_metadata WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *assetRepository) All(ctx context.Context) ([]*model.IndexRow, error) {
	return r.selectRows(ctx, `SELECT `+assetColumns+` FROM image_metadata ORDER BY created_at ASC, id ASC`)
}

// FindByURL may return several rows; duplicates share a URL.
func (r *assetRepository) FindByURL(ctx context.Context, url string) ([]*model.IndexRow, error) {
	query := `SELECT ` + assetColumns + ` FROM image_metadata WHERE image_url = $1 ORDER BY created_at ASC, id ASC`
	return r.selectRows(ctx, query, url)
}

func (r *assetRepository) FindByPath(ctx context.Context, path string) ([]*model.IndexRow, error) {
	query := `SELECT ` + assetColumns + ` FROM image_metadata WHERE file_path = $1 ORDER BY created_at ASC, id ASC`
	return r.selectRows(ctx, query, path)
}

// FindPathless returns rows that point at their object only through
// image_url. The URL may be escaped in any form, so callers resolve it.
func (r *assetRepository) FindPathless(ctx context.Context) ([]*model.IndexRow, error) {
	query := `SELECT ` + assetColumns + ` FROM image_metadata
	          WHERE file_path = '' AND image_url IS NOT NULL AND image_url <> ''
	          ORDER BY created_at ASC, id ASC`
	return r.selectRows(ctx, query)
}

func (r *assetRepository) FindByFolder(ctx context.Context, folderPrefix string, includeChildren bool) ([]*model.IndexRow, error) {
	folder, child := folderArgs(folderPrefix)
	if !includeChildren {
		query := `SELECT ` + assetColumns + ` FROM image_metadata WHERE folder_path = $1 ORDER BY created_at ASC, id ASC`
		return r.selectRows(ctx, query, folder)
	}

	query := `SELECT ` + assetColumns + ` FROM image_metadata
	          WHERE folder_path = $1 OR substr(folder_path, 1, $2) = $3
	          ORDER BY created_at ASC, id ASC`
	return r.selectRows(ctx, query, folder, utf8.RuneCountInString(child), child)
}

func (r *assetRepository) FindByTag(ctx context.Context, tag string) ([]*model.IndexRow, error) {
	query := `SELECT ` + assetColumns + ` FROM image_metadata WHERE ` + r.tagMatch("$1") + ` ORDER BY created_at ASC, id ASC`
	rows, err := r.selectRows(ctx, query, r.tagArg(tag))
	if err != nil {
		return nil, err
	}
	return filterTag(rows, tag), nil
}

// FindForEntity returns rows that carry the entity tag OR live under the
// entity folder. Historical rows often satisfy only one of the two.
func (r *assetRepository) FindForEntity(ctx context.Context, tag, folderPrefix string) ([]*model.IndexRow, error) {
	folder, child := folderArgs(folderPrefix)
	query := `SELECT ` + assetColumns + ` FROM image_metadata
	          WHERE ` + r.tagMatch("$1") + `
	             OR folder_path = $2
	             OR substr(folder_path, 1, $3) = $4
	          ORDER BY created_at ASC, id ASC`

	rows, err := r.selectRows(ctx, query, r.tagArg(tag), folder, utf8.RuneCountInString(child), child)
	if err != nil {
		return nil, err
	}
	if r.postgres {
		return rows, nil
	}
	var out []*model.IndexRow
	for _, row := range rows {
		if row.HasTag(tag) || row.FolderPath == folder || hasFolderPrefix(row.FolderPath, child) {
			out = append(out, row)
		}
	}
	return out, nil
}

// UpsertTags applies a set union with add and a set difference with remove.
// Applying the same change twice leaves the row as after the first call.
func (r *assetRepository) UpsertTags(ctx context.Context, id int64, add, remove []string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT tags FROM image_metadata WHERE id = $1`
	if r.postgres {
		query += ` FOR UPDATE`
	}

	var current pq.StringArray
	err = tx.GetContext(ctx, &current, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}

	next := applyTags(current, add, remove)
	if equalTags(current, next) {
		return next, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE image_metadata SET tags = $1, updated_at = $2 WHERE id = $3`,
		pq.StringArray(next), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update tags of row %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// Relocate rewrites the pointer fields of every moved row in one
// transaction. Rows outside the move that already hold a target URL get
// their URL nulled first so no two rows end up sharing it.
func (r *assetRepository) Relocate(ctx context.Context, moves []Relocation) (int, error) {
	if len(moves) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	moving := make(map[int64]bool, len(moves))
	for _, m := range moves {
		moving[m.ID] = true
	}

	now := time.Now().UTC()
	nulled := 0
	for _, m := range moves {
		if m.To.URL == "" {
			continue
		}
		var colliding []int64
		err := tx.SelectContext(ctx, &colliding, `SELECT id FROM image_metadata WHERE image_url = $1`, m.To.URL)
		if err != nil {
			return 0, err
		}
		for _, id := range colliding {
			if moving[id] {
				continue
			}
			_, err := tx.ExecContext(ctx, `UPDATE image_metadata SET image_url = NULL, updated_at = $1 WHERE id = $2`, now, id)
			if err != nil {
				return 0, fmt.Errorf("failed to null colliding url of row %d: %w", id, err)
			}
			nulled++
		}
	}

	for _, m := range moves {
		n, err := setLocation(ctx, tx, m.ID, m.To, now)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, fmt.Errorf("row %d: %w", m.ID, ErrAssetNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return nulled, nil
}

func (r *assetRepository) SetLocation(ctx context.Context, id int64, loc model.Location) error {
	n, err := setLocation(ctx, r.db, id, loc, time.Now().UTC())
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *assetRepository) selectRows(ctx context.Context, query string, args ...any) ([]*model.IndexRow, error) {
	var rows []*model.IndexRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// tagMatch narrows by tag in SQL. SQLite has no array type, so the quoted
// element is searched in the stored array literal and results are
// re-checked in Go.
func (r *assetRepository) tagMatch(param string) string {
	if r.postgres {
		return param + ` = ANY(tags)`
	}
	return `instr(tags, '"' || ` + param + ` || '"') > 0`
}

// tagArg escapes the tag the way pq writes array elements, so labels with
// quotes or backslashes still match the stored literal on SQLite.
func (r *assetRepository) tagArg(tag string) string {
	if r.postgres {
		return tag
	}
	return arrayElementEscaper.Replace(tag)
}

var arrayElementEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func setLocation(ctx context.Context, db sqlx.ExecerContext, id int64, loc model.Location, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE image_metadata
	          SET file_path = $1, image_url = $2, folder_path = $3, date_folder = $4, updated_at = $5
	          WHERE id = $6`,
		loc.Path, nullString(loc.URL), loc.FolderPath, loc.DateFolder, now, id)
	if err != nil {
		return 0, fmt.Errorf("failed to relocate row %d: %w", id, err)
	}
	return res.RowsAffected()
}

func folderArgs(prefix string) (folder, child string) {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix, prefix + "/"
}

func hasFolderPrefix(folderPath, child string) bool {
	return len(folderPath) >= len(child) && folderPath[:len(child)] == child
}

func filterTag(rows []*model.IndexRow, tag string) []*model.IndexRow {
	var out []*model.IndexRow
	for _, row := range rows {
		if row.HasTag(tag) {
			out = append(out, row)
		}
	}
	return out
}

// applyTags keeps the order of current, appends new tags and drops removed
// and empty ones. The result is never nil so it stores as '{}'.
func applyTags(current, add, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[t] = true
	}
	seen := make(map[string]bool, len(current)+len(add))
	out := make([]string, 0, len(current)+len(add))
	for _, list := range [][]string{current, add} {
		for _, t := range list {
			if t == "" || drop[t] || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
