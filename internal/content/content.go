package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/masgolf/assetsync/internal/markdown"
)

// Document is one piece of content that may embed asset URLs.
type Document struct {
	ID   string // e.g. "blog/fitting-day.md" or "blog_posts:12"
	Body []byte
}

// Source yields the documents to scan.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// References maps a normalized asset URL to the documents embedding it.
type References map[string][]string

// Lookup returns the documents that reference url.
func (r References) Lookup(u string) []string {
	return r[NormalizeURL(u)]
}

// Scanner extracts raw asset URLs from blog content. An object with no
// index row can still be live if content links it this way.
type Scanner struct {
	parser  *markdown.Parser
	sources []Source
}

func NewScanner(sources ...Source) *Scanner {
	return &Scanner{
		parser:  markdown.NewParser(),
		sources: sources,
	}
}

func (s *Scanner) Scan(ctx context.Context) (References, error) {
	refs := make(References)
	for _, src := range s.sources {
		docs, err := src.Documents(ctx)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			for _, ref := range s.parser.Images(doc.Body) {
				key := NormalizeURL(ref)
				refs[key] = append(refs[key], doc.ID)
			}
		}
	}

	slog.Debug("content scanned", "urls", len(refs))
	return refs, nil
}

// NormalizeURL drops query and fragment so cache-busting parameters do not
// hide a reference.
func NormalizeURL(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return strings.TrimSpace(u)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

// FileSource reads markdown posts from {contentPath}/blog/*.md.
type FileSource struct {
	contentPath string
}

func NewFileSource(contentPath string) *FileSource {
	return &FileSource{contentPath: contentPath}
}

func (s *FileSource) Documents(ctx context.Context) ([]Document, error) {
	pattern := filepath.Join(s.contentPath, "blog", "*.md")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	docs := make([]Document, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		rel, _ := filepath.Rel(s.contentPath, file)
		docs = append(docs, Document{ID: filepath.ToSlash(rel), Body: body})
	}
	return docs, nil
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// DBSource reads the content column of a CMS table.
type DBSource struct {
	db    *sqlx.DB
	table string
}

func NewDBSource(db *sqlx.DB, table string) (*DBSource, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid content table name %q", table)
	}
	return &DBSource{db: db, table: table}, nil
}

func (s *DBSource) Documents(ctx context.Context) ([]Document, error) {
	var rows []struct {
		ID      string `db:"id"`
		Content string `db:"content"`
	}
	query := `SELECT CAST(id AS TEXT) AS id, COALESCE(content, '') AS content FROM ` + s.table + ` ORDER BY id`

	err := s.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.table, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, Document{ID: s.table + ":" + r.ID, Body: []byte(r.Content)})
	}
	return docs, nil
}
