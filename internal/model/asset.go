package model

import (
	"time"

	"github.com/lib/pq"
)

// Asset is one physical object in the bucket.
type Asset struct {
	Path        string
	PublicURL   string
	Size        int64
	ContentType string
	ETag        string
	CreatedAt   time.Time
}

// Name returns the last path segment.
func (a Asset) Name() string {
	for i := len(a.Path) - 1; i >= 0; i-- {
		if a.Path[i] == '/' {
			return a.Path[i+1:]
		}
	}
	return a.Path
}

const (
	SourceUpload    = "upload"
	SourceMigration = "migration"
	SourceMessage   = "message"
	SourceScrape    = "scrape"
)

// IndexRow mirrors an asset in the image_metadata table.
type IndexRow struct {
	ID          int64          `db:"id" json:"id" yaml:"id"`
	ImageURL    string         `db:"image_url" json:"image_url" yaml:"image_url"` // empty when the URL was nulled
	FilePath    string         `db:"file_path" json:"file_path" yaml:"file_path"` // physical pointer, wins over ImageURL
	FolderPath  string         `db:"folder_path" json:"folder_path" yaml:"folder_path"`
	DateFolder  string         `db:"date_folder" json:"date_folder" yaml:"date_folder"`
	FileName    string         `db:"file_name" json:"file_name" yaml:"file_name"`
	ContentType string         `db:"content_type" json:"content_type" yaml:"content_type"`
	FileSize    int64          `db:"file_size" json:"file_size" yaml:"file_size"`
	Source      string         `db:"source" json:"source" yaml:"source"`
	Channel     string         `db:"channel" json:"channel" yaml:"channel"`
	Tags        pq.StringArray `db:"tags" json:"tags" yaml:"tags"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at" yaml:"updated_at"`
}

// HasTag reports whether the row carries tag exactly.
func (r *IndexRow) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Location returns the pointer fields of the row.
func (r *IndexRow) Location() Location {
	return Location{
		Path:       r.FilePath,
		URL:        r.ImageURL,
		FolderPath: r.FolderPath,
		DateFolder: r.DateFolder,
	}
}

// Location groups the pointer fields that must always change together.
type Location struct {
	Path       string
	URL        string
	FolderPath string
	DateFolder string
}

// EarlierThan orders rows by (created_at, id).
func (r *IndexRow) EarlierThan(o *IndexRow) bool {
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.Before(o.CreatedAt)
	}
	return r.ID < o.ID
}
