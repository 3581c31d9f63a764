package db

import "embed"

// migrationsFS holds one goose directory per dialect.
//
//go:embed migrations
var migrationsFS embed.FS
