package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppEnv string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Storage (S3-compatible: Supabase Storage, MinIO, AWS S3, Cloudflare R2, etc.)
	S3Region             string
	S3Bucket             string
	S3AccessKey          string
	S3SecretKey          string
	S3Endpoint           string // Optional: for S3-compatible services
	StoragePublicBaseURL string // Optional: public object URL base, bucket name is appended
	StorageListPageSize  int
	StorageReadRetries   uint64
	StorageRetryBase     time.Duration

	// Batch jobs
	CopyConcurrency int

	// Content sources scanned for raw asset URLs
	ContentPath  string
	ContentTable string

	// Observability (optional)
	SentryDSN      string
	PushgatewayURL string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppEnv: envString("APP_ENV", "development"),

		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/assets.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		S3Region:             envString("S3_REGION", "ap-northeast-2"),
		S3Bucket:             envString("S3_BUCKET", "blog-images"),
		S3AccessKey:          envString("S3_ACCESS_KEY", ""),
		S3SecretKey:          envString("S3_SECRET_KEY", ""),
		S3Endpoint:           envString("S3_ENDPOINT", ""),
		StoragePublicBaseURL: envString("STORAGE_PUBLIC_BASE_URL", ""),
		StorageListPageSize:  envInt("STORAGE_LIST_PAGE_SIZE", 1000),
		StorageReadRetries:   uint64(envInt("STORAGE_READ_RETRIES", 3)),
		StorageRetryBase:     envDuration("STORAGE_RETRY_BASE", 200*time.Millisecond),

		CopyConcurrency: envInt("COPY_CONCURRENCY", 4),

		ContentPath:  envString("CONTENT_PATH", ""),
		ContentTable: envString("CONTENT_TABLE", "blog_posts"),

		SentryDSN:      envString("SENTRY_DSN", ""),
		PushgatewayURL: envString("PUSHGATEWAY_URL", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBDriver != "sqlite" && c.DBDriver != "pgx" {
		return fmt.Errorf("DB_DRIVER must be sqlite or pgx, got %q", c.DBDriver)
	}
	if c.CopyConcurrency < 1 || c.CopyConcurrency > 32 {
		return fmt.Errorf("COPY_CONCURRENCY must be between 1 and 32, got %d", c.CopyConcurrency)
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	// Production: the index and bucket are shared with the live site
	if c.IsProduction() && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("production runs require S3_ACCESS_KEY and S3_SECRET_KEY")
	}
	return nil
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DryRunDefault reports whether destructive commands should default to
// --dry-run. ASSETSYNC_DRY_RUN overrides the per-environment default.
func (c *Config) DryRunDefault() bool {
	return envBool("ASSETSYNC_DRY_RUN", c.IsProduction())
}
