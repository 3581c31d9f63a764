package app

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/masgolf/assetsync/internal/config"
	"github.com/masgolf/assetsync/internal/content"
	"github.com/masgolf/assetsync/internal/db"
	"github.com/masgolf/assetsync/internal/metrics"
	"github.com/masgolf/assetsync/internal/repository"
	"github.com/masgolf/assetsync/internal/service"
	"github.com/masgolf/assetsync/internal/storage"
)

type App struct {
	Cfg        *config.Config
	DB         *sqlx.DB
	Store      storage.ObjectStore
	Assets     repository.AssetRepository
	Metrics    *metrics.Metrics
	Tags       *service.TagService
	Dedupe     *service.DuplicateResolver
	Reconciler *service.Reconciler
	Migrator   *service.Migrator
	Ingester   *service.Ingester
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	assetRepository := repository.NewAssetRepository(database)
	unitRepository := repository.NewMigrationUnitRepository(database)

	// Storage
	store, err := storage.New(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Content sources for orphan annotation
	sources := []content.Source{content.NewFileSource(cfg.ContentPath)}
	if cfg.ContentTable != "" {
		dbSource, err := content.NewDBSource(database, cfg.ContentTable)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to initialize content source: %w", err)
		}
		sources = append(sources, dbSource)
	}

	slog.Debug("app initialized", "driver", cfg.DBDriver, "bucket", cfg.S3Bucket, "concurrency", cfg.CopyConcurrency)

	return &App{
		Cfg:        cfg,
		DB:         database,
		Store:      store,
		Assets:     assetRepository,
		Metrics:    metrics.New(),
		Tags:       service.NewTagService(assetRepository),
		Dedupe:     service.NewDuplicateResolver(assetRepository, store),
		Reconciler: service.NewReconciler(assetRepository, store, content.NewScanner(sources...)),
		Migrator:   service.NewMigrator(assetRepository, unitRepository, store, cfg.CopyConcurrency),
		Ingester:   service.NewIngester(assetRepository, store),
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
