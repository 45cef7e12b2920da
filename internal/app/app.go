// Package app wires the configuration into a ready ingestion service. Both
// binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/timmy/recipe-ingest/internal/config"
	"github.com/timmy/recipe-ingest/internal/dedupe"
	"github.com/timmy/recipe-ingest/internal/extract"
	"github.com/timmy/recipe-ingest/internal/inbox"
	"github.com/timmy/recipe-ingest/internal/langdetect"
	"github.com/timmy/recipe-ingest/internal/logger"
	"github.com/timmy/recipe-ingest/internal/normalize"
	"github.com/timmy/recipe-ingest/internal/repository"
	"github.com/timmy/recipe-ingest/internal/service"
	"github.com/timmy/recipe-ingest/internal/storage"
	"github.com/timmy/recipe-ingest/internal/validate"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Catalog   *normalize.Catalog
	Dirs      *inbox.Manager
	Processor *service.Processor
	Service   *service.IngestionService

	closers []func() error
}

// New connects to the database, loads the catalog and builds the pipeline.
// Optional components (title index, archive) are only dialed when enabled.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	ctx = logger.SetComponent(ctx, "bootstrap")
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	db, err := repository.InitDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	catalogRepo := repository.NewCatalogRepository(db)
	if cfg.Catalog.SeedOnStart {
		data, err := repository.DefaultCatalog()
		if err != nil {
			return nil, err
		}
		if err := catalogRepo.Seed(ctx, data); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}
	a.Catalog = normalize.NewCatalog(catalogRepo)
	if _, err := a.Catalog.Reload(ctx); err != nil {
		return nil, err
	}

	deduper, err := a.buildDeduplicator(ctx)
	if err != nil {
		return nil, err
	}
	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}

	if err := cfg.AI.ValidateWithAPIKey(); err != nil {
		logger.CtxWarn(ctx, "Completion service not fully configured, parsing will fail: %v", err)
	}
	parser, err := service.NewRecipeParser(&cfg.AI)
	if err != nil {
		return nil, err
	}

	a.Dirs = inbox.NewManager(cfg.Ingestion.BaseDir, extract.IsSupported)
	if err := a.Dirs.Setup(); err != nil {
		return nil, err
	}

	deps := service.ProcessorDeps{
		Extractor: extract.New(extract.Config{
			PdfToTextPath: cfg.Extract.PdfToTextPath,
			AntiwordPath:  cfg.Extract.AntiwordPath,
		}, extract.ExecRunner{}),
		Language:   langdetect.New(langdetect.WhatlangBackend{}, cfg.Language.Threshold),
		Parser:     parser,
		Validator:  validate.New(cfg.Validation.ReviewThreshold, cfg.Validation.MaxQualityIssues),
		Dedupe:     deduper,
		Normalizer: normalize.NewNormalizer(a.Catalog),
		Jobs:       repository.NewJobRepository(db),
		Recipes:    repository.NewRecipeRepository(db),
		Reviews:    repository.NewReviewRepository(db),
		Dirs:       a.Dirs,
	}
	if archiver != nil {
		deps.Archiver = archiver
	}

	a.Processor = service.NewProcessor(deps, service.ProcessorConfig{
		MaxRetries:       cfg.Ingestion.MaxRetries,
		RetryDelays:      cfg.Ingestion.RetryDelayDurations(),
		ReviewThreshold:  cfg.Validation.ReviewThreshold,
		MaxQualityIssues: cfg.Validation.MaxQualityIssues,
		TargetLanguage:   cfg.Language.Target,
	})
	a.Service = service.NewIngestionService(a.Processor, a.Dirs, extract.IsSupported, service.IngestionConfig{
		Workers:        cfg.Ingestion.Workers,
		QueueSize:      cfg.Ingestion.QueueSize,
		SettleDelay:    cfg.Ingestion.SettleDelay,
		StaleAfter:     cfg.Ingestion.StaleAfter,
		SweepInterval:  cfg.Ingestion.SweepInterval,
		ProcessTimeout: cfg.Ingestion.ProcessTimeout,
		DrainOnStart:   cfg.Ingestion.DrainOnStart,
	})

	logger.With(logger.Fields{
		"model":       parser.GetModel(),
		"concurrency": parser.Gate().Size(),
		"base_dir":    cfg.Ingestion.BaseDir,
	}).Info(ctx, "Ingestion pipeline ready")
	return a, nil
}

func (a *App) buildDeduplicator(ctx context.Context) (*dedupe.Deduplicator, error) {
	cfg := a.Config
	opts := dedupe.Options{
		TimeToleranceMinutes: cfg.Dedupe.TimeToleranceMinutes,
		SimilarityThreshold:  cfg.Dedupe.SimilarityThreshold,
		SketchDimensions:     cfg.TitleIndex.Dimensions,
	}
	fingerprints := repository.NewFingerprintRepository(a.DB)
	if !cfg.TitleIndex.Enabled {
		return dedupe.New(fingerprints, nil, opts), nil
	}

	index, err := repository.NewTitleIndex(&repository.QdrantConnectionConfig{
		Host:            cfg.TitleIndex.Host,
		Port:            cfg.TitleIndex.Port,
		Collection:      cfg.TitleIndex.Collection,
		APIKey:          cfg.TitleIndex.APIKey,
		UseTLS:          cfg.TitleIndex.UseTLS,
		VectorDimension: cfg.TitleIndex.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index.Close)
	if err := index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure title index collection: %w", err)
	}
	opts.SketchDimensions = index.Dimension()
	logger.CtxInfo(ctx, "Title index enabled: %s:%d/%s", cfg.TitleIndex.Host, cfg.TitleIndex.Port, cfg.TitleIndex.Collection)
	return dedupe.New(fingerprints, index, opts), nil
}

func (a *App) buildArchiver(ctx context.Context) (*storage.Archiver, error) {
	cfg := a.Config.Archive
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := storage.NewStorage(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("init archive storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive bucket: %w", err)
	}
	logger.CtxInfo(ctx, "Archiving finished files to bucket %s", cfg.Bucket)
	return storage.NewArchiver(store, cfg.Prefix), nil
}

// Ping checks the database connection.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
