// Package server wires the GophJournal backend: PostgreSQL (and optionally
// S3) storage, the REST API and the gRPC health service.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"github.com/dmitrijs2005/gophjournal/internal/server/config"
	"github.com/dmitrijs2005/gophjournal/internal/server/httpapi"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/bundles"
	"github.com/dmitrijs2005/gophjournal/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophjournal/internal/server/services"

	gs "github.com/dmitrijs2005/gophjournal/internal/server/grpc"
)

// healthCheckInterval is how often the health service pings the database.
const healthCheckInterval = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
	health *gs.HealthServer
}

// NewApp opens the database, applies migrations and prepares both servers.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	opts, err := bundleStoreOptions(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rm := repomanager.NewPostgresRepositoryManager(opts...)

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	return build(cfg, logger, db, rm), nil
}

func bundleStoreOptions(ctx context.Context, cfg *config.Config) ([]repomanager.Option, error) {
	switch cfg.BundleBackend {
	case "", config.BundleBackendPostgres:
		return nil, nil
	case config.BundleBackendS3:
		client, err := bundles.NewS3Client(ctx, bundles.S3Options{
			User:     cfg.S3RootUser,
			Password: cfg.S3RootPassword,
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		store := bundles.NewS3Repository(client, cfg.S3Bucket)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return []repomanager.Option{repomanager.WithBundleStore(store)}, nil
	default:
		return nil, fmt.Errorf("unknown bundle backend %q", cfg.BundleBackend)
	}
}

func build(cfg *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) *App {
	if logger == nil {
		logger = logging.Nop()
	}
	limits := models.Limits{MaxEntryBytes: cfg.MaxEntryBytes, MaxSummaryHistory: cfg.MaxSummaryHistory}

	us := services.NewUserService(db, rm, cfg.SecretKey, cfg.TokenValidity, logger)
	bs := services.NewBundleService(db, rm, logger)
	js := services.NewJournalService(db, rm, limits, logger)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		http:   httpapi.NewServer(us, bs, js, cfg.SecretKey, logger),
		health: gs.NewHealthServer(cfg.HealthAddr, db, healthCheckInterval, logger),
	}
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves until a signal arrives, ctx is cancelled or either server
// fails. The database is closed on return.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	start("http", func(ctx context.Context) error { return app.http.Run(ctx, app.config.ListenAddr) })
	start("grpc", app.health.Run)

	wg.Wait()

	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close db: %w", err))
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return errors.Join(errs...)
}
