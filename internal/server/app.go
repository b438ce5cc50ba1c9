// Package server wires the Lockbox server together: configuration,
// database and migrations, the protocol services, and the background purge
// sweep, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lockboxd/lockbox/internal/logging"
	"github.com/lockboxd/lockbox/internal/server/config"
	"github.com/lockboxd/lockbox/internal/server/repositories/repomanager"
	"github.com/lockboxd/lockbox/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	Identity  *services.IdentityService
	Access    *services.AccessService
	Files     *services.FileService
	Lifecycle *services.LifecycleService
}

func NewApp(cfg *config.Config) (*App, error) {
	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blobs := services.NewS3BlobStore(cfg)

	access := services.NewAccessService(db, rm)

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		Identity:  services.NewIdentityService(db, rm),
		Access:    access,
		Files:     services.NewFileService(db, rm, access, blobs, cfg),
		Lifecycle: services.NewLifecycleService(db, rm, blobs, cfg, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSweepLoop drives the periodic purge sweep until ctx is cancelled.
func (app *App) runSweepLoop(ctx context.Context) {
	app.logger.Info(ctx, "starting purge sweep loop", "interval", app.config.SweepInterval.String())

	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			app.logger.Info(ctx, "stopping purge sweep loop")
			return
		case <-ticker.C:
			purged, err := app.Lifecycle.SweepExpired(ctx)
			if err != nil {
				app.logger.Error(ctx, "purge sweep failed", "error", err.Error())
				continue
			}
			if purged > 0 {
				app.logger.Info(ctx, "purge sweep done", "purged", purged)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweepLoop(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
