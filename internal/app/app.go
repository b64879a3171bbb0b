package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"partner-sync-go/internal/config"
	"partner-sync-go/internal/db"
	syncdomain "partner-sync-go/internal/domain/sync"
	"partner-sync-go/internal/merge"
	"partner-sync-go/internal/notify"
	"partner-sync-go/internal/repository/inmemory"
	syncrepo "partner-sync-go/internal/repository/postgres/sync"
	"partner-sync-go/internal/scheduler"
	"partner-sync-go/internal/transport/httpserver"
	"partner-sync-go/internal/transport/httpserver/handler"
	commonhandler "partner-sync-go/internal/transport/httpserver/handler/common"
	synchandler "partner-sync-go/internal/transport/httpserver/handler/sync"
	authmw "partner-sync-go/internal/transport/httpserver/middleware"
	"partner-sync-go/pkg/logger"
)

const defaultShutdownTimeout = 5 * time.Second

type App struct {
	cfg        config.Config
	log        logger.Logger
	db         *gorm.DB
	sweeper    *scheduler.Sweeper
	httpServer *http.Server
}

// New loads configuration, opens the store and wires the service graph.
// Migrations run on startup when db.auto_migrate is set.
func New(ctx context.Context, log logger.Logger, configPath string) (*App, error) {
	log.Info("app: loading config")
	cfg, err := config.Load(log, configPath)
	if err != nil {
		return nil, err
	}

	log.Info("app: initializing database", "driver", cfg.DB.Driver)
	dbConn, err := db.Open(cfg.DB, log)
	if err != nil {
		return nil, err
	}

	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, dbConn, cfg.DB.Driver, log); err != nil {
			_ = db.Close(dbConn)
			return nil, err
		}
	}

	hub := notify.NewHub(cfg.Sync.StreamBuffer, log)
	service := syncdomain.NewService(syncrepo.NewPostgres(dbConn), serviceConfig(cfg.Sync), newMerger(cfg.Sync), hub)

	sqlDB, err := dbConn.DB()
	if err != nil {
		_ = db.Close(dbConn)
		return nil, fmt.Errorf("db handle: %w", err)
	}

	log.Info("app: initializing router")
	handlers := handler.New(
		commonhandler.New(sqlDB, log),
		synchandler.New(service, hub, cfg.HTTP.CORSOrigins, log),
	)
	auth := authmw.NewIdentityAuth(cfg.Identity, inmemory.NewInMemoryPrincipalCache(), log)
	router := httpserver.NewRouter(cfg, handlers, auth, log)

	log.Info("app: initializing http server")
	srv := httpserver.New(cfg, router)

	return &App{
		cfg:        cfg,
		log:        log,
		db:         dbConn,
		sweeper:    scheduler.NewSweeper(service, cfg.Sync.SweepInterval, log),
		httpServer: srv,
	}, nil
}

func serviceConfig(cfg config.SyncConfig) syncdomain.Config {
	return syncdomain.Config{
		MaxBatchOperations: cfg.MaxBatchOperations,
		MaxAttempts:        cfg.MaxAttempts,
		HeadSwapAttempts:   cfg.HeadSwapAttempts,
		DefaultPullLimit:   cfg.DefaultPullLimit,
		MaxPullLimit:       cfg.MaxPullLimit,
		OverdueAfter:       cfg.OverdueAfter,
	}
}

func newMerger(cfg config.SyncConfig) syncdomain.Merger {
	if cfg.MergeStrategy == config.MergeStrategyShallow {
		return merge.NewShallow()
	}
	return nil
}

// Run serves HTTP and runs the sweeper until ctx is cancelled or either
// fails, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http: listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("app: shutting down")

		timeout := a.cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *App) Sweeper() *scheduler.Sweeper {
	return a.sweeper
}

func (a *App) HTTPServer() *http.Server {
	return a.httpServer
}

func (a *App) Close() error {
	return db.Close(a.db)
}
