// Package server initializes and runs the ingestion server process: database
// and Redis connections, migrations, queue recovery, the worker loop, the
// reaper and the metrics endpoint, with graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/classhub/internal/filex"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/cache"
	"github.com/dmitrijs2005/classhub/internal/server/config"
	"github.com/dmitrijs2005/classhub/internal/server/notify"
	"github.com/dmitrijs2005/classhub/internal/server/pipeline"
	"github.com/dmitrijs2005/classhub/internal/server/queue"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/classhub/internal/server/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	rdb         *redis.Client
	repomanager repomanager.RepositoryManager
	queue       queue.Queue
	ingest      *services.IngestService
	worker      *services.Worker
	reaper      *services.Reaper
}

// NewApp wires every component together. Nothing starts running until Run.
func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	manager, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	q := queue.NewRedisQueue(rdb)
	c := cache.NewRedisCache(rdb)
	notifier := notify.NewNotifier(c, notify.NewRedisPublisher(rdb), logger)

	scanner := pipeline.NewScanner(cfg.ClamscanPath, cfg.QuarantineDir, cfg.ToolTimeout, logger)
	images := pipeline.NewImageSanitizer(cfg.MaxImagePixels, cfg.JPEGQuality)
	pdfs := pipeline.NewPDFSanitizer(cfg.GhostscriptPath, cfg.ToolTimeout, logger)
	pl := pipeline.New(cfg.StorageDir, scanner, images, pdfs, logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		rdb:         rdb,
		repomanager: manager,
		queue:       q,
		ingest:      services.NewIngestService(db, manager, q, c, notifier, cfg, logger),
		worker:      services.NewWorker(db, manager, q, pl, notifier, cfg, logger),
		reaper:      services.NewReaper(db, manager, notifier, cfg, logger),
	}, nil
}

// Ingest exposes the submission service to the embedding transport layer.
func (app *App) Ingest() *services.IngestService {
	return app.ingest
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startMetricsServer serves /metrics and /health until ctx is canceled.
func (app *App) startMetricsServer(ctx context.Context) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: app.config.EndpointAddrHTTP, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error(ctx, "metrics server failed", "error", err)
		}
	}()
	return srv
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting ingestion server")
	app.initSignalHandler(cancelFunc)

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if _, err := filex.EnsureDir(app.config.StorageDir); err != nil {
		return err
	}
	if _, err := filex.EnsureDir(app.config.QuarantineDir); err != nil {
		return err
	}

	// Jobs delivered but unacked when the previous process died go back on
	// the queue before any worker starts.
	recovered, err := app.queue.RecoverPending(ctx)
	if err != nil {
		return fmt.Errorf("queue recovery failed: %w", err)
	}
	if recovered > 0 {
		app.logger.Warn(ctx, "recovered pending jobs from previous run", "count", recovered)
	}

	app.worker.Start(ctx)
	app.reaper.Start(ctx)
	srv := app.startMetricsServer(ctx)

	<-ctx.Done()
	app.logger.Info(ctx, "shutting down")

	app.worker.Stop()
	app.reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn(shutdownCtx, "metrics server shutdown failed", "error", err)
	}

	if err := app.rdb.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "redis close failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(shutdownCtx, "db close failed", "error", err)
	}

	app.logger.Info(context.Background(), "shutdown complete")
	return nil
}
