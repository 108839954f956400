package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imghost-io/imghost/internal/config"
	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata/postgres"
	"github.com/imghost-io/imghost/internal/metrics"
	"github.com/imghost-io/imghost/internal/objectstore"
	"github.com/imghost-io/imghost/internal/objectstore/s3"
	"github.com/imghost-io/imghost/internal/process"
	"github.com/imghost-io/imghost/internal/purge"
	"github.com/imghost-io/imghost/internal/server"
	"github.com/imghost-io/imghost/internal/sweep"
)

// App wires the server components together and owns their lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	meta        *postgres.Store
	obj         objectstore.Store
	purgeClient *purge.Client
	queue       *process.Queue
	sweepWorker *sweep.Worker
	metricsSrv  *metrics.Server
	httpServer  *http.Server
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listenAddr := fs.String("listen", "", "Override listen address (e.g., :8080)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	app := &App{cfg: cfg, logger: logger}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.Errorf("startup failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// Start brings up every component: database, object store, CDN purge client,
// re-encode workers, the optional retention sweeper, and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfg

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	meta, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.meta = meta

	s3store, err := s3.New(ctx, s3.Config{
		Bucket:          cfg.ObjectStore.Bucket,
		Region:          cfg.ObjectStore.Region,
		Endpoint:        cfg.ObjectStore.Endpoint,
		AccessKeyID:     cfg.ObjectStore.AccessKey,
		SecretAccessKey: cfg.ObjectStore.SecretKey,
		UsePathStyle:    cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("connect object store: %w", err)
	}
	a.obj = objectstore.NewInstrumentedStore(s3store, metrics.NewObjectStoreMetrics())

	a.purgeClient = purge.NewClient(purge.Config{
		Endpoint:    cfg.CDN.Endpoint,
		ZoneID:      cfg.CDN.ZoneID,
		APIToken:    cfg.CDN.APIToken,
		BatchSize:   cfg.CDN.BatchSize,
		MaxAttempts: cfg.CDN.MaxAttempts,
		Backoff:     time.Duration(cfg.CDN.BackoffMs) * time.Millisecond,
	}, purge.WithMetrics(metrics.NewPurgeMetrics()))
	if a.purgeClient == nil {
		a.logger.Info("cdn purge disabled, no zone or token configured")
	}

	processMetrics := metrics.NewProcessMetrics()
	processor := process.NewProcessor(a.meta, a.obj, process.ProcessorConfig{
		MaxDimension:    cfg.Process.MaxDimension,
		JPEGQuality:     cfg.Process.JPEGQuality,
		MinReductionPct: cfg.Process.MinReductionPct,
		PublicBaseURL:   cfg.Server.PublicBaseURL,
	},
		process.WithProcessorPurger(a.purgeClient),
		process.WithProcessorMetrics(processMetrics),
	)
	a.queue = process.NewQueue(process.QueueConfig{
		Workers: cfg.Process.Workers,
		Size:    cfg.Process.QueueSize,
	}, processor.Process, process.WithQueueMetrics(processMetrics))
	a.queue.Start()

	if cfg.Sweep.Enabled {
		sweeper := sweep.NewSweeper(a.meta, a.obj, sweep.Config{
			BatchSize:         cfg.Sweep.BatchSize,
			DeleteConcurrency: cfg.Sweep.DeleteConcurrency,
			Retention:         cfg.Retention(),
			PublicBaseURL:     cfg.Server.PublicBaseURL,
		},
			sweep.WithPurger(a.purgeClient),
			sweep.WithMetrics(metrics.NewSweepMetrics()),
		)
		a.sweepWorker = sweep.NewWorker(sweeper, sweep.WorkerConfig{
			Interval: time.Duration(cfg.Sweep.IntervalMinutes) * time.Minute,
		})
		a.sweepWorker.Start()
	}

	if cfg.Observability.MetricsAddr != "" {
		a.metricsSrv = metrics.NewServer(cfg.Observability.MetricsAddr)
		if err := a.metricsSrv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.logger.Infof("metrics server listening", map[string]any{"addr": a.metricsSrv.Addr()})
	}

	srv := server.New(a.meta, a.obj, cfg,
		server.WithPurger(a.purgeClient),
		server.WithQueue(a.queue),
		server.WithMetrics(metrics.NewHTTPMetrics()),
		server.WithLogger(a.logger),
	)
	httpServer, err := srv.Start()
	if err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.httpServer = httpServer
	return nil
}

// Shutdown drains the HTTP server first so no new work arrives, then stops
// the background components in dependency order.
func (a *App) Shutdown(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warnf("http shutdown", map[string]any{"error": err.Error()})
		}
	}
	if a.sweepWorker != nil {
		a.sweepWorker.Stop()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	a.purgeClient.CloseIdleConnections()
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Close(); err != nil {
			a.logger.Warnf("metrics server close", map[string]any{"error": err.Error()})
		}
	}
	if a.obj != nil {
		if err := a.obj.Close(); err != nil {
			a.logger.Warnf("object store close", map[string]any{"error": err.Error()})
		}
	}
	if a.meta != nil {
		a.meta.Close()
	}
}
