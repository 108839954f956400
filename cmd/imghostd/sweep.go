package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata/postgres"
	"github.com/imghost-io/imghost/internal/objectstore/s3"
	"github.com/imghost-io/imghost/internal/purge"
	"github.com/imghost-io/imghost/internal/sweep"
)

// runSweep performs a single retention sweep and exits. Intended for cron or
// one-off operational runs next to a server that has the periodic sweeper
// disabled.
func runSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	meta, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Errorf("connect database", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer meta.Close()

	obj, err := s3.New(ctx, s3.Config{
		Bucket:          cfg.ObjectStore.Bucket,
		Region:          cfg.ObjectStore.Region,
		Endpoint:        cfg.ObjectStore.Endpoint,
		AccessKeyID:     cfg.ObjectStore.AccessKey,
		SecretAccessKey: cfg.ObjectStore.SecretKey,
		UsePathStyle:    cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		logger.Errorf("connect object store", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer obj.Close()

	purgeClient := purge.NewClient(purge.Config{
		Endpoint:    cfg.CDN.Endpoint,
		ZoneID:      cfg.CDN.ZoneID,
		APIToken:    cfg.CDN.APIToken,
		BatchSize:   cfg.CDN.BatchSize,
		MaxAttempts: cfg.CDN.MaxAttempts,
		Backoff:     time.Duration(cfg.CDN.BackoffMs) * time.Millisecond,
	})
	defer purgeClient.CloseIdleConnections()

	sweeper := sweep.NewSweeper(meta, obj, sweep.Config{
		BatchSize:         cfg.Sweep.BatchSize,
		DeleteConcurrency: cfg.Sweep.DeleteConcurrency,
		Retention:         cfg.Retention(),
		PublicBaseURL:     cfg.Server.PublicBaseURL,
	}, sweep.WithPurger(purgeClient))

	report, err := sweeper.Run(ctx)
	if err != nil {
		logger.Errorf("sweep failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	fmt.Printf("sweep: soft-deleted %d, hard-deleted %d, failures %d, purged %d\n",
		report.SoftDeleted, report.HardDeleted, report.Failures, report.Purged)
	if report.Failures > 0 {
		os.Exit(2)
	}
}
