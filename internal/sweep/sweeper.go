// Package sweep implements retention enforcement for hosted images.
//
// A sweep run walks expired records in batches, deletes the backing objects
// with bounded concurrency, soft-deletes the records whose objects are gone,
// and finally hard-deletes metadata that has been soft-deleted longer than
// the retention window. CDN URLs for swept images are purged once at the end
// of the run.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata"
	"github.com/imghost-io/imghost/internal/metrics"
	"github.com/imghost-io/imghost/internal/objectstore"
	"github.com/imghost-io/imghost/internal/purge"
)

// Purger flushes URLs from the CDN cache. *purge.Client implements it.
type Purger interface {
	PurgeURLs(ctx context.Context, urls []string) (purge.Result, error)
}

// Config configures a Sweeper.
type Config struct {
	// BatchSize is the number of expired records fetched and committed per
	// batch. Default: 100.
	BatchSize int

	// DeleteConcurrency bounds concurrent object deletions within a batch.
	// Default: 10.
	DeleteConcurrency int

	// Retention is how long soft-deleted records are kept before the
	// hard-delete pass removes them. Default: 90 days.
	Retention time.Duration

	// PublicBaseURL is the externally visible base URL images are served
	// from. Used to build CDN purge URLs; purging is skipped when empty.
	PublicBaseURL string
}

// DefaultConfig returns default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         100,
		DeleteConcurrency: 10,
		Retention:         90 * 24 * time.Hour,
	}
}

// Report summarizes a sweep run.
type Report struct {
	// SoftDeleted is the number of records transitioned to soft-deleted.
	SoftDeleted int64

	// Failures is the number of object deletions that failed and were left
	// for the next run.
	Failures int64

	// Batches is the number of batches processed by the soft-delete pass.
	Batches int

	// HardDeleted is the number of soft-deleted records removed from the
	// database.
	HardDeleted int64

	// Purged is the number of URLs successfully purged from the CDN cache.
	Purged int
}

// Sweeper enforces image retention.
type Sweeper struct {
	meta    metadata.Store
	obj     objectstore.Store
	purger  Purger
	config  Config
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.SweepMetrics
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPurger sets the CDN purge client.
func WithPurger(p Purger) Option {
	return func(s *Sweeper) { s.purger = p }
}

// WithClock replaces the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithMetrics sets the metrics bundle.
func WithMetrics(m *metrics.SweepMetrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper creates a sweeper over the given stores.
func NewSweeper(meta metadata.Store, obj objectstore.Store, config Config, opts ...Option) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.DeleteConcurrency <= 0 {
		config.DeleteConcurrency = 10
	}
	if config.Retention <= 0 {
		config.Retention = 90 * 24 * time.Hour
	}

	s := &Sweeper{
		meta:   meta,
		obj:    obj,
		config: config,
		now:    time.Now,
		logger: logging.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a full sweep: record stats, soft-delete expired images, hard
// delete metadata past retention, then record stats again. Object deletion
// failures are isolated per record and reported in the Report; database
// errors fail the run.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	start := s.now()

	report, err := s.run(ctx)

	if s.metrics != nil {
		s.metrics.RecordRun(s.now().Sub(start).Seconds(), err == nil)
	}
	return report, err
}

func (s *Sweeper) run(ctx context.Context) (Report, error) {
	var report Report

	if _, err := s.ReportStats(ctx); err != nil {
		return report, err
	}

	if err := s.softDeleteExpired(ctx, &report); err != nil {
		return report, err
	}

	hard, err := s.HardDeleteOldMetadata(ctx)
	if err != nil {
		return report, err
	}
	report.HardDeleted = hard

	if _, err := s.ReportStats(ctx); err != nil {
		return report, err
	}

	s.logger.Infof("sweep complete", map[string]any{
		"softDeleted": report.SoftDeleted,
		"hardDeleted": report.HardDeleted,
		"failures":    report.Failures,
		"batches":     report.Batches,
		"purged":      report.Purged,
	})
	return report, nil
}

// SoftDeleteExpired runs only the soft-delete pass, including the final CDN
// purge flush.
func (s *Sweeper) SoftDeleteExpired(ctx context.Context) (Report, error) {
	var report Report
	err := s.softDeleteExpired(ctx, &report)
	return report, err
}

// softDeleteExpired walks expired records in batches. Within a batch, object
// deletions run concurrently under a semaphore; records whose objects were
// removed are soft-deleted in one commit. A record whose object deletion
// failed stays live and gets its next attempt on the next run, not later in
// this one.
func (s *Sweeper) softDeleteExpired(ctx context.Context, report *Report) error {
	var purgeURLs []string
	failed := make(map[string]bool)

	for {
		now := s.now()
		batch, err := s.meta.ListExpired(ctx, now, s.config.BatchSize)
		if err != nil {
			return fmt.Errorf("list expired: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		// Failed records stay live, so later fetches in the same run list
		// them again. Each gets exactly one attempt per run.
		pending := make([]*metadata.Image, 0, len(batch))
		for _, img := range batch {
			if !failed[img.ID] {
				pending = append(pending, img)
			}
		}
		if len(pending) == 0 {
			break
		}
		report.Batches++

		deleted := s.deleteObjects(ctx, pending)

		done := make(map[string]bool, len(deleted))
		ids := make([]string, 0, len(deleted))
		for _, img := range deleted {
			done[img.ID] = true
			ids = append(ids, img.ID)
			if s.config.PublicBaseURL != "" {
				purgeURLs = append(purgeURLs, s.config.PublicBaseURL+"/i/"+img.Filename)
			}
		}
		for _, img := range pending {
			if !done[img.ID] {
				failed[img.ID] = true
			}
		}

		failures := int64(len(pending) - len(deleted))
		report.Failures += failures
		if s.metrics != nil && failures > 0 {
			s.metrics.RecordDeleteFailures(failures)
		}

		if len(ids) > 0 {
			n, err := s.meta.MarkDeleted(ctx, ids, now)
			if err != nil {
				return fmt.Errorf("mark deleted: %w", err)
			}
			report.SoftDeleted += n
			if s.metrics != nil {
				s.metrics.RecordSoftDeleted(n)
			}
		}

		if len(batch) < s.config.BatchSize {
			break
		}
	}

	s.flushPurges(ctx, purgeURLs, report)
	return nil
}

// deleteObjects deletes the backing objects for a batch and returns the
// records whose objects are confirmed gone.
func (s *Sweeper) deleteObjects(ctx context.Context, batch []*metadata.Image) []*metadata.Image {
	sem := make(chan struct{}, s.config.DeleteConcurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	deleted := make([]*metadata.Image, 0, len(batch))

	for _, img := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(img *metadata.Image) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.obj.Delete(ctx, img.Filename); err != nil {
				s.logger.Warnf("object delete failed, will retry next run", map[string]any{
					"key":   img.Filename,
					"error": err.Error(),
				})
				return
			}
			mu.Lock()
			deleted = append(deleted, img)
			mu.Unlock()
		}(img)
	}
	wg.Wait()
	return deleted
}

// HardDeleteOldMetadata removes records soft-deleted longer ago than the
// retention window.
func (s *Sweeper) HardDeleteOldMetadata(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.Retention)
	n, err := s.meta.DeleteSoftDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("hard delete: %w", err)
	}
	if s.metrics != nil && n > 0 {
		s.metrics.RecordHardDeleted(n)
	}
	return n, nil
}

// flushPurges sends the accumulated URLs to the CDN. Purge failures are
// logged only; the cache entries expire on their own eventually.
func (s *Sweeper) flushPurges(ctx context.Context, urls []string, report *Report) {
	if s.purger == nil || len(urls) == 0 {
		return
	}
	res, err := s.purger.PurgeURLs(ctx, urls)
	report.Purged = res.Purged
	if err != nil {
		s.logger.Warnf("cdn purge incomplete", map[string]any{
			"purged":    res.Purged,
			"requested": len(urls),
			"error":     err.Error(),
		})
	}
}

// ReportStats queries population counts and updates the gauges. A stats
// failure indicates the database is unhealthy, so callers treat it as fatal
// for the run.
func (s *Sweeper) ReportStats(ctx context.Context) (metadata.Stats, error) {
	stats, err := s.meta.Stats(ctx, s.now())
	if err != nil {
		return metadata.Stats{}, fmt.Errorf("stats query: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordStats(stats.Active, stats.SoftDeleted, stats.ExpiringWithinHour)
	}
	s.logger.Debugf("record stats", map[string]any{
		"active":             stats.Active,
		"softDeleted":        stats.SoftDeleted,
		"expiringWithinHour": stats.ExpiringWithinHour,
	})
	return stats, nil
}
