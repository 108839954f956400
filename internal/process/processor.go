package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata"
	"github.com/imghost-io/imghost/internal/metrics"
	"github.com/imghost-io/imghost/internal/objectstore"
)

// Purger invalidates a single CDN-cached URL. *purge.Client implements it.
type Purger interface {
	PurgeURL(ctx context.Context, url string) error
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// MaxDimension is the largest allowed width or height. Default: 2500.
	MaxDimension int

	// JPEGQuality is the encoder quality. Default: 85.
	JPEGQuality int

	// MinReductionPct is the size reduction (percent) below which the
	// re-encoded bytes are not worth re-uploading. Default: 5.
	MinReductionPct float64

	// PublicBaseURL is used to build the purge URL after a re-upload.
	PublicBaseURL string
}

// DefaultProcessorConfig returns default processor configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxDimension:    2500,
		JPEGQuality:     85,
		MinReductionPct: 5,
	}
}

// Processor executes re-encode jobs. Animated GIFs are exempt: a single
// re-encoded frame would destroy the animation, so they are only marked
// processed.
type Processor struct {
	meta    metadata.Store
	obj     objectstore.Store
	purger  Purger
	codec   Codec
	config  ProcessorConfig
	logger  *logging.Logger
	metrics *metrics.ProcessMetrics
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorPurger sets the CDN purge client.
func WithProcessorPurger(p Purger) ProcessorOption {
	return func(pr *Processor) { pr.purger = p }
}

// WithCodec replaces the image codec. Tests use it to control output size.
func WithCodec(c Codec) ProcessorOption {
	return func(pr *Processor) { pr.codec = c }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *logging.Logger) ProcessorOption {
	return func(pr *Processor) { pr.logger = l }
}

// WithProcessorMetrics sets the metrics bundle.
func WithProcessorMetrics(m *metrics.ProcessMetrics) ProcessorOption {
	return func(pr *Processor) { pr.metrics = m }
}

// NewProcessor creates a processor over the given stores.
func NewProcessor(meta metadata.Store, obj objectstore.Store, config ProcessorConfig, opts ...ProcessorOption) *Processor {
	if config.MaxDimension <= 0 {
		config.MaxDimension = 2500
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 85
	}
	if config.MinReductionPct <= 0 {
		config.MinReductionPct = 5
	}

	p := &Processor{
		meta:   meta,
		obj:    obj,
		codec:  JPEGCodec{},
		config: config,
		logger: logging.Global(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one job end to end. All failure modes leave the stored
// original servable; the record simply stays unprocessed.
func (p *Processor) Process(ctx context.Context, job Job) {
	start := time.Now()
	outcome := p.process(ctx, job)
	if p.metrics != nil {
		p.metrics.RecordJob(outcome, time.Since(start).Seconds())
	}
}

func (p *Processor) process(ctx context.Context, job Job) string {
	img, err := p.meta.GetByID(ctx, job.ImageID)
	if errors.Is(err, metadata.ErrNotFound) {
		p.logger.Warnf("re-encode: record vanished before processing", map[string]any{"imageID": job.ImageID})
		return metrics.OutcomeSkipped
	}
	if err != nil {
		p.logger.Errorf("re-encode: load record", map[string]any{"imageID": job.ImageID, "error": err.Error()})
		return metrics.OutcomeFailed
	}
	if img.Deleted() || img.IsProcessed {
		return metrics.OutcomeSkipped
	}

	if job.MIME == "image/gif" {
		if err := p.meta.MarkProcessed(ctx, img.ID); err != nil {
			p.logger.Warnf("re-encode: mark gif processed", map[string]any{"imageID": img.ID, "error": err.Error()})
			return metrics.OutcomeFailed
		}
		return metrics.OutcomeExempt
	}

	data := job.Bytes
	if data == nil {
		data, err = p.fetch(ctx, img.Filename)
		if err != nil {
			p.logger.Errorf("re-encode: fetch object", map[string]any{"key": img.Filename, "error": err.Error()})
			return metrics.OutcomeFailed
		}
	}

	encoded, mime, err := p.codec.Reencode(data, p.config.MaxDimension, p.config.JPEGQuality)
	if err != nil {
		// The original stays servable; just leave the record unprocessed.
		p.logger.Warnf("re-encode failed", map[string]any{"key": img.Filename, "error": err.Error()})
		return metrics.OutcomeFailed
	}

	reduction := 100 * (1 - float64(len(encoded))/float64(len(data)))
	if reduction < p.config.MinReductionPct {
		if err := p.meta.MarkProcessed(ctx, img.ID); err != nil {
			p.logger.Warnf("re-encode: mark processed", map[string]any{"imageID": img.ID, "error": err.Error()})
			return metrics.OutcomeFailed
		}
		return metrics.OutcomeSkipped
	}

	if err := p.obj.Put(ctx, img.Filename, bytes.NewReader(encoded), int64(len(encoded)), mime); err != nil {
		p.logger.Errorf("re-encode: upload", map[string]any{"key": img.Filename, "error": err.Error()})
		return metrics.OutcomeFailed
	}
	if err := p.meta.UpdateProcessed(ctx, img.ID, int64(len(encoded)), mime); err != nil {
		p.logger.Errorf("re-encode: update record", map[string]any{"imageID": img.ID, "error": err.Error()})
		return metrics.OutcomeFailed
	}
	if p.metrics != nil {
		p.metrics.RecordBytesSaved(int64(len(data) - len(encoded)))
	}

	// The CDN may have cached the original already.
	if p.purger != nil && p.config.PublicBaseURL != "" {
		url := p.config.PublicBaseURL + "/i/" + img.Filename
		if err := p.purger.PurgeURL(ctx, url); err != nil {
			p.logger.Warnf("re-encode: cdn purge failed", map[string]any{"url": url, "error": err.Error()})
		}
	}

	p.logger.Infof("re-encoded image", map[string]any{
		"key":          img.Filename,
		"originalSize": len(data),
		"encodedSize":  len(encoded),
		"reductionPct": fmt.Sprintf("%.1f", reduction),
	})
	return metrics.OutcomeReencoded
}

func (p *Processor) fetch(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.obj.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
