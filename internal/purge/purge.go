// Package purge invalidates CDN-cached URLs after image deletion.
//
// The client speaks the Cloudflare cache purge API: batches of URLs are
// POSTed to /zones/{zone}/purge_cache with a bearer token. Transient
// failures (network errors, 429, 5xx) are retried with exponential backoff;
// other client errors fail the batch immediately.
package purge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metrics"
	"github.com/imghost-io/imghost/internal/retry"
)

// DefaultEndpoint is the Cloudflare v4 API base URL.
const DefaultEndpoint = "https://api.cloudflare.com/client/v4"

// Defaults for batch sizing and retry behavior.
const (
	DefaultBatchSize   = 30
	DefaultMaxAttempts = 5
	DefaultBackoff     = 500 * time.Millisecond
)

// Config holds purge client configuration.
type Config struct {
	// Endpoint is the API base URL. Defaults to DefaultEndpoint.
	Endpoint string

	// ZoneID identifies the CDN zone whose cache is purged.
	ZoneID string

	// APIToken is the bearer token for the purge API.
	APIToken string

	// BatchSize caps the number of URLs per purge request.
	BatchSize int

	// MaxAttempts caps attempts per batch, including the first.
	MaxAttempts int

	// Backoff is the wait before the second attempt; it doubles per attempt.
	Backoff time.Duration
}

// BatchResult describes the outcome of a single purge batch.
type BatchResult struct {
	// URLs is the number of URLs in the batch.
	URLs int

	// Attempts is the number of requests made for the batch.
	Attempts int

	// Err is the final error, or nil if the batch succeeded.
	Err error
}

// Result aggregates the outcome of a purge call.
type Result struct {
	// Purged is the number of URLs in batches that succeeded.
	Purged int

	// Batches holds one entry per batch, in submission order.
	Batches []BatchResult
}

// Client purges URLs from the CDN cache. A nil *Client is valid and treats
// every purge as a successful no-op, so callers need no configuration check.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	zoneID      string
	apiToken    string
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *logging.Logger
	metrics     *metrics.PurgeMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics bundle.
func WithMetrics(m *metrics.PurgeMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the wait between retries. Tests use it to observe the
// backoff schedule without real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a purge client. Returns nil when cfg has no zone or
// token, which disables purging entirely.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.ZoneID == "" || cfg.APIToken == "" {
		return nil
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		endpoint:    cfg.Endpoint,
		zoneID:      cfg.ZoneID,
		apiToken:    cfg.APIToken,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		logger:      logging.Global(),
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PurgeURLs purges the given URLs in batches of at most BatchSize. Every
// batch is attempted even when an earlier batch fails; the returned error
// joins all batch failures.
func (c *Client) PurgeURLs(ctx context.Context, urls []string) (Result, error) {
	if c == nil || len(urls) == 0 {
		return Result{Purged: len(urls)}, nil
	}

	var res Result
	var errs []error

	for start := 0; start < len(urls); start += c.batchSize {
		end := start + c.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		br := c.purgeBatch(ctx, batch)
		res.Batches = append(res.Batches, br)
		if c.metrics != nil {
			c.metrics.RecordBatch(br.URLs, br.Attempts, br.Err == nil)
		}
		if br.Err != nil {
			errs = append(errs, br.Err)
			c.logger.Warnf("cdn purge batch failed", map[string]any{
				"urls":     br.URLs,
				"attempts": br.Attempts,
				"error":    br.Err.Error(),
			})
			continue
		}
		res.Purged += br.URLs
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("purge: %d of %d batches failed: %w",
			len(errs), len(res.Batches), errors.Join(errs...))
	}
	return res, nil
}

// PurgeURL purges a single URL.
func (c *Client) PurgeURL(ctx context.Context, url string) error {
	_, err := c.PurgeURLs(ctx, []string{url})
	return err
}

// CloseIdleConnections releases pooled connections at shutdown.
func (c *Client) CloseIdleConnections() {
	if c == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

func (c *Client) purgeBatch(ctx context.Context, urls []string) BatchResult {
	br := BatchResult{URLs: len(urls)}

	cfg := retry.Config{
		MaxAttempts: c.maxAttempts,
		InitialWait: c.backoff,
		Multiplier:  2.0,
		Sleep:       c.sleep,
	}

	br.Err = retry.Do(ctx, cfg, func() error {
		br.Attempts++
		return c.doPurge(ctx, urls)
	})
	return br
}

type purgeRequest struct {
	Files []string `json:"files"`
}

type purgeResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) doPurge(ctx context.Context, urls []string) error {
	body, err := json.Marshal(purgeRequest{Files: urls})
	if err != nil {
		return fmt.Errorf("encode purge request: %w", err)
	}

	url := fmt.Sprintf("%s/zones/%s/purge_cache", c.endpoint, c.zoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build purge request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors are worth retrying.
		return retry.Retryable(fmt.Errorf("purge request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return retry.Retryable(fmt.Errorf("purge request: status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("purge request: status %d", resp.StatusCode)
	}

	var pr purgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return fmt.Errorf("decode purge response: %w", err)
	}
	if !pr.Success {
		// The API sometimes reports transient trouble with a 200 and
		// success=false, so these are retried too.
		if len(pr.Errors) > 0 {
			return retry.Retryable(fmt.Errorf("purge rejected: %d %s", pr.Errors[0].Code, pr.Errors[0].Message))
		}
		return retry.Retryable(errors.New("purge rejected"))
	}
	return nil
}
