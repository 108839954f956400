// Package server implements the public HTTP API: multipart upload, redirect
// based image serving, token-based deletion, and health reporting.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/imghost-io/imghost/internal/config"
	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metadata"
	"github.com/imghost-io/imghost/internal/metrics"
	"github.com/imghost-io/imghost/internal/objectstore"
	"github.com/imghost-io/imghost/internal/process"
)

// Purger invalidates a single CDN-cached URL. *purge.Client implements it.
type Purger interface {
	PurgeURL(ctx context.Context, url string) error
}

// Enqueuer submits re-encode jobs. *process.Queue implements it.
type Enqueuer interface {
	Enqueue(job process.Job) bool
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	meta    metadata.Store
	obj     objectstore.Store
	purger  Purger
	queue   Enqueuer
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.HTTPMetrics
	limiter *rate.Limiter
	started time.Time
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithPurger sets the CDN purge client.
func WithPurger(p Purger) Option {
	return func(s *Server) { s.purger = p }
}

// WithQueue sets the re-encode job queue.
func WithQueue(q Enqueuer) Option {
	return func(s *Server) { s.queue = q }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics bundle.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock replaces the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server over the given stores.
func New(meta metadata.Store, obj objectstore.Store, cfg *config.Config, opts ...Option) *Server {
	ratePerMin := cfg.Server.UploadRatePerMin
	if ratePerMin <= 0 {
		ratePerMin = 120
	}

	s := &Server{
		meta:    meta,
		obj:     obj,
		cfg:     cfg,
		logger:  logging.Global(),
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMin)/60), ratePerMin),
		started: time.Now(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routing tree with the standard middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(httpMetrics(s.metrics))

	r.Post("/upload", s.handleUpload)
	r.Get("/i/{filename}", s.handleServeImage)
	r.Delete("/image/{token}", s.handleDeleteImage)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start begins serving on the configured address. The returned server is
// already listening; callers own its shutdown.
func (s *Server) Start() (*http.Server, error) {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("http server stopped", map[string]any{"error": err.Error()})
		}
	}()

	s.logger.Infof("http server listening", map[string]any{"addr": ln.Addr().String()})
	return srv, nil
}

// publicURL builds the externally visible URL for a stored image.
func (s *Server) publicURL(filename string) string {
	return s.cfg.Server.PublicBaseURL + "/i/" + filename
}

// clientIP extracts the caller's address. RealIP middleware already resolved
// forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
