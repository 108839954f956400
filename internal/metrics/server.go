package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imghost-io/imghost/internal/logging"
)

// Server exposes /metrics on its own listener, separate from the public API.
// Operators who keep the scrape port off the public network set
// observability.metricsAddr and point Prometheus here instead.
type Server struct {
	mu       sync.RWMutex
	addr     string
	bound    string
	srv      *http.Server
	gatherer prometheus.Gatherer
}

// NewServer creates a scrape server over the default Prometheus registry.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// NewServerWithRegistry creates a scrape server over a custom registry.
// Tests use it to avoid collisions with the default registry.
func NewServerWithRegistry(addr string, gatherer prometheus.Gatherer) *Server {
	return &Server{addr: addr, gatherer: gatherer}
}

// Start binds the listener and serves /metrics in the background. A serve
// failure after a successful bind is logged, not surfaced; scraping is
// best-effort and must not take the host process down.
func (s *Server) Start() error {
	handler := promhttp.Handler()
	if s.gatherer != nil {
		handler = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	s.srv = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Global().Errorf("metrics server stopped", map[string]any{
				"addr":  s.Addr(),
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded, so callers can
// bind to ":0" and discover the port. Before Start it returns the configured
// address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bound != "" {
		return s.bound
	}
	return s.addr
}

// Close drains the scrape server. Safe to call before Start.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
