package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/imghost-io/imghost/internal/logging"
	"github.com/imghost-io/imghost/internal/metrics"
)

// requestLogger attaches a request-scoped logger to the context and logs one
// line per completed request. The request ID comes from chi's RequestID
// middleware, which must run earlier in the chain.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := chimiddleware.GetReqID(r.Context())
		ctx := logging.WithRequestIDCtx(r.Context(), reqID)
		ctx = logging.WithLoggerCtx(ctx, logging.Global().WithRequestID(reqID))

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.FromCtx(ctx).Infof("request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
			"remote":   r.RemoteAddr,
		})
	})
}

// httpMetrics records latency and request counts labeled by route pattern and
// status code.
func httpMetrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(route, ww.Status(), time.Since(start).Seconds())
		})
	}
}
