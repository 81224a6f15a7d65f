package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/pkg/api/handlers"
	"github.com/marmos91/pgstate/pkg/metrics"
)

// requestTimeout leaves the store probe room to report its own timeout.
const requestTimeout = handlers.HealthCheckTimeout + 5*time.Second

// NewRouter builds the ops router:
//
//	GET /health        liveness
//	GET /health/ready  component initialized by the sidecar
//	GET /health/store  PostgreSQL round trip
//	GET /metrics       Prometheus scrape, only when metrics are enabled
//
// store may be nil; readiness and store probes then report unhealthy.
func NewRouter(store handlers.StateStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, logRequests)
	r.Use(middleware.Timeout(requestTimeout))

	probes := handlers.NewHealthHandler(store)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", probes.Liveness)
		r.Get("/ready", probes.Readiness)
		r.Get("/store", probes.Store)
	})
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/health", http.StatusTemporaryRedirect)
	})

	mountMetrics(r)
	return r
}

func mountMetrics(r chi.Router) {
	if !metrics.IsEnabled() {
		return
	}
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

// logRequests logs each request at DEBUG; probes and scrapes arrive every few
// seconds.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		logger.DebugCtx(req.Context(), "ops request",
			"request_id", middleware.GetReqID(req.Context()),
			logger.Method(req.Method),
			"path", req.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(logger.Since(start)),
		)
	})
}
