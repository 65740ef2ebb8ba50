package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fcp-audit/internal/platform/metrics"
	"fcp-audit/internal/platform/middleware"
	"fcp-audit/pkg/platform/httputil"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Config holds what the router serves.
type Config struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	// Metrics records request latency; nil disables it.
	Metrics  *metrics.HTTP
	Checks   map[string]HealthCheck
	Routes   []Registrar
	Timeout  time.Duration
}

type healthResponse struct {
	Message string            `json:"message"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// NewRouter wires health, metrics and the API routes behind the shared
// middleware chain.
func NewRouter(cfg Config) http.Handler {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Timeout(cfg.Timeout))
	if cfg.Metrics != nil {
		r.Use(middleware.Latency(cfg.Metrics))
	}

	r.Get("/health", health(cfg.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	for _, reg := range cfg.Routes {
		reg.Register(r)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "not_found", Message: "Not Found"})
	})
	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				failed[name] = "unavailable"
			}
		}
		if len(failed) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Message: "unhealthy", Checks: failed})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Message: "success"})
	}
}
