// Package httptransport exposes the registry over HTTP using chi.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"docproof/internal/platform/metrics"
	"docproof/internal/platform/middleware"
	"docproof/pkg/platform/middleware/metadata"
	"docproof/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig wires the shared middleware chain.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	// RequestLimit, when set, runs ahead of every API route.
	RequestLimit func(http.Handler) http.Handler
}

// NewRouter builds the root router. Health and metrics skip the request
// timeout so scrapes and probes stay cheap.
func NewRouter(cfg RouterConfig, health *HealthHandler, groups ...Registrar) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	if health != nil {
		health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		if cfg.RequestLimit != nil {
			r.Use(cfg.RequestLimit)
		}
		for _, g := range groups {
			g.Register(r)
		}
	})
	return r
}
