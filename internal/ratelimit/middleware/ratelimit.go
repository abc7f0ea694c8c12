// Package middleware enforces per-client request limits on HTTP routes.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"docproof/internal/ratelimit/metrics"
	"docproof/internal/ratelimit/models"
	"docproof/internal/transport/http/shared"
	"docproof/pkg/requestcontext"
)

// Store is the counter backend shared by every limited route.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// Middleware builds per-class limiters over one store.
type Middleware struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(mw *Middleware) { mw.logger = logger }
}

func New(store Store, opts ...Option) *Middleware {
	mw := &Middleware{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(mw)
	}
	return mw
}

// ByIP limits requests per client IP.
func (m *Middleware) ByIP(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(ctx context.Context) string {
		return "ip:" + requestcontext.ClientIP(ctx)
	})
}

// ByActor limits requests per authenticated caller. Requests without an
// identity in context fall back to the client IP, so it must run after the
// identity middleware to be useful.
func (m *Middleware) ByActor(class models.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(ctx context.Context) string {
		if actor := requestcontext.Actor(ctx); !actor.IsZero() {
			return "actor:" + actor.String()
		}
		return "ip:" + requestcontext.ClientIP(ctx)
	})
}

func (m *Middleware) limit(class models.Class, keyOf func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := class.Name + ":" + keyOf(ctx)

			res, err := m.store.Allow(ctx, key, class.Limit, class.Window)
			if err != nil {
				// Fail open: a limiter outage must not take the registry down.
				m.metrics.IncStoreError(class.Name)
				m.logger.WarnContext(ctx, "rate limit store unavailable",
					"class", class.Name,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			m.metrics.ObserveDecision(class.Name, res.Allowed)
			addHeaders(w, res)

			if !res.Allowed {
				m.logger.InfoContext(ctx, "rate limit exceeded",
					"class", class.Name,
					"key", key,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
				shared.WriteJSON(w, http.StatusTooManyRequests, shared.ErrorResponse{
					Error:     "rate_limit_exceeded",
					Message:   fmt.Sprintf("too many requests, retry in %d seconds", res.RetryAfter),
					Retryable: true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addHeaders(w http.ResponseWriter, res *models.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
