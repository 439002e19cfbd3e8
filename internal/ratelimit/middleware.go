package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/keithrawlingsbrown/stet/internal/ratelimit/metrics"
	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
	"github.com/keithrawlingsbrown/stet/pkg/platform/httputil"
	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// Limiter is the admission check the middleware depends on.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Middleware enforces the per-tenant limit and exposes window state through
// X-RateLimit headers on every response it sees.
type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled switches limiting off entirely (dev and demo environments).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func NewMiddleware(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit admits or rejects the request against the tenant's window.
func (m *Middleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		tenantID := requestcontext.TenantID(ctx)
		if tenantID.IsNil() {
			// Tenant resolution runs earlier in the chain; unresolved
			// requests are rejected there, not here.
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Allow(ctx, tenantID.String())
		if err != nil {
			// The limiter protects the service; its failure must not take
			// the service down with it.
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"tenant_id", tenantID.String(),
				"error", err.Error(),
			)
			next.ServeHTTP(w, r)
			return
		}

		setHeaders(w, result)

		if !result.Allowed {
			m.metrics.IncrementThrottled()
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"tenant_id", tenantID.String(),
				"retry_after", result.RetryAfter,
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Headers go on allowed responses too so clients can pace themselves before
// hitting the wall.
func setHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
