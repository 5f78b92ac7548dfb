package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/watchstack/tautulli-exporter/internal/domain"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// RouteClass buckets endpoints for rate limiting. Each class carries its own
// threshold; all windows are one minute.
type RouteClass string

const (
	RouteClassLogin    RouteClass = "login"
	RouteClassPassword RouteClass = "password"
	RouteClassGeneral  RouteClass = "general"
)

const rateWindow = time.Minute

// defaultLimits are requests per minute per client IP.
var defaultLimits = map[RouteClass]int64{
	RouteClassLogin:    10,
	RouteClassPassword: 5,
	RouteClassGeneral:  100,
}

// RateLimitedError wraps domain.ErrRateLimited with the time until the
// current window resets, for the Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return domain.ErrRateLimited }

// RateLimiter enforces a fixed window per (client IP, route class) pair over
// a shared counter store.
type RateLimiter struct {
	store  ports.RateCounterStore
	limits map[RouteClass]int64
	logger *slog.Logger
}

func NewRateLimiter(store ports.RateCounterStore, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{store: store, limits: defaultLimits, logger: logger}
}

// Allow counts one request and returns a RateLimitedError once the class
// threshold is exceeded within the window. Counter store failures fail open:
// an unreachable redis must not take authentication down with it.
func (l *RateLimiter) Allow(ctx context.Context, clientIP string, class RouteClass) error {
	limit, ok := l.limits[class]
	if !ok {
		limit = l.limits[RouteClassGeneral]
	}

	key := string(class) + ":" + clientIP
	count, resetIn, err := l.store.Incr(ctx, key, rateWindow)
	if err != nil {
		l.logger.ErrorContext(ctx, "rate counter unavailable",
			"operation", "rate_limit",
			"outcome", "error",
			"class", class,
			"error", err,
		)
		return nil
	}
	if count > limit {
		l.logger.WarnContext(ctx, "rate limit exceeded",
			"operation", "rate_limit",
			"outcome", "limited",
			"class", class,
			"client_ip", clientIP,
			"count", count,
		)
		if resetIn <= 0 {
			resetIn = rateWindow
		}
		return &RateLimitedError{RetryAfter: resetIn}
	}
	return nil
}
