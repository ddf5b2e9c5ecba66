// Package ratelimit implements fixed-window admission control per client
// identity, counting requests in the shared key-value store.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/kv"
	"github.com/openuav/buildforge/internal/metrics"
)

const keyPrefix = "buildforge:ratelimit:"

// Limiter counts requests per identity in windows anchored at the first
// request: the counter key is created with TTL equal to the window length
// and later increments preserve that TTL, so the window never slides.
type Limiter struct {
	store   kv.Store
	window  time.Duration
	allowed int
	logger  *zap.Logger
}

// NewLimiter creates a limiter allowing `allowed` requests per window.
func NewLimiter(store kv.Store, window time.Duration, allowed int, logger *zap.Logger) *Limiter {
	logger.Info("rate limiter initialised",
		zap.Duration("window", window), zap.Int("allowed_requests", allowed))
	return &Limiter{store: store, window: window, allowed: allowed, logger: logger}
}

// Admit counts one request for identity. It returns
// domain.ErrRateLimitExceeded once the allowance for the current window is
// exhausted; the counter is not incremented past the limit.
func (l *Limiter) Admit(ctx context.Context, identity string) error {
	key := keyPrefix + identity
	value, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("ratelimit: read counter: %w", err)
	}
	if !ok {
		// First request of a new window.
		return l.store.SetTTL(ctx, key, "1", l.window)
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("ratelimit: malformed counter %q: %w", value, err)
	}
	if count >= l.allowed {
		l.logger.Warn("rate limit exceeded", zap.String("identity", identity), zap.Int("count", count))
		metrics.RateLimitRejections.Inc()
		return domain.ErrRateLimitExceeded
	}
	return l.store.SetKeepTTL(ctx, key, strconv.Itoa(count+1))
}
