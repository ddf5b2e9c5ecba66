package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/kv/memory"
	"github.com/openuav/buildforge/internal/ratelimit"
)

// Test: the configured allowance admits exactly that many requests.
func TestAdmit_AllowanceExhausted(t *testing.T) {
	store := memory.NewStore()
	limiter := ratelimit.NewLimiter(store, time.Hour, 3, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Admit(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	err := limiter.Admit(ctx, "10.0.0.1")
	if !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}

// Test: identities are counted independently.
func TestAdmit_PerIdentity(t *testing.T) {
	store := memory.NewStore()
	limiter := ratelimit.NewLimiter(store, time.Hour, 1, zap.NewNop())
	ctx := context.Background()

	if err := limiter.Admit(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limiter.Admit(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("second identity should be admitted, got %v", err)
	}
	if err := limiter.Admit(ctx, "10.0.0.1"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded for first identity, got %v", err)
	}
}

// Test: the window is anchored at the first request and a fresh window
// resets the count.
func TestAdmit_WindowExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStoreWithClock(func() time.Time { return now })
	limiter := ratelimit.NewLimiter(store, time.Hour, 2, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Admit(ctx, "client"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := limiter.Admit(ctx, "client"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	// Half a window later the counter still stands.
	now = now.Add(30 * time.Minute)
	if err := limiter.Admit(ctx, "client"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded mid-window, got %v", err)
	}

	// Past the window the counter has expired.
	now = now.Add(31 * time.Minute)
	if err := limiter.Admit(ctx, "client"); err != nil {
		t.Fatalf("expected admission in fresh window, got %v", err)
	}
}
