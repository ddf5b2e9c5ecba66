// Package kv abstracts the shared TTL key-value store consumed by the build
// store, the metadata cache and the rate limiter. The production
// implementation is Redis; an in-memory implementation backs the tests.
package kv

import (
	"context"
	"time"
)

// Store is the minimal surface the orchestration engine needs from the
// shared store: string values with TTLs plus one FIFO list per queue name.
type Store interface {
	// Get returns the value for key. ok is false if the key does not
	// exist or has expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetTTL stores value under key with the given time-to-live.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// SetKeepTTL overwrites the value under key while preserving the
	// remaining time-to-live set earlier.
	SetKeepTTL(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys enumerates all live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Push appends value to the tail of the named queue.
	Push(ctx context.Context, queue, value string) error

	// BlockingPop removes the head of the named queue, waiting up to
	// timeout for one to appear. ok is false if the timeout elapsed.
	// A timeout of zero waits indefinitely.
	BlockingPop(ctx context.Context, queue string, timeout time.Duration) (value string, ok bool, err error)
}
