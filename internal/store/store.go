// Package store persists build metadata and the FIFO build queue in the
// shared key-value store. Build entries expire after a fixed retention
// window regardless of state; callers are expected to collect results
// before expiry.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/kv"
)

const buildKeyPrefix = "buildforge:build:"

// BuildStore is the durable side of the build manager: one JSON document
// per build id plus one FIFO list used as the work queue.
type BuildStore struct {
	store  kv.Store
	queue  string
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a BuildStore writing entries with the given retention TTL and
// queueing build ids on the named list.
func New(store kv.Store, queue string, ttl time.Duration, logger *zap.Logger) *BuildStore {
	logger.Info("build store initialised",
		zap.String("queue", queue), zap.Duration("ttl", ttl))
	return &BuildStore{store: store, queue: queue, ttl: ttl, logger: logger}
}

func buildKey(id string) string {
	return buildKeyPrefix + id
}

// Insert stores a new build under id. The id is immutable once assigned;
// inserting an existing id fails with domain.ErrDuplicateBuild.
func (s *BuildStore) Insert(ctx context.Context, id string, build *domain.Build) error {
	_, exists, err := s.store.Get(ctx, buildKey(id))
	if err != nil {
		return fmt.Errorf("store: check build %s: %w", id, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBuild, id)
	}
	raw, err := json.Marshal(build)
	if err != nil {
		return fmt.Errorf("store: encode build %s: %w", id, err)
	}
	return s.store.SetTTL(ctx, buildKey(id), string(raw), s.ttl)
}

// Get returns the build stored under id.
func (s *BuildStore) Get(ctx context.Context, id string) (*domain.Build, error) {
	raw, ok, err := s.store.Get(ctx, buildKey(id))
	if err != nil {
		return nil, fmt.Errorf("store: get build %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrBuildNotFound, id)
	}
	var build domain.Build
	if err := json.Unmarshal([]byte(raw), &build); err != nil {
		return nil, fmt.Errorf("store: decode build %s: %w", id, err)
	}
	return &build, nil
}

// update applies mutate to the stored build and writes it back, preserving
// the entry's remaining TTL.
func (s *BuildStore) update(ctx context.Context, id string, mutate func(*domain.Build)) error {
	build, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(build)
	raw, err := json.Marshal(build)
	if err != nil {
		return fmt.Errorf("store: encode build %s: %w", id, err)
	}
	return s.store.SetKeepTTL(ctx, buildKey(id), string(raw))
}

// UpdateState sets the build's state.
func (s *BuildStore) UpdateState(ctx context.Context, id string, state domain.BuildState) error {
	return s.update(ctx, id, func(b *domain.Build) {
		b.Progress.State = state
	})
}

// UpdatePercent sets the build's completion percentage.
func (s *BuildStore) UpdatePercent(ctx context.Context, id string, percent int) error {
	return s.update(ctx, id, func(b *domain.Build) {
		b.Progress.Percent = percent
	})
}

// UpdateTimeStarted stamps the moment the build began running.
func (s *BuildStore) UpdateTimeStarted(ctx context.Context, id string, t time.Time) error {
	return s.update(ctx, id, func(b *domain.Build) {
		b.TimeStarted = t
	})
}

// ListIDs enumerates the ids of all live (unexpired) builds.
func (s *BuildStore) ListIDs(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx, buildKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("store: list builds: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, buildKeyPrefix))
	}
	return ids, nil
}

// Enqueue pushes a build id onto the tail of the work queue.
func (s *BuildStore) Enqueue(ctx context.Context, id string) error {
	if err := s.store.Push(ctx, s.queue, id); err != nil {
		return fmt.Errorf("store: enqueue build %s: %w", id, err)
	}
	return nil
}

// Next pops the next build id off the queue, waiting up to timeout. Queue
// entries are consumed exactly once, which gives the single worker its
// at-most-one-worker-per-build guarantee. ok is false on timeout.
func (s *BuildStore) Next(ctx context.Context, timeout time.Duration) (string, bool, error) {
	id, ok, err := s.store.BlockingPop(ctx, s.queue, timeout)
	if err != nil {
		return "", false, fmt.Errorf("store: pop queue: %w", err)
	}
	if ok {
		s.logger.Debug("popped build from queue", zap.String("build_id", id))
	}
	return id, ok, nil
}
