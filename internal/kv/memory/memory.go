// Package memory implements kv.Store in process memory. It exists for tests
// and single-node development setups; expiry honours an injectable clock so
// TTL behaviour can be exercised without sleeping.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openuav/buildforge/internal/kv"
)

var _ kv.Store = (*Store)(nil)

const queueCapacity = 4096

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Store is an in-memory kv.Store.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	data   map[string]entry
	queues map[string]chan string
}

// NewStore creates an empty store using the wall clock.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates an empty store reading time from now.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:    now,
		data:   make(map[string]entry),
		queues: make(map[string]chan string),
	}
}

func (s *Store) live(e entry) bool {
	return e.expiresAt.IsZero() || s.now().Before(e.expiresAt)
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || !s.live(e) {
		delete(s.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}
	s.data[key] = entry{value: value, expiresAt: expires}
	return nil
}

func (s *Store) SetKeepTTL(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.data[key]
	if ok && s.live(prev) {
		s.data[key] = entry{value: value, expiresAt: prev.expiresAt}
		return nil
	}
	s.data[key] = entry{value: value}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) && s.live(e) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) queue(name string) chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[name]
	if !ok {
		q = make(chan string, queueCapacity)
		s.queues[name] = q
	}
	return q
}

func (s *Store) Push(_ context.Context, queue, value string) error {
	s.queue(queue) <- value
	return nil
}

func (s *Store) BlockingPop(ctx context.Context, queue string, timeout time.Duration) (string, bool, error) {
	q := s.queue(queue)
	if timeout <= 0 {
		select {
		case v := <-q:
			return v, true, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-q:
		return v, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
