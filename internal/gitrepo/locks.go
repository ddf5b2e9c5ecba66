package gitrepo

import (
	"path/filepath"
	"sync"
)

// LockRegistry hands out one mutex per canonical working-tree path. A git
// working tree is a single mutable filesystem resource shared by every
// logical checkout issued against it, so the lock is keyed by path rather
// than by caller. The registry is process-local: it serializes access only
// within one process, which requires that exactly one process mutates a
// given working tree.
//
// A registry is constructed once in main and injected into every component
// that opens repositories, so all of them share the same lock per path.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// ForPath returns the lock guarding the working tree at path, creating it
// on first use. Paths are canonicalized so that relative and absolute
// spellings of the same tree share one lock.
func (r *LockRegistry) ForPath(path string) *sync.Mutex {
	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = filepath.Clean(path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[canonical]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[canonical] = lock
	}
	return lock
}
