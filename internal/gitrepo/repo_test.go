package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

const (
	testCommit      = "0123456789abcdef0123456789abcdef01234567"
	testOtherCommit = "fedcba9876543210fedcba9876543210fedcba98"
)

// fakeGit records every invocation and answers from a handler func.
type fakeGit struct {
	mu    sync.Mutex
	calls [][]string
	do    func(dir string, args []string) ([]byte, error)
}

func (f *fakeGit) run(_ context.Context, dir string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.do == nil {
		return nil, nil
	}
	return f.do(dir, args)
}

func (f *fakeGit) recorded() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func newTestRepo(path string, fake *fakeGit, locks *LockRegistry) *Repo {
	if locks == nil {
		locks = NewLockRegistry()
	}
	return &Repo{
		path:   path,
		lock:   locks.ForPath(path),
		locks:  locks,
		run:    fake.run,
		logger: zap.NewNop(),
	}
}

// remoteAware answers `git remote` with the given names and defers the rest.
func remoteAware(names string, next func(dir string, args []string) ([]byte, error)) func(string, []string) ([]byte, error) {
	return func(dir string, args []string) ([]byte, error) {
		if args[0] == "remote" && len(args) == 1 {
			return []byte(names), nil
		}
		if next == nil {
			return nil, nil
		}
		return next(dir, args)
	}
}

func TestResolveRef_CommitIDPassthrough(t *testing.T) {
	fake := &fakeGit{do: remoteAware("origin\n", nil)}
	repo := newTestRepo("/trees/master", fake, nil)

	got, err := repo.ResolveRef(context.Background(), "origin", testCommit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testCommit {
		t.Errorf("expected commit id returned unchanged, got %q", got)
	}
	// No ls-remote round trip for an already-resolved value.
	for _, call := range fake.recorded() {
		if call[0] == "ls-remote" {
			t.Error("ls-remote should not run for a commit id")
		}
	}
}

func TestResolveRef_InvalidFormat(t *testing.T) {
	fake := &fakeGit{do: remoteAware("origin\n", nil)}
	repo := newTestRepo("/trees/master", fake, nil)

	for _, ref := range []string{"main", "refs/main", "refs/pulls/42", "v4.5.1"} {
		_, err := repo.ResolveRef(context.Background(), "origin", ref)
		if !errors.Is(err, ErrInvalidRefFormat) {
			t.Errorf("ref %q: expected ErrInvalidRefFormat, got %v", ref, err)
		}
	}
}

func TestResolveRef_ExactMatch(t *testing.T) {
	listing := testCommit + "\trefs/heads/master\n" +
		testOtherCommit + "\trefs/tags/v4.5.1\n"
	fake := &fakeGit{do: remoteAware("origin\n", func(dir string, args []string) ([]byte, error) {
		if args[0] == "ls-remote" {
			return []byte(listing), nil
		}
		return nil, nil
	})}
	repo := newTestRepo("/trees/master", fake, nil)

	got, err := repo.ResolveRef(context.Background(), "origin", "refs/tags/v4.5.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testOtherCommit {
		t.Errorf("expected %q, got %q", testOtherCommit, got)
	}

	_, err = repo.ResolveRef(context.Background(), "origin", "refs/heads/missing")
	if !errors.Is(err, ErrCommitNotFound) {
		t.Errorf("expected ErrCommitNotFound for unadvertised ref, got %v", err)
	}
}

func TestResolveRef_UnknownRemote(t *testing.T) {
	fake := &fakeGit{do: remoteAware("origin\n", nil)}
	repo := newTestRepo("/trees/master", fake, nil)

	_, err := repo.ResolveRef(context.Background(), "vendor", testCommit)
	if !errors.Is(err, ErrRemoteNotFound) {
		t.Errorf("expected ErrRemoteNotFound, got %v", err)
	}
}

// The commit is absent locally and after the first fetch, and appears only
// after the forced refetch. EnsureCommit must succeed without error.
func TestEnsureCommit_RefetchRecovers(t *testing.T) {
	var fetches int
	fake := &fakeGit{}
	fake.do = remoteAware("origin\n", func(dir string, args []string) ([]byte, error) {
		switch args[0] {
		case "cat-file":
			if fetches < 2 {
				return nil, fmt.Errorf("git cat-file: missing")
			}
			return nil, nil
		case "fetch":
			fetches++
			return nil, nil
		}
		return nil, nil
	})
	repo := newTestRepo("/trees/master", fake, nil)

	if err := repo.EnsureCommit(context.Background(), "origin", testCommit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", fetches)
	}
	var refetched bool
	for _, call := range fake.recorded() {
		if call[0] == "fetch" && strings.Contains(strings.Join(call, " "), "--refetch") {
			refetched = true
		}
	}
	if !refetched {
		t.Error("second fetch attempt should pass --refetch")
	}
}

func TestEnsureCommit_NotFoundAfterRetries(t *testing.T) {
	var fetches int
	fake := &fakeGit{}
	fake.do = remoteAware("origin\n", func(dir string, args []string) ([]byte, error) {
		switch args[0] {
		case "cat-file":
			return nil, fmt.Errorf("git cat-file: missing")
		case "fetch":
			fetches++
		}
		return nil, nil
	})
	repo := newTestRepo("/trees/master", fake, nil)

	err := repo.EnsureCommit(context.Background(), "origin", testCommit)
	if !errors.Is(err, ErrCommitNotFound) {
		t.Fatalf("expected ErrCommitNotFound, got %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected exactly 2 fetch attempts, got %d", fetches)
	}
}

func TestEnsureCommit_SkipsFetchWhenPresent(t *testing.T) {
	fake := &fakeGit{do: remoteAware("origin\n", nil)}
	repo := newTestRepo("/trees/master", fake, nil)

	if err := repo.EnsureCommit(context.Background(), "origin", testCommit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, call := range fake.recorded() {
		if call[0] == "fetch" {
			t.Error("no fetch expected when the commit is already local")
		}
	}
}

func TestAddRemote_Duplicate(t *testing.T) {
	fake := &fakeGit{do: remoteAware("origin\nvendor\n", nil)}
	repo := newTestRepo("/trees/master", fake, nil)

	err := repo.AddRemote(context.Background(), "vendor", "https://example.com/fw.git")
	if !errors.Is(err, ErrDuplicateRemote) {
		t.Errorf("expected ErrDuplicateRemote, got %v", err)
	}
	if err := repo.AddRemote(context.Background(), "upstream", "https://example.com/fw.git"); err != nil {
		t.Errorf("unexpected error adding new remote: %v", err)
	}
}

func TestShallowCloneAtCommit_TempBranchRecipe(t *testing.T) {
	fake := &fakeGit{do: remoteAware("origin\n", nil)}
	repo := newTestRepo("/trees/master", fake, nil)

	clone, err := repo.ShallowCloneAtCommit(context.Background(), "origin", testCommit, "/work/b1/src")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clone.Path() != "/work/b1/src" {
		t.Errorf("clone path = %q", clone.Path())
	}

	var branch string
	var cloned, deleted bool
	for _, call := range fake.recorded() {
		joined := strings.Join(call, " ")
		switch {
		case call[0] == "branch" && len(call) == 3 && call[2] == testCommit:
			branch = call[1]
		case call[0] == "clone":
			if branch == "" {
				t.Error("clone ran before the temporary branch existed")
			}
			if !strings.Contains(joined, "--branch="+branch) ||
				!strings.Contains(joined, "--single-branch") ||
				!strings.Contains(joined, "--shallow-submodules") {
				t.Errorf("clone flags missing in %q", joined)
			}
			cloned = true
		case call[0] == "branch" && len(call) == 3 && call[1] == "-D":
			if call[2] != branch {
				t.Errorf("deleted branch %q, created %q", call[2], branch)
			}
			deleted = true
		}
	}
	if branch == "" || !cloned || !deleted {
		t.Errorf("recipe incomplete: branch=%q cloned=%v deleted=%v", branch, cloned, deleted)
	}
}

// Checkout-family calls against one tree must serialize; against two
// distinct trees they must be free to overlap.
func TestCheckout_LockDiscipline(t *testing.T) {
	var active, maxActive atomic.Int32
	slowGit := func(dir string, args []string) ([]byte, error) {
		cur := active.Add(1)
		for {
			seen := maxActive.Load()
			if cur <= seen || maxActive.CompareAndSwap(seen, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	}

	locks := NewLockRegistry()
	same := &fakeGit{do: slowGit}
	repo := newTestRepo("/trees/master", same, locks)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Checkout(context.Background(), testCommit, true)
		}()
	}
	wg.Wait()
	if got := maxActive.Load(); got != 1 {
		t.Errorf("same-tree checkouts interleaved: max concurrency %d", got)
	}

	// Distinct trees share nothing and may overlap. Retry a few times so
	// an unlucky scheduling order cannot fail the test.
	other := newTestRepo("/trees/other", &fakeGit{do: slowGit}, locks)
	var overlapped bool
	for attempt := 0; attempt < 5 && !overlapped; attempt++ {
		maxActive.Store(0)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_ = repo.Checkout(context.Background(), testCommit, true)
		}()
		go func() {
			defer wg.Done()
			<-start
			_ = other.Checkout(context.Background(), testOtherCommit, true)
		}()
		close(start)
		wg.Wait()
		overlapped = maxActive.Load() >= 2
	}
	if !overlapped {
		t.Error("distinct-tree checkouts never overlapped")
	}
}

func TestLockRegistry_CanonicalizesPaths(t *testing.T) {
	locks := NewLockRegistry()
	a := locks.ForPath("/trees/master")
	b := locks.ForPath("/trees/master/")
	if a != b {
		t.Error("expected one lock for equivalent spellings of a path")
	}
	if locks.ForPath("/trees/other") == a {
		t.Error("expected distinct locks for distinct paths")
	}
}
