// Package gitrepo wraps the git command-line tool for the build service.
// Every working tree is guarded by a per-path lock from a LockRegistry so
// that checkout-family operations against the same tree never interleave,
// while operations against distinct trees run concurrently.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	commitIDPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)
	refNamePattern  = regexp.MustCompile(`^refs/(heads|tags)/.+$`)
)

// runner executes a git command in dir and returns its combined output.
// It is a field on Repo so tests can substitute a fake.
type runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

func gitRun(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", args[0], err, bytes.TrimSpace(out))
	}
	return out, nil
}

// Repo is a handle on one local git working tree.
type Repo struct {
	path   string
	lock   *sync.Mutex
	locks  *LockRegistry
	run    runner
	logger *zap.Logger
}

// Open returns a handle on the working tree at path, validating that the
// path actually contains a git repository.
func Open(ctx context.Context, path string, locks *LockRegistry, logger *zap.Logger) (*Repo, error) {
	r := &Repo{
		path:   path,
		lock:   locks.ForPath(path),
		locks:  locks,
		run:    gitRun,
		logger: logger,
	}
	ok, err := r.isRepository(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNonRepositoryPath, path)
	}
	return r, nil
}

// Clone clones source into dest and returns a handle on the result.
func Clone(ctx context.Context, source, dest string, locks *LockRegistry, logger *zap.Logger) (*Repo, error) {
	logger.Info("cloning repository", zap.String("source", source), zap.String("dest", dest))
	if _, err := gitRun(ctx, "", "clone", source, dest); err != nil {
		return nil, err
	}
	return Open(ctx, dest, locks, logger)
}

// CloneIfNeeded opens the repository at dest if one exists, cloning source
// there otherwise. Used to provision the shared master tree at startup.
func CloneIfNeeded(ctx context.Context, source, dest string, locks *LockRegistry, logger *zap.Logger) (*Repo, error) {
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return Open(ctx, dest, locks, logger)
	}
	return Clone(ctx, source, dest, locks, logger)
}

// Path returns the working tree path of the repository.
func (r *Repo) Path() string {
	return r.path
}

func (r *Repo) isRepository(ctx context.Context) (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrNonRepositoryPath, r.path)
	}
	if !info.IsDir() {
		return false, nil
	}
	_, err = r.run(ctx, r.path, "rev-parse", "--is-inside-work-tree")
	return err == nil, nil
}

func (r *Repo) remotes(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, r.path, "remote")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (r *Repo) hasRemote(ctx context.Context, remote string) (bool, error) {
	names, err := r.remotes(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == remote {
			return true, nil
		}
	}
	return false, nil
}

// hasCommit reports whether the commit object is present locally.
func (r *Repo) hasCommit(ctx context.Context, commitID string) bool {
	_, err := r.run(ctx, r.path, "cat-file", "-e", commitID+"^{commit}")
	return err == nil
}

// AddRemote configures a new remote, failing if the name is taken.
func (r *Repo) AddRemote(ctx context.Context, remote, url string) error {
	exists, err := r.hasRemote(ctx, remote)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRemote, remote)
	}
	_, err = r.run(ctx, r.path, "remote", "add", remote, url)
	return err
}

// SetRemoteURL updates the URL of an existing remote.
func (r *Repo) SetRemoteURL(ctx context.Context, remote, url string) error {
	exists, err := r.hasRemote(ctx, remote)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, remote)
	}
	_, err = r.run(ctx, r.path, "remote", "set-url", remote, url)
	return err
}

// FetchOptions controls a fetch from one remote.
type FetchOptions struct {
	Force   bool
	Tags    bool
	Refetch bool
}

// Fetch fetches from the named remote. Submodules are never recursed here;
// per-build clones update their own submodules.
func (r *Repo) Fetch(ctx context.Context, remote string, opts FetchOptions) error {
	args := []string{"fetch", remote}
	if opts.Force {
		args = append(args, "--force")
	}
	if opts.Tags {
		args = append(args, "--tags")
	}
	if opts.Refetch {
		args = append(args, "--refetch")
	}
	args = append(args, "--no-recurse-submodules")
	_, err := r.run(ctx, r.path, args...)
	return err
}

// ResolveRef resolves ref to a commit id against the named remote. A value
// that already is a commit id is returned unchanged; anything else must be
// of the form refs/{heads|tags}/<name> and is matched exactly against the
// remote's advertised refs. Branch and tag names are mutable pointers, so
// everything downstream works on the resolved immutable commit id.
func (r *Repo) ResolveRef(ctx context.Context, remote, ref string) (string, error) {
	exists, err := r.hasRemote(ctx, remote)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrRemoteNotFound, remote)
	}
	if commitIDPattern.MatchString(ref) {
		return ref, nil
	}
	if !refNamePattern.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRefFormat, ref)
	}
	out, err := r.run(ctx, r.path, "ls-remote", remote)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		commitID, name, found := strings.Cut(strings.TrimSpace(line), "\t")
		if found && name == ref {
			return commitID, nil
		}
	}
	return "", fmt.Errorf("%w: ref %q not advertised by remote %q", ErrCommitNotFound, ref, remote)
}

// EnsureCommit makes sure commitID is available locally, fetching from the
// remote if needed. Exactly two fetch attempts are made: a forced fetch
// with tags, then a full refetch to cover shallow-history edge cases.
func (r *Repo) EnsureCommit(ctx context.Context, remote, commitID string) error {
	exists, err := r.hasRemote(ctx, remote)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, remote)
	}
	if !commitIDPattern.MatchString(commitID) {
		return fmt.Errorf("%w: %q is not a commit id", ErrInvalidRefFormat, commitID)
	}
	if r.hasCommit(ctx, commitID) {
		return nil
	}
	if err := r.Fetch(ctx, remote, FetchOptions{Force: true, Tags: true}); err != nil {
		return err
	}
	if r.hasCommit(ctx, commitID) {
		return nil
	}
	r.logger.Warn("commit missing after fetch, refetching",
		zap.String("remote", remote), zap.String("commit", commitID))
	if err := r.Fetch(ctx, remote, FetchOptions{Force: true, Tags: true, Refetch: true}); err != nil {
		return err
	}
	if r.hasCommit(ctx, commitID) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCommitNotFound, commitID)
}

func (r *Repo) checkoutLocked(ctx context.Context, commitID string, force bool) error {
	args := []string{"checkout", commitID}
	if force {
		args = append(args, "-f")
	}
	_, err := r.run(ctx, r.path, args...)
	return err
}

func (r *Repo) resetLocked(ctx context.Context, commitID string, hard bool) error {
	args := []string{"reset", commitID}
	if hard {
		args = append(args, "--hard")
	}
	_, err := r.run(ctx, r.path, args...)
	return err
}

func (r *Repo) cleanLocked(ctx context.Context) error {
	_, err := r.run(ctx, r.path, "clean", "-xdff")
	return err
}

// Checkout checks out the given commit, holding the working-tree lock for
// the duration of the operation.
func (r *Repo) Checkout(ctx context.Context, commitID string, force bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.checkoutLocked(ctx, commitID, force)
}

// Reset resets the tree to the given commit under the working-tree lock.
func (r *Repo) Reset(ctx context.Context, commitID string, hard bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.resetLocked(ctx, commitID, hard)
}

// Clean removes untracked files and directories under the working-tree lock.
func (r *Repo) Clean(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.cleanLocked(ctx)
}

// CheckoutAt resolves ref against the remote, ensures the commit is
// available, then forces the working tree to exactly that commit:
// checkout -f, hard reset and a recursive clean under one lock
// acquisition. It returns the resolved commit id.
func (r *Repo) CheckoutAt(ctx context.Context, remote, ref string) (string, error) {
	return r.WithTreeAt(ctx, remote, ref, nil)
}

// WithTreeAt is CheckoutAt plus a callback: fn runs while the working-tree
// lock is still held, so the tree cannot move under it. Callers that need
// to read files out of the tree at a specific commit use this instead of
// checking out and reading in two steps.
func (r *Repo) WithTreeAt(ctx context.Context, remote, ref string, fn func(treePath string) error) (string, error) {
	commitID, err := r.ResolveRef(ctx, remote, ref)
	if err != nil {
		return "", err
	}
	if err := r.EnsureCommit(ctx, remote, commitID); err != nil {
		return "", err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.checkoutLocked(ctx, commitID, true); err != nil {
		return "", err
	}
	if err := r.resetLocked(ctx, commitID, true); err != nil {
		return "", err
	}
	if err := r.cleanLocked(ctx); err != nil {
		return "", err
	}
	if fn != nil {
		if err := fn(r.path); err != nil {
			return "", err
		}
	}
	return commitID, nil
}

// SubmoduleUpdate initializes and updates the tree's submodules under the
// working-tree lock.
func (r *Repo) SubmoduleUpdate(ctx context.Context, recursive, force bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	args := []string{"submodule", "update", "--init"}
	if recursive {
		args = append(args, "--recursive")
	}
	if force {
		args = append(args, "--force")
	}
	_, err := r.run(ctx, r.path, args...)
	return err
}

// ShallowCloneAtCommit extracts the state of commitID into a fresh clone at
// dest without disturbing this working tree beyond its ref namespace. The
// clone primitive only accepts branch or tag names for single-branch
// clones, so a uniquely-named temporary branch is pointed at the commit,
// cloned, and deleted again. Cloning the commit id rather than the caller's
// ref also prevents a ref resolving against the wrong remote.
//
// The source tree lock is held for the whole recipe.
func (r *Repo) ShallowCloneAtCommit(ctx context.Context, remote, commitID, dest string) (*Repo, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.EnsureCommit(ctx, remote, commitID); err != nil {
		return nil, err
	}

	branch := "clone-" + uuid.NewString()
	if _, err := r.run(ctx, r.path, "branch", branch, commitID); err != nil {
		return nil, err
	}
	defer func() {
		if _, err := r.run(ctx, r.path, "branch", "-D", branch); err != nil {
			r.logger.Warn("failed to delete temporary clone branch",
				zap.String("branch", branch), zap.Error(err))
		}
	}()

	r.logger.Info("shallow cloning at commit",
		zap.String("commit", commitID), zap.String("dest", dest))
	_, err := r.run(ctx, "", "clone", r.path, dest,
		"--branch="+branch, "--single-branch",
		"--recurse-submodules", "--shallow-submodules")
	if err != nil {
		return nil, err
	}

	clone := &Repo{
		path:   dest,
		lock:   r.locks.ForPath(dest),
		locks:  r.locks,
		run:    r.run,
		logger: r.logger,
	}
	return clone, nil
}
