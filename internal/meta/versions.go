package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
)

// Release is one buildable version advertised for a remote.
type Release struct {
	ReleaseType   string `json:"release_type"`
	VersionNumber string `json:"version_number"`
	CommitRef     string `json:"commit_ref"`
	ArtifactsURL  string `json:"artifacts_url,omitempty"`
}

// RemoteSpec describes one source remote and the releases offered from it.
type RemoteSpec struct {
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Releases []Release `json:"releases"`
}

// VersionCatalog maps release names to {remote, ref} pairs, loaded from a
// remotes file on disk. The file is maintained out-of-band; the catalog is
// reloaded periodically by the task scheduler so edits show up without a
// restart.
type VersionCatalog struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	remotes []RemoteSpec
}

// NewVersionCatalog creates a catalog reading from path. Call Reload to
// populate it.
func NewVersionCatalog(path string, logger *zap.Logger) *VersionCatalog {
	return &VersionCatalog{path: path, logger: logger}
}

// Reload re-reads the remotes file, replacing the in-memory catalog.
func (v *VersionCatalog) Reload() error {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("versions: read %s: %w", v.path, err)
	}
	var remotes []RemoteSpec
	if err := json.Unmarshal(raw, &remotes); err != nil {
		return fmt.Errorf("versions: parse %s: %w", v.path, err)
	}
	for _, remote := range remotes {
		if remote.Name == "" || remote.URL == "" {
			return fmt.Errorf("versions: remote entry missing name or url in %s", v.path)
		}
	}
	v.mu.Lock()
	v.remotes = remotes
	v.mu.Unlock()
	v.logger.Info("version catalog reloaded",
		zap.String("path", v.path), zap.Int("remotes", len(remotes)))
	return nil
}

// Remotes lists all configured remotes.
func (v *VersionCatalog) Remotes() []domain.Remote {
	v.mu.RLock()
	defer v.mu.RUnlock()
	remotes := make([]domain.Remote, 0, len(v.remotes))
	for _, entry := range v.remotes {
		remotes = append(remotes, domain.Remote{Name: entry.Name, URL: entry.URL})
	}
	return remotes
}

// Remote returns the remote with the given name.
func (v *VersionCatalog) Remote(name string) (domain.Remote, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, entry := range v.remotes {
		if entry.Name == name {
			return domain.Remote{Name: entry.Name, URL: entry.URL}, true
		}
	}
	return domain.Remote{}, false
}

// Releases lists the releases offered for a remote.
func (v *VersionCatalog) Releases(remoteName string) []Release {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, entry := range v.remotes {
		if entry.Name == remoteName {
			return append([]Release(nil), entry.Releases...)
		}
	}
	return nil
}

// Lookup resolves a version number on a remote to its release entry.
func (v *VersionCatalog) Lookup(remoteName, version string) (Release, bool) {
	for _, release := range v.Releases(remoteName) {
		if release.VersionNumber == version {
			return release, true
		}
	}
	return Release{}, false
}
