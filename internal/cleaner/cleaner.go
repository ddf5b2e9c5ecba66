// Package cleaner garbage-collects the artifact output directory by set
// difference: anything on disk that no live build claims is deleted. The
// build store is the source of truth; entries expire there first and the
// cleaner reacts here.
package cleaner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/metrics"
)

// Registry is the slice of the build manager the cleaner needs.
type Registry interface {
	ListIDs(ctx context.Context) ([]string, error)
	ArtifactsDir(id string) string
	OutDir() string
}

// Cleaner removes stale artifact directories.
type Cleaner struct {
	registry Registry
	logger   *zap.Logger
}

// New creates a Cleaner over the given registry.
func New(registry Registry, logger *zap.Logger) *Cleaner {
	return &Cleaner{registry: registry, logger: logger}
}

// Tick deletes every immediate child of the output directory that does not
// belong to a live build.
func (c *Cleaner) Tick(ctx context.Context) error {
	entries, err := os.ReadDir(c.registry.OutDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cleaner: scan output dir: %w", err)
	}

	ids, err := c.registry.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("cleaner: list builds: %w", err)
	}
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[c.registry.ArtifactsDir(id)] = struct{}{}
	}

	for _, entry := range entries {
		path := filepath.Join(c.registry.OutDir(), entry.Name())
		if _, tracked := keep[path]; tracked {
			continue
		}
		c.logger.Info("removing stale artifacts", zap.String("path", path))
		if err := os.RemoveAll(path); err != nil {
			c.logger.Error("failed to remove stale artifacts",
				zap.String("path", path), zap.Error(err))
			continue
		}
		metrics.StaleArtifactsRemoved.Inc()
	}
	return nil
}
