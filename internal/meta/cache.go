package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/kv"
	"github.com/openuav/buildforge/internal/metrics"
)

const (
	boardsKeyPrefix       = "buildforge:boards:"
	buildOptionsKeyPrefix = "buildforge:bopts:"
)

// sourceTree is the slice of the version-control client the cache needs:
// ref resolution plus the ability to pin the shared tree at a commit while
// a callback inspects it.
type sourceTree interface {
	ResolveRef(ctx context.Context, remote, ref string) (string, error)
	WithTreeAt(ctx context.Context, remote, ref string, fn func(treePath string) error) (string, error)
}

// Cache serves board and feature inventories by commit. Entries are keyed
// by resolved commit id — never by branch or tag name, which are mutable
// pointers — so a cached value is valid for its key forever; the TTL only
// bounds storage. On a hit no lock is taken and no checkout happens.
type Cache struct {
	tree   sourceTree
	source SourceMeta
	store  kv.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a Cache over the shared master tree.
func NewCache(tree sourceTree, source SourceMeta, store kv.Store, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		tree:   tree,
		source: source,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Boards returns the board list available at ref on the given remote.
func (c *Cache) Boards(ctx context.Context, remote, ref string) ([]string, error) {
	var boards []string
	err := c.lookup(ctx, remote, ref, boardsKeyPrefix, &boards, func(treePath string) (any, error) {
		return c.source.Boards(treePath)
	})
	return boards, err
}

// BuildOptions returns the feature inventory available at ref on the given
// remote.
func (c *Cache) BuildOptions(ctx context.Context, remote, ref string) ([]Feature, error) {
	var features []Feature
	err := c.lookup(ctx, remote, ref, buildOptionsKeyPrefix, &features, func(treePath string) (any, error) {
		return c.source.BuildOptions(treePath)
	})
	return features, err
}

// lookup resolves ref to its commit id, serves from cache when possible
// and otherwise checks the shared tree out at the commit (under its lock)
// to extract the value with extract.
func (c *Cache) lookup(ctx context.Context, remote, ref, keyPrefix string, out any, extract func(treePath string) (any, error)) error {
	commitID, err := c.tree.ResolveRef(ctx, remote, ref)
	if err != nil {
		return err
	}
	key := keyPrefix + commitID

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("meta: cache get %s: %w", key, err)
	}
	if ok {
		metrics.MetadataCacheHits.WithLabelValues("hit").Inc()
		return json.Unmarshal([]byte(raw), out)
	}
	metrics.MetadataCacheHits.WithLabelValues("miss").Inc()

	var value any
	if _, err := c.tree.WithTreeAt(ctx, remote, commitID, func(treePath string) error {
		value, err = extract(treePath)
		return err
	}); err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("meta: encode cache entry: %w", err)
	}
	if err := c.store.SetTTL(ctx, key, string(encoded), c.ttl); err != nil {
		return fmt.Errorf("meta: cache set %s: %w", key, err)
	}
	c.logger.Debug("cached source metadata",
		zap.String("key", key), zap.String("commit", commitID))
	return json.Unmarshal(encoded, out)
}
