// Package manager ties admission control, the build store and the artifact
// directory layout together behind one facade used by the API handlers, the
// worker and the background reconcilers.
package manager

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/metrics"
	"github.com/openuav/buildforge/internal/store"
)

const (
	logFileName = "build.log"
	hwDefName   = "extra_hwdef.dat"
	archiveExt  = ".tar.gz"
)

// Admitter decides whether a client identity may submit another build.
type Admitter interface {
	Admit(ctx context.Context, identity string) error
}

// BuildManager owns build submission and lookup plus the on-disk artifact
// layout: <outdir>/<build_id>/{build.log, <build_id>.tar.gz, extra_hwdef.dat}.
type BuildManager struct {
	store   *store.BuildStore
	limiter Admitter
	outdir  string
	logger  *zap.Logger
}

// New creates a BuildManager writing artifacts under outdir.
func New(buildStore *store.BuildStore, limiter Admitter, outdir string, logger *zap.Logger) *BuildManager {
	logger.Info("build manager initialised", zap.String("outdir", outdir))
	return &BuildManager{
		store:   buildStore,
		limiter: limiter,
		outdir:  outdir,
		logger:  logger,
	}
}

// Submit admits the client, assigns a build id and queues the build.
// The id is derived from the build content and the submission time in
// nanoseconds, so identical requests still get distinct ids.
func (m *BuildManager) Submit(ctx context.Context, build *domain.Build, clientIdentity string) (string, error) {
	if err := m.limiter.Admit(ctx, clientIdentity); err != nil {
		return "", err
	}
	id := build.ID(time.Now().UnixNano())
	if err := m.store.Insert(ctx, id, build); err != nil {
		return "", err
	}
	if err := m.store.Enqueue(ctx, id); err != nil {
		return "", err
	}
	metrics.BuildsSubmitted.Inc()
	m.logger.Info("build submitted",
		zap.String("build_id", id),
		zap.String("vehicle", build.VehicleID),
		zap.String("board", build.BoardID),
		zap.String("commit", build.CommitHash))
	return id, nil
}

// Next blocks until a build id is queued or timeout elapses.
func (m *BuildManager) Next(ctx context.Context, timeout time.Duration) (string, bool, error) {
	return m.store.Next(ctx, timeout)
}

// Get returns the build stored under id.
func (m *BuildManager) Get(ctx context.Context, id string) (*domain.Build, error) {
	return m.store.Get(ctx, id)
}

// ListIDs enumerates all live build ids.
func (m *BuildManager) ListIDs(ctx context.Context) ([]string, error) {
	return m.store.ListIDs(ctx)
}

// List returns snapshots of all live builds. Builds expiring between the
// enumeration and the read are skipped.
func (m *BuildManager) List(ctx context.Context) ([]domain.Snapshot, error) {
	ids, err := m.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]domain.Snapshot, 0, len(ids))
	for _, id := range ids {
		build, err := m.store.Get(ctx, id)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, domain.Snapshot{BuildID: id, Build: *build})
	}
	return snapshots, nil
}

// UpdateState sets the state of the build with the given id.
func (m *BuildManager) UpdateState(ctx context.Context, id string, state domain.BuildState) error {
	return m.store.UpdateState(ctx, id, state)
}

// UpdatePercent sets the completion percentage of the build.
func (m *BuildManager) UpdatePercent(ctx context.Context, id string, percent int) error {
	return m.store.UpdatePercent(ctx, id, percent)
}

// UpdateTimeStarted stamps when the build began running.
func (m *BuildManager) UpdateTimeStarted(ctx context.Context, id string, t time.Time) error {
	return m.store.UpdateTimeStarted(ctx, id, t)
}

// OutDir returns the root of the artifact tree.
func (m *BuildManager) OutDir() string {
	return m.outdir
}

// ArtifactsDir returns the artifact directory for a build id. The directory
// name is the build id itself, which is what lets the cleaner reconcile the
// filesystem against the store.
func (m *BuildManager) ArtifactsDir(id string) string {
	return filepath.Join(m.outdir, id)
}

// LogPath returns the path of the build's log file.
func (m *BuildManager) LogPath(id string) string {
	return filepath.Join(m.ArtifactsDir(id), logFileName)
}

// ArchivePath returns the path of the build's packaged archive.
func (m *BuildManager) ArchivePath(id string) string {
	return filepath.Join(m.ArtifactsDir(id), id+archiveExt)
}

// HwDefPath returns the path of the generated board configuration copy
// stored alongside the other artifacts.
func (m *BuildManager) HwDefPath(id string) string {
	return filepath.Join(m.ArtifactsDir(id), hwDefName)
}
