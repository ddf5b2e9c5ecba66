// Package progress reconciles stored build state against what the builder
// has actually written to disk: the log file drives PENDING→RUNNING and the
// percent estimate, the packaged archive marks conclusion, and a configured
// ceiling turns stuck builds into TIMED_OUT.
package progress

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/metrics"
)

// Tracker is the slice of the build manager the reconciler needs.
type Tracker interface {
	ListIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Build, error)
	UpdateState(ctx context.Context, id string, state domain.BuildState) error
	UpdatePercent(ctx context.Context, id string, percent int) error
	UpdateTimeStarted(ctx context.Context, id string, t time.Time) error
	LogPath(id string) string
	ArchivePath(id string) string
}

// Updater advances build progress for every live build on each Tick.
type Updater struct {
	tracker Tracker
	ceiling time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewUpdater creates an Updater that times out builds running longer than
// ceiling.
func NewUpdater(tracker Tracker, ceiling time.Duration, logger *zap.Logger) *Updater {
	return &Updater{
		tracker: tracker,
		ceiling: ceiling,
		logger:  logger,
		now:     time.Now,
	}
}

// Tick refreshes every live build. A failure on one build is logged and
// does not stop the others from being refreshed.
func (u *Updater) Tick(ctx context.Context) error {
	ids, err := u.tracker.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("progress: list builds: %w", err)
	}
	for _, id := range ids {
		if err := u.refresh(ctx, id); err != nil {
			u.logger.Error("failed to refresh build progress",
				zap.String("build_id", id), zap.Error(err))
		}
	}
	return nil
}

func (u *Updater) refresh(ctx context.Context, id string) error {
	build, err := u.tracker.Get(ctx, id)
	if err != nil {
		// Expired between enumeration and read.
		return nil
	}

	switch build.Progress.State {
	case domain.StatePending:
		// The builder creates the log file the moment it picks the
		// build up.
		if _, err := os.Stat(u.tracker.LogPath(id)); err == nil {
			if err := u.tracker.UpdateState(ctx, id, domain.StateRunning); err != nil {
				return err
			}
			return u.tracker.UpdateTimeStarted(ctx, id, u.now())
		}
		return nil
	case domain.StateRunning:
		return u.refreshRunning(ctx, id, build)
	default:
		// Terminal states are never touched again.
		return nil
	}
}

func (u *Updater) refreshRunning(ctx context.Context, id string, build *domain.Build) error {
	if !build.TimeStarted.IsZero() && u.now().Sub(build.TimeStarted) > u.ceiling {
		u.logger.Warn("build exceeded time ceiling",
			zap.String("build_id", id), zap.Duration("ceiling", u.ceiling))
		return u.conclude(ctx, id, build, domain.StateTimedOut)
	}

	logRaw, err := os.ReadFile(u.tracker.LogPath(id))
	if err != nil {
		// A running build without a log means the artifacts were
		// pulled out from under us.
		u.logger.Error("log file missing for running build", zap.String("build_id", id))
		return u.conclude(ctx, id, build, domain.StateError)
	}
	log := string(logRaw)

	// The builder ships the archive after the final toolchain step,
	// success or not; its presence is the conclusion signal.
	if _, err := os.Stat(u.tracker.ArchivePath(id)); err != nil {
		percent := StepPercent(log)
		if percent > build.Progress.Percent {
			return u.tracker.UpdatePercent(ctx, id, percent)
		}
		return nil
	}

	outcome := Outcome(log)
	if err := u.conclude(ctx, id, build, outcome); err != nil {
		return err
	}
	if outcome == domain.StateSuccess {
		return u.tracker.UpdatePercent(ctx, id, 100)
	}
	return nil
}

func (u *Updater) conclude(ctx context.Context, id string, build *domain.Build, state domain.BuildState) error {
	if err := u.tracker.UpdateState(ctx, id, state); err != nil {
		return err
	}
	metrics.BuildsConcluded.WithLabelValues(string(state)).Inc()
	if !build.TimeStarted.IsZero() {
		metrics.BuildDuration.Observe(u.now().Sub(build.TimeStarted).Seconds())
	}
	u.logger.Info("build concluded",
		zap.String("build_id", id), zap.String("state", string(state)))
	return nil
}
