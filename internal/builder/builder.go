// Package builder is the worker side of the service: it pulls queued build
// ids, materialises a private source clone at the requested commit, renders
// the board configuration, drives the toolchain and packages whatever came
// out. Builds run strictly one at a time; the queue provides the ordering.
package builder

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/gitrepo"
	"github.com/openuav/buildforge/internal/manager"
	"github.com/openuav/buildforge/internal/meta"
	"github.com/openuav/buildforge/internal/metrics"
)

// Builder consumes the build queue and runs builds to completion.
type Builder struct {
	mgr          *manager.BuildManager
	master       *gitrepo.Repo
	source       meta.SourceMeta
	vehicles     *meta.VehicleCatalog
	toolchain    Toolchain
	workdir      string
	pollTimeout  time.Duration
	buildTimeout time.Duration
	logger       *zap.Logger
}

// New creates a Builder running builds out of scratch space under workdir.
// buildTimeout bounds the toolchain steps of a single build; pollTimeout
// bounds each wait on the queue so shutdown is responsive.
func New(mgr *manager.BuildManager, master *gitrepo.Repo, source meta.SourceMeta,
	vehicles *meta.VehicleCatalog, toolchain Toolchain,
	workdir string, pollTimeout, buildTimeout time.Duration, logger *zap.Logger) *Builder {
	return &Builder{
		mgr:          mgr,
		master:       master,
		source:       source,
		vehicles:     vehicles,
		toolchain:    toolchain,
		workdir:      workdir,
		pollTimeout:  pollTimeout,
		buildTimeout: buildTimeout,
		logger:       logger,
	}
}

// Run processes queued builds until ctx is cancelled.
func (b *Builder) Run(ctx context.Context) error {
	b.logger.Info("builder started", zap.String("workdir", b.workdir))
	idleSince := time.Now()
	for {
		id, ok, err := b.mgr.Next(ctx, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("builder stopping")
				return nil
			}
			b.logger.Error("failed to poll build queue", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		metrics.QueueWait.Observe(time.Since(idleSince).Seconds())
		b.runOne(ctx, id)
		idleSince = time.Now()
	}
}

// runOne shields the consume loop from panics in a single build.
func (b *Builder) runOne(ctx context.Context, id string) {
	metrics.BuildsActive.Inc()
	defer metrics.BuildsActive.Dec()
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("build panicked",
				zap.String("build_id", id), zap.Any("panic", rec))
			b.concludeError(ctx, id)
		}
	}()

	b.logger.Info("build dequeued", zap.String("build_id", id))
	if err := b.process(ctx, id); err != nil {
		b.logger.Error("build failed with infrastructure error",
			zap.String("build_id", id), zap.Error(err))
		b.concludeError(ctx, id)
	}
}

func (b *Builder) concludeError(ctx context.Context, id string) {
	if err := b.mgr.UpdateState(ctx, id, domain.StateError); err != nil {
		b.logger.Error("failed to record build error",
			zap.String("build_id", id), zap.Error(err))
		return
	}
	metrics.BuildsConcluded.WithLabelValues(string(domain.StateError)).Inc()
}

// process runs one build end to end. Toolchain failures are not errors
// here: their output lands in the log and the packaged archive concludes
// the build, with the outcome read back off the log. An error return means
// the machinery itself broke and the build must be marked ERROR.
func (b *Builder) process(ctx context.Context, id string) error {
	build, err := b.mgr.Get(ctx, id)
	if err != nil {
		return err
	}
	vehicle, err := b.vehicles.Lookup(build.VehicleID)
	if err != nil {
		return err
	}

	scratch := filepath.Join(b.workdir, id)
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			b.logger.Warn("failed to remove build scratch space",
				zap.String("build_id", id), zap.Error(err))
		}
	}()

	if err := os.MkdirAll(b.mgr.ArtifactsDir(id), 0o755); err != nil {
		return fmt.Errorf("builder: create artifacts dir: %w", err)
	}
	logFile, err := os.Create(b.mgr.LogPath(id))
	if err != nil {
		return fmt.Errorf("builder: create build log: %w", err)
	}
	defer logFile.Close()
	b.writeHeader(logFile, id, build)

	if err := b.ensureRemote(ctx, build.Remote); err != nil {
		return err
	}

	srcDir := filepath.Join(scratch, "src")
	clone, err := b.master.ShallowCloneAtCommit(ctx, build.Remote.Name, build.CommitHash, srcDir)
	if err != nil {
		fmt.Fprintf(logFile, "failed to clone sources at %s: %v\n", build.CommitHash, err)
		return err
	}
	if err := b.pinClone(ctx, clone, build.CommitHash); err != nil {
		fmt.Fprintf(logFile, "failed to prepare source tree: %v\n", err)
		return err
	}

	features, err := b.source.BuildOptions(srcDir)
	if err != nil {
		return err
	}
	hwDefPath := b.mgr.HwDefPath(id)
	hwDef := renderHwDef(features, build.SelectedFeatures, build.CustomDefines)
	if err := os.WriteFile(hwDefPath, []byte(hwDef), 0o644); err != nil {
		return fmt.Errorf("builder: write board configuration: %w", err)
	}

	inv := Invocation{
		SourceDir:     srcDir,
		Board:         build.BoardID,
		VehicleTarget: vehicle.BuildTarget,
		HwDefPath:     hwDefPath,
		Log:           logFile,
	}
	b.compile(ctx, id, inv)

	if err := b.packageArtifacts(id, b.toolchain.BinDir(inv)); err != nil {
		return err
	}
	b.logger.Info("build packaged", zap.String("build_id", id))
	return nil
}

// ensureRemote makes the build's remote known to the master tree, updating
// the URL when the name is already configured.
func (b *Builder) ensureRemote(ctx context.Context, remote domain.Remote) error {
	err := b.master.AddRemote(ctx, remote.Name, remote.URL)
	if errors.Is(err, gitrepo.ErrDuplicateRemote) {
		return b.master.SetRemoteURL(ctx, remote.Name, remote.URL)
	}
	return err
}

// pinClone forces the fresh clone to exactly the requested commit and
// brings its submodules in line.
func (b *Builder) pinClone(ctx context.Context, clone *gitrepo.Repo, commitID string) error {
	if err := clone.Checkout(ctx, commitID, true); err != nil {
		return err
	}
	if err := clone.Reset(ctx, commitID, true); err != nil {
		return err
	}
	if err := clone.Clean(ctx); err != nil {
		return err
	}
	return clone.SubmoduleUpdate(ctx, true, true)
}

// compile runs the three toolchain steps. Step failures are written to the
// log and stop the remaining steps; the build still gets packaged so the
// log and configuration are retrievable.
func (b *Builder) compile(ctx context.Context, id string, inv Invocation) {
	ctx, cancel := context.WithTimeout(ctx, b.buildTimeout)
	defer cancel()

	steps := []struct {
		marker string
		run    func(context.Context, Invocation) error
	}{
		{"Running configure\n", b.toolchain.Configure},
		{"Running clean\n", b.toolchain.Clean},
		{"Running build\n", b.toolchain.Build},
	}
	for _, step := range steps {
		io.WriteString(inv.Log, step.marker)
		if err := step.run(ctx, inv); err != nil {
			fmt.Fprintf(inv.Log, "step failed: %v\n", err)
			b.logger.Warn("toolchain step failed",
				zap.String("build_id", id), zap.Error(err))
			return
		}
	}
	io.WriteString(inv.Log, "done build\n")
}

func (b *Builder) writeHeader(w io.Writer, id string, build *domain.Build) {
	fmt.Fprintf(w, "Build %s\n", id)
	fmt.Fprintf(w, "Vehicle: %s\n", build.VehicleID)
	fmt.Fprintf(w, "Board: %s\n", build.BoardID)
	fmt.Fprintf(w, "Remote: %s (%s)\n", build.Remote.Name, build.Remote.URL)
	fmt.Fprintf(w, "Commit: %s\n", build.CommitHash)
	fmt.Fprintf(w, "Selected features: %s\n", strings.Join(build.SelectedFeatures, ", "))
	fmt.Fprintf(w, "Time: %s\n\n", build.TimeCreated.Format(time.RFC3339))
}

// renderHwDef produces the extra board configuration handed to the
// toolchain: every known feature is undefined first, then pinned to 1 or 0
// depending on selection, then any raw custom defines are appended.
// Selected names with no matching inventory entry are ignored.
func renderHwDef(features []meta.Feature, selected []string, custom []domain.Define) string {
	defines := make([]string, 0, len(features))
	for _, feature := range features {
		defines = append(defines, feature.Define)
	}
	sort.Strings(defines)

	selectedSet := make(map[string]bool, len(selected))
	for _, name := range selected {
		selectedSet[name] = true
	}

	var sb strings.Builder
	for _, define := range defines {
		fmt.Fprintf(&sb, "undef %s\n", define)
	}
	for _, define := range defines {
		if selectedSet[define] {
			fmt.Fprintf(&sb, "define %s 1\n", define)
		} else {
			fmt.Fprintf(&sb, "define %s 0\n", define)
		}
	}
	for _, def := range custom {
		if def.Value == "" {
			fmt.Fprintf(&sb, "define %s\n", def.Name)
		} else {
			fmt.Fprintf(&sb, "define %s %s\n", def.Name, def.Value)
		}
	}
	return sb.String()
}

// packageArtifacts writes the build archive: the binaries the toolchain
// produced (if any) plus the log and the board configuration, all under a
// top-level directory named after the build id. The archive is written to a
// temporary name and renamed into place, because its presence is what marks
// the build as concluded.
func (b *Builder) packageArtifacts(id, binDir string) error {
	archivePath := b.mgr.ArchivePath(id)
	tmpPath := archivePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("builder: create archive: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if err := addDirToArchive(tw, binDir, id); err != nil {
		return err
	}
	for _, path := range []string{b.mgr.LogPath(id), b.mgr.HwDefPath(id)} {
		if err := addFileToArchive(tw, path, filepath.Join(id, filepath.Base(path))); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("builder: finalise archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("builder: finalise archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("builder: finalise archive: %w", err)
	}
	return os.Rename(tmpPath, archivePath)
}

// addDirToArchive adds every regular file under dir. A missing dir is not
// an error; failed builds have no binaries.
func addDirToArchive(tw *tar.Writer, dir, arcPrefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("builder: read binaries dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := addFileToArchive(tw, path, filepath.Join(arcPrefix, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path, arcName string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("builder: stat %s: %w", path, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = arcName
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("builder: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("builder: archive %s: %w", path, err)
	}
	return nil
}
