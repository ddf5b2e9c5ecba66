package cleaner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/cleaner"
)

type fakeRegistry struct {
	outdir string
	ids    []string
}

func (f *fakeRegistry) ListIDs(context.Context) ([]string, error) { return f.ids, nil }
func (f *fakeRegistry) OutDir() string                            { return f.outdir }
func (f *fakeRegistry) ArtifactsDir(id string) string             { return filepath.Join(f.outdir, id) }

func mkBuildDir(t *testing.T, outdir, id string) {
	t.Helper()
	dir := filepath.Join(outdir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "build.log"), []byte("log"), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Test: directories of live builds survive, everything else is removed.
func TestTick_RemovesOnlyUntracked(t *testing.T) {
	outdir := t.TempDir()
	registry := &fakeRegistry{outdir: outdir, ids: []string{"live-1", "live-2", "live-3"}}

	for _, id := range []string{"live-1", "live-2", "live-3", "stale-1", "stale-2"} {
		mkBuildDir(t, outdir, id)
	}

	c := cleaner.New(registry, zap.NewNop())
	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	entries, err := os.ReadDir(outdir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 surviving dirs, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Name() == "stale-1" || entry.Name() == "stale-2" {
			t.Errorf("stale dir %s survived", entry.Name())
		}
	}
}

// Test: a missing output directory is not an error.
func TestTick_MissingOutDir(t *testing.T) {
	registry := &fakeRegistry{outdir: filepath.Join(t.TempDir(), "nonexistent")}
	c := cleaner.New(registry, zap.NewNop())
	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("expected nil for missing dir, got %v", err)
	}
}

// Test: an empty store empties the output directory.
func TestTick_NoLiveBuilds(t *testing.T) {
	outdir := t.TempDir()
	registry := &fakeRegistry{outdir: outdir}
	mkBuildDir(t, outdir, "orphan")

	c := cleaner.New(registry, zap.NewNop())
	if err := c.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	entries, err := os.ReadDir(outdir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty outdir, got %d entries", len(entries))
	}
}
