package meta_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/meta"
)

func writeTreeFile(t *testing.T, tree, rel, content string) {
	t.Helper()
	path := filepath.Join(tree, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Test: the board list is filtered by the exclusion globs and sorted.
func TestFileMeta_Boards(t *testing.T) {
	tree := t.TempDir()
	writeTreeFile(t, tree, "Tools/scripts/boards.json",
		`["Pixhawk6X", "fmuv3", "SITL_x86", "CubeOrange", "sitl_arm", "Durandal"]`)

	fm := meta.NewFileMeta([]string{"fmuv*", "SITL*"})
	boards, err := fm.Boards(tree)
	if err != nil {
		t.Fatalf("boards failed: %v", err)
	}

	want := []string{"CubeOrange", "Durandal", "Pixhawk6X"}
	if !reflect.DeepEqual(boards, want) {
		t.Errorf("boards = %v, want %v", boards, want)
	}
}

// Test: the feature inventory parses with defaults intact.
func TestFileMeta_BuildOptions(t *testing.T) {
	tree := t.TempDir()
	writeTreeFile(t, tree, "Tools/scripts/build_options.json",
		`[{"category":"Sensors","label":"Baro","define":"AP_BARO_ENABLED","default":1},
		  {"category":"Camera","label":"Mount","define":"HAL_MOUNT_ENABLED","default":0}]`)

	fm := meta.NewFileMeta(nil)
	features, err := fm.BuildOptions(tree)
	if err != nil {
		t.Fatalf("build options failed: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}
	if features[0].Define != "AP_BARO_ENABLED" || features[0].Default != 1 {
		t.Errorf("unexpected feature: %+v", features[0])
	}
}

// Test: missing data files surface as errors.
func TestFileMeta_MissingFiles(t *testing.T) {
	fm := meta.NewFileMeta(nil)
	if _, err := fm.Boards(t.TempDir()); err == nil {
		t.Error("expected error for missing boards file")
	}
	if _, err := fm.BuildOptions(t.TempDir()); err == nil {
		t.Error("expected error for missing build options file")
	}
}

// Test: the version catalog round-trips a remotes file.
func TestVersionCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.json")
	content := `[{
		"name": "upstream",
		"url": "https://example.org/fw.git",
		"releases": [
			{"release_type": "stable", "version_number": "4.5.1", "commit_ref": "refs/tags/v4.5.1"},
			{"release_type": "beta", "version_number": "4.6.0-beta1", "commit_ref": "refs/tags/v4.6.0-beta1"}
		]
	}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog := meta.NewVersionCatalog(path, zap.NewNop())
	if err := catalog.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	remote, ok := catalog.Remote("upstream")
	if !ok || remote.URL != "https://example.org/fw.git" {
		t.Fatalf("remote lookup failed: %+v ok=%v", remote, ok)
	}
	if _, ok := catalog.Remote("unknown"); ok {
		t.Error("expected miss for unknown remote")
	}

	release, ok := catalog.Lookup("upstream", "4.5.1")
	if !ok || release.CommitRef != "refs/tags/v4.5.1" {
		t.Fatalf("release lookup failed: %+v ok=%v", release, ok)
	}
	if _, ok := catalog.Lookup("upstream", "0.0.0"); ok {
		t.Error("expected miss for unknown version")
	}
	if got := len(catalog.Releases("upstream")); got != 2 {
		t.Errorf("expected 2 releases, got %d", got)
	}
}

// Test: a malformed remotes file fails reload and keeps the old catalog.
func TestVersionCatalog_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.json")
	if err := os.WriteFile(path, []byte(`[{"name": "ok", "url": "https://x.example"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog := meta.NewVersionCatalog(path, zap.NewNop())
	if err := catalog.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := catalog.Reload(); err == nil {
		t.Fatal("expected error for malformed file")
	}
	if _, ok := catalog.Remote("ok"); !ok {
		t.Error("expected previous catalog to survive a failed reload")
	}
}

// Test: vehicle lookups validate against the fixed lineup.
func TestVehicleCatalog(t *testing.T) {
	catalog := meta.NewVehicleCatalog(meta.DefaultVehicles())

	vehicle, err := catalog.Lookup("Copter")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if vehicle.BuildTarget != "copter" {
		t.Errorf("unexpected target: %s", vehicle.BuildTarget)
	}

	if _, err := catalog.Lookup("Submarine"); !errors.Is(err, domain.ErrUnknownVehicle) {
		t.Fatalf("expected ErrUnknownVehicle, got %v", err)
	}

	names := catalog.Names()
	if len(names) != len(meta.DefaultVehicles()) {
		t.Fatalf("expected %d names, got %d", len(meta.DefaultVehicles()), len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %v", names)
		}
	}
}
