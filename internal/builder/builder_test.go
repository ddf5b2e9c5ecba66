package builder

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/meta"
)

func testFeatures() []meta.Feature {
	return []meta.Feature{
		{Category: "Sensors", Label: "Baro", Define: "AP_BARO_ENABLED", Default: 1},
		{Category: "Camera", Label: "Mount", Define: "HAL_MOUNT_ENABLED", Default: 0},
		{Category: "Sensors", Label: "Airspeed", Define: "AP_AIRSPEED_ENABLED", Default: 1},
	}
}

// Test: every known define is first undefined, then pinned to 1 or 0 by
// selection.
func TestRenderHwDef(t *testing.T) {
	out := renderHwDef(testFeatures(), []string{"AP_BARO_ENABLED"}, nil)

	want := strings.Join([]string{
		"undef AP_AIRSPEED_ENABLED",
		"undef AP_BARO_ENABLED",
		"undef HAL_MOUNT_ENABLED",
		"define AP_AIRSPEED_ENABLED 0",
		"define AP_BARO_ENABLED 1",
		"define HAL_MOUNT_ENABLED 0",
	}, "\n") + "\n"
	if out != want {
		t.Errorf("renderHwDef mismatch:\ngot:\n%s\nwant:\n%s", out, want)
	}
}

// Test: custom defines append verbatim; an empty value emits a bare define.
func TestRenderHwDef_CustomDefines(t *testing.T) {
	custom := []domain.Define{
		{Name: "HAL_CUSTOM_THING", Value: "42"},
		{Name: "HAL_BARE_FLAG"},
	}
	out := renderHwDef(testFeatures(), nil, custom)

	if !strings.Contains(out, "define HAL_CUSTOM_THING 42\n") {
		t.Errorf("missing valued custom define:\n%s", out)
	}
	if !strings.Contains(out, "define HAL_BARE_FLAG\n") {
		t.Errorf("missing bare custom define:\n%s", out)
	}
}

// Test: a selected name that is not in the inventory is ignored rather
// than defined.
func TestRenderHwDef_UnknownSelection(t *testing.T) {
	out := renderHwDef(testFeatures(), []string{"NOT_A_REAL_DEFINE"}, nil)
	if strings.Contains(out, "NOT_A_REAL_DEFINE") {
		t.Errorf("unknown selection leaked into output:\n%s", out)
	}
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	entries := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		entries[hdr.Name] = string(content)
	}
	return entries
}

// Test: archive helpers place files under the requested prefix and skip a
// missing binaries directory.
func TestArchiveHelpers(t *testing.T) {
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "firmware.apj"), []byte("image"), 0o644); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, "build.log")
	if err := os.WriteFile(logPath, []byte("log text"), 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(dir, "out.tar.gz")
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if err := addDirToArchive(tw, binDir, "my-build"); err != nil {
		t.Fatalf("addDirToArchive failed: %v", err)
	}
	if err := addDirToArchive(tw, filepath.Join(dir, "missing"), "my-build"); err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if err := addFileToArchive(tw, logPath, filepath.Join("my-build", "build.log")); err != nil {
		t.Fatalf("addFileToArchive failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	entries := readArchive(t, archivePath)
	if entries[filepath.Join("my-build", "firmware.apj")] != "image" {
		t.Errorf("firmware entry missing or wrong: %v", entries)
	}
	if entries[filepath.Join("my-build", "build.log")] != "log text" {
		t.Errorf("log entry missing or wrong: %v", entries)
	}
}

// Test: the waf wrapper reports binaries under build/<board>/bin.
func TestWafToolchain_BinDir(t *testing.T) {
	tc := NewWafToolchain("", "")
	inv := Invocation{SourceDir: "/tmp/src", Board: "Durandal"}
	want := filepath.Join("/tmp/src", "build", "Durandal", "bin")
	if got := tc.BinDir(inv); got != want {
		t.Errorf("BinDir = %s, want %s", got, want)
	}
}
