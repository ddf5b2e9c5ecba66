package builder

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Invocation carries everything one toolchain step needs: where the source
// lives, what to build and where the combined output stream goes.
type Invocation struct {
	SourceDir     string
	Board         string
	VehicleTarget string
	HwDefPath     string
	Log           io.Writer
}

// Toolchain compiles firmware from a checked-out source tree. The three
// steps mirror the underlying build system; each streams its output to
// Invocation.Log.
type Toolchain interface {
	Configure(ctx context.Context, inv Invocation) error
	Clean(ctx context.Context, inv Invocation) error
	Build(ctx context.Context, inv Invocation) error
	// BinDir returns where the build step leaves its binaries.
	BinDir(inv Invocation) string
}

// WafToolchain drives the waf build script shipped inside the source tree.
type WafToolchain struct {
	// Script is the build entry point relative to the source dir.
	Script string
	// CompilerPath, when set, is prepended to PATH so a pinned
	// cross-compiler wins over whatever the host has installed.
	CompilerPath string
	// CacheDir, when set, points the compiler cache at shared storage so
	// repeat builds of the same sources are fast.
	CacheDir string
}

// NewWafToolchain returns a WafToolchain with the conventional script name.
func NewWafToolchain(compilerPath, cacheDir string) *WafToolchain {
	return &WafToolchain{
		Script:       "./waf",
		CompilerPath: compilerPath,
		CacheDir:     cacheDir,
	}
}

func (w *WafToolchain) command(ctx context.Context, inv Invocation, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "python3", append([]string{w.Script}, args...)...)
	cmd.Dir = inv.SourceDir
	cmd.Stdout = inv.Log
	cmd.Stderr = inv.Log
	env := os.Environ()
	if w.CacheDir != "" {
		env = append(env, "CCACHE_DIR="+w.CacheDir)
	}
	if w.CompilerPath != "" {
		env = append(env, "PATH="+w.CompilerPath+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	cmd.Env = env
	return cmd
}

func (w *WafToolchain) Configure(ctx context.Context, inv Invocation) error {
	return w.command(ctx, inv, "configure",
		"--board", inv.Board,
		"--extra-hwdef", inv.HwDefPath).Run()
}

func (w *WafToolchain) Clean(ctx context.Context, inv Invocation) error {
	return w.command(ctx, inv, "clean").Run()
}

func (w *WafToolchain) Build(ctx context.Context, inv Invocation) error {
	return w.command(ctx, inv, inv.VehicleTarget).Run()
}

func (w *WafToolchain) BinDir(inv Invocation) string {
	return filepath.Join(inv.SourceDir, "build", inv.Board, "bin")
}
