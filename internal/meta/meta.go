// Package meta answers "what can be built at this commit": board lists,
// feature flags, release versions and vehicles. Board and feature data
// live in the source tree itself and are cached by resolved commit id so
// repeated lookups never touch the working tree.
package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Feature is one firmware feature flag the tree knows about. Define is the
// identifier written into the generated board configuration.
type Feature struct {
	Category    string `json:"category"`
	Label       string `json:"label"`
	Define      string `json:"define"`
	Description string `json:"description,omitempty"`
	Default     int    `json:"default"`
}

// SourceMeta extracts the board and feature inventory from a checked-out
// source tree. Implementations parse well-known data files; the exact
// grammar belongs to the source tree, not to this service.
type SourceMeta interface {
	Boards(treePath string) ([]string, error)
	BuildOptions(treePath string) ([]Feature, error)
}

// FileMeta reads the inventory from JSON data files at fixed relative
// paths inside the tree: a plain string array for boards, an array of
// feature objects for build options.
type FileMeta struct {
	BoardsFile       string
	BuildOptionsFile string

	// ExcludeBoards filters the board list with case-insensitive glob
	// patterns (bench and simulation targets are not offered).
	ExcludeBoards []string
}

// DefaultExcludeBoards hides bench and simulation targets from the board
// list offered to clients.
var DefaultExcludeBoards = []string{"fmuv*", "SITL*"}

// NewFileMeta returns a FileMeta with the conventional file locations.
func NewFileMeta(excludeBoards []string) *FileMeta {
	return &FileMeta{
		BoardsFile:       filepath.Join("Tools", "scripts", "boards.json"),
		BuildOptionsFile: filepath.Join("Tools", "scripts", "build_options.json"),
		ExcludeBoards:    excludeBoards,
	}
}

// Boards returns the sorted, filtered board list at treePath.
func (f *FileMeta) Boards(treePath string) ([]string, error) {
	raw, err := os.ReadFile(filepath.Join(treePath, f.BoardsFile))
	if err != nil {
		return nil, fmt.Errorf("meta: read board list: %w", err)
	}
	var all []string
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("meta: parse board list: %w", err)
	}
	boards := make([]string, 0, len(all))
	for _, board := range all {
		if !f.excluded(board) {
			boards = append(boards, board)
		}
	}
	sort.Strings(boards)
	return boards, nil
}

// BuildOptions returns the feature inventory at treePath.
func (f *FileMeta) BuildOptions(treePath string) ([]Feature, error) {
	raw, err := os.ReadFile(filepath.Join(treePath, f.BuildOptionsFile))
	if err != nil {
		return nil, fmt.Errorf("meta: read build options: %w", err)
	}
	var features []Feature
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, fmt.Errorf("meta: parse build options: %w", err)
	}
	return features, nil
}

func (f *FileMeta) excluded(board string) bool {
	lower := strings.ToLower(board)
	for _, pattern := range f.ExcludeBoards {
		if ok, _ := path.Match(strings.ToLower(pattern), lower); ok {
			return true
		}
	}
	return false
}
