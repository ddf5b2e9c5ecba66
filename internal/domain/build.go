package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// BuildState represents the lifecycle state of a firmware build.
type BuildState string

const (
	StatePending  BuildState = "PENDING"
	StateRunning  BuildState = "RUNNING"
	StateSuccess  BuildState = "SUCCESS"
	StateFailure  BuildState = "FAILURE"
	StateError    BuildState = "ERROR"
	StateTimedOut BuildState = "TIMED_OUT"
)

// IsTerminal returns true if the state represents a final state.
// Terminal states never change again.
func (s BuildState) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailure, StateError, StateTimedOut:
		return true
	}
	return false
}

// Remote identifies a source repository remote by name and URL.
type Remote struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Define is a raw firmware define appended to the generated board
// configuration. An empty Value emits a bare define directive.
type Define struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Progress tracks how far along a build is.
type Progress struct {
	State   BuildState `json:"state"`
	Percent int        `json:"percent"`
}

// Build holds all metadata for one firmware build request.
type Build struct {
	VehicleID        string    `json:"vehicle_id"`
	Remote           Remote    `json:"remote"`
	CommitHash       string    `json:"commit_hash"`
	BoardID          string    `json:"board_id"`
	SelectedFeatures []string  `json:"selected_features"`
	CustomDefines    []Define  `json:"custom_defines,omitempty"`
	Progress         Progress  `json:"progress"`
	TimeCreated      time.Time `json:"time_created"`
	TimeStarted      time.Time `json:"time_started"`
}

// NewBuild constructs a Build in the PENDING state with percent 0.
func NewBuild(vehicle string, remote Remote, commitHash, board string, features []string, defines []Define) *Build {
	sorted := append([]string(nil), features...)
	sort.Strings(sorted)
	return &Build{
		VehicleID:        vehicle,
		Remote:           remote,
		CommitHash:       commitHash,
		BoardID:          board,
		SelectedFeatures: sorted,
		CustomDefines:    defines,
		Progress:         Progress{State: StatePending, Percent: 0},
		TimeCreated:      time.Now().UTC(),
	}
}

// ID derives the build id from the build content and the given submission
// time in nanoseconds. Two submissions with identical content but different
// timestamps produce distinct ids; collisions are accepted as practically
// impossible within the TTL-bounded retention window.
func (b *Build) ID(submittedNanos int64) string {
	sum := md5.Sum(fmt.Appendf(nil, "%s/%s@%s board=%s features=%v defines=%v-%d",
		b.Remote.Name, b.VehicleID, b.CommitHash, b.BoardID,
		b.SelectedFeatures, b.CustomDefines, submittedNanos))
	return fmt.Sprintf("%s-%s-%s", b.VehicleID, b.BoardID, hex.EncodeToString(sum[:]))
}

// Snapshot is the externally visible view of a build, keyed by its id.
type Snapshot struct {
	BuildID string `json:"build_id"`
	Build
}
