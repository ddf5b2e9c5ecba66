package domain_test

import (
	"regexp"
	"testing"

	"github.com/openuav/buildforge/internal/domain"
)

func newTestBuild() *domain.Build {
	remote := domain.Remote{Name: "upstream", URL: "https://example.org/fw.git"}
	return domain.NewBuild("Copter", remote,
		"0123456789abcdef0123456789abcdef01234567", "Durandal",
		[]string{"B_FEATURE", "A_FEATURE"}, nil)
}

// Test: ids are <vehicle>-<board>-<32 hex digits>.
func TestBuildID_Format(t *testing.T) {
	id := newTestBuild().ID(1700000000000000000)
	pattern := regexp.MustCompile(`^Copter-Durandal-[0-9a-f]{32}$`)
	if !pattern.MatchString(id) {
		t.Errorf("unexpected id format: %s", id)
	}
}

// Test: the same content and timestamp hash identically; a different
// timestamp changes the id.
func TestBuildID_TimestampSalt(t *testing.T) {
	a := newTestBuild()
	b := newTestBuild()

	if a.ID(1) != b.ID(1) {
		t.Error("identical content and timestamp should produce identical ids")
	}
	if a.ID(1) == a.ID(2) {
		t.Error("different timestamps should produce different ids")
	}
}

// Test: the feature selection is sorted on construction so the id does not
// depend on request ordering.
func TestNewBuild_SortsFeatures(t *testing.T) {
	build := newTestBuild()
	if build.SelectedFeatures[0] != "A_FEATURE" || build.SelectedFeatures[1] != "B_FEATURE" {
		t.Errorf("features not sorted: %v", build.SelectedFeatures)
	}
}

// Test: exactly the four concluded states are terminal.
func TestBuildState_IsTerminal(t *testing.T) {
	terminal := []domain.BuildState{
		domain.StateSuccess, domain.StateFailure, domain.StateError, domain.StateTimedOut,
	}
	for _, state := range terminal {
		if !state.IsTerminal() {
			t.Errorf("%s should be terminal", state)
		}
	}
	for _, state := range []domain.BuildState{domain.StatePending, domain.StateRunning} {
		if state.IsTerminal() {
			t.Errorf("%s should not be terminal", state)
		}
	}
}
