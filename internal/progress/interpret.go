package progress

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/openuav/buildforge/internal/domain"
)

// stepMarker matches the toolchain's "[completed/total]" step counters.
// Digits may be padded with arbitrary non-digit characters inside the
// brackets.
var stepMarker = regexp.MustCompile(`\[\D*(\d+)\D*/\D*(\d+)\D*\]`)

// successMarker appears in the log exactly when the toolchain produced a
// flashable image.
const successMarker = "Total Flash Used"

// StepPercent estimates completion from the last step marker in the log.
// The toolchain emits several counted phases of very different length, so
// the bar is split by total step count: short early phases are noise and
// pin the bar at 1, the OS build phase (under 200 steps) covers 4% of the
// bar, and the dominant compile phase the remaining 95%.
func StepPercent(log string) int {
	matches := stepMarker.FindAllStringSubmatch(log, -1)
	if len(matches) == 0 {
		return 0
	}
	last := matches[len(matches)-1]
	completed, err := strconv.Atoi(last[1])
	if err != nil {
		return 0
	}
	total, err := strconv.Atoi(last[2])
	if err != nil || total <= 0 {
		return 0
	}
	switch {
	case total < 20:
		return 1
	case total < 200:
		return completed*4/total + 1
	default:
		return completed*95/total + 5
	}
}

// Outcome reports the terminal state encoded in a finished build's log.
// The toolchain exits zero or non-zero alike; the flash summary line is the
// only reliable success signal.
func Outcome(log string) domain.BuildState {
	if strings.Contains(log, successMarker) {
		return domain.StateSuccess
	}
	return domain.StateFailure
}
