package domain

import "errors"

var (
	// ErrBuildNotFound is returned when no build exists for an id.
	ErrBuildNotFound = errors.New("build not found")

	// ErrDuplicateBuild is returned when a build id is inserted twice.
	ErrDuplicateBuild = errors.New("build id already exists")

	// ErrRateLimitExceeded is returned when a client exhausts its
	// submission allowance for the current window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded, try again later")

	// ErrUnknownVehicle is returned when a submission names a vehicle
	// that is not in the vehicle catalog.
	ErrUnknownVehicle = errors.New("unknown vehicle")

	// ErrUnknownVersion is returned when a submission names a version
	// that is not in the version catalog.
	ErrUnknownVersion = errors.New("unknown version")

	// ErrArtifactNotReady is returned when an artifact is requested for
	// a build that has not finished successfully.
	ErrArtifactNotReady = errors.New("build artifact not ready")
)
