package gitrepo

import "errors"

var (
	// ErrNonRepositoryPath is returned when a path does not contain a
	// git working tree.
	ErrNonRepositoryPath = errors.New("path is not a git repository")

	// ErrRemoteNotFound is returned when an operation names a remote
	// that is not configured on the repository.
	ErrRemoteNotFound = errors.New("remote not found")

	// ErrCommitNotFound is returned when a commit cannot be resolved or
	// fetched after the bounded retry sequence.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrDuplicateRemote is returned by AddRemote when the remote name
	// already exists.
	ErrDuplicateRemote = errors.New("remote already exists")

	// ErrInvalidRefFormat is returned when a ref is neither a commit id
	// nor of the form refs/{heads|tags}/<name>.
	ErrInvalidRefFormat = errors.New("ref format is invalid")
)
