package game

import "errors"

var (
	// ErrUnavailable means the root pointer or a link derived from it did
	// not resolve. Not a fault: the target simply has no level loaded.
	ErrUnavailable = errors.New("no game loaded")

	// ErrBadPhase means the requested action is not legal in the target's
	// current UI state. The action was not attempted.
	ErrBadPhase = errors.New("action not legal in current phase")

	// ErrUnsupported marks operations the bridge deliberately does not
	// implement.
	ErrUnsupported = errors.New("operation not supported")

	// ErrNotFound means no live entity record matched the request.
	ErrNotFound = errors.New("no matching entity")
)
