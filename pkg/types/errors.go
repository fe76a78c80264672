package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeGone reports a cgroup removed between enumeration and measurement.
	ErrNodeGone = errors.New("cgroup no longer exists")
	// ErrMetricUnavailable reports a per-record metric that could not be obtained.
	ErrMetricUnavailable = errors.New("metric unavailable")
)

// TraversalError aborts a walk: the root is unreadable or a parent could not be resolved.
type TraversalError struct {
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("traversing %s: %v", e.Path, e.Err)
}

func (e *TraversalError) Unwrap() error { return e.Err }

// CollaboratorError wraps a failure of an external command or control file read.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a per-entity race that callers drop silently.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNodeGone) || errors.Is(err, ErrMetricUnavailable)
}
