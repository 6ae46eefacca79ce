package elem

import (
	"errors"
	"fmt"
)

var (
	// ErrFatal matches every error after which processing must stop.
	ErrFatal = errors.New("fatal")

	// ErrInconsistency marks a violated in-memory invariant. It is only
	// reachable through programmer error and callers are expected to abort,
	// not retry.
	ErrInconsistency = errors.New("internal inconsistency")
)

// InconsistencyError describes where an invariant was found broken.
type InconsistencyError struct {
	Disk   string // empty when the check is not disk-scoped
	Op     string
	Detail string
}

func (e *InconsistencyError) Error() string {
	if e.Disk == "" {
		return fmt.Sprintf("internal inconsistency in %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("internal inconsistency in %s on disk '%s': %s", e.Op, e.Disk, e.Detail)
}

func (*InconsistencyError) Is(target error) bool {
	return target == ErrInconsistency || target == ErrFatal
}

// StatError is a filesystem failure that leaves the state of a path unknown.
type StatError struct {
	Path string
	Err  error
}

func (e *StatError) Error() string {
	return fmt.Sprintf("error in stat file '%s': %v", e.Path, e.Err)
}

func (e *StatError) Unwrap() error {
	return e.Err
}

func (*StatError) Is(target error) bool {
	return target == ErrFatal
}

// Inconsistent builds an InconsistencyError with a formatted detail.
func Inconsistent(disk, op, format string, args ...any) error {
	return &InconsistencyError{Disk: disk, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err must stop processing.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
