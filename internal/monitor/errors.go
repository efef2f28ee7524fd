package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTarget is returned for an id that is not in the registry.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrNotChecked is returned for a registered target that no cycle has reported yet.
	ErrNotChecked = errors.New("target not checked yet")
)

// CycleError reports a failure of the cycle orchestration itself.
// Individual probe failures never produce one.
type CycleError struct {
	Seq     uint64
	CycleID string
	Err     error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d (%s): %v", e.Seq, e.CycleID, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
