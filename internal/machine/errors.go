package machine

import (
	"errors"
	"fmt"
)

// ErrProbeBusy is returned (possibly wrapped) by a SettleProbe when the
// device could not serve the capture right now, e.g. a frame grab was
// already in flight. It is the only probe error considered transient.
var ErrProbeBusy = errors.New("settle probe busy")

// MotionError reports a controller fault during a move or a wait.
type MotionError struct {
	Op     string // "move", "move_safe_z" or "wait"
	Target string
	Err    error
}

func (e *MotionError) Error() string {
	return fmt.Sprintf("motion %s of %s failed: %v", e.Op, e.Target, e.Err)
}

func (e *MotionError) Unwrap() error {
	return e.Err
}

// NewMotionError wraps err as a MotionError for the given operation and target.
func NewMotionError(op string, target Movable, err error) *MotionError {
	name := "<none>"
	if target != nil {
		name = target.Name()
	}
	return &MotionError{Op: op, Target: name, Err: err}
}

// IsMotionError reports whether err is or wraps a MotionError.
func IsMotionError(err error) bool {
	var me *MotionError
	return errors.As(err, &me)
}

// IsTransient reports whether a probe error may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProbeBusy)
}
