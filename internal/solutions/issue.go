package solutions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrDismissed is returned when changing the state of a dismissed issue.
	// Dismissed issues are terminal until detection runs again.
	ErrDismissed = errors.New("issue was dismissed")

	// ErrInvalidTransition is returned for transitions the state machine does not allow
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoAutomaticFix is returned when solving an informational issue
	ErrNoAutomaticFix = errors.New("issue has no automatic fix")
)

// Fix is the behavior of an Issue, composed from closures instead of
// subclassing. Closures capture the subject's prior configuration when the
// issue is constructed so Revert can restore it.
type Fix struct {
	// Activate runs right before Apply, e.g. to focus the affected tool for
	// the operator or to check a physical precondition. A failure prevents
	// the transition. Optional.
	Activate func(ctx context.Context) error

	// Apply performs the fix. Nil marks an informational issue.
	Apply func(ctx context.Context) error

	// Revert restores the configuration captured at construction time. It is
	// also used to roll back a partially applied fix. Optional.
	Revert func(ctx context.Context) error

	// Describe returns the extended description for the given state. Optional.
	Describe func(state State) string
}

// TransitionError reports a failed state transition. The issue keeps its
// previous state; RestoreErr is set if rolling back a partial fix failed too.
type TransitionError struct {
	IssueID    string
	From       State
	To         State
	Err        error
	RestoreErr error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("issue %s: %s -> %s failed: %v", e.IssueID, e.From, e.To, e.Err)
	if e.RestoreErr != nil {
		msg += fmt.Sprintf(" (restoring previous configuration also failed: %v)", e.RestoreErr)
	}
	return msg
}

func (e *TransitionError) Unwrap() []error {
	if e.RestoreErr != nil {
		return []error{e.Err, e.RestoreErr}
	}
	return []error{e.Err}
}

// PreviousIntact reports whether the subject's previous configuration is known to be intact.
func (e *TransitionError) PreviousIntact() bool {
	return e.RestoreErr == nil
}

// Issue is one detected problem with a proposed, reversible fix.
type Issue struct {
	ID          string
	Subject     string
	Description string
	Solution    string
	Severity    Severity
	URI         string

	fix Fix

	// transition serializes SetState calls; mu guards state and inFlight so
	// the state can be read while a long fix runs.
	transition sync.Mutex
	mu         sync.RWMutex
	state      State
	inFlight   bool
}

// NewIssue creates an open issue for subject.
func NewIssue(subject, description, solution string, severity Severity, uri string, fix Fix) *Issue {
	return &Issue{
		ID:          uuid.New().String(),
		Subject:     subject,
		Description: description,
		Solution:    solution,
		Severity:    severity,
		URI:         uri,
		fix:         fix,
		state:       StateOpen,
	}
}

// State returns the current state
func (i *Issue) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// InFlight reports whether a transition is currently running.
func (i *Issue) InFlight() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.inFlight
}

// CanSolve reports whether the issue has an automatic fix.
func (i *Issue) CanSolve() bool {
	return i.fix.Apply != nil
}

// ExtendedDescription returns the long description, which may depend on the state.
func (i *Issue) ExtendedDescription() string {
	if i.fix.Describe == nil {
		return i.Description
	}
	return i.fix.Describe(i.State())
}

// SetState transitions the issue to target, running the fix side effects.
//
// Transitions:
//   - current == target: no-op
//   - Dismissed -> anything: ErrDismissed
//   - -> Solved: Activate, then Apply; on Apply failure Revert rolls back
//   - Solved -> Open: Revert
//   - Open -> Dismissed: no side effects
//   - Solved -> Dismissed: ErrInvalidTransition (revert first)
//
// On failure the state is unchanged and a *TransitionError is returned.
func (i *Issue) SetState(ctx context.Context, target State) error {
	if !target.IsValid() {
		return fmt.Errorf("invalid target state: %q", target)
	}

	i.transition.Lock()
	defer i.transition.Unlock()

	current := i.State()
	if current == target {
		return nil
	}
	if current == StateDismissed {
		return i.fail(current, target, ErrDismissed, nil)
	}

	switch target {
	case StateSolved:
		if i.fix.Apply == nil {
			return i.fail(current, target, ErrNoAutomaticFix, nil)
		}
		i.setInFlight(true)
		defer i.setInFlight(false)

		if i.fix.Activate != nil {
			if err := i.fix.Activate(ctx); err != nil {
				return i.fail(current, target, fmt.Errorf("activate: %w", err), nil)
			}
		}
		if err := i.fix.Apply(ctx); err != nil {
			var restoreErr error
			if i.fix.Revert != nil {
				restoreErr = i.fix.Revert(ctx)
			}
			return i.fail(current, target, err, restoreErr)
		}

	case StateOpen:
		if i.fix.Revert != nil {
			i.setInFlight(true)
			defer i.setInFlight(false)
			if err := i.fix.Revert(ctx); err != nil {
				return i.fail(current, target, fmt.Errorf("revert: %w", err), nil)
			}
		}

	case StateDismissed:
		if current == StateSolved {
			return i.fail(current, target, ErrInvalidTransition, nil)
		}
	}

	i.mu.Lock()
	i.state = target
	i.mu.Unlock()
	return nil
}

func (i *Issue) fail(from, to State, err, restoreErr error) error {
	return &TransitionError{
		IssueID:    i.ID,
		From:       from,
		To:         to,
		Err:        err,
		RestoreErr: restoreErr,
	}
}

func (i *Issue) setInFlight(v bool) {
	i.mu.Lock()
	i.inFlight = v
	i.mu.Unlock()
}

func (i *Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s (%s)", i.Severity, i.Subject, i.Description, i.State())
}
