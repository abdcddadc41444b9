package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/solutions"
)

// StateChange is the outcome of an asynchronous issue transition.
type StateChange struct {
	Issue *solutions.Issue
	From  solutions.State
	To    solutions.State
	Err   error

	// PreviousIntact is false only when a failed fix could not restore the
	// previous configuration either.
	PreviousIntact bool
}

// Failed reports whether the transition failed
func (c StateChange) Failed() bool {
	return c.Err != nil
}

// ApplyState submits issue.SetState(target) to r. The state change is
// recorded to rec (optional) and handed to notify (optional) on the worker
// goroutine, whether it succeeded or not.
func ApplyState(ctx context.Context, r *Runner, issue *solutions.Issue, target solutions.State, rec events.Recorder, notify func(StateChange)) (*Future[StateChange], error) {
	if issue == nil {
		return nil, fmt.Errorf("issue is required")
	}

	var change StateChange
	op := func(ctx context.Context) (StateChange, error) {
		change = StateChange{
			Issue:          issue,
			From:           issue.State(),
			To:             target,
			PreviousIntact: true,
		}
		err := issue.SetState(ctx, target)
		if err != nil {
			change.Err = err
			var te *solutions.TransitionError
			if errors.As(err, &te) {
				change.PreviousIntact = te.PreviousIntact()
			}
		}
		return change, err
	}

	report := func(c StateChange) error {
		recordStateChange(ctx, rec, c)
		if notify != nil {
			notify(c)
		}
		return nil
	}

	onSuccess := func(c StateChange) error { return report(c) }
	onFailure := func(err error) error {
		if change.Issue == nil {
			// op panicked before the change was captured
			change = StateChange{Issue: issue, From: issue.State(), To: target, PreviousIntact: false}
		}
		change.Err = err
		return report(change)
	}

	return Submit(ctx, r, op, onSuccess, onFailure)
}

func recordStateChange(ctx context.Context, rec events.Recorder, c StateChange) {
	data := events.IssueStateData{
		From:           string(c.From),
		To:             string(c.To),
		PreviousIntact: c.PreviousIntact,
	}
	msg := fmt.Sprintf("%s: %s -> %s", c.Issue.Description, c.From, c.To)
	if c.Err != nil {
		data.Error = c.Err.Error()
		msg = fmt.Sprintf("%s: %s -> %s failed", c.Issue.Description, c.From, c.To)
		slog.Warn("issue transition failed", "issue", c.Issue.ID, "subject", c.Issue.Subject, "to", c.To, "error", c.Err, "previous_intact", c.PreviousIntact)
	} else {
		slog.Debug("issue transitioned", "issue", c.Issue.ID, "subject", c.Issue.Subject, "from", c.From, "to", c.To)
	}

	if rec == nil {
		return
	}
	event, err := events.NewIssueStateEvent(c.Issue.Subject, c.Issue.ID, msg, data)
	if err != nil {
		slog.Warn("failed to build issue state event", "error", err)
		return
	}
	events.Emit(ctx, rec, event)
}
