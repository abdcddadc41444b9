// Package settle calibrates how a camera decides that an image has settled
// after a move. A Procedure runs single motion-and-capture trials; the
// Selector escalates from a cheap baseline configuration to a more robust
// one when the baseline costs too much compute time.
package settle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/telemetry"
	"github.com/steveyegge/pnpsetup/internal/types"
)

// captureRetryInitialInterval is the first backoff interval after a busy probe
const captureRetryInitialInterval = 50 * time.Millisecond

// Target describes what moves during a trial. A nil Movable makes the trial
// capture-only.
type Target struct {
	Movable  machine.Movable
	Location types.Location
	// TestMove is the linear test move distance in millimeters
	TestMove float64
}

// CaptureOnly reports whether the trial skips all motion.
func (t Target) CaptureOnly() bool {
	return t.Movable == nil
}

func (t Target) String() string {
	if t.Movable == nil {
		return "capture-only"
	}
	return fmt.Sprintf("%s %s at %s, test move %gmm", t.Movable.Kind(), t.Movable.Name(), t.Location, t.TestMove)
}

// ProcedureConfig holds the collaborators and settings of a Procedure.
type ProcedureConfig struct {
	Motion machine.MotionCoordinator // Required unless every trial is capture-only
	Probe  machine.SettleProbe       // Required

	// SettleDownDelay lets post-motion transients decay before the trial. Not measured.
	SettleDownDelay time.Duration

	// CaptureRetryMaxElapsed bounds retries of a busy probe (0 disables retries)
	CaptureRetryMaxElapsed time.Duration

	// Subject and IssueID tag recorded events (optional)
	Subject  string
	IssueID  string
	Recorder events.Recorder

	// Sleep waits for d or until ctx is done (default: timer based)
	Sleep func(ctx context.Context, d time.Duration) error
}

// Procedure runs settle measurement trials.
type Procedure struct {
	cfg   ProcedureConfig
	trial int
}

// NewProcedure creates a procedure
func NewProcedure(cfg *ProcedureConfig) (*Procedure, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Probe == nil {
		return nil, fmt.Errorf("settle probe is required")
	}
	if cfg.SettleDownDelay < 0 {
		return nil, fmt.Errorf("settle down delay cannot be negative (got %s)", cfg.SettleDownDelay)
	}
	c := *cfg
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return &Procedure{cfg: c}, nil
}

// Run performs one trial with the probe's active configuration:
//
//  1. with a movable target, move it to the nominal location at safe Z,
//     wait for stillstand, let it settle down, then move through the two
//     offset points
//  2. settle and capture, retrying a busy probe
//  3. return the target to the nominal location
//
// A settle timeout is reported in the result. Motion faults and capture
// faults abort the trial and are returned.
func (p *Procedure) Run(ctx context.Context, target Target) (types.TrialResult, error) {
	p.trial++
	result := types.TrialResult{Config: p.cfg.Probe.SettleConfig()}

	ctx, span := telemetry.Tracer(scopeName).Start(ctx, "settle.trial")
	defer span.End()
	span.SetAttributes(
		attribute.String("pnpsetup.settle.method", string(result.Config.Method)),
		attribute.Int("pnpsetup.settle.trial", p.trial),
		attribute.Bool("pnpsetup.settle.capture_only", target.CaptureOnly()),
	)

	if !target.CaptureOnly() {
		if p.cfg.Motion == nil {
			return result, fmt.Errorf("motion coordinator is required to move %s", target.Movable.Name())
		}
		if err := p.approach(ctx, target); err != nil {
			span.RecordError(err)
			return result, err
		}
		result.Moved = true
	}

	capture, err := p.capture(ctx)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("settle and capture failed: %w", err)
	}
	result.ComputeTime = capture.ComputeTime
	result.TimedOut = capture.TimedOut

	if result.Moved {
		if err := p.cfg.Motion.MoveTo(ctx, target.Movable, target.Location); err != nil {
			span.RecordError(err)
			return result, asMotionError("move", target.Movable, err)
		}
	}

	p.record(ctx, result)
	return result, nil
}

func (p *Procedure) approach(ctx context.Context, target Target) error {
	motion := p.cfg.Motion
	offset0, offset1 := OffsetPoints(target.Location, target.TestMove)

	if err := motion.MoveToSafeZ(ctx, target.Movable, target.Location); err != nil {
		return asMotionError("move_safe_z", target.Movable, err)
	}
	if err := motion.WaitForCompletion(ctx, target.Movable, types.CompletionWaitForStillstand); err != nil {
		return asMotionError("wait", target.Movable, err)
	}
	if err := p.cfg.Sleep(ctx, p.cfg.SettleDownDelay); err != nil {
		return fmt.Errorf("settle down delay interrupted: %w", err)
	}
	if err := motion.MoveTo(ctx, target.Movable, offset0); err != nil {
		return asMotionError("move", target.Movable, err)
	}
	if err := motion.MoveTo(ctx, target.Movable, offset1); err != nil {
		return asMotionError("move", target.Movable, err)
	}
	return nil
}

func (p *Procedure) capture(ctx context.Context) (machine.Capture, error) {
	probe := p.cfg.Probe
	if p.cfg.CaptureRetryMaxElapsed <= 0 {
		return probe.SettleAndCapture(ctx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = captureRetryInitialInterval
	bo.MaxElapsedTime = p.cfg.CaptureRetryMaxElapsed

	var capture machine.Capture
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		c, err := probe.SettleAndCapture(ctx)
		if err != nil {
			if machine.IsTransient(err) {
				slog.Debug("settle probe busy, retrying", "subject", p.cfg.Subject, "attempt", attempt, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		capture = c
		return nil
	}, backoff.WithContext(bo, ctx))
	return capture, err
}

func (p *Procedure) record(ctx context.Context, result types.TrialResult) {
	settleMetricsOnce.Do(initSettleMetrics)
	attrs := metric.WithAttributes(
		attribute.String("pnpsetup.settle.method", string(result.Config.Method)),
		attribute.Bool("pnpsetup.settle.timed_out", result.TimedOut),
	)
	ms := float64(result.ComputeTime) / float64(time.Millisecond)
	settleMetrics.computeTime.Record(ctx, ms, attrs)
	settleMetrics.trials.Add(ctx, 1, attrs)

	slog.Debug("settle trial completed",
		"subject", p.cfg.Subject,
		"trial", p.trial,
		"method", result.Config.Method,
		"compute_ms", ms,
		"timed_out", result.TimedOut,
		"moved", result.Moved)

	if p.cfg.Recorder == nil {
		return
	}
	msg := fmt.Sprintf("Trial %d with %s: %.1fms", p.trial, result.Config.Method, ms)
	if result.TimedOut {
		msg = fmt.Sprintf("Trial %d with %s timed out after %.1fms", p.trial, result.Config.Method, ms)
	}
	event, err := events.NewSettleTrialEvent(p.cfg.Subject, p.cfg.IssueID, msg, events.SettleTrialData{
		Trial:     p.trial,
		Method:    string(result.Config.Method),
		ComputeMs: ms,
		TimedOut:  result.TimedOut,
		Moved:     result.Moved,
	})
	if err != nil {
		slog.Warn("failed to build settle trial event", "error", err)
		return
	}
	events.Emit(ctx, p.cfg.Recorder, event)
}

// asMotionError keeps MotionErrors from the coordinator and wraps anything else.
func asMotionError(op string, target machine.Movable, err error) error {
	if machine.IsMotionError(err) {
		return err
	}
	return machine.NewMotionError(op, target, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
