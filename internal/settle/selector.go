package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/pnpsetup/internal/config"
	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/telemetry"
	"github.com/steveyegge/pnpsetup/internal/types"
)

// HistoryRecorder stores calibration results. Implemented by the SQLite store.
type HistoryRecorder interface {
	RecordCalibration(ctx context.Context, result *types.CalibrationResult) error
}

// SelectorConfig holds the selector settings and optional sinks.
type SelectorConfig struct {
	Settings config.SettleCalibrationConfig

	Recorder events.Recorder // Optional
	History  HistoryRecorder // Optional

	// Sleep is passed to every Procedure (optional, for tests)
	Sleep func(ctx context.Context, d time.Duration) error
}

// Selector picks the cheapest settle configuration that works for a camera.
type Selector struct {
	cfg    SelectorConfig
	motion machine.MotionCoordinator

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewSelector creates a selector moving through motion.
func NewSelector(motion machine.MotionCoordinator, cfg *SelectorConfig) (*Selector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settle calibration settings: %w", err)
	}
	return &Selector{
		cfg:    *cfg,
		motion: motion,
		locks:  make(map[string]*semaphore.Weighted),
	}, nil
}

// Settings returns the calibration settings in use.
func (s *Selector) Settings() config.SettleCalibrationConfig {
	return s.cfg.Settings
}

func (s *Selector) lockFor(camera string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[camera]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.locks[camera] = sem
	}
	return sem
}

// Calibrate selects and commits a settle configuration for cam:
//
//  1. derive the baseline (motion detection) from the wanted resolution
//  2. run a trial with it
//  3. if its compute time exceeds the acceptable budget, switch to maximum
//     difference inside a circular mask and run a second trial
//
// The last configuration tried stays active, even when the second trial is
// over budget. On any error the camera's previous configuration is restored
// and the error is returned. issueID tags recorded events and may be empty.
func (s *Selector) Calibrate(ctx context.Context, cam machine.Camera, target Target, issueID string) (*types.CalibrationResult, error) {
	if cam == nil {
		return nil, fmt.Errorf("camera is required")
	}
	sem := s.lockFor(cam.ID())
	if !sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %s", ErrCalibrationInProgress, cam.Name())
	}
	defer sem.Release(1)

	settings := s.cfg.Settings
	scale, ok := cam.UnitsPerPixel()
	if !ok {
		scale = types.Location{}
	}
	wantedPixelRes, err := WantedPixelResolution(settings.WantedResolutionMm, scale.X)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			ce.Camera = cam.Name()
		}
		s.emit(ctx, events.EventTypeCalibrationFailed, cam, issueID, fmt.Sprintf("Cannot calibrate %s: %v", cam.Name(), err),
			events.CalibrationData{Error: err.Error()})
		settleMetricsOnce.Do(initSettleMetrics)
		settleMetrics.calibrations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "configuration_error")))
		return nil, err
	}

	ctx, span := telemetry.Tracer(scopeName).Start(ctx, "settle.calibrate")
	defer span.End()
	span.SetAttributes(attribute.String("pnpsetup.camera", cam.Name()))

	prior := cam.SettleConfig()
	result := &types.CalibrationResult{Camera: cam.Name(), StartedAt: time.Now()}

	proc, err := NewProcedure(&ProcedureConfig{
		Motion:                 s.motion,
		Probe:                  cam,
		SettleDownDelay:        settings.SettleDownDelay,
		CaptureRetryMaxElapsed: settings.CaptureRetryMaxElapsed,
		Subject:                cam.Name(),
		IssueID:                issueID,
		Recorder:               s.cfg.Recorder,
		Sleep:                  s.cfg.Sleep,
	})
	if err != nil {
		return nil, err
	}

	baseline := BaselineConfig(wantedPixelRes, settings.ZeroKnowledgeSettleTime)
	baseline.FixedTime = prior.FixedTime

	s.emit(ctx, events.EventTypeCalibrationStarted, cam, issueID,
		fmt.Sprintf("Calibrating %s (%s)", cam.Name(), target),
		events.CalibrationData{Method: string(baseline.Method), BudgetMs: ms(settings.AcceptableComputeTime), GaussianBlur: baseline.GaussianBlur})
	slog.Debug("settle calibration started", "camera", cam.Name(), "target", target.String(),
		"wanted_pixel_resolution", wantedPixelRes, "blur", baseline.GaussianBlur)

	final, err := s.runTiers(ctx, cam, proc, target, baseline, result, issueID)
	if err != nil {
		span.RecordError(err)
		return nil, s.fail(ctx, cam, prior, issueID, err)
	}

	last := result.Trials[len(result.Trials)-1]
	result.Config = final
	result.ComputeTime = last.ComputeTime
	result.Passed = last.Passed()
	result.CompletedAt = time.Now()

	settleMetricsOnce.Do(initSettleMetrics)
	settleMetrics.calibrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "completed"),
		attribute.String("pnpsetup.settle.method", string(final.Method)),
	))

	msg := fmt.Sprintf("Committed %s for %s: %dms", final.Method, cam.Name(), result.ComputeMilliseconds())
	if !result.Passed {
		msg = fmt.Sprintf("Committed %s for %s, but the last trial timed out", final.Method, cam.Name())
	}
	s.emit(ctx, events.EventTypeCalibrationCompleted, cam, issueID, msg, calibrationData(result, settings))

	if s.cfg.History != nil {
		if err := s.cfg.History.RecordCalibration(ctx, result); err != nil {
			slog.Warn("failed to record calibration history", "camera", cam.Name(), "error", err)
		}
	}
	return result, nil
}

// runTiers runs the baseline trial and, when over budget, the escalated one.
// It returns the configuration left active on the camera.
func (s *Selector) runTiers(ctx context.Context, cam machine.Camera, proc *Procedure, target Target, baseline types.SettleConfig, result *types.CalibrationResult, issueID string) (types.SettleConfig, error) {
	settings := s.cfg.Settings

	if err := cam.SetSettleConfig(baseline); err != nil {
		return baseline, fmt.Errorf("failed to apply baseline settle config: %w", err)
	}
	trial, err := proc.Run(ctx, target)
	if err != nil {
		return baseline, fmt.Errorf("baseline trial failed: %w", err)
	}
	result.Trials = append(result.Trials, trial)

	if trial.ComputeTime <= settings.AcceptableComputeTime {
		return baseline, nil
	}

	escalated := EscalatedConfig(baseline, settings.MaximumPixelDiff)
	result.Escalated = true
	settleMetricsOnce.Do(initSettleMetrics)
	settleMetrics.escalations.Add(ctx, 1)
	s.emit(ctx, events.EventTypeCalibrationEscalated, cam, issueID,
		fmt.Sprintf("Baseline took %.1fms (budget %s), trying %s", ms(trial.ComputeTime), settings.AcceptableComputeTime, escalated.Method),
		events.CalibrationData{Method: string(escalated.Method), ComputeMs: ms(trial.ComputeTime), BudgetMs: ms(settings.AcceptableComputeTime), Escalated: true, Trials: 1, GaussianBlur: escalated.GaussianBlur})

	if err := cam.SetSettleConfig(escalated); err != nil {
		return escalated, fmt.Errorf("failed to apply escalated settle config: %w", err)
	}
	trial, err = proc.Run(ctx, target)
	if err != nil {
		return escalated, fmt.Errorf("escalated trial failed: %w", err)
	}
	result.Trials = append(result.Trials, trial)
	return escalated, nil
}

// fail restores the previous configuration and reports the failure.
func (s *Selector) fail(ctx context.Context, cam machine.Camera, prior types.SettleConfig, issueID string, err error) error {
	if restoreErr := cam.SetSettleConfig(prior); restoreErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to restore previous settle config: %w", restoreErr))
	}
	slog.Warn("settle calibration failed", "camera", cam.Name(), "error", err)

	settleMetricsOnce.Do(initSettleMetrics)
	settleMetrics.calibrations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	s.emit(ctx, events.EventTypeCalibrationFailed, cam, issueID,
		fmt.Sprintf("Calibration of %s failed, previous settle configuration restored", cam.Name()),
		events.CalibrationData{Method: string(prior.Method), Error: err.Error()})
	return err
}

func (s *Selector) emit(ctx context.Context, eventType events.EventType, cam machine.Camera, issueID, msg string, data events.CalibrationData) {
	if s.cfg.Recorder == nil {
		return
	}
	event, err := events.NewCalibrationEvent(eventType, cam.Name(), issueID, msg, data)
	if err != nil {
		slog.Warn("failed to build calibration event", "error", err)
		return
	}
	events.Emit(ctx, s.cfg.Recorder, event)
}

func calibrationData(r *types.CalibrationResult, settings config.SettleCalibrationConfig) events.CalibrationData {
	return events.CalibrationData{
		Method:       string(r.Config.Method),
		ComputeMs:    ms(r.ComputeTime),
		BudgetMs:     ms(settings.AcceptableComputeTime),
		Passed:       r.Passed,
		Escalated:    r.Escalated,
		Trials:       len(r.Trials),
		GaussianBlur: r.Config.GaussianBlur,
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ResolveTarget works out what to move for a calibration of cam. A camera
// on a head moves itself over the head's primary fiducial. A fixed camera
// is looked at by the default nozzle of the default head. When neither can
// be resolved the calibration is capture-only.
func ResolveTarget(m machine.Machine, cam machine.Camera, testMove float64) Target {
	captureOnly := Target{TestMove: testMove}

	if head := cam.Head(); head != nil {
		loc, ok := head.PrimaryFiducialLocation()
		if !ok {
			slog.Debug("no primary fiducial, calibrating capture-only", "camera", cam.Name(), "head", head.Name())
			return captureOnly
		}
		return Target{Movable: cam, Location: loc, TestMove: testMove}
	}

	if m == nil {
		return captureOnly
	}
	head, err := m.DefaultHead()
	if err != nil {
		slog.Debug("no default head, calibrating capture-only", "camera", cam.Name(), "error", err)
		return captureOnly
	}
	nozzle, err := head.DefaultNozzle()
	if err != nil {
		slog.Debug("no default nozzle, calibrating capture-only", "camera", cam.Name(), "error", err)
		return captureOnly
	}
	loc, err := cam.LocationFor(nozzle)
	if err != nil {
		slog.Debug("camera location unknown, calibrating capture-only", "camera", cam.Name(), "error", err)
		return captureOnly
	}
	return Target{Movable: nozzle, Location: loc, TestMove: testMove}
}
