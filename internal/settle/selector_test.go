package settle

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pnpsetup/internal/config"
	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/types"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (m *memoryRecorder) StoreEvent(ctx context.Context, e *events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryRecorder) types() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.EventType
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryHistory struct {
	results []*types.CalibrationResult
	err     error
}

func (h *memoryHistory) RecordCalibration(ctx context.Context, r *types.CalibrationResult) error {
	if h.err != nil {
		return h.err
	}
	h.results = append(h.results, r)
	return nil
}

func testSettings() config.SettleCalibrationConfig {
	s := config.DefaultSettleCalibrationConfig()
	s.AcceptableComputeTime = 50 * time.Millisecond
	s.MaximumPixelDiff = 12
	s.CaptureRetryMaxElapsed = 0
	return s
}

func newTestSelector(t *testing.T, motion machine.MotionCoordinator, rec events.Recorder, hist HistoryRecorder) *Selector {
	t.Helper()
	sel, err := NewSelector(motion, &SelectorConfig{
		Settings: testSettings(),
		Recorder: rec,
		History:  hist,
		Sleep:    noSleep,
	})
	require.NoError(t, err)
	return sel
}

func TestNewSelectorValidatesSettings(t *testing.T) {
	_, err := NewSelector(&fakeMotion{}, nil)
	require.Error(t, err)

	bad := testSettings()
	bad.AcceptableComputeTime = 0
	_, err = NewSelector(&fakeMotion{}, &SelectorConfig{Settings: bad})
	require.Error(t, err)
}

func TestCalibrateEscalatesWhenBaselineTooSlow(t *testing.T) {
	rec := &memoryRecorder{}
	hist := &memoryHistory{}
	motion := &fakeMotion{}
	cam := newFakeCamera("Top")
	cam.computeTime[types.SettleMotionDetect] = 80 * time.Millisecond
	cam.computeTime[types.SettleMaximumDiff] = 95 * time.Millisecond

	sel := newTestSelector(t, motion, rec, hist)
	nozzle := &fakeMovable{name: "N1", kind: "nozzle"}
	result, err := sel.Calibrate(context.Background(), cam, Target{Movable: nozzle, TestMove: 0.1}, "issue-1")
	require.NoError(t, err)

	assert.True(t, result.Escalated)
	require.Len(t, result.Trials, 2)
	assert.Equal(t, types.SettleMotionDetect, result.Trials[0].Config.Method)
	assert.Equal(t, types.SettleMaximumDiff, result.Trials[1].Config.Method)

	// accepted even though the second trial is over budget too
	committed := cam.SettleConfig()
	assert.Equal(t, types.SettleMaximumDiff, committed.Method)
	assert.Equal(t, math.Sqrt2, committed.MaskCircle)
	assert.Equal(t, 12.0, committed.Threshold)
	assert.Equal(t, committed, result.Config)
	assert.Equal(t, 95*time.Millisecond, result.ComputeTime)
	assert.True(t, result.Passed)

	assert.Equal(t, []events.EventType{
		events.EventTypeCalibrationStarted,
		events.EventTypeSettleTrialCompleted,
		events.EventTypeCalibrationEscalated,
		events.EventTypeSettleTrialCompleted,
		events.EventTypeCalibrationCompleted,
	}, rec.types())
	require.Len(t, hist.results, 1)
	assert.Same(t, result, hist.results[0])
}

func TestCalibrateKeepsBaselineWithinBudget(t *testing.T) {
	rec := &memoryRecorder{}
	cam := newFakeCamera("Top")
	cam.computeTime[types.SettleMotionDetect] = 30 * time.Millisecond

	sel := newTestSelector(t, &fakeMotion{}, rec, nil)
	result, err := sel.Calibrate(context.Background(), cam, Target{}, "")
	require.NoError(t, err)

	assert.False(t, result.Escalated)
	require.Len(t, result.Trials, 1, "no second trial within budget")
	assert.Equal(t, types.SettleMotionDetect, cam.SettleConfig().Method)
	assert.Equal(t, 0.0, cam.SettleConfig().MaskCircle)
	assert.Equal(t, 1.0, cam.SettleConfig().Threshold)
	assert.NotContains(t, rec.types(), events.EventTypeCalibrationEscalated)
}

func TestCalibrateBudgetBoundaryIsInclusive(t *testing.T) {
	cam := newFakeCamera("Top")
	cam.computeTime[types.SettleMotionDetect] = 50 * time.Millisecond

	sel := newTestSelector(t, &fakeMotion{}, nil, nil)
	result, err := sel.Calibrate(context.Background(), cam, Target{}, "")
	require.NoError(t, err)
	assert.False(t, result.Escalated)
}

func TestCalibrateBaselineUsesWantedResolution(t *testing.T) {
	cam := newFakeCamera("Top")
	cam.scale = types.Location{X: 0.025, Y: 0.025}

	sel := newTestSelector(t, &fakeMotion{}, nil, nil)
	result, err := sel.Calibrate(context.Background(), cam, Target{}, "")
	require.NoError(t, err)

	// 0.05mm / 0.025mm/px = 2px, round(2*5)|1 = 11
	assert.Equal(t, 11, result.Config.GaussianBlur)
	assert.Equal(t, time.Second, result.Config.Timeout)
	assert.Equal(t, 250*time.Millisecond, result.Config.FixedTime, "fixed time setting carries over")
}

func TestCalibrateMotionErrorRestoresPriorConfig(t *testing.T) {
	rec := &memoryRecorder{}
	motion := &fakeMotion{failMove: 1, failErr: errors.New("controller fault")}
	cam := newFakeCamera("Top")
	prior := cam.SettleConfig()

	sel := newTestSelector(t, motion, rec, nil)
	_, err := sel.Calibrate(context.Background(), cam, Target{Movable: &fakeMovable{name: "N1", kind: "nozzle"}, TestMove: 1}, "")
	require.Error(t, err)
	assert.True(t, machine.IsMotionError(err))

	assert.Equal(t, prior, cam.SettleConfig())
	assert.Equal(t, events.EventTypeCalibrationFailed, rec.types()[len(rec.types())-1])
}

func TestCalibrateRestoreFailureIsReported(t *testing.T) {
	motion := &fakeMotion{failMove: 1, failErr: errors.New("controller fault")}
	cam := newFakeCamera("Top")
	cam.failSetAt = 2 // baseline succeeds, restore fails

	sel := newTestSelector(t, motion, nil, nil)
	_, err := sel.Calibrate(context.Background(), cam, Target{Movable: &fakeMovable{name: "N1", kind: "nozzle"}}, "")
	require.Error(t, err)
	assert.True(t, machine.IsMotionError(err))
	assert.Contains(t, err.Error(), "restore previous settle config")
}

func TestCalibrateWithoutScaleIsConfigurationError(t *testing.T) {
	rec := &memoryRecorder{}
	cam := newFakeCamera("Bottom")
	cam.scaleOK = false
	prior := cam.SettleConfig()

	sel := newTestSelector(t, &fakeMotion{}, rec, nil)
	_, err := sel.Calibrate(context.Background(), cam, Target{}, "")
	require.Error(t, err)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Bottom", ce.Camera)
	assert.Equal(t, 0, cam.sets, "nothing was changed")
	assert.Equal(t, prior, cam.SettleConfig())
	assert.Equal(t, []events.EventType{events.EventTypeCalibrationFailed}, rec.types())
}

func TestCalibrateIsExclusivePerCamera(t *testing.T) {
	cam := newFakeCamera("Top")
	sel := newTestSelector(t, &fakeMotion{}, nil, nil)

	sem := sel.lockFor(cam.ID())
	require.True(t, sem.TryAcquire(1))

	_, err := sel.Calibrate(context.Background(), cam, Target{}, "")
	assert.ErrorIs(t, err, ErrCalibrationInProgress)

	// other cameras are not blocked
	_, err = sel.Calibrate(context.Background(), newFakeCamera("Bottom"), Target{}, "")
	assert.NoError(t, err)

	sem.Release(1)
	_, err = sel.Calibrate(context.Background(), cam, Target{}, "")
	assert.NoError(t, err)
}

func TestCalibrateHistoryFailureIsBestEffort(t *testing.T) {
	cam := newFakeCamera("Top")
	sel := newTestSelector(t, &fakeMotion{}, nil, &memoryHistory{err: errors.New("disk full")})

	_, err := sel.Calibrate(context.Background(), cam, Target{}, "")
	assert.NoError(t, err)
}

func TestResolveTarget(t *testing.T) {
	nozzle := &fakeMovable{name: "N1", kind: "nozzle"}

	t.Run("head camera moves itself to the primary fiducial", func(t *testing.T) {
		cam := newFakeCamera("Top")
		cam.head = &fakeHead{name: "H1", fiducial: types.Location{X: 5, Y: 6}, hasFiducial: true}
		target := ResolveTarget(&fakeMachine{}, cam, 0.1)
		assert.Same(t, cam, target.Movable)
		assert.Equal(t, types.Location{X: 5, Y: 6}, target.Location)
		assert.Equal(t, 0.1, target.TestMove)
	})

	t.Run("head camera without fiducial is capture-only", func(t *testing.T) {
		cam := newFakeCamera("Top")
		cam.head = &fakeHead{name: "H1"}
		assert.True(t, ResolveTarget(&fakeMachine{}, cam, 0.1).CaptureOnly())
	})

	t.Run("fixed camera uses the default nozzle", func(t *testing.T) {
		cam := newFakeCamera("Bottom")
		cam.location = types.Location{X: 200, Y: 30, Z: -10}
		m := &fakeMachine{head: &fakeHead{name: "H1", nozzle: nozzle}}
		target := ResolveTarget(m, cam, 0.1)
		assert.Same(t, nozzle, target.Movable)
		assert.Equal(t, cam.location, target.Location)
	})

	t.Run("fixed camera without head is capture-only", func(t *testing.T) {
		assert.True(t, ResolveTarget(&fakeMachine{}, newFakeCamera("Bottom"), 0.1).CaptureOnly())
	})

	t.Run("fixed camera without nozzle is capture-only", func(t *testing.T) {
		m := &fakeMachine{head: &fakeHead{name: "H1", nozzleErr: errors.New("no nozzles")}}
		assert.True(t, ResolveTarget(m, newFakeCamera("Bottom"), 0.1).CaptureOnly())
	})
}
