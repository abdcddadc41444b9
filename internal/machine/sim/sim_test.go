package sim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/types"
)

const benchYAML = `name: bench
motion:
  move_time: 1ms
heads:
  - name: H1
    nozzles: [N1, N2]
    primary_fiducial: {x: 10, y: 12}
    primary_xy_solved: true
cameras:
  - name: Top
    head: H1
    units_per_pixel: {x: 0.02, y: 0.02}
    preview_fps: 30
    settle:
      method: fixed_time
      fixed_time: 300ms
    compute_time:
      motion_detect: 80ms
      maximum_diff: 15ms
  - name: Bottom
    id: BOT
    location: {x: 200, y: 40, z: -20}
    preview_fps: 5
    capture_fps: 200
    busy_captures: 1
`

func TestParseDescription(t *testing.T) {
	d, err := Parse([]byte(benchYAML))
	require.NoError(t, err)

	assert.Equal(t, "bench", d.Name)
	assert.Equal(t, time.Millisecond, d.Motion.MoveTime)
	require.Len(t, d.Cameras, 2)

	top := d.Cameras[0]
	assert.Equal(t, "CAM1", top.ID)
	assert.Equal(t, 30.0, top.CaptureFPS)
	assert.Equal(t, 300*time.Millisecond, top.Settle.FixedTime)
	assert.Equal(t, 80*time.Millisecond, top.ComputeTime[types.SettleMotionDetect])
	assert.Equal(t, "BOT", d.Cameras[1].ID)
}

func TestParseDescriptionErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "cameras: [\n"},
		{"unknown head", "cameras:\n  - name: Top\n    head: H9\n"},
		{"duplicate camera", "cameras:\n  - name: Top\n  - name: Top\n"},
		{"bad method", "cameras:\n  - name: Top\n    settle:\n      method: guess\n"},
		{"negative fps", "cameras:\n  - name: Top\n    preview_fps: -1\n"},
		{"even blur", "cameras:\n  - name: Top\n    settle:\n      method: fixed_time\n      gaussian_blur: 4\n"},
		{"adaptive without timeout", "cameras:\n  - name: Top\n    settle:\n      method: motion_detect\n      gaussian_blur: 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDemoIsValid(t *testing.T) {
	m, err := New(Demo())
	require.NoError(t, err)
	assert.Len(t, m.Cameras(), 2)

	top, ok := machine.FindCamera(m, "Top")
	require.True(t, ok)
	require.NotNil(t, top.Head())
	assert.True(t, m.IsPrimaryXYSolved(top.Head()))

	bottom, ok := machine.FindCamera(m, "Bottom")
	require.True(t, ok)
	assert.Nil(t, bottom.Head())
}

func newBench(t *testing.T) *Machine {
	t.Helper()
	d, err := Parse([]byte(benchYAML))
	require.NoError(t, err)
	m, err := New(d)
	require.NoError(t, err)
	return m
}

func TestMotionRecordsMoves(t *testing.T) {
	m := newBench(t)
	head, err := m.DefaultHead()
	require.NoError(t, err)
	nozzle, err := head.DefaultNozzle()
	require.NoError(t, err)
	assert.Equal(t, "N1", nozzle.Name())

	ctx := context.Background()
	loc := types.Location{X: 1, Y: 2}
	require.NoError(t, m.Motion().MoveToSafeZ(ctx, nozzle, loc))
	require.NoError(t, m.Motion().WaitForCompletion(ctx, nozzle, types.CompletionWaitForStillstand))
	require.NoError(t, m.Motion().MoveTo(ctx, nozzle, types.Location{X: 3}))

	moves := m.SimMotion().Moves()
	require.Len(t, moves, 2)
	assert.True(t, moves[0].SafeZ)
	pos, ok := m.SimMotion().Position("N1")
	require.True(t, ok)
	assert.Equal(t, types.Location{X: 3}, pos)
}

func TestMotionFaultInjection(t *testing.T) {
	m := newBench(t)
	nozzle := &Nozzle{name: "N1"}
	ctx := context.Background()

	m.SimMotion().FailMove(2)
	require.NoError(t, m.Motion().MoveTo(ctx, nozzle, types.Location{}))
	err := m.Motion().MoveTo(ctx, nozzle, types.Location{X: 1})
	require.Error(t, err)

	var me *machine.MotionError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "N1", me.Target)
	assert.ErrorIs(t, err, ErrControllerFault)

	// only the injected move fails
	require.NoError(t, m.Motion().MoveTo(ctx, nozzle, types.Location{X: 2}))
}

func TestMotionHonorsContext(t *testing.T) {
	m, err := New(&Description{Motion: MotionDescription{MoveTime: time.Hour}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = m.Motion().MoveTo(ctx, &Nozzle{name: "N1"}, types.Location{})
	assert.True(t, machine.IsMotionError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCameraSettleAndCapture(t *testing.T) {
	m := newBench(t)
	top, ok := m.Camera("Top")
	require.True(t, ok)
	ctx := context.Background()

	cfg := types.SettleConfig{Method: types.SettleMotionDetect, Debounce: 2, GaussianBlur: 5, Timeout: time.Second}
	require.NoError(t, top.SetSettleConfig(cfg))
	capture, err := top.SettleAndCapture(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80*time.Millisecond, capture.ComputeTime)
	assert.Equal(t, 3, capture.Frames)
	assert.False(t, capture.TimedOut)

	cfg.Timeout = 100 * time.Millisecond // 3 frames * 80ms exceeds it
	require.NoError(t, top.SetSettleConfig(cfg))
	capture, err = top.SettleAndCapture(ctx)
	require.NoError(t, err)
	assert.True(t, capture.TimedOut)
}

func TestCameraRejectsInvalidSettleConfig(t *testing.T) {
	top, _ := newBench(t).Camera("Top")
	before := top.SettleConfig()
	err := top.SetSettleConfig(types.SettleConfig{Method: types.SettleMotionDetect, GaussianBlur: 4, Timeout: time.Second})
	require.Error(t, err)
	assert.Equal(t, before, top.SettleConfig())
}

func TestCameraBusyCaptures(t *testing.T) {
	bottom, ok := newBench(t).Camera("BOT")
	require.True(t, ok)

	_, err := bottom.SettleAndCapture(context.Background())
	require.Error(t, err)
	assert.True(t, machine.IsTransient(err))

	_, err = bottom.SettleAndCapture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bottom.Captures())
}

func TestCameraScaleAndLocation(t *testing.T) {
	m := newBench(t)
	top, _ := m.Camera("Top")
	bottom, _ := m.Camera("Bottom")

	_, ok := top.UnitsPerPixel()
	assert.True(t, ok)
	_, ok = bottom.UnitsPerPixel()
	assert.False(t, ok, "bottom camera scale is not calibrated")

	loc, err := bottom.LocationFor(&Nozzle{name: "N1"})
	require.NoError(t, err)
	assert.Equal(t, types.Location{X: 200, Y: 40, Z: -20}, loc)

	_, err = top.LocationFor(&Nozzle{name: "N1"})
	assert.Error(t, err)
}

func TestSaveKeepsChangedSettings(t *testing.T) {
	m := newBench(t)
	top, _ := m.Camera("Top")
	require.NoError(t, top.SetPreviewFPS(5))
	require.NoError(t, top.SetAutoVisible(true))

	path := filepath.Join(t.TempDir(), "machine.yaml")
	require.NoError(t, m.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	top2, ok := reloaded.Camera("Top")
	require.True(t, ok)
	assert.Equal(t, 5.0, top2.PreviewFPS())
	assert.True(t, top2.AutoVisible())
	assert.Equal(t, 80*time.Millisecond, top2.snapshot().ComputeTime[types.SettleMotionDetect])
}

func TestSelectTool(t *testing.T) {
	m := newBench(t)
	top, _ := m.Camera("Top")
	require.NoError(t, m.SelectTool(context.Background(), top))
	assert.Equal(t, "Top", m.SelectedTool())
	assert.Error(t, m.SelectTool(context.Background(), nil))
}
