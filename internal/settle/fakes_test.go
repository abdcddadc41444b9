package settle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/types"
)

type fakeMovable struct {
	name string
	kind string
}

func (m *fakeMovable) Name() string { return m.name }
func (m *fakeMovable) Kind() string { return m.kind }

type motionCall struct {
	op  string
	loc types.Location
}

// fakeMotion records motion calls and can fail a chosen MoveTo call.
type fakeMotion struct {
	mu        sync.Mutex
	calls     []motionCall
	moveCount int
	failMove  int // 1-based MoveTo call that fails, 0 = never
	failErr   error
}

func (f *fakeMotion) MoveTo(ctx context.Context, m machine.Movable, loc types.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moveCount++
	if f.failMove != 0 && f.moveCount == f.failMove {
		return machine.NewMotionError("move", m, f.failErr)
	}
	f.calls = append(f.calls, motionCall{op: "move", loc: loc})
	return nil
}

func (f *fakeMotion) MoveToSafeZ(ctx context.Context, m machine.Movable, loc types.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, motionCall{op: "safe_z", loc: loc})
	return nil
}

func (f *fakeMotion) WaitForCompletion(ctx context.Context, m machine.Movable, completion types.CompletionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, motionCall{op: "wait:" + string(completion)})
	return nil
}

func (f *fakeMotion) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

// fakeCamera is a head-less camera whose compute time depends on the settle method.
type fakeCamera struct {
	fakeMovable
	mu          sync.Mutex
	cfg         types.SettleConfig
	computeTime map[types.SettleMethod]time.Duration
	timedOut    map[types.SettleMethod]bool
	captureErrs []error // consumed one per capture before succeeding
	captures    int
	configs     []types.SettleConfig
	failSetAt   int // 1-based SetSettleConfig call that fails, 0 = never
	sets        int
	scale       types.Location
	scaleOK     bool
	head        machine.Head
	location    types.Location
}

func newFakeCamera(name string) *fakeCamera {
	return &fakeCamera{
		fakeMovable: fakeMovable{name: name, kind: "camera"},
		cfg: types.SettleConfig{
			Method:       types.SettleFixedTime,
			GaussianBlur: 3,
			FixedTime:    250 * time.Millisecond,
			Timeout:      time.Second,
			Threshold:    7,
			Debounce:     1,
		},
		computeTime: map[types.SettleMethod]time.Duration{},
		timedOut:    map[types.SettleMethod]bool{},
		scale:       types.Location{X: 0.02, Y: 0.02},
		scaleOK:     true,
	}
}

func (c *fakeCamera) ID() string { return "id-" + c.name }
func (c *fakeCamera) Head() machine.Head { return c.head }

func (c *fakeCamera) UnitsPerPixel() (types.Location, bool) { return c.scale, c.scaleOK }

func (c *fakeCamera) LocationFor(tool machine.Movable) (types.Location, error) {
	return c.location, nil
}

func (c *fakeCamera) PreviewFPS() float64 { return 5 }
func (c *fakeCamera) SetPreviewFPS(float64) error { return nil }
func (c *fakeCamera) SuspendPreviewInTasks() bool { return true }
func (c *fakeCamera) SetSuspendPreviewInTasks(bool) error { return nil }
func (c *fakeCamera) AutoVisible() bool { return true }
func (c *fakeCamera) SetAutoVisible(bool) error { return nil }
func (c *fakeCamera) LightActuator() string { return "light" }

func (c *fakeCamera) SettleAndCapture(ctx context.Context) (machine.Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures++
	if len(c.captureErrs) > 0 {
		err := c.captureErrs[0]
		c.captureErrs = c.captureErrs[1:]
		return machine.Capture{}, err
	}
	return machine.Capture{
		ComputeTime: c.computeTime[c.cfg.Method],
		TimedOut:    c.timedOut[c.cfg.Method],
		Frames:      3,
	}, nil
}

func (c *fakeCamera) SettleConfig() types.SettleConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *fakeCamera) SetSettleConfig(cfg types.SettleConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.failSetAt != 0 && c.sets == c.failSetAt {
		return errors.New("camera rejected settle config")
	}
	c.cfg = cfg
	c.configs = append(c.configs, cfg)
	return nil
}

type fakeHead struct {
	name        string
	nozzle      machine.Movable
	nozzleErr   error
	fiducial    types.Location
	hasFiducial bool
}

func (h *fakeHead) Name() string { return h.name }

func (h *fakeHead) DefaultNozzle() (machine.Movable, error) {
	if h.nozzleErr != nil {
		return nil, h.nozzleErr
	}
	return h.nozzle, nil
}

func (h *fakeHead) PrimaryFiducialLocation() (types.Location, bool) {
	return h.fiducial, h.hasFiducial
}

type fakeMachine struct {
	motion  *fakeMotion
	head    machine.Head
	cameras []machine.Camera
}

func (m *fakeMachine) Motion() machine.MotionCoordinator { return m.motion }

func (m *fakeMachine) DefaultHead() (machine.Head, error) {
	if m.head == nil {
		return nil, fmt.Errorf("machine has no head")
	}
	return m.head, nil
}

func (m *fakeMachine) Cameras() []machine.Camera { return m.cameras }
func (m *fakeMachine) IsPrimaryXYSolved(h machine.Head) bool { return true }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
