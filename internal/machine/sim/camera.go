package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/types"
)

// Camera is a simulated camera. Frames are paced by a rate limiter at the
// camera's capture frame rate; settle compute time comes from the description.
type Camera struct {
	mu      sync.Mutex
	desc    CameraDescription
	head    *Head
	frames  *rate.Limiter
	busy    int
	capture int
}

func newCamera(desc CameraDescription, head *Head) *Camera {
	return &Camera{
		desc:   desc,
		head:   head,
		frames: rate.NewLimiter(rate.Limit(desc.CaptureFPS), 1),
		busy:   desc.BusyCaptures,
	}
}

func (c *Camera) Name() string { return c.desc.Name }
func (c *Camera) Kind() string { return "camera" }
func (c *Camera) ID() string   { return c.desc.ID }

// Head returns nil for a fixed camera.
func (c *Camera) Head() machine.Head {
	if c.head == nil {
		return nil
	}
	return c.head
}

func (c *Camera) UnitsPerPixel() (types.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.UnitsPerPixel == nil {
		return types.Location{}, false
	}
	upp := *c.desc.UnitsPerPixel
	return upp, upp.X > 0 && upp.Y > 0
}

func (c *Camera) LocationFor(tool machine.Movable) (types.Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc.Location == nil {
		return types.Location{}, fmt.Errorf("camera %s has no location", c.desc.Name)
	}
	return *c.desc.Location, nil
}

func (c *Camera) PreviewFPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.PreviewFPS
}

func (c *Camera) SetPreviewFPS(fps float64) error {
	if fps < 0 {
		return fmt.Errorf("preview fps cannot be negative (got %g)", fps)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desc.PreviewFPS = fps
	return nil
}

func (c *Camera) SuspendPreviewInTasks() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.SuspendPreviewInTasks
}

func (c *Camera) SetSuspendPreviewInTasks(suspend bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desc.SuspendPreviewInTasks = suspend
	return nil
}

func (c *Camera) AutoVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.AutoVisible
}

func (c *Camera) SetAutoVisible(auto bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desc.AutoVisible = auto
	return nil
}

func (c *Camera) LightActuator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.LightActuator
}

func (c *Camera) SettleConfig() types.SettleConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.Settle
}

func (c *Camera) SetSettleConfig(cfg types.SettleConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("camera %s: %w", c.desc.Name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.desc.Settle = cfg
	return nil
}

// SettleAndCapture waits for Debounce+1 frames. The image is considered
// settled unless the simulated compute time of all frames exceeds the
// configured timeout.
func (c *Camera) SettleAndCapture(ctx context.Context) (machine.Capture, error) {
	c.mu.Lock()
	c.capture++
	if c.busy > 0 {
		c.busy--
		c.mu.Unlock()
		return machine.Capture{}, fmt.Errorf("camera %s: %w", c.desc.Name, machine.ErrProbeBusy)
	}
	cfg := c.desc.Settle
	compute := c.desc.ComputeTime[cfg.Method]
	c.mu.Unlock()

	frames := 1
	if cfg.Method.IsAdaptive() {
		frames = cfg.Debounce + 1
	}
	for i := 0; i < frames; i++ {
		if err := c.frames.Wait(ctx); err != nil {
			return machine.Capture{}, fmt.Errorf("camera %s: frame grab interrupted: %w", c.desc.Name, err)
		}
	}

	capture := machine.Capture{ComputeTime: compute, Frames: frames}
	if cfg.Method.IsAdaptive() && cfg.Timeout > 0 && time.Duration(frames)*compute > cfg.Timeout {
		capture.TimedOut = true
	}
	return capture, nil
}

// Captures returns the number of SettleAndCapture calls so far.
func (c *Camera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture
}

func (c *Camera) snapshot() CameraDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc
}
