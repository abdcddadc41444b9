// Package machine defines the contracts the setup core consumes from the
// motion-controlled vision machine: motion coordination, settle probes
// (cameras), heads and the machine itself.
//
// Nothing in this package talks to hardware. Drivers, the motion planner
// and camera capture live outside the module and are handed in as values
// implementing these interfaces; internal/machine/sim provides a simulated
// machine for the CLI and for tests.
package machine

import (
	"context"
	"time"

	"github.com/steveyegge/pnpsetup/internal/types"
)

// Movable is anything the motion coordinator can move: a nozzle, a
// head-mounted camera, an actuator.
type Movable interface {
	Name() string
	// Kind is a short human readable category, e.g. "nozzle" or "camera"
	Kind() string
}

// MotionCoordinator moves Movables and waits for motion completion.
// All calls block until the requested motion was handed over or completed.
type MotionCoordinator interface {
	// MoveTo moves m to loc along a direct path.
	MoveTo(ctx context.Context, m Movable, loc types.Location) error

	// MoveToSafeZ retracts to safe Z, moves over loc and lowers to loc.Z.
	MoveToSafeZ(ctx context.Context, m Movable, loc types.Location) error

	// WaitForCompletion blocks until the given completion condition holds for m.
	WaitForCompletion(ctx context.Context, m Movable, completion types.CompletionType) error
}

// Capture is the outcome of one settle-and-capture operation.
type Capture struct {
	// ComputeTime is the recorded compute time per frame spent on settle detection
	ComputeTime time.Duration
	// TimedOut is set when the settle timeout elapsed before the image settled
	TimedOut bool
	// Frames is the number of frames evaluated
	Frames int
}

// SettleProbe performs settle measurements on a capturing device.
type SettleProbe interface {
	// SettleAndCapture blocks until the configured settle method reports a
	// stable image or its timeout elapses. A timeout is reported through
	// Capture.TimedOut, not as an error.
	SettleAndCapture(ctx context.Context) (Capture, error)

	// SettleConfig returns the active settle configuration.
	SettleConfig() types.SettleConfig

	// SetSettleConfig replaces the active settle configuration. It takes
	// effect on the next SettleAndCapture call.
	SetSettleConfig(cfg types.SettleConfig) error
}

// Camera is a machine camera as seen by the setup checks.
type Camera interface {
	Movable
	SettleProbe

	// ID returns the stable camera identifier
	ID() string

	// Head returns the head the camera is mounted on, or nil for a fixed
	// (e.g. bottom-looking) camera.
	Head() Head

	// UnitsPerPixel returns the camera scale in millimeters per pixel. The
	// boolean is false when the scale was never calibrated.
	UnitsPerPixel() (types.Location, bool)

	// LocationFor returns the camera location as reached by the given tool.
	LocationFor(tool Movable) (types.Location, error)

	PreviewFPS() float64
	SetPreviewFPS(fps float64) error

	SuspendPreviewInTasks() bool
	SetSuspendPreviewInTasks(suspend bool) error

	AutoVisible() bool
	SetAutoVisible(auto bool) error

	// LightActuator returns the name of the light actuator, or "" if none is assigned.
	LightActuator() string
}

// Head is a machine head carrying nozzles and cameras.
type Head interface {
	Name() string

	// DefaultNozzle returns the head's default nozzle.
	DefaultNozzle() (Movable, error)

	// PrimaryFiducialLocation returns the calibration primary fiducial
	// location. The boolean is false if none is configured.
	PrimaryFiducialLocation() (types.Location, bool)
}

// ToolSelector focuses a tool for the operator, e.g. selecting it in the
// machine controls. Implemented by whatever front end drives the session.
type ToolSelector interface {
	SelectTool(ctx context.Context, m Movable) error
}

// Machine is the explicit machine context handed to detectors and the
// calibration entry points.
type Machine interface {
	Motion() MotionCoordinator

	// DefaultHead returns the default head, or an error if the machine has none.
	DefaultHead() (Head, error)

	Cameras() []Camera

	// IsPrimaryXYSolved reports whether the head's primary XY calibration
	// (fiducial based) has been solved.
	IsPrimaryXYSolved(h Head) bool
}

// FindCamera returns the camera with the given name or ID.
func FindCamera(m Machine, nameOrID string) (Camera, bool) {
	for _, c := range m.Cameras() {
		if c.Name() == nameOrID || c.ID() == nameOrID {
			return c, true
		}
	}
	return nil, false
}
