package types

import (
	"fmt"
	"math"
	"time"
)

// Location is a machine coordinate. Linear axes are in millimeters,
// Rotation is in degrees.
type Location struct {
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
	Z        float64 `json:"z" yaml:"z"`
	Rotation float64 `json:"rotation" yaml:"rotation"`
}

// Add returns the component-wise sum of two locations.
func (l Location) Add(o Location) Location {
	return Location{
		X:        l.X + o.X,
		Y:        l.Y + o.Y,
		Z:        l.Z + o.Z,
		Rotation: l.Rotation + o.Rotation,
	}
}

// Subtract returns the component-wise difference l - o.
func (l Location) Subtract(o Location) Location {
	return Location{
		X:        l.X - o.X,
		Y:        l.Y - o.Y,
		Z:        l.Z - o.Z,
		Rotation: l.Rotation - o.Rotation,
	}
}

// LinearDistanceTo returns the XY distance between two locations.
func (l Location) LinearDistanceTo(o Location) float64 {
	return math.Hypot(l.X-o.X, l.Y-o.Y)
}

func (l Location) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f, %.2f°)", l.X, l.Y, l.Z, l.Rotation)
}

// SettleMethod selects how a camera decides that the image has settled
type SettleMethod string

const (
	// SettleFixedTime waits a fixed amount of time after motion
	SettleFixedTime SettleMethod = "fixed_time"
	// SettleMotionDetect compares consecutive frames until motion stops
	SettleMotionDetect SettleMethod = "motion_detect"
	// SettleMaximumDiff waits until the maximum pixel difference drops below a threshold
	SettleMaximumDiff SettleMethod = "maximum_diff"
)

// IsValid checks if the settle method value is valid
func (m SettleMethod) IsValid() bool {
	switch m {
	case SettleFixedTime, SettleMotionDetect, SettleMaximumDiff:
		return true
	}
	return false
}

// IsAdaptive reports whether the method reacts to the image instead of waiting blindly.
func (m SettleMethod) IsAdaptive() bool {
	return m == SettleMotionDetect || m == SettleMaximumDiff
}

// SettleConfig is the tunable settle parameter set of a camera.
type SettleConfig struct {
	Method SettleMethod `json:"method" yaml:"method"`
	// MaskCircle is the relative radius of the circular mask, 0 disables the mask
	MaskCircle float64 `json:"mask_circle" yaml:"mask_circle"`
	// Debounce is the number of consecutive settled frames required
	Debounce        int     `json:"debounce" yaml:"debounce"`
	FullColor       bool    `json:"full_color" yaml:"full_color"`
	Gradients       bool    `json:"gradients" yaml:"gradients"`
	ContrastEnhance bool    `json:"contrast_enhance" yaml:"contrast_enhance"`
	Threshold       float64 `json:"threshold" yaml:"threshold"`
	// GaussianBlur is the blur kernel size in pixels, always odd
	GaussianBlur int           `json:"gaussian_blur" yaml:"gaussian_blur"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	// FixedTime is the settle wait used by SettleFixedTime
	FixedTime   time.Duration `json:"fixed_time" yaml:"fixed_time"`
	Diagnostics bool          `json:"diagnostics" yaml:"diagnostics"`
}

// Validate checks if the settle configuration has valid field values
func (c SettleConfig) Validate() error {
	if !c.Method.IsValid() {
		return fmt.Errorf("invalid settle method: %q", c.Method)
	}
	if c.MaskCircle < 0 {
		return fmt.Errorf("mask_circle cannot be negative (got %g)", c.MaskCircle)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce cannot be negative (got %d)", c.Debounce)
	}
	if c.GaussianBlur < 1 || c.GaussianBlur%2 == 0 {
		return fmt.Errorf("gaussian_blur must be odd and >= 1 (got %d)", c.GaussianBlur)
	}
	if c.Method.IsAdaptive() && c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive for %s (got %s)", c.Method, c.Timeout)
	}
	return nil
}

// CompletionType names the condition MotionCoordinator.WaitForCompletion blocks on
type CompletionType string

const (
	// CompletionWaitForStillstand blocks until the machine reports full stillstand
	CompletionWaitForStillstand CompletionType = "wait_for_stillstand"
)

// TrialResult is the outcome of one settle measurement trial.
type TrialResult struct {
	Config      SettleConfig  `json:"config"`
	ComputeTime time.Duration `json:"compute_time"`
	TimedOut    bool          `json:"timed_out"`
	// Moved is false for capture-only trials
	Moved bool `json:"moved"`
}

// Passed reports whether the probe settled before its timeout.
func (r TrialResult) Passed() bool {
	return !r.TimedOut
}

// CalibrationResult is the outcome of a settle calibration run.
type CalibrationResult struct {
	Camera      string        `json:"camera"`
	Config      SettleConfig  `json:"config"`
	ComputeTime time.Duration `json:"compute_time"`
	Passed      bool          `json:"passed"`
	Escalated   bool          `json:"escalated"`
	Trials      []TrialResult `json:"trials"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// ComputeMilliseconds returns the final compute time in milliseconds.
func (r *CalibrationResult) ComputeMilliseconds() int64 {
	return r.ComputeTime.Milliseconds()
}
