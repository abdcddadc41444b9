// Package camera reports setup issues of machine cameras: preview settings
// that waste resources, a missing light actuator, and cameras still using a
// fixed settle time instead of an adaptive, calibrated settle method.
package camera

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/settle"
	"github.com/steveyegge/pnpsetup/internal/solutions"
	"github.com/steveyegge/pnpsetup/internal/types"
)

const (
	// MaxPreviewFPS is the highest preview frame rate not reported as wasteful
	MaxPreviewFPS = 15.0
	// RecommendedPreviewFPS is the preview frame rate proposed by the fix
	RecommendedPreviewFPS = 5.0

	settleURI  = "https://github.com/openpnp/openpnp/wiki/Camera-Settling"
	previewURI = "https://github.com/openpnp/openpnp/wiki/Vision-Solutions#camera-preview"
	lightURI   = "https://github.com/openpnp/openpnp/wiki/Vision-Solutions#camera-lighting"
)

// Detector is the issue subject for one camera.
type Detector struct {
	machine  machine.Machine
	camera   machine.Camera
	selector *settle.Selector
	tools    machine.ToolSelector

	mu         sync.Mutex
	lastResult *types.CalibrationResult
}

// New creates a detector for cam. tools may be nil when no front end can
// focus tools.
func New(m machine.Machine, cam machine.Camera, selector *settle.Selector, tools machine.ToolSelector) (*Detector, error) {
	if m == nil {
		return nil, fmt.Errorf("machine is required")
	}
	if cam == nil {
		return nil, fmt.Errorf("camera is required")
	}
	if selector == nil {
		return nil, fmt.Errorf("settle selector is required")
	}
	return &Detector{machine: m, camera: cam, selector: selector, tools: tools}, nil
}

// Register adds a detector for every camera of m to s.
func Register(s *solutions.Solutions, m machine.Machine, selector *settle.Selector, tools machine.ToolSelector) error {
	for _, cam := range m.Cameras() {
		d, err := New(m, cam, selector, tools)
		if err != nil {
			return err
		}
		if err := s.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (d *Detector) Name() string {
	return d.camera.Name()
}

// LastResult returns the result of the last successful calibration, if any.
func (d *Detector) LastResult() *types.CalibrationResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastResult
}

// FindIssues reports the camera's issues for the targeted milestones.
func (d *Detector) FindIssues(ctx context.Context, s *solutions.Solutions) error {
	if s.IsTargeting(solutions.MilestoneBasics) {
		d.findLightIssues(s)
	}
	if s.IsTargeting(solutions.MilestoneVision) {
		d.findPreviewIssues(s)
		if err := d.findSettleIssues(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *Detector) findLightIssues(s *solutions.Solutions) {
	if d.camera.LightActuator() != "" {
		return
	}
	s.Add(solutions.NewIssue(d.Name(),
		"Camera has no light actuator assigned.",
		"Assign the light actuator so vision operations can switch the camera light on and off.",
		solutions.SeverityRecommendation, lightURI, solutions.Fix{}))
}

func (d *Detector) findPreviewIssues(s *solutions.Solutions) {
	cam := d.camera

	if fps := cam.PreviewFPS(); fps > MaxPreviewFPS {
		s.Add(solutions.NewIssue(d.Name(),
			fmt.Sprintf("Preview frame rate is high (%g fps), this wastes CPU time.", fps),
			fmt.Sprintf("Set the preview frame rate to %g fps.", RecommendedPreviewFPS),
			solutions.SeveritySuggestion, previewURI, solutions.Fix{
				Apply:  func(ctx context.Context) error { return cam.SetPreviewFPS(RecommendedPreviewFPS) },
				Revert: func(ctx context.Context) error { return cam.SetPreviewFPS(fps) },
			}))
	}

	if !cam.SuspendPreviewInTasks() {
		s.Add(solutions.NewIssue(d.Name(),
			"Camera preview is not suspended during machine tasks.",
			"Suspend the preview during tasks to save CPU time.",
			solutions.SeveritySuggestion, previewURI, solutions.Fix{
				Apply:  func(ctx context.Context) error { return cam.SetSuspendPreviewInTasks(true) },
				Revert: func(ctx context.Context) error { return cam.SetSuspendPreviewInTasks(false) },
			}))
	}

	if !cam.AutoVisible() {
		s.Add(solutions.NewIssue(d.Name(),
			"Camera view is not shown automatically.",
			"Show the camera view automatically whenever the camera is used.",
			solutions.SeveritySuggestion, previewURI, solutions.Fix{
				Apply:  func(ctx context.Context) error { return cam.SetAutoVisible(true) },
				Revert: func(ctx context.Context) error { return cam.SetAutoVisible(false) },
			}))
	}
}

func (d *Detector) findSettleIssues(s *solutions.Solutions) error {
	cam := d.camera
	old := cam.SettleConfig()
	if old.Method != types.SettleFixedTime {
		return nil
	}
	if head := cam.Head(); head != nil && !d.machine.IsPrimaryXYSolved(head) {
		return nil
	}
	if _, ok := cam.UnitsPerPixel(); !ok {
		return nil
	}

	var issue *solutions.Issue
	issue = solutions.NewIssue(d.Name(),
		"Camera uses a fixed settle time. Adaptive settling is faster and more reliable.",
		"Calibrate an adaptive settle method by moving the camera or a nozzle and measuring the settle time.",
		solutions.SeverityFundamental, settleURI, solutions.Fix{
			Activate: func(ctx context.Context) error {
				if d.tools == nil {
					return nil
				}
				return d.tools.SelectTool(ctx, cam)
			},
			Apply: func(ctx context.Context) error {
				target := settle.ResolveTarget(d.machine, cam, d.selector.Settings().TestMoveMm)
				result, err := d.selector.Calibrate(ctx, cam, target, issue.ID)
				if err != nil {
					return err
				}
				d.mu.Lock()
				d.lastResult = result
				d.mu.Unlock()
				return nil
			},
			Revert: func(ctx context.Context) error {
				return cam.SetSettleConfig(old)
			},
			Describe: func(state solutions.State) string {
				return d.describeSettle(state)
			},
		})
	s.Add(issue)
	return nil
}

func (d *Detector) describeSettle(state solutions.State) string {
	var b strings.Builder
	b.WriteString("The camera waits a fixed time after each move before it captures an image. ")
	b.WriteString("Adaptive settling compares frames until the image stops changing, which is ")
	b.WriteString("usually much faster and detects vibration that lasts longer than expected.\n\n")

	target := settle.ResolveTarget(d.machine, d.camera, d.selector.Settings().TestMoveMm)
	if target.CaptureOnly() {
		b.WriteString("Nothing will move; the calibration uses the current camera view only.\n")
	} else {
		fmt.Fprintf(&b, "CAUTION: the %s %s will move to %s and make small test moves of %gmm.\n",
			target.Movable.Kind(), target.Movable.Name(), target.Location, target.TestMove)
	}

	if state == solutions.StateSolved {
		if r := d.LastResult(); r != nil {
			b.WriteString("\nResults:\n")
			fmt.Fprintf(&b, "  Method:       %s\n", r.Config.Method)
			fmt.Fprintf(&b, "  Compute time: %dms\n", r.ComputeMilliseconds())
			fmt.Fprintf(&b, "  Escalated:    %v\n", r.Escalated)
			fmt.Fprintf(&b, "  Trials:       %d\n", len(r.Trials))
			if !r.Passed {
				b.WriteString("  The last trial timed out; check the camera and consider a longer timeout.\n")
			}
		}
	}
	return b.String()
}
