// Package sim is a simulated machine built from a YAML description. It
// backs the CLI when no real machine is attached and gives tests a machine
// with controllable motion faults and settle compute times.
//
// Example description:
//
//	name: bench
//	motion:
//	  move_time: 5ms
//	heads:
//	  - name: H1
//	    nozzles: [N1]
//	    primary_fiducial: {x: 10, y: 10}
//	    primary_xy_solved: true
//	cameras:
//	  - name: Top
//	    head: H1
//	    units_per_pixel: {x: 0.02, y: 0.02}
//	    preview_fps: 30
//	    compute_time:
//	      motion_detect: 80ms
//	      maximum_diff: 15ms
package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/pnpsetup/internal/types"
)

// Description is the on-disk form of a simulated machine.
type Description struct {
	Name    string              `yaml:"name"`
	Motion  MotionDescription   `yaml:"motion"`
	Heads   []HeadDescription   `yaml:"heads"`
	Cameras []CameraDescription `yaml:"cameras"`
}

// MotionDescription configures the simulated motion controller.
type MotionDescription struct {
	// MoveTime is how long each simulated move takes
	MoveTime time.Duration `yaml:"move_time"`
	// FailMove makes the n-th move (1-based) fail with a controller fault, 0 = never
	FailMove int `yaml:"fail_move,omitempty"`
}

// HeadDescription describes a head.
type HeadDescription struct {
	Name            string          `yaml:"name"`
	Nozzles         []string        `yaml:"nozzles"`
	PrimaryFiducial *types.Location `yaml:"primary_fiducial,omitempty"`
	PrimaryXYSolved bool            `yaml:"primary_xy_solved"`
}

// CameraDescription describes a camera and its simulated settle behavior.
type CameraDescription struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id,omitempty"`
	// Head is the name of the head carrying the camera, empty for a fixed camera
	Head string `yaml:"head,omitempty"`
	// Location is where a fixed camera looks up from
	Location      *types.Location `yaml:"location,omitempty"`
	UnitsPerPixel *types.Location `yaml:"units_per_pixel,omitempty"`

	PreviewFPS            float64 `yaml:"preview_fps"`
	SuspendPreviewInTasks bool    `yaml:"suspend_preview_in_tasks"`
	AutoVisible           bool    `yaml:"auto_visible"`
	LightActuator         string  `yaml:"light_actuator,omitempty"`

	Settle types.SettleConfig `yaml:"settle"`

	// CaptureFPS paces simulated frames (default: 30)
	CaptureFPS float64 `yaml:"capture_fps,omitempty"`
	// ComputeTime is the simulated per-capture settle compute time by method
	ComputeTime map[types.SettleMethod]time.Duration `yaml:"compute_time,omitempty"`
	// BusyCaptures makes the first n captures report a busy probe
	BusyCaptures int `yaml:"busy_captures,omitempty"`
}

// Validate checks the description for consistency.
func (d *Description) Validate() error {
	heads := make(map[string]bool)
	for i, h := range d.Heads {
		if strings.TrimSpace(h.Name) == "" {
			return fmt.Errorf("head %d: name is required", i)
		}
		if heads[h.Name] {
			return fmt.Errorf("duplicate head %q", h.Name)
		}
		heads[h.Name] = true
	}

	cams := make(map[string]bool)
	for i, c := range d.Cameras {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("camera %d: name is required", i)
		}
		if cams[c.Name] {
			return fmt.Errorf("duplicate camera %q", c.Name)
		}
		cams[c.Name] = true
		if c.Head != "" && !heads[c.Head] {
			return fmt.Errorf("camera %s: unknown head %q", c.Name, c.Head)
		}
		if c.PreviewFPS < 0 || c.CaptureFPS < 0 {
			return fmt.Errorf("camera %s: frame rates cannot be negative", c.Name)
		}
		// same rules as SetSettleConfig
		if err := c.Settle.Validate(); err != nil {
			return fmt.Errorf("camera %s: %w", c.Name, err)
		}
	}
	if d.Motion.MoveTime < 0 {
		return fmt.Errorf("motion.move_time cannot be negative")
	}
	return nil
}

// Parse decodes a YAML machine description and fills in defaults.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse machine description: %w", err)
	}
	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine description: %w", err)
	}
	return &d, nil
}

// LoadDescription reads a description file.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine description: %w", err)
	}
	return Parse(data)
}

// Save writes the description atomically (write to temp file, then rename).
func (d *Description) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode machine description: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating machine description directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing machine description: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming machine description: %w", err)
	}
	return nil
}

func (d *Description) applyDefaults() {
	if d.Name == "" {
		d.Name = "simulated"
	}
	for i := range d.Cameras {
		c := &d.Cameras[i]
		if c.ID == "" {
			c.ID = "CAM" + fmt.Sprint(i+1)
		}
		if c.CaptureFPS == 0 {
			c.CaptureFPS = 30
		}
		if c.Settle.Method == "" {
			c.Settle.Method = types.SettleFixedTime
		}
		if c.Settle.GaussianBlur == 0 {
			c.Settle.GaussianBlur = 1
		}
		if c.Settle.FixedTime == 0 && c.Settle.Method == types.SettleFixedTime {
			c.Settle.FixedTime = 250 * time.Millisecond
		}
	}
}

// Demo returns the description of a small two-camera demo machine with the
// typical out-of-the-box problems.
func Demo() *Description {
	fiducial := types.Location{X: 10, Y: 10}
	d := &Description{
		Name:   "demo",
		Motion: MotionDescription{MoveTime: 2 * time.Millisecond},
		Heads: []HeadDescription{{
			Name:            "H1",
			Nozzles:         []string{"N1", "N2"},
			PrimaryFiducial: &fiducial,
			PrimaryXYSolved: true,
		}},
		Cameras: []CameraDescription{
			{
				Name:          "Top",
				Head:          "H1",
				UnitsPerPixel: &types.Location{X: 0.025, Y: 0.025},
				PreviewFPS:    30,
				LightActuator: "TopLight",
				Settle:        types.SettleConfig{Method: types.SettleFixedTime, FixedTime: 250 * time.Millisecond, GaussianBlur: 1},
				ComputeTime: map[types.SettleMethod]time.Duration{
					types.SettleMotionDetect: 80 * time.Millisecond,
					types.SettleMaximumDiff:  15 * time.Millisecond,
				},
			},
			{
				Name:                  "Bottom",
				Location:              &types.Location{X: 200, Y: 40, Z: -20},
				UnitsPerPixel:         &types.Location{X: 0.03, Y: 0.03},
				PreviewFPS:            5,
				SuspendPreviewInTasks: true,
				AutoVisible:           true,
				Settle:                types.SettleConfig{Method: types.SettleFixedTime, FixedTime: 300 * time.Millisecond, GaussianBlur: 1},
				ComputeTime: map[types.SettleMethod]time.Duration{
					types.SettleMotionDetect: 12 * time.Millisecond,
					types.SettleMaximumDiff:  10 * time.Millisecond,
				},
			},
		},
	}
	d.applyDefaults()
	return d
}
