package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/types"
)

// Nozzle is a simulated nozzle.
type Nozzle struct {
	name string
}

func (n *Nozzle) Name() string { return n.name }
func (n *Nozzle) Kind() string { return "nozzle" }

// Head is a simulated head.
type Head struct {
	desc    HeadDescription
	nozzles []*Nozzle
}

func (h *Head) Name() string { return h.desc.Name }

func (h *Head) DefaultNozzle() (machine.Movable, error) {
	if len(h.nozzles) == 0 {
		return nil, fmt.Errorf("head %s has no nozzles", h.desc.Name)
	}
	return h.nozzles[0], nil
}

func (h *Head) PrimaryFiducialLocation() (types.Location, bool) {
	if h.desc.PrimaryFiducial == nil {
		return types.Location{}, false
	}
	return *h.desc.PrimaryFiducial, true
}

// Machine is a simulated machine.
type Machine struct {
	name    string
	motion  *Motion
	heads   []*Head
	cameras []*Camera
	desc    Description

	mu       sync.Mutex
	selected string
}

// New builds a simulated machine from a description.
func New(desc *Description) (*Machine, error) {
	if desc == nil {
		return nil, fmt.Errorf("description cannot be nil")
	}
	d := *desc
	d.Cameras = append([]CameraDescription(nil), desc.Cameras...)
	d.applyDefaults()
	desc = &d
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid machine description: %w", err)
	}

	m := &Machine{
		name:   desc.Name,
		motion: NewMotion(desc.Motion),
		desc:   *desc,
	}
	heads := make(map[string]*Head)
	for _, hd := range desc.Heads {
		h := &Head{desc: hd}
		for _, n := range hd.Nozzles {
			h.nozzles = append(h.nozzles, &Nozzle{name: n})
		}
		heads[hd.Name] = h
		m.heads = append(m.heads, h)
	}
	for _, cd := range desc.Cameras {
		var head *Head
		if cd.Head != "" {
			head = heads[cd.Head]
		}
		m.cameras = append(m.cameras, newCamera(cd, head))
	}
	return m, nil
}

// Load reads a description file and builds the machine.
func Load(path string) (*Machine, error) {
	desc, err := LoadDescription(path)
	if err != nil {
		return nil, err
	}
	return New(desc)
}

// Name returns the machine name
func (m *Machine) Name() string { return m.name }

func (m *Machine) Motion() machine.MotionCoordinator { return m.motion }

// SimMotion returns the simulated motion coordinator for fault injection and inspection.
func (m *Machine) SimMotion() *Motion { return m.motion }

func (m *Machine) DefaultHead() (machine.Head, error) {
	if len(m.heads) == 0 {
		return nil, fmt.Errorf("machine %s has no heads", m.name)
	}
	return m.heads[0], nil
}

func (m *Machine) Cameras() []machine.Camera {
	out := make([]machine.Camera, len(m.cameras))
	for i, c := range m.cameras {
		out[i] = c
	}
	return out
}

// Camera returns the simulated camera with the given name.
func (m *Machine) Camera(name string) (*Camera, bool) {
	for _, c := range m.cameras {
		if c.Name() == name || c.ID() == name {
			return c, true
		}
	}
	return nil, false
}

func (m *Machine) IsPrimaryXYSolved(h machine.Head) bool {
	if h == nil {
		return false
	}
	for _, head := range m.heads {
		if head.Name() == h.Name() {
			return head.desc.PrimaryXYSolved
		}
	}
	return false
}

// SelectTool records the tool the operator should focus on.
func (m *Machine) SelectTool(ctx context.Context, mov machine.Movable) error {
	if mov == nil {
		return fmt.Errorf("no tool to select")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = mov.Name()
	return nil
}

// SelectedTool returns the name of the last selected tool.
func (m *Machine) SelectedTool() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Snapshot returns the description of the machine's current state, including
// configuration changed through the camera setters.
func (m *Machine) Snapshot() *Description {
	d := m.desc
	d.Heads = append([]HeadDescription(nil), m.desc.Heads...)
	d.Cameras = make([]CameraDescription, len(m.cameras))
	for i, c := range m.cameras {
		d.Cameras[i] = c.snapshot()
	}
	return &d
}

// Save writes the current state to path.
func (m *Machine) Save(path string) error {
	return m.Snapshot().Save(path)
}
