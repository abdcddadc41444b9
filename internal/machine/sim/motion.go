package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/pnpsetup/internal/machine"
	"github.com/steveyegge/pnpsetup/internal/types"
)

// ErrControllerFault is the injected motion controller fault.
var ErrControllerFault = errors.New("simulated controller fault")

// Move is one recorded simulated move.
type Move struct {
	Movable  string
	Location types.Location
	SafeZ    bool
}

// Motion is a simulated motion coordinator. It keeps the position of every
// Movable and a log of all moves.
type Motion struct {
	mu        sync.Mutex
	moveTime  time.Duration
	failMove  int
	moveCount int
	positions map[string]types.Location
	moves     []Move
	waits     int
}

// NewMotion creates a simulated motion coordinator
func NewMotion(desc MotionDescription) *Motion {
	return &Motion{
		moveTime:  desc.MoveTime,
		failMove:  desc.FailMove,
		positions: make(map[string]types.Location),
	}
}

// FailMove makes the n-th move from now (1-based) fail. 0 disables injection.
func (m *Motion) FailMove(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failMove = 0
	if n > 0 {
		m.failMove = m.moveCount + n
	}
}

func (m *Motion) MoveTo(ctx context.Context, mov machine.Movable, loc types.Location) error {
	return m.move(ctx, "move", mov, loc, false)
}

func (m *Motion) MoveToSafeZ(ctx context.Context, mov machine.Movable, loc types.Location) error {
	return m.move(ctx, "move_safe_z", mov, loc, true)
}

func (m *Motion) move(ctx context.Context, op string, mov machine.Movable, loc types.Location, safeZ bool) error {
	if mov == nil {
		return machine.NewMotionError(op, nil, fmt.Errorf("nothing to move"))
	}

	m.mu.Lock()
	m.moveCount++
	fail := m.failMove != 0 && m.moveCount == m.failMove
	moveTime := m.moveTime
	m.mu.Unlock()

	if fail {
		return machine.NewMotionError(op, mov, ErrControllerFault)
	}
	if err := sleep(ctx, moveTime); err != nil {
		return machine.NewMotionError(op, mov, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[mov.Name()] = loc
	m.moves = append(m.moves, Move{Movable: mov.Name(), Location: loc, SafeZ: safeZ})
	return nil
}

// WaitForCompletion returns immediately; simulated moves complete synchronously.
func (m *Motion) WaitForCompletion(ctx context.Context, mov machine.Movable, completion types.CompletionType) error {
	if err := ctx.Err(); err != nil {
		return machine.NewMotionError("wait", mov, err)
	}
	m.mu.Lock()
	m.waits++
	m.mu.Unlock()
	return nil
}

// Position returns the last location mov was moved to.
func (m *Motion) Position(name string) (types.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.positions[name]
	return loc, ok
}

// Moves returns the move log.
func (m *Motion) Moves() []Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Move, len(m.moves))
	copy(out, m.moves)
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
