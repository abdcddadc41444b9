package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/pnpsetup/internal/apply"
	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/solutions"
)

// fakeSubject reports a solvable issue and an informational one.
type fakeSubject struct {
	mu       sync.Mutex
	applied  bool
	applyErr error
}

func (s *fakeSubject) Name() string { return "Top" }

func (s *fakeSubject) FindIssues(ctx context.Context, sol *solutions.Solutions) error {
	sol.Add(solutions.NewIssue("Top", "Preview frame rate is high", "Lower it.",
		solutions.SeveritySuggestion, "", solutions.Fix{
			Apply: func(ctx context.Context) error {
				s.mu.Lock()
				defer s.mu.Unlock()
				if s.applyErr != nil {
					return s.applyErr
				}
				s.applied = true
				return nil
			},
			Revert: func(ctx context.Context) error {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.applied = false
				return nil
			},
		}))
	if sol.IsTargeting(solutions.MilestoneVision) {
		sol.Add(solutions.NewIssue("Top", "Camera uses a fixed settle time", "Calibrate.",
			solutions.SeverityFundamental, "", solutions.Fix{}))
	}
	return nil
}

func (s *fakeSubject) isApplied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

type memoryStore struct {
	mu     sync.Mutex
	events []*events.Event
}

func (m *memoryStore) StoreEvent(ctx context.Context, e *events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryStore) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	return m.GetRecentEvents(ctx, filter.Limit)
}

func (m *memoryStore) GetEventsByIssue(ctx context.Context, issueID string) ([]*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*events.Event
	for _, e := range m.events {
		if e.IssueID == issueID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) GetRecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*events.Event
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

type harness struct {
	repl    *REPL
	out     *bytes.Buffer
	subject *fakeSubject
	store   *memoryStore
	changes []apply.StateChange
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	runner, err := apply.NewRunner(nil)
	require.NoError(t, err)
	runner.Start()
	t.Cleanup(func() { _ = runner.Close() })

	h := &harness{out: &bytes.Buffer{}, subject: &fakeSubject{}, store: &memoryStore{}}
	sol := solutions.New(solutions.MilestoneVision)
	require.NoError(t, sol.Register(h.subject))
	require.NoError(t, sol.FindIssues(context.Background()))

	h.repl, err = New(&Config{
		Solutions: sol,
		Runner:    runner,
		Store:     h.store,
		OnChange: func(c apply.StateChange) error {
			h.changes = append(h.changes, c)
			return nil
		},
		Out: h.out,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) run(t *testing.T, line string) error {
	t.Helper()
	err := h.repl.processInput(line)
	h.repl.Wait()
	return err
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Config{})
	assert.Error(t, err)
	_, err = New(&Config{Solutions: solutions.New(solutions.MilestoneVision)})
	assert.Error(t, err)
}

func TestListSortsBySeverity(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "list"))

	out := h.out.String()
	fundamental := bytes.Index([]byte(out), []byte("fixed settle time"))
	suggestion := bytes.Index([]byte(out), []byte("frame rate"))
	require.True(t, fundamental >= 0 && suggestion >= 0)
	assert.Less(t, fundamental, suggestion)
	assert.Contains(t, out, "(manual)")
}

func TestAcceptAndRevert(t *testing.T) {
	h := newHarness(t)

	// 1 is the fundamental, manual issue
	require.NoError(t, h.run(t, "accept 2"))
	assert.True(t, h.subject.isApplied())
	assert.Contains(t, h.out.String(), "solved")
	require.Len(t, h.changes, 1)
	assert.Equal(t, solutions.StateSolved, h.changes[0].To)

	require.NoError(t, h.run(t, "revert 2"))
	assert.False(t, h.subject.isApplied())
	require.Len(t, h.changes, 2)

	recent, err := h.store.GetRecentEvents(context.Background(), 0)
	require.NoError(t, err)
	var transitions int
	for _, e := range recent {
		if e.Type == events.EventTypeIssueStateChanged {
			transitions++
		}
	}
	assert.Equal(t, 2, transitions)
}

func TestAcceptWithoutFix(t *testing.T) {
	h := newHarness(t)
	err := h.run(t, "accept 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no automatic fix")
}

func TestAcceptFailureReportsIntactConfiguration(t *testing.T) {
	h := newHarness(t)
	h.subject.applyErr = errors.New("controller fault")

	require.NoError(t, h.run(t, "accept 2"))
	assert.Contains(t, h.out.String(), "controller fault")
	assert.Contains(t, h.out.String(), "previous configuration is intact")
	assert.Empty(t, h.changes)

	issue, err := h.repl.solutions.Lookup("2")
	require.NoError(t, err)
	assert.Equal(t, solutions.StateOpen, issue.State())
}

func TestDismiss(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "dismiss 2"))

	issue, err := h.repl.solutions.Lookup("2")
	require.NoError(t, err)
	assert.Equal(t, solutions.StateDismissed, issue.State())

	h.out.Reset()
	require.NoError(t, h.run(t, "accept 2"))
	// dismissed issues cannot be reopened
	assert.Contains(t, h.out.String(), "failed")
	assert.False(t, h.subject.isApplied())
}

func TestShowUnknownIssue(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.run(t, "show 9"))
	assert.Error(t, h.run(t, "show"))

	require.NoError(t, h.run(t, "show 2"))
	assert.Contains(t, h.out.String(), "Lower it.")
}

func TestMilestoneRedetects(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "milestone basics"))
	assert.Equal(t, solutions.MilestoneBasics, h.repl.solutions.TargetMilestone())
	assert.Len(t, h.repl.solutions.Issues(), 1)

	assert.Error(t, h.run(t, "milestone nowhere"))
}

func TestStatusAndHistory(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "accept 2"))

	h.out.Reset()
	require.NoError(t, h.run(t, "status"))
	assert.Contains(t, h.out.String(), "1 issues")

	h.out.Reset()
	require.NoError(t, h.run(t, "history 5"))
	assert.Contains(t, h.out.String(), string(events.EventTypeIssueStateChanged))

	assert.Error(t, h.run(t, "history zero"))
}

func TestUnknownCommandAndExit(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, "frobnicate"))
	assert.Contains(t, h.out.String(), "Unknown command")

	assert.Equal(t, io.EOF, h.run(t, "exit"))
}
