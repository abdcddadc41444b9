// Package solutions implements the setup issues registry: detectors
// ("subjects") inspect machine objects and report Issues, each of which
// carries a reversible fix that the operator can accept, revert or dismiss.
//
// Detection is filtered by the milestone the operator is targeting. A
// subject asks IsTargeting(m) before reporting issues that belong to m.
package solutions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/steveyegge/pnpsetup/internal/events"
)

// Subject is anything that can inspect itself and report issues.
type Subject interface {
	// Name identifies the subject (e.g. a camera name). Must be unique.
	Name() string

	// FindIssues adds the subject's current issues to s.
	FindIssues(ctx context.Context, s *Solutions) error
}

// Solutions holds the registered subjects and the issues found in the last
// detection pass.
type Solutions struct {
	mu       sync.RWMutex
	target   Milestone
	subjects []Subject
	issues   []*Issue
	recorder events.Recorder
}

// New creates an empty registry targeting milestone.
func New(target Milestone) *Solutions {
	return &Solutions{target: target}
}

// SetRecorder sets where detection events are recorded. Nil disables recording.
func (s *Solutions) SetRecorder(rec events.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = rec
}

// Register adds a subject. Subjects run in registration order.
func (s *Solutions) Register(subject Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := subject.Name()
	for _, existing := range s.subjects {
		if existing.Name() == name {
			return fmt.Errorf("subject %q already registered", name)
		}
	}
	s.subjects = append(s.subjects, subject)
	return nil
}

// Subjects returns the registered subject names in registration order.
func (s *Solutions) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.subjects))
	for _, subj := range s.subjects {
		names = append(names, subj.Name())
	}
	return names
}

// TargetMilestone returns the targeted milestone.
func (s *Solutions) TargetMilestone() Milestone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// SetTargetMilestone changes the targeted milestone. Takes effect on the next FindIssues.
func (s *Solutions) SetTargetMilestone(m Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = m
}

// IsTargeting reports whether issues of milestone m should be reported.
// Earlier milestones stay targeted once a later one is selected.
func (s *Solutions) IsTargeting(m Milestone) bool {
	return m <= s.TargetMilestone()
}

// Add records an issue. Called by subjects during FindIssues.
func (s *Solutions) Add(issue *Issue) {
	if issue == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, issue)
}

// FindIssues discards the previous issues and runs every subject again. A
// failing subject does not abort detection; it is reported as an
// informational issue of Error severity instead.
func (s *Solutions) FindIssues(ctx context.Context) error {
	s.mu.Lock()
	s.issues = nil
	subjects := make([]Subject, len(s.subjects))
	copy(subjects, s.subjects)
	rec := s.recorder
	target := s.target
	s.mu.Unlock()

	failed := 0
	for _, subj := range subjects {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("detection canceled: %w", err)
		}
		if err := subj.FindIssues(ctx, s); err != nil {
			failed++
			slog.Warn("detector failed", "subject", subj.Name(), "error", err)
			s.Add(NewIssue(subj.Name(),
				fmt.Sprintf("Issue detection failed: %v", err),
				"Check the machine configuration of this object and run detection again.",
				SeverityError, "", Fix{}))
			s.emitDetection(ctx, rec, events.EventTypeDetectorFailed, subj.Name(),
				fmt.Sprintf("Detector %s failed", subj.Name()),
				events.DetectionData{Milestone: target.String(), Subjects: 1, Error: err.Error()})
		}
	}

	issues := s.Issues()
	slog.Debug("detection completed", "milestone", target, "subjects", len(subjects), "issues", len(issues), "failed", failed)
	s.emitDetection(ctx, rec, events.EventTypeDetectionCompleted, "",
		fmt.Sprintf("Found %d issue(s) for milestone %s", len(issues), target),
		events.DetectionData{Milestone: target.String(), Subjects: len(subjects), IssueCount: len(issues)})
	return nil
}

func (s *Solutions) emitDetection(ctx context.Context, rec events.Recorder, eventType events.EventType, subject, msg string, data events.DetectionData) {
	if rec == nil {
		return
	}
	event, err := events.NewDetectionEvent(eventType, subject, msg, data)
	if err != nil {
		slog.Warn("failed to build detection event", "error", err)
		return
	}
	events.Emit(ctx, rec, event)
}

// Issues returns the issues in detection order.
func (s *Solutions) Issues() []*Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Issue, len(s.issues))
	copy(out, s.issues)
	return out
}

// Sorted returns the issues ordered by severity, most severe first. Issues
// of equal severity keep detection order.
func (s *Solutions) Sorted() []*Issue {
	out := s.Issues()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity > out[j].Severity
	})
	return out
}

// Pending returns the open issues in sorted order.
func (s *Solutions) Pending() []*Issue {
	var pending []*Issue
	for _, issue := range s.Sorted() {
		if issue.State() == StateOpen {
			pending = append(pending, issue)
		}
	}
	return pending
}

// Get returns the issue with the given ID.
func (s *Solutions) Get(id string) (*Issue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, issue := range s.issues {
		if issue.ID == id {
			return issue, true
		}
	}
	return nil, false
}

// Lookup resolves an operator reference to an issue: either a 1-based
// position in Sorted() order or an unambiguous ID prefix.
func (s *Solutions) Lookup(ref string) (*Issue, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("issue reference is required")
	}

	sorted := s.Sorted()
	n, numErr := strconv.Atoi(ref)
	if numErr == nil && n >= 1 && n <= len(sorted) {
		return sorted[n-1], nil
	}

	var match *Issue
	for _, issue := range sorted {
		if strings.HasPrefix(issue.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("issue reference %q is ambiguous", ref)
			}
			match = issue
		}
	}
	if match == nil {
		if numErr == nil {
			return nil, fmt.Errorf("issue #%d out of range (1-%d)", n, len(sorted))
		}
		return nil, fmt.Errorf("no issue matches %q", ref)
	}
	return match, nil
}
