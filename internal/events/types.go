package events

import (
	"context"
	"fmt"
	"time"
)

// EventType represents the type of event that occurred during machine setup.
type EventType string

const (
	// Detection events
	// EventTypeDetectionCompleted indicates all registered detectors ran
	EventTypeDetectionCompleted EventType = "detection_completed"
	// EventTypeDetectorFailed indicates a single detector failed to run
	EventTypeDetectorFailed EventType = "detector_failed"

	// Issue lifecycle events
	// EventTypeIssueStateChanged indicates an issue transitioned to a new state
	EventTypeIssueStateChanged EventType = "issue_state_changed"
	// EventTypeIssueStateFailed indicates a transition failed and the previous state was kept
	EventTypeIssueStateFailed EventType = "issue_state_failed"

	// Settle calibration events
	// EventTypeCalibrationStarted indicates a settle calibration began
	EventTypeCalibrationStarted EventType = "calibration_started"
	// EventTypeSettleTrialCompleted indicates one settle trial finished (passed or timed out)
	EventTypeSettleTrialCompleted EventType = "settle_trial_completed"
	// EventTypeCalibrationEscalated indicates the baseline was too expensive and the alternate method is tried
	EventTypeCalibrationEscalated EventType = "calibration_escalated"
	// EventTypeCalibrationCompleted indicates a configuration was committed
	EventTypeCalibrationCompleted EventType = "calibration_completed"
	// EventTypeCalibrationFailed indicates calibration aborted and the previous configuration was restored
	EventTypeCalibrationFailed EventType = "calibration_failed"

	// EventTypeRunnerError indicates an error surfaced from an apply continuation
	EventTypeRunnerError EventType = "runner_error"
)

// IsValid checks if the event type value is known
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeDetectionCompleted, EventTypeDetectorFailed,
		EventTypeIssueStateChanged, EventTypeIssueStateFailed,
		EventTypeCalibrationStarted, EventTypeSettleTrialCompleted,
		EventTypeCalibrationEscalated, EventTypeCalibrationCompleted,
		EventTypeCalibrationFailed, EventTypeRunnerError:
		return true
	}
	return false
}

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// IsValid checks if the severity value is known
func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Event represents something that happened while detecting or solving issues.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Subject is the detector target the event concerns (e.g. a camera name)
	Subject string `json:"subject"`
	// IssueID is the issue being solved when this event occurred, if any
	IssueID string `json:"issue_id"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// Validate checks that the event can be stored
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid event type: %q", e.Type)
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %q", e.Severity)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// IssueStateData contains structured data for issue transition events.
type IssueStateData struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error,omitempty"`
	// PreviousIntact is set on failures once the previous configuration was confirmed restored
	PreviousIntact bool `json:"previous_intact"`
}

// SettleTrialData contains structured data for settle trial events.
type SettleTrialData struct {
	Trial     int     `json:"trial"`
	Method    string  `json:"method"`
	ComputeMs float64 `json:"compute_ms"`
	TimedOut  bool    `json:"timed_out"`
	Moved     bool    `json:"moved"`
}

// CalibrationData contains structured data for calibration outcome events.
type CalibrationData struct {
	Method       string  `json:"method"`
	ComputeMs    float64 `json:"compute_ms"`
	BudgetMs     float64 `json:"budget_ms"`
	Passed       bool    `json:"passed"`
	Escalated    bool    `json:"escalated"`
	Trials       int     `json:"trials"`
	GaussianBlur int     `json:"gaussian_blur"`
	Error        string  `json:"error,omitempty"`
}

// DetectionData contains structured data for detection events.
type DetectionData struct {
	Milestone  string `json:"milestone"`
	Subjects   int    `json:"subjects"`
	IssueCount int    `json:"issue_count"`
	Error      string `json:"error,omitempty"`
}

// Recorder accepts events. Implemented by the SQLite store.
type Recorder interface {
	StoreEvent(ctx context.Context, event *Event) error
}

// EventStore defines the interface for storing and retrieving events.
type EventStore interface {
	Recorder

	// GetEvents retrieves events matching the given filter
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// GetEventsByIssue retrieves all events for a specific issue
	GetEventsByIssue(ctx context.Context, issueID string) ([]*Event, error)

	// GetRecentEvents retrieves the most recent events up to the specified limit
	GetRecentEvents(ctx context.Context, limit int) ([]*Event, error)
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	// IssueID filters events by issue ID
	IssueID string
	// Subject filters events by subject
	Subject string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit limits the number of events returned
	Limit int
}
