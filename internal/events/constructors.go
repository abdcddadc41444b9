package events

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// New creates an event without structured data.
func New(eventType EventType, subject, issueID string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Subject:   subject,
		IssueID:   issueID,
		Severity:  severity,
		Message:   message,
		Data:      map[string]interface{}{},
	}
}

// NewIssueStateEvent creates an issue transition event with type-safe data.
// Failed transitions (data.Error set) get error severity, or critical when
// the previous configuration could not be restored.
func NewIssueStateEvent(subject, issueID, message string, data IssueStateData) (*Event, error) {
	eventType := EventTypeIssueStateChanged
	severity := SeverityInfo
	if data.Error != "" {
		eventType = EventTypeIssueStateFailed
		severity = SeverityError
		if !data.PreviousIntact {
			severity = SeverityCritical
		}
	}
	event := New(eventType, subject, issueID, severity, message)
	if err := event.SetIssueStateData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewSettleTrialEvent creates a settle trial event with type-safe data.
func NewSettleTrialEvent(subject, issueID, message string, data SettleTrialData) (*Event, error) {
	severity := SeverityInfo
	if data.TimedOut {
		severity = SeverityWarning
	}
	event := New(EventTypeSettleTrialCompleted, subject, issueID, severity, message)
	if err := event.SetSettleTrialData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewCalibrationEvent creates a calibration outcome event with type-safe data.
func NewCalibrationEvent(eventType EventType, subject, issueID, message string, data CalibrationData) (*Event, error) {
	severity := SeverityInfo
	switch {
	case eventType == EventTypeCalibrationFailed:
		severity = SeverityError
	case eventType == EventTypeCalibrationCompleted && !data.Passed:
		severity = SeverityWarning
	}
	event := New(eventType, subject, issueID, severity, message)
	if err := event.SetCalibrationData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewDetectionEvent creates a detection event with type-safe data.
func NewDetectionEvent(eventType EventType, subject, message string, data DetectionData) (*Event, error) {
	severity := SeverityInfo
	if data.Error != "" {
		severity = SeverityWarning
	}
	event := New(eventType, subject, "", severity, message)
	if err := event.SetDetectionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// Emit stores an event on a best-effort basis. Events are observability:
// a nil recorder or a failing store never fails the caller.
func Emit(ctx context.Context, rec Recorder, event *Event) {
	if rec == nil || event == nil {
		return
	}
	if err := rec.StoreEvent(ctx, event); err != nil {
		log.Printf("Warning: failed to store %s event: %v", event.Type, err)
	}
}
