package events

import (
	"testing"
	"time"
)

func TestEventTypeIsValid(t *testing.T) {
	tests := []struct {
		name     string
		et       EventType
		expected bool
	}{
		{"detection completed", EventTypeDetectionCompleted, true},
		{"issue state changed", EventTypeIssueStateChanged, true},
		{"settle trial", EventTypeSettleTrialCompleted, true},
		{"calibration failed", EventTypeCalibrationFailed, true},
		{"runner error", EventTypeRunnerError, true},
		{"unknown type", EventType("file_modified"), false},
		{"empty string", EventType(""), false},
		{"uppercase", EventType("DETECTION_COMPLETED"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.et.IsValid(); got != tt.expected {
				t.Errorf("EventType(%q).IsValid() = %v, expected %v", tt.et, got, tt.expected)
			}
		})
	}
}

func TestEventValidate(t *testing.T) {
	valid := New(EventTypeDetectionCompleted, "Top", "", SeverityInfo, "done")
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(e *Event)
	}{
		{"missing id", func(e *Event) { e.ID = "" }},
		{"unknown type", func(e *Event) { e.Type = "file_modified" }},
		{"unknown severity", func(e *Event) { e.Severity = "fatal" }},
		{"zero timestamp", func(e *Event) { e.Timestamp = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(EventTypeDetectionCompleted, "Top", "", SeverityInfo, "done")
			tt.mutate(e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
