package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/steveyegge/pnpsetup/internal/storage/sqlite"
)

func TestPrintEventCounts(t *testing.T) {
	var out bytes.Buffer
	printEventCounts(&out, &sqlite.EventCounts{
		TotalEvents:      4,
		EventsBySeverity: map[string]int{"info": 3, "critical": 1},
		EventsByType:     map[string]int{"issue_state_failed": 1, "detection_completed": 3},
		EventsBySubject:  map[string]int{"": 3, "Top": 1},
	})
	got := out.String()

	for _, want := range []string{"Total events: 4", "By severity:", "critical", "By type:", "issue_state_failed", "By camera:", "machine", "Top"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	// keys are sorted
	if strings.Index(got, "critical") > strings.Index(got, "info") {
		t.Errorf("severities not sorted:\n%s", got)
	}
}

func TestPrintEventCountsEmpty(t *testing.T) {
	var out bytes.Buffer
	printEventCounts(&out, &sqlite.EventCounts{})
	if got := out.String(); got != "Total events: 0\n" {
		t.Errorf("printEventCounts() = %q", got)
	}
}
