package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/steveyegge/pnpsetup/internal/events"
)

// displayEvent prints a single event in a two-line format
func displayEvent(event *events.Event) {
	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Local().Format("15:04:05")

	subject := event.Subject
	if subject == "" {
		subject = "machine"
	}

	maxMessageLen := 60 - utf8.RuneCountInString(subject) - len(event.Type)
	message := truncateString(event.Message, maxMessageLen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		color.New(color.FgGreen).Sprint(subject),
		color.New(color.FgMagenta).Sprint(event.Type),
		severityColor.Sprint(message),
	)

	if metadata := extractEventMetadata(event); metadata != "" {
		fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(metadata))
	} else {
		fmt.Println()
	}
}

// getEventEmoji returns the emoji for each event type
func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeDetectionCompleted:
		return "🔍"
	case events.EventTypeDetectorFailed:
		return "🚫"
	case events.EventTypeIssueStateChanged:
		return "✅"
	case events.EventTypeIssueStateFailed:
		return "❌"
	case events.EventTypeCalibrationStarted:
		return "📷"
	case events.EventTypeSettleTrialCompleted:
		return "⏱️"
	case events.EventTypeCalibrationEscalated:
		return "⏫"
	case events.EventTypeCalibrationCompleted:
		return "🎯"
	case events.EventTypeCalibrationFailed:
		return "💥"
	}

	switch event.Severity {
	case events.SeverityError, events.SeverityCritical:
		return "❌"
	case events.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata returns the key data fields of an event, pipe-separated
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeSettleTrialCompleted:
		// trial: #n | method | compute | timed out | capture only
		data, err := event.GetSettleTrialData()
		if err != nil {
			return ""
		}
		fields = []string{
			fmt.Sprintf("#%d", data.Trial),
			data.Method,
			formatMs(data.ComputeMs),
		}
		if data.TimedOut {
			fields = append(fields, "timed out")
		}
		if !data.Moved {
			fields = append(fields, "capture only")
		}

	case events.EventTypeCalibrationStarted, events.EventTypeCalibrationEscalated,
		events.EventTypeCalibrationCompleted, events.EventTypeCalibrationFailed:
		// calibration: method | compute / budget | blur | trials | error
		data, err := event.GetCalibrationData()
		if err != nil {
			return ""
		}
		fields = []string{data.Method}
		if data.ComputeMs > 0 {
			fields = append(fields, fmt.Sprintf("%s / %s", formatMs(data.ComputeMs), formatMs(data.BudgetMs)))
		}
		if data.GaussianBlur > 0 {
			fields = append(fields, fmt.Sprintf("blur %d", data.GaussianBlur))
		}
		if data.Trials > 0 {
			fields = append(fields, fmt.Sprintf("%d trials", data.Trials))
		}
		if data.Error != "" {
			fields = append(fields, data.Error)
		}

	case events.EventTypeIssueStateChanged, events.EventTypeIssueStateFailed:
		// transition: from -> to | error | restored
		data, err := event.GetIssueStateData()
		if err != nil {
			return ""
		}
		fields = []string{fmt.Sprintf("%s -> %s", data.From, data.To)}
		if data.Error != "" {
			fields = append(fields, data.Error)
			if data.PreviousIntact {
				fields = append(fields, "previous intact")
			} else {
				fields = append(fields, "NOT RESTORED")
			}
		}

	case events.EventTypeDetectionCompleted, events.EventTypeDetectorFailed:
		// detection: milestone | subjects | issues | error
		data, err := event.GetDetectionData()
		if err != nil {
			return ""
		}
		fields = []string{data.Milestone}
		if data.IssueCount > 0 || data.Error == "" {
			fields = append(fields, fmt.Sprintf("%d subjects", data.Subjects), fmt.Sprintf("%d issues", data.IssueCount))
		}
		if data.Error != "" {
			fields = append(fields, data.Error)
		}
	}

	return truncateString(joinFields(fields), 70)
}

// formatMs formats fractional milliseconds
func formatMs(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

// joinFields joins non-empty fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// truncateString shortens s to maxLen runes, never splitting a character.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
