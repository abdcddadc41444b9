package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/storage/sqlite"
)

// Note: displayEvent and related helper functions are in event_display.go

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent setup events",
	Long: `Display recorded setup events: detection runs, issue transitions and
settle calibration trials.

Examples:
  pnpsetup history                          # Show last 20 events
  pnpsetup history -n 50                    # Show last 50 events
  pnpsetup history --camera Top             # Events of one camera
  pnpsetup history --issue 3f2a...          # Events of one issue
  pnpsetup history --type calibration_failed
  pnpsetup history --stats                  # Event counts
  pnpsetup history --prune 30               # Delete events older than 30 days`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		camera, _ := cmd.Flags().GetString("camera")
		issueID, _ := cmd.Flags().GetString("issue")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		prune, _ := cmd.Flags().GetInt("prune")
		stats, _ := cmd.Flags().GetBool("stats")
		ctx := cmd.Context()

		if stats {
			counts, err := store.GetEventCounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to count events: %w", err)
			}
			printEventCounts(os.Stdout, counts)
			return nil
		}

		if prune > 0 {
			// failures are kept three times as long
			deleted, err := store.CleanupEventsByAge(ctx, prune, prune*3, 500)
			if err != nil {
				return fmt.Errorf("failed to prune events: %w", err)
			}
			if deleted > 0 {
				if err := store.VacuumDatabase(ctx); err != nil {
					return err
				}
			}
			fmt.Printf("Deleted %d event(s)\n", deleted)
			return nil
		}

		if eventType != "" && !events.EventType(eventType).IsValid() {
			return fmt.Errorf("unknown event type %q", eventType)
		}
		if severity != "" && !events.EventSeverity(severity).IsValid() {
			return fmt.Errorf("unknown severity %q", severity)
		}

		var list []*events.Event
		var err error
		switch {
		case issueID != "" && camera == "" && eventType == "" && severity == "":
			list, err = store.GetEventsByIssue(ctx, issueID)
			// oldest first; flip so the display below can treat all results alike
			for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
				list[i], list[j] = list[j], list[i]
			}
		case issueID == "" && camera == "" && eventType == "" && severity == "":
			list, err = store.GetRecentEvents(ctx, limit)
		default:
			list, err = store.GetEvents(ctx, events.EventFilter{
				IssueID:  issueID,
				Subject:  camera,
				Type:     events.EventType(eventType),
				Severity: events.EventSeverity(severity),
				Limit:    limit,
			})
		}
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}

		if len(list) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No events found matching the criteria\n\n", yellow("✨"))
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Setup history (%d events):\n\n", cyan("📋"), len(list))
		for i := len(list) - 1; i >= 0; i-- {
			displayEvent(list[i])
		}
		fmt.Println()
		return nil
	},
}

// printEventCounts prints totals by severity, type and subject.
func printEventCounts(w io.Writer, counts *sqlite.EventCounts) {
	fmt.Fprintf(w, "Total events: %d\n", counts.TotalEvents)
	printCountGroup(w, "By severity", counts.EventsBySeverity)
	printCountGroup(w, "By type", counts.EventsByType)
	printCountGroup(w, "By camera", counts.EventsBySubject)
}

func printCountGroup(w io.Writer, title string, group map[string]int) {
	if len(group) == 0 {
		return
	}
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		name := k
		if name == "" {
			name = "machine"
		}
		fmt.Fprintf(w, "  %-28s %d\n", name, group[k])
	}
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show")
	historyCmd.Flags().StringP("camera", "c", "", "Filter events by camera (subject)")
	historyCmd.Flags().StringP("issue", "i", "", "Filter events by issue ID")
	historyCmd.Flags().StringP("type", "t", "", "Filter by event type (e.g. settle_trial_completed)")
	historyCmd.Flags().StringP("severity", "s", "", "Filter by severity (info, warning, error, critical)")
	historyCmd.Flags().Bool("stats", false, "Show event counts instead of listing")
	historyCmd.Flags().Int("prune", 0, "Delete events older than this many days instead of listing")
	rootCmd.AddCommand(historyCmd)
}
