package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/solutions"
)

// SeverityColor returns the color used for an issue severity
func SeverityColor(s solutions.Severity) *color.Color {
	switch s {
	case solutions.SeverityError:
		return color.New(color.FgRed, color.Bold)
	case solutions.SeverityFundamental:
		return color.New(color.FgRed)
	case solutions.SeverityRecommendation:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// StateSymbol returns the marker shown in front of an issue
func StateSymbol(issue *solutions.Issue) string {
	if issue.InFlight() {
		return color.New(color.FgYellow).Sprint("⚡")
	}
	switch issue.State() {
	case solutions.StateSolved:
		return color.New(color.FgGreen).Sprint("✓")
	case solutions.StateDismissed:
		return color.New(color.FgHiBlack).Sprint("-")
	default:
		return "○"
	}
}

// PrintIssues writes a numbered issue list. Numbers match Solutions.Lookup.
func PrintIssues(w io.Writer, issues []*solutions.Issue, verbose bool) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	for i, issue := range issues {
		sev := SeverityColor(issue.Severity).Sprintf("%-14s", issue.Severity)
		fix := ""
		if !issue.CanSolve() {
			fix = gray(" (manual)")
		}
		fmt.Fprintf(w, "%2d. %s %s %s: %s%s\n", i+1, StateSymbol(issue), sev, issue.Subject, issue.Description, fix)
		if verbose {
			fmt.Fprintf(w, "    %s %s\n", gray("→"), issue.Solution)
			fmt.Fprintf(w, "    %s %s\n", gray("id:"), gray(issue.ID))
		}
	}
}

// PrintIssue writes the full description of one issue
func PrintIssue(w io.Writer, issue *solutions.Issue) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s %s\n", StateSymbol(issue), bold(issue.Description))
	fmt.Fprintf(w, "  Subject:  %s\n", issue.Subject)
	fmt.Fprintf(w, "  Severity: %s\n", SeverityColor(issue.Severity).Sprint(issue.Severity))
	fmt.Fprintf(w, "  State:    %s\n", issue.State())
	fmt.Fprintf(w, "  ID:       %s\n", gray(issue.ID))
	if issue.URI != "" {
		fmt.Fprintf(w, "  Info:     %s\n", issue.URI)
	}
	fmt.Fprintf(w, "\n  %s\n", issue.Solution)

	if ext := issue.ExtendedDescription(); ext != issue.Description {
		fmt.Fprintln(w)
		for _, line := range strings.Split(strings.TrimRight(ext, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
}

// PrintEvents writes events, one per line
func PrintEvents(w io.Writer, evs []*events.Event) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, e := range evs {
		sev := string(e.Severity)
		switch e.Severity {
		case events.SeverityError, events.SeverityCritical:
			sev = color.New(color.FgRed).Sprint(sev)
		case events.SeverityWarning:
			sev = color.New(color.FgYellow).Sprint(sev)
		}
		subject := e.Subject
		if subject == "" {
			subject = "-"
		}
		fmt.Fprintf(w, "%s %-7s %-24s %-8s %s\n",
			gray(e.Timestamp.Local().Format("2006-01-02 15:04:05")), sev, e.Type, subject, e.Message)
	}
}
