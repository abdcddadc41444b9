package repl

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"

	"github.com/steveyegge/pnpsetup/internal/apply"
	"github.com/steveyegge/pnpsetup/internal/solutions"
)

func (r *REPL) cmdList(args []string) error {
	issues := r.solutions.Sorted()
	if len(issues) == 0 {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(r.out, "\n%s No issues for milestone %s.\n\n", green("✓"), r.solutions.TargetMilestone())
		return nil
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan(fmt.Sprintf("Issues (milestone %s)", r.solutions.TargetMilestone())))
	PrintIssues(r.out, issues, len(args) > 0 && args[0] == "-v")
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) lookup(args []string) (*solutions.Issue, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one issue number or ID")
	}
	return r.solutions.Lookup(args[0])
}

func (r *REPL) cmdShow(args []string) error {
	issue, err := r.lookup(args)
	if err != nil {
		return err
	}
	PrintIssue(r.out, issue)
	return nil
}

func (r *REPL) cmdAccept(args []string) error {
	return r.transition(args, solutions.StateSolved)
}

func (r *REPL) cmdRevert(args []string) error {
	return r.transition(args, solutions.StateOpen)
}

func (r *REPL) cmdDismiss(args []string) error {
	return r.transition(args, solutions.StateDismissed)
}

// transition submits the state change to the runner and returns at once.
// The outcome is printed when the worker reports it.
func (r *REPL) transition(args []string, target solutions.State) error {
	issue, err := r.lookup(args)
	if err != nil {
		return err
	}
	if target == solutions.StateSolved && !issue.CanSolve() {
		return fmt.Errorf("%s has no automatic fix: %s", issue.Subject, issue.Solution)
	}
	if issue.InFlight() {
		return fmt.Errorf("a fix for this issue is already running")
	}

	// printed before submitting: the worker shares the output
	if target == solutions.StateSolved {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(r.out, "%s Solving %s: %s\n", yellow("⚡"), issue.Subject, issue.Description)
	}

	r.pending.Add(1)
	_, err = apply.ApplyState(r.ctx, r.runner, issue, target, r.store, func(c apply.StateChange) {
		defer r.pending.Done()
		r.report(c)
	})
	if err != nil {
		r.pending.Done()
		return fmt.Errorf("failed to submit: %w", err)
	}

	return nil
}

// report runs on the worker goroutine.
func (r *REPL) report(c apply.StateChange) {
	w := r.asyncOut()
	if c.Failed() {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(w, "%s %s: %s -> %s failed: %v\n", red("✗"), c.Issue.Subject, c.From, c.To, c.Err)
		if c.PreviousIntact {
			fmt.Fprintln(w, "  The previous configuration is intact.")
		} else {
			fmt.Fprintln(w, red("  The previous configuration could not be restored. Check the machine before continuing."))
		}
		return
	}

	if r.onChange != nil {
		if err := r.onChange(c); err != nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(w, "%s %s changed but could not be saved: %v\n", yellow("Warning:"), c.Issue.Subject, err)
		}
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w, "%s %s: %s\n", green("✓"), c.Issue.Subject, c.To)
}

func (r *REPL) cmdDetect(args []string) error {
	for _, issue := range r.solutions.Issues() {
		if issue.InFlight() {
			return fmt.Errorf("wait for running fixes to finish before detecting again")
		}
	}
	if err := r.solutions.FindIssues(r.ctx); err != nil {
		return err
	}
	return r.cmdList(nil)
}

func (r *REPL) cmdMilestone(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Targeting milestone %s\n", r.solutions.TargetMilestone())
		return nil
	}
	m, err := solutions.ParseMilestone(args[0])
	if err != nil {
		return err
	}
	r.solutions.SetTargetMilestone(m)
	fmt.Fprintf(r.out, "Targeting milestone %s\n", m)
	return r.cmdDetect(nil)
}

func (r *REPL) cmdStatus(args []string) error {
	var open, solved, dismissed, running int
	for _, issue := range r.solutions.Issues() {
		if issue.InFlight() {
			running++
		}
		switch issue.State() {
		case solutions.StateOpen:
			open++
		case solutions.StateSolved:
			solved++
		case solutions.StateDismissed:
			dismissed++
		}
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(r.out, "\n%s\n\n", cyan(fmt.Sprintf("Setup Status (milestone %s)", r.solutions.TargetMilestone())))
	fmt.Fprintf(r.out, "  %s  %d issues\n", "○ Open", open)
	fmt.Fprintf(r.out, "  %s  %d issues\n", green("✓ Solved"), solved)
	fmt.Fprintf(r.out, "  %s  %d issues\n", gray("- Dismissed"), dismissed)
	fmt.Fprintf(r.out, "  %s  %d running\n", yellow("⚡ In Progress"), running)
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdHistory(args []string) error {
	if r.store == nil {
		return fmt.Errorf("no event store configured")
	}
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}

	evs, err := r.store.GetRecentEvents(r.ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to get events: %w", err)
	}
	if len(evs) == 0 {
		fmt.Fprintln(r.out, "No events recorded yet.")
		return nil
	}
	// oldest first reads like a log
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	PrintEvents(r.out, evs)
	return nil
}
