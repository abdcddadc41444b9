package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pnpsetup/internal/apply"
	"github.com/steveyegge/pnpsetup/internal/solutions"
)

var solveCmd = &cobra.Command{
	Use:   "solve <n|id>",
	Short: "Apply the automatic fix of an issue",
	Long: `Apply the fix of one issue listed by 'pnpsetup check', wait for it and
save the changed machine configuration.

If the fix fails, the previous configuration is restored and the command
reports whether that succeeded.

With --try the fix is applied, reported and reverted again, leaving the
machine configuration unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		milestone, _ := cmd.Flags().GetString("milestone")
		try, _ := cmd.Flags().GetBool("try")
		if milestone == "" {
			milestone = cfg.Milestone
		}
		ctx := cmd.Context()

		s, err := newSolutions(ctx, milestone)
		if err != nil {
			return err
		}
		issue, err := s.Lookup(args[0])
		if err != nil {
			return err
		}
		if !issue.CanSolve() {
			return fmt.Errorf("%s has no automatic fix: %s", issue.Subject, issue.Solution)
		}

		runner, err := apply.NewRunner(nil)
		if err != nil {
			return err
		}
		runner.Start()
		defer func() { _ = runner.Close() }()

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s Solving %s: %s\n", yellow("⚡"), issue.Subject, issue.Description)

		change, err := transition(cmd, runner, issue, solutions.StateSolved)
		if err != nil {
			return err
		}
		fmt.Println(issue.ExtendedDescription())

		if try {
			fmt.Printf("%s Reverting %s\n", yellow("⚡"), issue.Subject)
			if _, err := transition(cmd, runner, issue, solutions.StateOpen); err != nil {
				return err
			}
			return nil
		}

		if err := saveMachine(); err != nil {
			return fmt.Errorf("%s changed but could not be saved: %w", change.Issue.Subject, err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Saved %s\n", green("✓"), cfg.MachineFile)
		return nil
	},
}

// transition runs the state change through the runner and waits for it.
func transition(cmd *cobra.Command, runner *apply.Runner, issue *solutions.Issue, target solutions.State) (apply.StateChange, error) {
	ctx := cmd.Context()
	future, err := apply.ApplyState(ctx, runner, issue, target, store, nil)
	if err != nil {
		return apply.StateChange{}, err
	}
	change, err := waitChange(ctx, os.Stdout, future)
	if err == nil {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s: %s -> %s\n", green("✓"), issue.Subject, change.From, change.To)
		return change, nil
	}

	red := color.New(color.FgRed).SprintFunc()
	fmt.Printf("%s %s: %v\n", red("✗"), issue.Subject, err)
	if change.Issue == nil || !change.PreviousIntact {
		fmt.Println(red("  The previous configuration could not be restored. Check the machine before continuing."))
	} else {
		fmt.Println("  The previous configuration is intact.")
	}
	return change, err
}

// waitChange waits for the state change. When ctx is cancelled first it
// keeps waiting for the worker to finish the transition, which rolls back a
// failed fix.
func waitChange(ctx context.Context, w io.Writer, future *apply.Future[apply.StateChange]) (apply.StateChange, error) {
	change, err := future.Wait(ctx)
	if err == nil || !errors.Is(err, ctx.Err()) {
		return change, err
	}
	fmt.Fprintln(w, "Interrupted, waiting for the fix to roll back...")
	<-future.Done()
	return future.Wait(context.Background())
}

func init() {
	solveCmd.Flags().StringP("milestone", "m", "", "Milestone to target (default from config)")
	solveCmd.Flags().Bool("try", false, "Revert the fix after applying it")
	rootCmd.AddCommand(solveCmd)
}
