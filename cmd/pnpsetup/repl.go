package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pnpsetup/internal/apply"
	"github.com/steveyegge/pnpsetup/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive setup session",
	Long: `Start an interactive session for working through the setup issues.

Fixes accepted in the session run in the background; the prompt stays
available while a camera is being calibrated. Every successful change is
saved to the machine description.

Type 'help' in the session for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		milestone, _ := cmd.Flags().GetString("milestone")
		if milestone == "" {
			milestone = cfg.Milestone
		}

		s, err := newSolutions(ctx, milestone)
		if err != nil {
			return err
		}

		runner, err := apply.NewRunner(&apply.Config{
			OnError: func(err error) {
				fmt.Printf("Warning: %v\n", err)
			},
		})
		if err != nil {
			return err
		}
		runner.Start()
		defer func() { _ = runner.Close() }()

		r, err := repl.New(&repl.Config{
			Solutions:   s,
			Runner:      runner,
			Store:       store,
			OnChange:    func(apply.StateChange) error { return saveMachine() },
			HistoryFile: filepath.Join(filepath.Dir(cfg.DatabasePath), "repl_history"),
		})
		if err != nil {
			return fmt.Errorf("failed to create REPL: %w", err)
		}
		return r.Run(ctx)
	},
}

func init() {
	replCmd.Flags().StringP("milestone", "m", "", "Milestone to target (default from config)")
	rootCmd.AddCommand(replCmd)
}
