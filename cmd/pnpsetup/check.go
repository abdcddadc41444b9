package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pnpsetup/internal/repl"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Find setup issues",
	Long: `Run all issue detectors for the targeted milestone and list the issues,
most severe first. The numbers can be passed to 'pnpsetup solve'.

Examples:
  pnpsetup check                      # Issues for the configured milestone
  pnpsetup check --milestone basics   # Issues up to the basics milestone
  pnpsetup check -v                   # Include the proposed solutions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		milestone, _ := cmd.Flags().GetString("milestone")
		verbose, _ := cmd.Flags().GetBool("verbose")
		if milestone == "" {
			milestone = cfg.Milestone
		}

		s, err := newSolutions(cmd.Context(), milestone)
		if err != nil {
			return err
		}

		issues := s.Sorted()
		if len(issues) == 0 {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("\n%s No issues for milestone %s on %s.\n\n", green("✓"), s.TargetMilestone(), mach.Name())
			return nil
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n\n", cyan(fmt.Sprintf("%d issue(s) for milestone %s on %s", len(issues), s.TargetMilestone(), mach.Name())))
		repl.PrintIssues(cmd.OutOrStdout(), issues, verbose)
		fmt.Println()
		return nil
	},
}

func init() {
	checkCmd.Flags().StringP("milestone", "m", "", "Milestone to target (default from config)")
	checkCmd.Flags().BoolP("verbose", "v", false, "Show solutions and issue IDs")
	rootCmd.AddCommand(checkCmd)
}
