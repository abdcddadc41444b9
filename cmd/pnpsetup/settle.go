package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/pnpsetup/internal/settle"
	"github.com/steveyegge/pnpsetup/internal/types"
)

var settleCmd = &cobra.Command{
	Use:   "settle <camera>",
	Short: "Calibrate the settle method of a camera",
	Long: `Run the settle calibration for one camera, whatever its current settle
method, and save the result.

Head cameras move themselves over the primary fiducial. Fixed cameras
calibrate with the default nozzle moved over the camera. Without either,
the camera view is measured in place.

Use --history to list earlier calibrations instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cam, ok := mach.Camera(args[0])
		if !ok {
			return fmt.Errorf("no camera %q on %s", args[0], mach.Name())
		}

		if show, _ := cmd.Flags().GetBool("history"); show {
			limit, _ := cmd.Flags().GetInt("limit")
			history, err := store.GetCalibrationHistory(ctx, cam.Name(), limit)
			if err != nil {
				return fmt.Errorf("failed to get calibration history: %w", err)
			}
			if len(history) == 0 {
				fmt.Printf("No calibrations recorded for %s\n", cam.Name())
				return nil
			}
			for _, r := range history {
				printCalibration(r)
			}
			return nil
		}

		sel, err := newSelector()
		if err != nil {
			return err
		}
		target := settle.ResolveTarget(mach, cam, cfg.Settle.TestMoveMm)

		yellow := color.New(color.FgYellow).SprintFunc()
		if target.CaptureOnly() {
			fmt.Printf("%s Calibrating %s in place\n", yellow("⚡"), cam.Name())
		} else {
			fmt.Printf("%s Calibrating %s: moving %s to %s\n", yellow("⚡"), cam.Name(), target.Movable.Name(), target.Location)
		}

		result, err := sel.Calibrate(ctx, cam, target, "")
		if err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s Calibration failed, the previous settle configuration was restored\n", red("✗"))
			return err
		}
		printCalibration(result)

		if err := saveMachine(); err != nil {
			return fmt.Errorf("calibration succeeded but could not be saved: %w", err)
		}
		return nil
	},
}

func printCalibration(r *types.CalibrationResult) {
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	status := green("✓")
	if !r.Passed {
		status = color.New(color.FgYellow).Sprint("!")
	}
	fmt.Printf("%s %s  %s  %s  %dms", status, gray(r.CompletedAt.Local().Format("2006-01-02 15:04:05")),
		r.Camera, r.Config.Method, r.ComputeMilliseconds())
	if r.Escalated {
		fmt.Print(gray("  (escalated)"))
	}
	fmt.Println()
	fmt.Printf("  %s\n", gray(fmt.Sprintf("blur %d | debounce %d | threshold %g | mask %.3f | timeout %s | %d trial(s)",
		r.Config.GaussianBlur, r.Config.Debounce, r.Config.Threshold, r.Config.MaskCircle, r.Config.Timeout, len(r.Trials))))
}

func init() {
	settleCmd.Flags().Bool("history", false, "Show earlier calibrations of the camera")
	settleCmd.Flags().IntP("limit", "n", 10, "Number of calibrations to show with --history")
	rootCmd.AddCommand(settleCmd)
}
