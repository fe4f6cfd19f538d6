//go:build windows

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"
)

const taskName = "NetBirdDelayedUpdate"

var taskStartTime string
var taskIntervalH int

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the agent's scheduled task",
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskInstallCmd)
	taskCmd.AddCommand(taskUninstallCmd)

	taskInstallCmd.Flags().StringVar(&taskStartTime, "start-time", "03:00", "daily start time (HH:MM)")
	taskInstallCmd.Flags().IntVar(&taskIntervalH, "every-hours", 0, "run every N hours instead of daily")
}

var taskInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the scheduled task that invokes the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		exePath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("determine executable path: %w", err)
		}

		schArgs := []string{
			"/Create",
			"/TN", taskName,
			"/TR", fmt.Sprintf(`"%s" run`, exePath),
			"/RU", "SYSTEM",
			"/F",
		}
		if taskIntervalH > 0 {
			schArgs = append(schArgs, "/SC", "HOURLY", "/MO", strconv.Itoa(taskIntervalH))
		} else {
			schArgs = append(schArgs, "/SC", "DAILY", "/ST", taskStartTime)
		}

		out, err := exec.Command("schtasks", schArgs...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("schtasks create failed (run as Administrator): %v: %s", err, out)
		}

		fmt.Printf("Scheduled task %q registered.\n", taskName)
		return nil
	},
}

var taskUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the scheduled task",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := exec.Command("schtasks", "/Delete", "/TN", taskName, "/F").CombinedOutput()
		if err != nil {
			return fmt.Errorf("schtasks delete failed: %v: %s", err, out)
		}

		fmt.Printf("Scheduled task %q removed.\n", taskName)
		return nil
	},
}
