//go:build !windows

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the agent's scheduled task (Windows only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("scheduled task management is only supported on Windows; use cron or a systemd timer here")
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
}
