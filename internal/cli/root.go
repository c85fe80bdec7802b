// Package cli wires the cobra command tree for the conveyor binary.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "conveyor is a checkpointed multi-phase agent pipeline",
	Long: `conveyor drives a multi-phase, multi-agent content-production pipeline:
spec, decompose, design, implement, cross-model review, and verify. Every
phase and review iteration is checkpointed, so interrupted runs resume
exactly where they left off.

Run state lives in ~/.conveyor/ (JSON checkpoints per run, SQLite for the
event log).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}
