package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/internal/db"
)

var eventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "Show the event log for a run (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := db.DefaultDBPath()
		if err != nil {
			return err
		}
		d, err := db.Open(path)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(); err != nil {
			return err
		}

		runID := ""
		if len(args) > 0 {
			runID = args[0]
		} else {
			ids, err := d.ListRuns(1)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			runID = ids[0]
		}

		events, err := d.GetRunEvents(runID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events for run %s.\n", runID)
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Events for run %s:\n", runID)
		// Stored newest first; print oldest first for reading.
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			line := fmt.Sprintf("%s  %-16s %s", e.Timestamp, e.Event, e.Phase)
			if e.Detail != "" {
				line += "  (" + e.Detail + ")"
			}
			fmt.Fprintln(w, line)
		}

		if showCalls, _ := cmd.Flags().GetBool("calls"); showCalls {
			calls, err := d.GetAgentCalls(runID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\nAgent calls (%d):\n", len(calls))
			for _, c := range calls {
				status := "ok"
				if c.Error != "" {
					status = c.Error
				}
				fmt.Fprintf(w, "%s  %-12s %-12s attempt=%d prompt=%d resp=%d %s\n",
					c.Timestamp, c.Phase, c.Agent, c.Attempt, c.PromptChars, c.ResponseChars, status)
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Bool("calls", false, "also show individual agent calls")
}
