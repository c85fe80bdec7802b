package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/internal/checkpoint"
)

// runStatus is one row of `conveyor status` output.
type runStatus struct {
	RunID           string   `json:"runId"`
	State           string   `json:"state"`
	ActivePhase     string   `json:"activePhase,omitempty"`
	CompletedPhases []string `json:"completedPhases,omitempty"`
	Tasks           int      `json:"tasks"`
	StreamsDone     int      `json:"streamsDone"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpointed runs and their progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := checkpoint.DefaultStore()
		if err != nil {
			return err
		}

		ids, err := store.List()
		if err != nil {
			return err
		}

		var rows []runStatus
		for _, id := range ids {
			cp, err := store.Load(id)
			if err != nil {
				rows = append(rows, runStatus{RunID: id, State: "corrupt"})
				continue
			}
			if cp == nil {
				rows = append(rows, runStatus{RunID: id, State: "completed"})
				continue
			}
			done := 0
			for _, r := range cp.Context.StreamResults {
				if r != "" {
					done++
				}
			}
			rows = append(rows, runStatus{
				RunID:           id,
				State:           "resumable",
				ActivePhase:     cp.ActivePhase,
				CompletedPhases: cp.CompletedPhases,
				Tasks:           len(cp.Context.Tasks),
				StreamsDone:     done,
				UpdatedAt:       cp.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(rows, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-28s %-10s %-14s %-8s %-20s\n", "RUN", "STATE", "ACTIVE", "STREAMS", "UPDATED")
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 84))
		for _, row := range rows {
			streams := ""
			if row.Tasks > 0 {
				streams = fmt.Sprintf("%d/%d", row.StreamsDone, row.Tasks)
			}
			fmt.Fprintf(w, "%-28s %-10s %-14s %-8s %-20s\n",
				row.RunID, row.State, row.ActivePhase, streams, row.UpdatedAt)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "table", "output format: table or json")
}
