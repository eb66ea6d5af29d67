package swarmcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/state"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the active run's status, or a specific run id's",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatusCommand,
	}
}

func runStatusCommand(cmd *cobra.Command, args []string) error {
	repoPath, err := repoFlag(cmd)
	if err != nil {
		return err
	}
	store := state.NewStore(repoPath)

	var run *models.RunState
	if len(args) == 1 {
		run, err = store.Run(args[0])
	} else {
		run, err = store.ActiveRun()
	}
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No active run.")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run:    %s\n", run.RunID)
	fmt.Fprintf(w, "Task:   %s\n", run.Task)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:  %s\n", run.Error)
	}
	if run.PRUrl != "" {
		fmt.Fprintf(w, "PR:     %s\n", run.PRUrl)
	}
	fmt.Fprintf(w, "Cost:   $%.2f\n", run.TotalCostUSD)

	if len(run.Workers) > 0 {
		fmt.Fprintln(w, "\nWorkers:")
		for id, ws := range run.Workers {
			fmt.Fprintf(w, "  %-20s %-10s %s\n", id, ws.Status, ws.Title)
		}
	}
	return nil
}
