package swarmcli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/history"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/orchestrator"
)

func newRunID() string {
	return uuid.NewString()
}

// recordHistory appends the run's final state to the repository's run
// history ledger. Best-effort: called after state.CompleteRun/FailRun have
// already persisted the authoritative JSON state, so a ledger write
// failure never loses the run itself.
func recordHistory(ctx context.Context, repoPath string, o *orchestrator.Orchestrator, result *models.SwarmResult) error {
	run, err := o.State.Run(o.RunID)
	if err != nil {
		return err
	}
	h, err := history.Open(repoPath)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.Record(ctx, run, string(o.Config.Oversight), o.Config.IssueNumber)
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past swarm runs recorded in the repository's history ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath, err := repoFlag(cmd)
			if err != nil {
				return err
			}
			h, err := history.Open(repoPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer h.Close()

			entries, err := h.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s  %-12s  %-8s  %-6s  %s\n", "RUN ID", "STATUS", "COST", "ISSUE", "TASK")
			for _, e := range entries {
				issue := "-"
				if e.IssueNumber > 0 {
					issue = fmt.Sprintf("#%d", e.IssueNumber)
				}
				fmt.Fprintf(w, "%-36s  %-12s  $%-7.2f  %-6s  %s\n", e.RunID, e.Status, e.TotalCostUSD, issue, e.Task)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 = all)")
	return cmd
}
