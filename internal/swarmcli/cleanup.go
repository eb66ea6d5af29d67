package swarmcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/coordination"
	"github.com/harrison/swarm/internal/state"
	"github.com/harrison/swarm/internal/worktree"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "cleanup [run-id]",
		Short: "Remove leftover swarm worktrees, branches, and coordination files",
		Long: `cleanup force-removes every .swarm-worktrees entry and swarm/* branch in
the repository, regardless of which run created it, then clears the named
run's (or the active run's) recorded JSON state. A CLI-invoked cleanup has
no in-memory record of which worktrees belong to which run, so it sweeps
the whole repository the same way an interrupted run's signal handler
does.

Use --all to also clear every other run's recorded state, not just the
one being cleaned up; this is normally only needed after abandoning the
repository's swarm state entirely.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath, err := repoFlag(cmd)
			if err != nil {
				return err
			}
			store := state.NewStore(repoPath)

			var runID string
			if len(args) == 1 {
				runID = args[0]
			} else {
				run, err := store.ActiveRun()
				if err != nil {
					return err
				}
				if run == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No active run to clean up.")
					return nil
				}
				runID = run.RunID
			}

			ctx := cmd.Context()
			worktree.NewManager(repoPath, runID).CleanupAll(ctx, true)
			coordination.NewBus(repoPath, runID).Cleanup()

			if err := store.ClearRun(runID); err != nil {
				return err
			}
			if all {
				if err := store.ClearAll(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleaned up run %s\n", runID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Also clear every other run's recorded state")
	return cmd
}
