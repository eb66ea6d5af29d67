package swarmcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/config"
	"github.com/harrison/swarm/internal/state"
	"github.com/harrison/swarm/internal/swarmapp"
)

// NewResumeCommand creates the resume command.
func NewResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Resume the most recent interrupted run, or a specific run id",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runResumeCommand,
	}
	return cmd
}

func runResumeCommand(cmd *cobra.Command, args []string) error {
	repoPath, err := repoFlag(cmd)
	if err != nil {
		return err
	}

	store := state.NewStore(repoPath)
	var runID string
	if len(args) == 1 {
		runID = args[0]
		if _, err := store.Run(runID); err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
	} else {
		run, err := store.LastInterruptedRun()
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no interrupted run to resume")
		}
		runID = run.RunID
	}

	run, err := store.Run(runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	cfg, err := config.LoadConfig(config.Path(repoPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.RepoPath = repoPath
	// The run's own task survives interruption in its RunState even when
	// the config file or flags present at resume time differ from those
	// present at the original run.
	cfg.Task = run.Task

	o, err := swarmapp.New(runID, *cfg, consoleWaiter{})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	o.Out = cmd.OutOrStdout()

	ctx := cmd.Context()
	result, err := o.Resume(ctx)
	if err != nil {
		return err
	}
	if err := recordHistory(ctx, repoPath, o, result); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record run history: %v\n", err)
	}
	return nil
}
