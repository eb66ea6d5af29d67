package swarmcli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/swarmapp"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task description>",
		Short: "Plan and execute a coding task across a swarm of worker agents",
		Long: `run decomposes the given task into independent subtasks, executes each
in its own git worktree and branch, and integrates the successful branches.

Examples:
  swarm run "add input validation to the signup form"
  swarm run --max-workers 6 --oversight autonomous "migrate to the new logger"
  swarm run --dry-run "refactor the payment module"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRunCommand,
	}
	configFlags(cmd)
	return cmd
}

// NewPlanCommand creates the plan command: exactly run --dry-run, for
// operators who want the planning phase's output without committing to
// executing any workers.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <task description>",
		Short: "Plan a coding task without executing any workers (equivalent to run --dry-run)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Flags().Set("dry-run", "true")
			return runRunCommand(cmd, args)
		},
	}
	configFlags(cmd)
	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	repoPath, err := repoFlag(cmd)
	if err != nil {
		return err
	}
	task := strings.Join(args, " ")

	cfg, err := loadRunConfig(cmd, repoPath, task)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := newRunID()
	o, err := swarmapp.New(runID, *cfg, consoleWaiter{})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	o.Out = cmd.OutOrStdout()

	ctx := cmd.Context()
	result, err := o.Run(ctx)
	if err != nil {
		return err
	}

	if err := recordHistory(ctx, repoPath, o, result); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record run history: %v\n", err)
	}
	return nil
}
