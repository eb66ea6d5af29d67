// Package swarmcli implements the swarm command-line interface: the run,
// resume, status, cleanup, history, process, and watch verbs that drive
// internal/orchestrator and internal/issuedriver from a terminal.
package swarmcli

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand creates the root cobra command for the swarm CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Decompose a coding task across parallel Claude Code agents",
		Long: `swarm plans a natural-language coding task into independent subtasks,
executes each in its own git worktree and branch via a pool of worker
agents, and integrates the successful branches back into one pull request.

Configuration is loaded from .swarm/config.yaml if present; CLI flags
override it.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("repo", ".", "Path to the git repository the swarm operates on")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewPlanCommand())
	cmd.AddCommand(NewResumeCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewCleanupCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewProcessCommand())
	cmd.AddCommand(NewWatchCommand())

	return cmd
}
