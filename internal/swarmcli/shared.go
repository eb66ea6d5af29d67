package swarmcli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/config"
	"github.com/harrison/swarm/internal/models"
)

// consoleWaiter implements budget.WaiterLogger, printing rate-limit
// countdowns to stdout so a long wait isn't mistaken for a hang.
type consoleWaiter struct{}

func (c consoleWaiter) LogRateLimitCountdown(remaining, total time.Duration) {
	c.LogRateLimitAnnounce(remaining, total)
}

func (consoleWaiter) LogRateLimitAnnounce(remaining, total time.Duration) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s rate limited, resuming in %s\n", yellow("claude"), remaining.Round(time.Second))
}

// repoFlag resolves the --repo persistent flag relative to cmd's root.
func repoFlag(cmd *cobra.Command) (string, error) {
	return cmd.Flags().GetString("repo")
}

// configFlags registers the subset of Flags exposed as CLI flags shared by
// run/resume/process/watch.
func configFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-workers", 0, "Maximum number of concurrent worker agents (0 = use config/default)")
	cmd.Flags().String("model", "", "Model worker agents use")
	cmd.Flags().String("orchestrator-model", "", "Model the planner/integrator agents use")
	cmd.Flags().Float64("max-cost", 0, "Maximum total cost in USD for the run (0 = use config/default)")
	cmd.Flags().Float64("max-worker-cost", 0, "Maximum cost in USD for a single worker (0 = use config/default)")
	cmd.Flags().String("oversight", "", "Oversight mode: autonomous, pr-gated, or checkpoint")
	cmd.Flags().Bool("create-pr", false, "Open a pull request after a successful integration")
	cmd.Flags().Bool("dry-run", false, "Plan the task without executing any workers")
	cmd.Flags().String("base-branch", "", "Branch to base worktrees on (default: repo's current branch)")
	cmd.Flags().String("escalation-model", "", "Model a worker escalates to after a failed attempt")
	cmd.Flags().Int("max-worker-retries", 0, "Maximum attempts per worker task (0 = use config/default)")
	cmd.Flags().Bool("enable-escalation", false, "Escalate to escalation-model on a worker's retry")
	cmd.Flags().Bool("resolve-conflicts", false, "Let a conflict-resolver agent fix merge conflicts during integration")
	cmd.Flags().Bool("review", false, "Run a reviewer agent over the merged integration branch")
}

// flagsFromCommand builds a config.Flags from whichever flags the caller
// actually set on cmd, leaving the rest nil so they don't override the
// config file or defaults.
func flagsFromCommand(cmd *cobra.Command, task string) config.Flags {
	var f config.Flags
	if task != "" {
		f.Task = &task
	}
	if cmd.Flags().Changed("max-workers") {
		v, _ := cmd.Flags().GetInt("max-workers")
		f.MaxWorkers = &v
	}
	if cmd.Flags().Changed("model") {
		v, _ := cmd.Flags().GetString("model")
		f.Model = &v
	}
	if cmd.Flags().Changed("orchestrator-model") {
		v, _ := cmd.Flags().GetString("orchestrator-model")
		f.OrchestratorModel = &v
	}
	if cmd.Flags().Changed("max-cost") {
		v, _ := cmd.Flags().GetFloat64("max-cost")
		f.MaxCost = &v
	}
	if cmd.Flags().Changed("max-worker-cost") {
		v, _ := cmd.Flags().GetFloat64("max-worker-cost")
		f.MaxWorkerCost = &v
	}
	if cmd.Flags().Changed("oversight") {
		v, _ := cmd.Flags().GetString("oversight")
		f.Oversight = &v
	}
	if cmd.Flags().Changed("create-pr") {
		v, _ := cmd.Flags().GetBool("create-pr")
		f.CreatePR = &v
	}
	if cmd.Flags().Changed("dry-run") {
		v, _ := cmd.Flags().GetBool("dry-run")
		f.DryRun = &v
	}
	if cmd.Flags().Changed("base-branch") {
		v, _ := cmd.Flags().GetString("base-branch")
		f.BaseBranch = &v
	}
	if cmd.Flags().Changed("escalation-model") {
		v, _ := cmd.Flags().GetString("escalation-model")
		f.EscalationModel = &v
	}
	if cmd.Flags().Changed("max-worker-retries") {
		v, _ := cmd.Flags().GetInt("max-worker-retries")
		f.MaxWorkerRetries = &v
	}
	if cmd.Flags().Changed("enable-escalation") {
		v, _ := cmd.Flags().GetBool("enable-escalation")
		f.EnableEscalation = &v
	}
	if cmd.Flags().Changed("resolve-conflicts") {
		v, _ := cmd.Flags().GetBool("resolve-conflicts")
		f.ResolveConflicts = &v
	}
	if cmd.Flags().Changed("review") {
		v, _ := cmd.Flags().GetBool("review")
		f.Review = &v
	}
	return f
}

// loadRunConfig layers defaults, the repo's .swarm/config.yaml, and cmd's
// flags into a single RunConfig rooted at repoPath.
func loadRunConfig(cmd *cobra.Command, repoPath, task string) (*models.RunConfig, error) {
	cfg, err := config.LoadConfig(config.Path(repoPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.RepoPath = repoPath
	config.MergeFlags(cfg, flagsFromCommand(cmd, task))
	return cfg, nil
}
