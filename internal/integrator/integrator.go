// Package integrator merges successful worker branches into one integration
// branch, validates the result, and opens (optionally auto-merges) a pull
// request.
package integrator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/harrison/swarm/internal/claude"
	"github.com/harrison/swarm/internal/coordination"
	"github.com/harrison/swarm/internal/eventlog"
	"github.com/harrison/swarm/internal/ghcli"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/swarmerrors"
	"github.com/harrison/swarm/internal/worktree"
)

const (
	reviewerSystemPrompt = `You are the integration reviewer for a swarm run. Multiple worker agents have made changes in parallel branches that have been merged together. Your job is to review the merged result for semantic conflicts and issues.

## What to Look For
1. Interface mismatches: one worker exports something differently than another expects
2. Incompatible assumptions: workers made conflicting assumptions about behavior
3. Missing connections: workers built components that aren't wired together
4. Duplicate work: multiple workers implemented the same thing differently
5. Broken imports: new modules/functions that aren't properly imported where used

## What NOT to Do
- Don't review code style or formatting
- Don't suggest improvements beyond fixing integration issues
- Don't modify code that was working correctly before the merge

If you find issues, fix them directly. If everything looks good, confirm the integration is clean.`

	conflictResolverSystemPrompt = `You are the merge conflict resolver for a swarm run. Two or more worker branches have conflicting changes. Your job is to resolve the git merge conflicts.

## Your Process
1. Examine the conflict markers in the affected files
2. Understand what each worker was trying to accomplish
3. Resolve conflicts by combining both sets of changes correctly
4. Stage and commit the resolved files
5. Run any available tests to verify the resolution

## Rules
- Preserve the intent of ALL workers' changes
- Do not discard either side's work unless truly incompatible
- Use clear commit messages explaining the resolution`

	// reviewBudgetUSD and conflictBudgetUSD mirror the original's per-agent
	// budget ceilings for the reviewer and conflict-resolver passes. Neither
	// claude.Invoker nor the underlying CLI exposes a per-invocation budget
	// flag (see internal/planner's equivalent gap), so these are carried for
	// documentation parity rather than enforced here.
	reviewBudgetUSD   = 3.0
	conflictBudgetUSD = 3.0
)

// Config controls one integration pass.
type Config struct {
	RunID             string
	TestCommand       string
	BuildCommand      string
	CreatePR          bool
	Review            bool
	TaskDescription   string
	OrchestratorModel string
	ResolveConflicts  bool
	AutoMerge         bool
	RepoSlug          string
	IssueNumber       int
}

// Result is the outcome of an integration pass.
type Result struct {
	Success bool
	PRURL   string
	Error   string
}

// Integrator merges worker results and validates the integrated result.
type Integrator struct {
	worktrees *worktree.Manager
	gh        *ghcli.Client
	agents    claude.Service
	coord     *coordination.Bus
}

// New creates an Integrator over a worktree Manager, a gh client, and the
// run's coordination bus (its aggregated summary is handed to the
// conflict-resolver and semantic-reviewer agents as shared context).
func New(worktrees *worktree.Manager, gh *ghcli.Client, agents *claude.Service, coord *coordination.Bus) *Integrator {
	return &Integrator{worktrees: worktrees, gh: gh, agents: *agents, coord: coord}
}

// coordinationSummary returns the coordination bus's aggregated Markdown
// digest, or "" if the bus is nil or has nothing to report.
func (in *Integrator) coordinationSummary() string {
	if in.coord == nil {
		return ""
	}
	summary, err := in.coord.FormatSummary()
	if err != nil {
		return ""
	}
	return summary
}

// requireGH checks gh is on PATH, matching the Python original's upfront
// check before doing any merge work when a PR will be needed.
func requireGH() error {
	if _, err := exec.LookPath("gh"); err != nil {
		return swarmerrors.NewIntegrationError("preflight", "GitHub CLI (gh) is not installed; install it from https://cli.github.com/ to enable PR creation", err)
	}
	return nil
}

// Integrate merges every successful worker's branch into a fresh
// integration worktree (in order), runs the build/test commands, optionally
// spawns a semantic reviewer, and opens (and, when cfg.AutoMerge, merges) a
// pull request.
func (in *Integrator) Integrate(ctx context.Context, results []models.WorkerResult, baseBranch string, cfg Config, recorder *eventlog.Recorder) (*Result, error) {
	successful := make([]models.WorkerResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			successful = append(successful, r)
		}
	}
	if len(successful) == 0 {
		return nil, swarmerrors.NewIntegrationError("merge", "no successful workers to integrate", nil)
	}

	if cfg.CreatePR {
		if err := requireGH(); err != nil {
			return nil, err
		}
	}

	if recorder != nil {
		recorder.IntegrationStart()
	}

	integrationPath, err := in.worktrees.CreateIntegrationWorktree(ctx, baseBranch)
	if err != nil {
		return nil, swarmerrors.NewIntegrationError("setup", "failed to create integration worktree", err)
	}
	integrationBranch := in.worktrees.BranchName("integration")

	var merged []string
	for _, wr := range successful {
		branch := in.worktrees.BranchName(wr.WorkerID)
		summary := wr.Summary
		if summary == "" {
			summary = "completed"
		}
		message := fmt.Sprintf("Merge %s: %s", wr.WorkerID, summary)

		if err := in.worktrees.MergeBranch(ctx, integrationPath, branch, message); err != nil {
			resolved := false
			if cfg.ResolveConflicts {
				resolved = in.resolveConflict(ctx, integrationPath, branch, wr, cfg.OrchestratorModel)
			}
			if resolved {
				merged = append(merged, branch)
				continue
			}

			in.worktrees.AbortMerge(ctx, integrationPath)
			diff := in.worktrees.DiffBranches(ctx, baseBranch, branch)

			if recorder != nil {
				recorder.MergeResult(false, append(append([]string{}, merged...), branch), err.Error())
			}
			return nil, swarmerrors.NewMergeConflictError(
				fmt.Sprintf("merge conflict when integrating %s", branch),
				append(append([]string{}, merged...), branch),
				diff,
			)
		}
		merged = append(merged, branch)
	}

	if recorder != nil {
		recorder.MergeResult(true, merged, "")
	}

	if cfg.BuildCommand != "" {
		ok, output := runShell(ctx, cfg.BuildCommand, integrationPath)
		if recorder != nil {
			recorder.TestResult(ok, cfg.BuildCommand, output)
		}
		if !ok {
			return &Result{Success: false, Error: "build failed: " + output}, nil
		}
	}

	if cfg.TestCommand != "" {
		ok, output := runShell(ctx, cfg.TestCommand, integrationPath)
		if recorder != nil {
			recorder.TestResult(ok, cfg.TestCommand, output)
		}
		if !ok {
			return &Result{Success: false, Error: "tests failed: " + output}, nil
		}
	}

	if cfg.Review {
		in.runSemanticReview(ctx, integrationPath, cfg.OrchestratorModel)
	}

	result := &Result{Success: true}
	if cfg.CreatePR {
		prURL, err := in.createPR(ctx, integrationPath, integrationBranch, baseBranch, cfg, successful)
		if err != nil {
			return nil, err
		}
		result.PRURL = prURL
		if recorder != nil {
			recorder.PRCreated(prURL)
		}
		if cfg.AutoMerge {
			if err := in.gh.MergePR(ctx, cfg.RepoSlug, prURL); err != nil {
				return nil, swarmerrors.NewIntegrationError("auto-merge", "failed to auto-merge pull request", err)
			}
		}
	}

	return result, nil
}

func runShell(ctx context.Context, command, dir string) (bool, string) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return err == nil, strings.TrimSpace(string(out))
}

func (in *Integrator) resolveConflict(ctx context.Context, integrationPath, branch string, wr models.WorkerResult, model string) bool {
	inv := in.agents.Invoker()
	inv.SystemPrompt = conflictResolverSystemPrompt

	prompt := fmt.Sprintf("Resolve the merge conflicts from branch %s (worker: %s).", branch, wr.WorkerID)
	if summary := in.coordinationSummary(); summary != "" {
		prompt += "\n\n## Coordination Summary\n" + summary
	}

	req := claude.Request{
		Prompt:      prompt,
		Model:       model,
		Dir:         integrationPath,
		BypassPerms: true,
	}
	_, err := inv.Invoke(ctx, req)
	if err != nil {
		in.worktrees.AbortMerge(ctx, integrationPath)
		return false
	}
	return true
}

func (in *Integrator) runSemanticReview(ctx context.Context, integrationPath, model string) {
	inv := in.agents.Invoker()
	inv.SystemPrompt = reviewerSystemPrompt

	prompt := "Review the merged changes for semantic conflicts and fix any issues you find."
	if summary := in.coordinationSummary(); summary != "" {
		prompt += "\n\n## Coordination Summary\n" + summary
	}

	req := claude.Request{
		Prompt:      prompt,
		Model:       model,
		Dir:         integrationPath,
		BypassPerms: true,
	}
	_, _ = inv.Invoke(ctx, req)
}

// CreatePR pushes the (already-merged) integration branch and opens a pull
// request for it. Used when checkpoint oversight defers PR creation until
// after the operator separately confirms integration succeeded, so the
// branches are not re-merged.
func (in *Integrator) CreatePR(ctx context.Context, baseBranch string, cfg Config, successful []models.WorkerResult) (string, error) {
	integrationPath := in.worktrees.IntegrationWorktreePath()
	integrationBranch := in.worktrees.BranchName("integration")
	return in.createPR(ctx, integrationPath, integrationBranch, baseBranch, cfg, successful)
}

func (in *Integrator) createPR(ctx context.Context, integrationPath, integrationBranch, baseBranch string, cfg Config, successful []models.WorkerResult) (string, error) {
	if err := in.worktrees.Push(ctx, integrationPath, integrationBranch); err != nil {
		return "", swarmerrors.NewIntegrationError("push", "failed to push integration branch", err)
	}

	var summary strings.Builder
	var totalCost float64
	for _, wr := range successful {
		s := wr.Summary
		if s == "" {
			s = "completed"
		}
		if wr.CostUSD != nil {
			fmt.Fprintf(&summary, "- **%s**: %s ($%.2f)\n", wr.WorkerID, s, *wr.CostUSD)
			totalCost += *wr.CostUSD
		} else {
			fmt.Fprintf(&summary, "- **%s**: %s\n", wr.WorkerID, s)
		}
	}

	title := cfg.TaskDescription
	if len(title) > 60 {
		title = title[:60]
	}
	body := fmt.Sprintf(
		"## Task\n%s\n\n## Workers\n%s\n**Total cost**: $%.2f\n",
		cfg.TaskDescription, summary.String(), totalCost,
	)
	if cfg.IssueNumber != 0 {
		body += fmt.Sprintf("\nCloses #%d\n", cfg.IssueNumber)
	}
	body += fmt.Sprintf("\n---\nGenerated by the swarm orchestrator (run: `%s`)", cfg.RunID)

	prURL, err := in.gh.CreatePR(ctx, cfg.RepoSlug, baseBranch, integrationBranch, "[swarm] "+title, body)
	if err != nil {
		return "", swarmerrors.NewIntegrationError("pull-request", "failed to create pull request", err)
	}
	return prURL, nil
}
