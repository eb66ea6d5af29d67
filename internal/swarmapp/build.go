// Package swarmapp wires a complete orchestrator.Orchestrator from a
// models.RunConfig, sharing one construction path between the CLI and the
// GitHub issue driver so the two entry points can never drift apart.
package swarmapp

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/swarm/internal/budget"
	"github.com/harrison/swarm/internal/claude"
	"github.com/harrison/swarm/internal/coordination"
	"github.com/harrison/swarm/internal/eventlog"
	"github.com/harrison/swarm/internal/ghcli"
	"github.com/harrison/swarm/internal/integrator"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/orchestrator"
	"github.com/harrison/swarm/internal/planner"
	"github.com/harrison/swarm/internal/state"
	"github.com/harrison/swarm/internal/worker"
	"github.com/harrison/swarm/internal/worktree"
)

// claudeTimeout bounds a single Claude CLI invocation (plan, worker attempt,
// or integration review/conflict-resolution call).
const claudeTimeout = 20 * time.Minute

// Logger receives rate-limit wait countdowns from every Claude invocation
// the run makes. The CLI wires this to its console logger; tests and the
// issue driver may leave it nil for silent operation.
type Logger = budget.WaiterLogger

// New wires a complete Orchestrator for a single run: worktree manager,
// state store, coordination bus, planner, worker runner, integrator, gh
// client, and event recorder, all rooted at cfg.RepoPath.
//
// Repo slug detection (for PR creation / auto-merge) is best-effort: a repo
// with no "origin" remote, or one pointing somewhere other than GitHub,
// still runs fine in dry-run or no-PR configurations. New's signature
// matches issuedriver.OrchestratorFactory so it can be passed there
// directly once partially applied with a logger via NewFactory.
func New(runID string, cfg models.RunConfig, logger Logger) (*orchestrator.Orchestrator, error) {
	ctx := context.Background()
	if cfg.RepoPath == "" {
		return nil, fmt.Errorf("repo_path must not be empty")
	}

	worktrees := worktree.NewManager(cfg.RepoPath, runID)
	store := state.NewStore(cfg.RepoPath)
	coord := coordination.NewBus(cfg.RepoPath, runID)

	recorder, err := eventlog.NewRecorder(cfg.RepoPath, runID)
	if err != nil {
		return nil, fmt.Errorf("create event recorder: %w", err)
	}

	svc := claude.NewService(claudeTimeout, logger)
	p := planner.New(svc, cfg.PlannerModel)
	w := worker.New(svc, worker.Config{
		Model:            cfg.WorkerModel,
		MaxAttempts:      cfg.MaxWorkerAttempts,
		EscalationModel:  cfg.EscalationModel,
		EnableEscalation: cfg.EnableEscalation,
		MaxBudgetUSD:     cfg.MaxWorkerCostUSD,
	})

	gh := ghcli.New(cfg.RepoPath)
	integ := integrator.New(worktrees, gh, svc, coord)

	var repoSlug string
	if owner, repo, err := gh.RepoSlug(ctx); err == nil {
		repoSlug = owner + "/" + repo
	}

	o := orchestrator.New(runID, cfg, worktrees, store, coord, p, w, integ, gh, recorder, repoSlug)
	return o, nil
}

// NewFactory returns an issuedriver.OrchestratorFactory-shaped closure with
// logger already bound, for callers that need to pass one down without
// threading the logger through every call site.
func NewFactory(logger Logger) func(runID string, cfg models.RunConfig) (*orchestrator.Orchestrator, error) {
	return func(runID string, cfg models.RunConfig) (*orchestrator.Orchestrator, error) {
		return New(runID, cfg, logger)
	}
}
