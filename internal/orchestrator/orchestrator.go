// Package orchestrator drives a single swarm run end to end: plan the task,
// execute workers in parallel worktrees, integrate the successful branches,
// and persist state at every phase so an interrupted run can be resumed.
package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/harrison/swarm/internal/coordination"
	"github.com/harrison/swarm/internal/eventlog"
	"github.com/harrison/swarm/internal/ghcli"
	"github.com/harrison/swarm/internal/integrator"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/planner"
	"github.com/harrison/swarm/internal/state"
	"github.com/harrison/swarm/internal/worker"
	"github.com/harrison/swarm/internal/worktree"
)

// workerStagger is the delay applied between launching consecutive workers,
// giving earlier workers a head start acquiring the concurrency semaphore
// and reducing the odds of every worker hitting git at once.
const workerStagger = 500 * time.Millisecond

// Orchestrator wires together every phase of a run: planning, worktree and
// coordination setup, the worker pool, integration, and state persistence.
type Orchestrator struct {
	RunID  string
	Config models.RunConfig

	Worktrees  *worktree.Manager
	State      *state.Store
	Coord      *coordination.Bus
	Planner    *planner.Planner
	Workers    *worker.Runner
	Integrator *integrator.Integrator
	GH         *ghcli.Client
	Recorder   *eventlog.Recorder

	RepoSlug string

	// Checkpoint asks a human operator whether to proceed past a phase
	// boundary; only consulted when Config.Oversight is checkpoint mode.
	// New defaults it to a stdin/stdout prompt; tests inject a stub.
	Checkpoint func(prompt string) bool

	// Out receives progress and summary output. Defaults to os.Stdout.
	Out io.Writer
}

func (o *Orchestrator) out() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

// defaultCheckpoint prompts on stdout and reads a y/n answer from stdin.
func defaultCheckpoint(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

// New wires a complete Orchestrator from its component dependencies. repoSlug
// may be empty when the run will never create a pull request.
func New(runID string, cfg models.RunConfig, worktrees *worktree.Manager, store *state.Store, coord *coordination.Bus, p *planner.Planner, w *worker.Runner, integ *integrator.Integrator, gh *ghcli.Client, recorder *eventlog.Recorder, repoSlug string) *Orchestrator {
	return &Orchestrator{
		RunID:      runID,
		Config:     cfg,
		Worktrees:  worktrees,
		State:      store,
		Coord:      coord,
		Planner:    p,
		Workers:    w,
		Integrator: integ,
		GH:         gh,
		Recorder:   recorder,
		RepoSlug:   repoSlug,
		Checkpoint: defaultCheckpoint,
	}
}

func snapshotFromConfig(c models.RunConfig) state.ConfigSnapshot {
	return state.ConfigSnapshot{
		MaxWorkers:        c.MaxWorkers,
		Model:             c.WorkerModel,
		OrchestratorModel: c.PlannerModel,
		MaxCost:           c.MaxTotalCostUSD,
		MaxWorkerCost:     c.MaxWorkerCostUSD,
		MaxWorkerRetries:  c.MaxWorkerAttempts,
		EscalationModel:   c.EscalationModel,
		EnableEscalation:  c.EnableEscalation,
		ResolveConflicts:  c.ResolveConflicts,
		Oversight:         string(c.Oversight),
	}
}

// checkpoint pauses for operator approval when running under checkpoint
// oversight; every other oversight mode proceeds without asking. On
// approval the run's status is restored to resumeStatus; on decline it is
// marked Interrupted.
func (o *Orchestrator) checkpoint(prompt string, resumeStatus models.RunStatus) bool {
	if o.Config.Oversight != models.OversightCheckpoint {
		return true
	}
	o.State.SetRunStatus(o.RunID, models.StatusPausedCheckpoint)
	check := o.Checkpoint
	if check == nil {
		check = defaultCheckpoint
	}
	if check(prompt) {
		o.State.SetRunStatus(o.RunID, resumeStatus)
		return true
	}
	o.State.SetRunStatus(o.RunID, models.StatusInterrupted)
	return false
}

// Run executes the complete pipeline: plan, (checkpoint), execute workers,
// (checkpoint), integrate, (checkpoint), finalize. SIGINT/SIGTERM trigger an
// emergency cleanup and cancel the run in place.
func (o *Orchestrator) Run(ctx context.Context) (*models.SwarmResult, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(o.out(), "\nInterrupt received, cleaning up...")
			o.emergencyCleanup(ctx)
			cancel()
		case <-ctx.Done():
		}
	}()

	baseBranch := o.Config.BaseBranch
	if baseBranch == "" {
		if b, err := o.Worktrees.BaseBranch(ctx); err == nil && b != "" {
			baseBranch = b
		} else {
			baseBranch = "main"
		}
	}

	if _, err := o.State.StartRun(o.RunID, o.Config.Task, baseBranch, snapshotFromConfig(o.Config)); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	plan, err := o.Planner.Plan(ctx, o.Config.Task, o.Config.MaxWorkers, o.Recorder)
	if err != nil {
		o.State.FailRun(o.RunID, err.Error())
		return nil, err
	}
	o.State.SetRunPlan(o.RunID, plan)
	fmt.Fprintf(o.out(), "Plan: %d subtask(s) for %q\n", len(plan.Tasks), o.Config.Task)

	if o.Config.DryRun {
		o.State.CompleteRun(o.RunID, "")
		return &models.SwarmResult{RunID: o.RunID, Task: o.Config.Task, Plan: plan}, nil
	}

	if !o.checkpoint("Proceed with execution?", models.StatusExecuting) {
		return &models.SwarmResult{RunID: o.RunID, Task: o.Config.Task, Plan: plan}, nil
	}

	return o.runFromPlan(ctx, plan, baseBranch, start)
}

// runFromPlan executes workers against plan.Tasks and integrates the
// result. Shared by Run (a fresh run) and Resume (continuing after an
// interruption, with plan.Tasks already narrowed to the unfinished subset).
func (o *Orchestrator) runFromPlan(ctx context.Context, plan *models.Plan, baseBranch string, start time.Time) (*models.SwarmResult, error) {
	o.State.SetRunStatus(o.RunID, models.StatusExecuting)
	o.Worktrees.DisableGC(ctx)

	results := o.executeWorkers(ctx, plan.Tasks, baseBranch)

	var successful []models.WorkerResult
	for _, r := range results {
		if r.Success {
			successful = append(successful, r)
		}
	}

	integrationSuccess := false
	var prURL string
	var integrationErr string

	if len(successful) > 0 {
		if !o.checkpoint("Integrate successful workers?", models.StatusIntegrating) {
			o.Worktrees.CleanupAll(ctx, false)
			return &models.SwarmResult{RunID: o.RunID, Task: o.Config.Task, Plan: plan, WorkerResults: results}, nil
		}

		o.State.SetRunStatus(o.RunID, models.StatusIntegrating)

		createPRNow := o.Config.CreatePR && o.Config.Oversight != models.OversightCheckpoint
		integCfg := integrator.Config{
			RunID:             o.RunID,
			TestCommand:       plan.TestCommand,
			BuildCommand:      plan.BuildCommand,
			CreatePR:          createPRNow,
			Review:            o.Config.ReviewAfterMerge,
			TaskDescription:   o.Config.Task,
			OrchestratorModel: o.Config.PlannerModel,
			ResolveConflicts:  o.Config.ResolveConflicts,
			RepoSlug:          o.RepoSlug,
			IssueNumber:       o.Config.IssueNumber,
		}

		result, err := o.Integrator.Integrate(ctx, results, baseBranch, integCfg, o.Recorder)
		if err != nil {
			integrationErr = err.Error()
			fmt.Fprintf(o.out(), "Integration failed: %v\n", err)
		} else if !result.Success {
			integrationErr = result.Error
			fmt.Fprintf(o.out(), "Integration failed: %s\n", result.Error)
		} else {
			integrationSuccess = true
			prURL = result.PRURL

			if o.Config.Oversight == models.OversightCheckpoint && o.Config.CreatePR && prURL == "" {
				if o.checkpoint("Create pull request?", models.StatusIntegrating) {
					prCfg := integCfg
					prCfg.CreatePR = true
					prURL, err = o.Integrator.CreatePR(ctx, baseBranch, prCfg, successful)
					if err != nil {
						fmt.Fprintf(o.out(), "Pull request creation failed: %v\n", err)
						prURL = ""
					} else if o.Recorder != nil {
						o.Recorder.PRCreated(prURL)
					}
				}
			}

			if prURL != "" && o.Config.Oversight == models.OversightAutonomous {
				if err := o.GH.MergePR(ctx, o.RepoSlug, prURL); err != nil {
					fmt.Fprintf(o.out(), "Auto-merge failed: %v\n", err)
				} else {
					fmt.Fprintf(o.out(), "Auto-merged %s\n", prURL)
				}
			}
		}
	}

	totalCost := models.TotalCost(results)
	duration := time.Since(start)
	o.printSummary(results, totalCost, duration, prURL)
	if o.Recorder != nil {
		if html, err := o.Coord.RenderSummaryHTML(); err == nil {
			o.Recorder.WriteDigestReport(html)
		}
		o.Recorder.WriteMetadata()
	}

	if integrationSuccess || len(successful) == 0 {
		o.State.CompleteRun(o.RunID, prURL)
	} else {
		msg := integrationErr
		if msg == "" {
			msg = "integration failed"
		}
		o.State.FailRun(o.RunID, msg)
	}

	o.Worktrees.CleanupAll(ctx, false)
	o.Coord.Cleanup()

	return &models.SwarmResult{
		RunID:              o.RunID,
		Task:               o.Config.Task,
		Plan:               plan,
		WorkerResults:      results,
		IntegrationSuccess: integrationSuccess,
		PRUrl:              prURL,
		TotalCostUSD:       totalCost,
		DurationMS:         duration.Milliseconds(),
	}, nil
}

// Resume continues an interrupted run: it reloads the run's stored plan,
// narrows the task list to workers that never finished (Pending or Failed),
// and re-enters execution from there.
func (o *Orchestrator) Resume(ctx context.Context) (*models.SwarmResult, error) {
	run, err := o.State.Run(o.RunID)
	if err != nil {
		return nil, fmt.Errorf("resume: load run: %w", err)
	}
	if run == nil || run.Plan == nil {
		return nil, fmt.Errorf("resume: no stored plan for run %s", o.RunID)
	}

	resumable, err := o.State.ResumableWorkers(o.RunID)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	pending := make(map[string]bool, len(resumable))
	for _, w := range resumable {
		pending[w.WorkerID] = true
	}

	plan := *run.Plan
	var tasks []models.WorkerTask
	for _, t := range plan.Tasks {
		if pending[t.WorkerID] {
			tasks = append(tasks, t)
		}
	}
	plan.Tasks = tasks

	baseBranch := run.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	fmt.Fprintf(o.out(), "Resuming run %s: %d subtask(s) remaining\n", o.RunID, len(tasks))
	return o.runFromPlan(ctx, &plan, baseBranch, time.Now())
}

// emergencyCleanup is invoked on SIGINT/SIGTERM. Every step is best-effort:
// the process is on its way out, so a cleanup failure is neither propagated
// nor reported.
func (o *Orchestrator) emergencyCleanup(ctx context.Context) {
	o.State.SetRunStatus(o.RunID, models.StatusInterrupted)
	o.Worktrees.CleanupAll(ctx, true)
	o.Coord.Cleanup()
}

// executeWorkers creates a worktree for each task up front (sequentially, to
// avoid worktree/ref lock contention), then runs the tasks concurrently,
// staggering launches and bounding concurrency to Config.MaxWorkers with a
// buffered-channel semaphore. A running cost total is checked inside the
// semaphore's critical section so a worker that just finished can trip the
// breaker before the next one starts; once tripped, every further worker is
// skipped rather than launched.
func (o *Orchestrator) executeWorkers(ctx context.Context, tasks []models.WorkerTask, baseBranch string) []models.WorkerResult {
	if len(tasks) == 0 {
		return nil
	}

	workerIDs := make([]string, len(tasks))
	for i, t := range tasks {
		workerIDs[i] = t.WorkerID
	}
	o.Coord.Setup(workerIDs)

	worktreePaths := make(map[string]string, len(tasks))
	for _, t := range tasks {
		path, err := o.Worktrees.CreateWorktree(ctx, t.WorkerID, baseBranch)
		branch := o.Worktrees.BranchName(t.WorkerID)
		o.State.RegisterWorker(o.RunID, t.WorkerID, t.Title, branch)
		if err != nil {
			fmt.Fprintf(o.out(), "worker %s: failed to create worktree: %v\n", t.WorkerID, err)
			continue
		}
		worktreePaths[t.WorkerID] = path
	}

	maxConcurrency := o.Config.MaxWorkers
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	semaphore := make(chan struct{}, maxConcurrency)
	resultsCh := make(chan models.WorkerResult, len(tasks))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var runningCost float64
	costExceeded := false

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task models.WorkerTask) {
			defer wg.Done()

			select {
			case <-time.After(time.Duration(i) * workerStagger):
			case <-ctx.Done():
				resultsCh <- o.skippedResult(task, "cancelled before launch")
				return
			}

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				resultsCh <- o.skippedResult(task, "cancelled before launch")
				return
			}
			defer func() { <-semaphore }()

			mu.Lock()
			exceeded := costExceeded
			mu.Unlock()
			if exceeded {
				resultsCh <- o.skippedResult(task, "skipped: cost limit exceeded")
				return
			}

			worktreePath := worktreePaths[task.WorkerID]
			if worktreePath == "" {
				resultsCh <- o.skippedResult(task, "worktree creation failed")
				return
			}

			if o.Recorder != nil {
				o.Recorder.WorkerStart(task.WorkerID, task.Title)
			}
			running := models.WorkerRunning
			o.State.UpdateWorker(o.RunID, task.WorkerID, state.WorkerUpdate{Status: &running, WorktreePath: &worktreePath})

			result := o.Workers.Run(ctx, task, worktreePath, o.Coord.Dir())
			if files, err := o.Worktrees.GetChangedFiles(ctx, task.WorkerID); err == nil {
				result.FilesChanged = files
			}

			if o.Recorder != nil {
				o.Recorder.WorkerComplete(task.WorkerID, eventlog.WorkerCompleteData{
					Success:      result.Success,
					CostUSD:      result.CostUSD,
					DurationMS:   result.DurationMS,
					FilesChanged: result.FilesChanged,
					Summary:      result.Summary,
				})
			}

			o.recordWorkerResult(task.WorkerID, result)

			if result.CostUSD != nil {
				mu.Lock()
				runningCost += *result.CostUSD
				if o.Config.MaxTotalCostUSD > 0 && runningCost > o.Config.MaxTotalCostUSD {
					costExceeded = true
					fmt.Fprintf(o.out(), "cost limit exceeded ($%.2f > $%.2f); no further workers will launch\n", runningCost, o.Config.MaxTotalCostUSD)
				}
				mu.Unlock()
			}

			resultsCh <- result
		}(i, task)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	results := make([]models.WorkerResult, 0, len(tasks))
	for r := range resultsCh {
		results = append(results, r)
	}
	return results
}

func (o *Orchestrator) skippedResult(task models.WorkerTask, reason string) models.WorkerResult {
	result := models.WorkerResult{WorkerID: task.WorkerID, Success: false, Error: reason}
	failed := models.WorkerFailed
	o.State.UpdateWorker(o.RunID, task.WorkerID, state.WorkerUpdate{Status: &failed, Error: &reason})
	return result
}

func (o *Orchestrator) recordWorkerResult(workerID string, result models.WorkerResult) {
	status := models.WorkerCompleted
	if !result.Success {
		status = models.WorkerFailed
	}
	completedAt := time.Now().UTC().Format(time.RFC3339)
	summary := result.Summary
	errMsg := result.Error
	attempt := result.Attempt
	model := result.ModelUsed
	o.State.UpdateWorker(o.RunID, workerID, state.WorkerUpdate{
		Status:       &status,
		CostUSD:      result.CostUSD,
		DurationMS:   result.DurationMS,
		Summary:      &summary,
		Error:        &errMsg,
		FilesChanged: result.FilesChanged,
		Attempt:      &attempt,
		ModelUsed:    &model,
		CompletedAt:  &completedAt,
	})
}

// printSummary renders a worker/status/cost/duration table, matching the
// run-end summary the original tool prints via rich.Table.
func (o *Orchestrator) printSummary(results []models.WorkerResult, totalCost float64, duration time.Duration, prURL string) {
	w := o.out()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "\nRun summary")
	for _, r := range results {
		status := green("success")
		if !r.Success {
			status = red("failed")
		}
		cost := "-"
		if r.CostUSD != nil {
			cost = fmt.Sprintf("$%.2f", *r.CostUSD)
		}
		dur := "-"
		if r.DurationMS != nil {
			dur = (time.Duration(*r.DurationMS) * time.Millisecond).Round(time.Second).String()
		}
		fmt.Fprintf(w, "  %-16s %s  cost=%s  duration=%s  files=%d\n", r.WorkerID, status, cost, dur, len(r.FilesChanged))
	}
	fmt.Fprintf(w, "Total cost: $%.2f  Duration: %s\n", totalCost, duration.Round(time.Second))
	if prURL != "" {
		fmt.Fprintf(w, "Pull request: %s\n", prURL)
	}
}
