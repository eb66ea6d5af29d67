// Package worker runs a single assigned subtask inside its own worktree,
// retrying on failure and optionally escalating to a stronger model.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/swarm/internal/claude"
	"github.com/harrison/swarm/internal/models"
)

const systemPromptTemplate = `You are a worker agent in a swarm of coding agents. You have been assigned a specific subtask to complete in your own isolated git worktree.

## Your Task
%s

## Target Files
%s

## Acceptance Criteria
%s

## Rules
- Focus ONLY on your assigned subtask. Do not make changes outside your scope.
- Commit your changes when done. Use a clear, descriptive commit message.
- If you encounter issues that block your work, document them clearly in your output.
- Do not push to remote -- the orchestrator will handle integration.
- Run any relevant tests for the files you changed if a test command is available.`

const retryContextTemplate = `
## Previous Attempt Failed
The previous attempt at this task failed. Here is the error context:
%s

Please fix the issue and try again. Focus on addressing the specific error above.`

const threeChannelCoordinationTemplate = `
## Coordination
%sOther workers are running in parallel, each in their own isolated worktree. A shared coordination directory at %s lets you exchange information with them without touching their files:
- notes/<your_worker_id>.json -- leave a note describing what you changed, for any worker to read.
- messages/<their_worker_id>/ -- drop a JSON message addressed to a specific worker's inbox.
- status/<your_worker_id>.json -- report your progress so others can see it.
Use these only when another worker genuinely needs to know something from you; they are not required for every task.`

const legacyNotesCoordinationTemplate = `
## Coordination
%sOther workers are running in parallel, each in their own isolated worktree. A shared notes directory at %s lets you leave a note (one JSON file per worker) describing what you changed, for any worker to read. Use it only when another worker genuinely needs to know something from you.`

const couplingTemplate = `
## Coupled Work
Your task is coupled with the following worker(s): %s.
%sCoordinate with them via the shared notes/messages above before assuming a shared interface is final.`

// Config controls a Runner's retry and model-escalation behavior.
type Config struct {
	Model            string
	MaxAttempts      int
	EscalationModel  string
	EnableEscalation bool
	MaxBudgetUSD     float64
}

// Runner executes worker tasks against a claude.Invoker.
type Runner struct {
	claude.Service
	Config Config
}

// New creates a Runner backed by svc (already configured with timeout and
// rate-limit logger) and cfg.
func New(svc *claude.Service, cfg Config) *Runner {
	return &Runner{Service: *svc, Config: cfg}
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

// Run executes task in worktreePath, retrying up to cfg.MaxAttempts times.
// coordDir is the run's coordination directory (internal/coordination's
// Bus.Dir()); an empty coordDir omits the coordination section entirely.
// On the second and later attempts, it appends the previous failure's error
// as extra context and, when EnableEscalation is set, switches to
// EscalationModel. The returned result's Attempt/ModelUsed reflect whichever
// attempt produced it: the first success, or the last failure if every
// attempt failed.
func (r *Runner) Run(ctx context.Context, task models.WorkerTask, worktreePath, coordDir string) models.WorkerResult {
	maxAttempts := r.Config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	model := r.Config.Model
	extraContext := ""
	var last models.WorkerResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && r.Config.EnableEscalation && r.Config.EscalationModel != "" {
			model = r.Config.EscalationModel
		}

		last = r.attempt(ctx, task, worktreePath, coordDir, model, extraContext)
		last.Attempt = attempt
		last.ModelUsed = model

		if last.Success {
			return last
		}

		extraContext = fmt.Sprintf(retryContextTemplate, last.Error)
	}

	return last
}

// coordinationSection appends the task's free-text coordination notes plus
// the three-channel coordination-bus instructions, or the legacy
// notes-only instructions when only a notes directory was set up, or
// nothing at all when coordDir is empty or doesn't exist on disk.
func coordinationSection(task models.WorkerTask, coordDir string) string {
	if coordDir == "" {
		return ""
	}
	notes := ""
	if task.CoordinationNotes != "" {
		notes = task.CoordinationNotes + "\n\n"
	}

	notesDir := filepath.Join(coordDir, "notes")
	if _, err := os.Stat(notesDir); err != nil {
		return ""
	}
	if _, err := os.Stat(filepath.Join(coordDir, "messages")); err == nil {
		if _, err := os.Stat(filepath.Join(coordDir, "status")); err == nil {
			return fmt.Sprintf(threeChannelCoordinationTemplate, notes, coordDir)
		}
	}
	return fmt.Sprintf(legacyNotesCoordinationTemplate, notes, notesDir)
}

// couplingSection appends the coupling section naming the task's coupled
// peers and any shared interfaces, when coupled_with is non-empty.
func couplingSection(task models.WorkerTask) string {
	if len(task.CoupledWith) == 0 {
		return ""
	}
	interfaces := ""
	if len(task.SharedInterfaces) > 0 {
		interfaces = "Shared interfaces:\n" + bulletList(task.SharedInterfaces, "") + "\n"
	}
	return fmt.Sprintf(couplingTemplate, strings.Join(task.CoupledWith, ", "), interfaces)
}

func (r *Runner) attempt(ctx context.Context, task models.WorkerTask, worktreePath, coordDir, model, extraContext string) models.WorkerResult {
	start := time.Now()

	systemPrompt := fmt.Sprintf(
		systemPromptTemplate,
		task.Description,
		bulletList(task.TargetFiles, "No specific files targeted."),
		bulletList(task.AcceptanceCriteria, "Complete the task as described."),
	)
	systemPrompt += coordinationSection(task, coordDir) + couplingSection(task)

	prompt := fmt.Sprintf("## Task: %s\n\n%s%s", task.Title, task.Description, extraContext)

	inv := r.Invoker()
	inv.SystemPrompt = systemPrompt

	req := claude.Request{
		Prompt:      prompt,
		Model:       model,
		Dir:         worktreePath,
		BypassPerms: true,
	}

	resp, err := inv.Invoke(ctx, req)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		return models.WorkerResult{
			WorkerID:   task.WorkerID,
			Success:    false,
			DurationMS: &durationMS,
			Error:      err.Error(),
		}
	}

	content, _, parseErr := claude.ParseResponse(resp.RawOutput)
	if parseErr != nil {
		return models.WorkerResult{
			WorkerID:   task.WorkerID,
			Success:    false,
			CostUSD:    resp.TotalCostUSD,
			DurationMS: &durationMS,
			Error:      parseErr.Error(),
		}
	}

	if content == "" {
		return models.WorkerResult{
			WorkerID:   task.WorkerID,
			Success:    false,
			CostUSD:    resp.TotalCostUSD,
			DurationMS: &durationMS,
			Error:      "worker produced no output",
		}
	}

	return models.WorkerResult{
		WorkerID:   task.WorkerID,
		Success:    true,
		CostUSD:    resp.TotalCostUSD,
		DurationMS: &durationMS,
		Summary:    content,
	}
}
