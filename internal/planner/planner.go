// Package planner turns a task description into a Plan: a decomposition of
// the work into independent subtasks, one per worker, by asking a single
// high-capability agent to read the repository first.
package planner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harrison/swarm/internal/claude"
	"github.com/harrison/swarm/internal/eventlog"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/swarmerrors"
)

// maxBudgetCapUSD is the flat cap Budget applies, regardless of how large
// the run's total budget is. Plan passes no budget to the planning agent's
// invocation, so the planner's spend is not limited by it.
const maxBudgetCapUSD = 5.0

// maxBudgetFraction is the planner's share of the run's total budget when
// that is the smaller of the two ceilings.
const maxBudgetFraction = 0.2

// maxTurns is the planner's tool-use step count. Nothing reads it: Plan
// passes no turn limit to the agent invocation.
const maxTurns = 30

const systemPromptTemplate = `You are the planning agent for a swarm of coding agents. Your job is to analyze a codebase and decompose a task into parallel subtasks that can be executed by independent worker agents.

## Your Process

1. Discover the repository: examine its structure, tech stack, build system, test framework, and existing conventions. Read key config files and any CLAUDE.md or README.
2. Understand the task: break down what needs to be done and identify which parts of the codebase are involved.
3. Decompose into parallel subtasks: create independent subtasks that can be worked on simultaneously by separate agents, each in their own git worktree. Each subtask should:
   - Be self-contained enough to work on independently
   - Have clear boundaries (which files to modify, what to implement)
   - Include specific acceptance criteria
   - Minimize overlap with other subtasks (some overlap is OK, merge conflicts will be handled)
4. Identify the test command (and build command, if distinct) so the integrated result can be validated.

## Constraints

- Maximum %d subtasks (workers)
- Each worker gets its own git worktree and branch; they cannot see each other's changes except through the coordination bus
- Workers have access to Read, Write, Edit, Bash, Glob, Grep
- Prefer fewer, larger subtasks over many tiny ones
- If the task is simple enough for one agent, return a single subtask

Respond with a JSON object matching the provided schema.`

// planSchema is the JSON schema enforced via claude.Request.Schema, mirroring
// the Plan struct's fields exactly.
const planSchema = `{
  "type": "object",
  "required": ["original_task", "reasoning", "tasks", "integration_notes"],
  "properties": {
    "original_task": {"type": "string"},
    "reasoning": {"type": "string"},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["worker_id", "title", "description"],
        "properties": {
          "worker_id": {"type": "string"},
          "title": {"type": "string"},
          "description": {"type": "string"},
          "target_files": {"type": "array", "items": {"type": "string"}},
          "acceptance_criteria": {"type": "array", "items": {"type": "string"}},
          "coordination_notes": {"type": "string"},
          "coupled_with": {"type": "array", "items": {"type": "string"}},
          "shared_interfaces": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "integration_notes": {"type": "string"},
    "test_command": {"type": "string"},
    "build_command": {"type": "string"}
  }
}`

// Planner decomposes a task into a Plan via a single planning agent
// invocation.
type Planner struct {
	claude.Service
	Model string
}

// New creates a Planner backed by svc, an already-configured claude.Service
// (timeout and rate-limit logger set by the caller), invoking the given
// model (typically the run's higher-capability orchestrator model).
func New(svc *claude.Service, model string) *Planner {
	return &Planner{Service: *svc, Model: model}
}

// Budget returns the planner's USD ceiling for a run with the given total
// cost ceiling: the lesser of a flat cap and a fraction of the total. Plan
// does not apply it to the agent invocation.
func Budget(maxTotalCostUSD float64) float64 {
	fraction := maxTotalCostUSD * maxBudgetFraction
	if fraction < maxBudgetCapUSD {
		return fraction
	}
	return maxBudgetCapUSD
}

// Plan invokes the planning agent and returns its decomposition, truncated
// to at most maxWorkers tasks.
func (p *Planner) Plan(ctx context.Context, task string, maxWorkers int, recorder *eventlog.Recorder) (*models.Plan, error) {
	if recorder != nil {
		recorder.PlanStart(task)
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, maxWorkers)
	prompt := fmt.Sprintf("Analyze this repository and decompose the following task into parallel subtasks:\n\n%s", task)

	inv := p.Invoker()
	inv.SystemPrompt = systemPrompt

	req := claude.Request{Prompt: prompt, Schema: planSchema, Model: p.Model, BypassPerms: true}
	resp, err := inv.Invoke(ctx, req)
	if err != nil {
		return nil, swarmerrors.NewPlanningError("planning agent invocation failed", err)
	}

	content, _, err := claude.ParseResponse(resp.RawOutput)
	if err != nil {
		return nil, swarmerrors.NewPlanningError("failed to parse planning agent output", err)
	}
	if content == "" {
		return nil, swarmerrors.NewPlanningError("planning agent returned no output", nil)
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		if extracted := claude.ExtractJSON(content); extracted != "" {
			if err2 := json.Unmarshal([]byte(extracted), &plan); err2 != nil {
				return nil, swarmerrors.NewPlanningError("failed to parse plan", err)
			}
		} else {
			return nil, swarmerrors.NewPlanningError("failed to parse plan", err)
		}
	}

	if len(plan.Tasks) > maxWorkers {
		plan.Tasks = plan.Tasks[:maxWorkers]
	}

	if recorder != nil {
		recorder.PlanComplete(len(plan.Tasks), resp.TotalCostUSD)
	}
	return &plan, nil
}
