// Package models defines the data structures shared across the swarm
// orchestration engine: run configuration, the planner's output, worker
// inputs and outputs, and the documents persisted by the state store and
// coordination bus.
package models

import "fmt"

// OversightMode controls how much human approval a run requires before it
// proceeds past planning, execution, and integration.
type OversightMode string

const (
	OversightAutonomous OversightMode = "autonomous"
	OversightPRGated    OversightMode = "pr-gated"
	OversightCheckpoint OversightMode = "checkpoint"
)

// Valid reports whether m is one of the known oversight modes.
func (m OversightMode) Valid() bool {
	switch m {
	case OversightAutonomous, OversightPRGated, OversightCheckpoint:
		return true
	default:
		return false
	}
}

// RunStatus is the lifecycle status of an overall swarm run.
type RunStatus string

const (
	StatusPlanning         RunStatus = "planning"
	StatusExecuting        RunStatus = "executing"
	StatusIntegrating      RunStatus = "integrating"
	StatusCompleted        RunStatus = "completed"
	StatusFailed           RunStatus = "failed"
	StatusInterrupted      RunStatus = "interrupted"
	StatusPausedCheckpoint RunStatus = "paused_checkpoint"
)

// Terminal reports whether the run has reached a status it will not leave
// without being explicitly resumed or restarted.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// WorkerStatus is the lifecycle status of a single worker within a run.
type WorkerStatus string

const (
	WorkerPending   WorkerStatus = "pending"
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
)

// RunConfig is the immutable configuration for a single swarm run.
type RunConfig struct {
	Task               string        `yaml:"task" json:"task"`
	RepoPath           string        `yaml:"repo_path" json:"repo_path"`
	MaxWorkers         int           `yaml:"max_workers" json:"max_workers"`
	PlannerModel       string        `yaml:"orchestrator_model" json:"orchestrator_model"`
	WorkerModel        string        `yaml:"model" json:"model"`
	EscalationModel    string        `yaml:"escalation_model" json:"escalation_model"`
	MaxTotalCostUSD    float64       `yaml:"max_cost" json:"max_cost"`
	MaxWorkerCostUSD   float64       `yaml:"max_worker_cost" json:"max_worker_cost"`
	MaxWorkerAttempts  int           `yaml:"max_worker_retries" json:"max_worker_retries"`
	EnableEscalation   bool          `yaml:"enable_escalation" json:"enable_escalation"`
	ResolveConflicts   bool          `yaml:"resolve_conflicts" json:"resolve_conflicts"`
	ReviewAfterMerge   bool          `yaml:"review" json:"review"`
	Oversight          OversightMode `yaml:"oversight" json:"oversight"`
	CreatePR           bool          `yaml:"create_pr" json:"create_pr"`
	DryRun             bool          `yaml:"dry_run" json:"dry_run"`
	BaseBranch         string        `yaml:"base_branch" json:"base_branch,omitempty"`
	IssueNumber        int           `yaml:"-" json:"issue_number,omitempty"`
}

// Validate checks the configuration for internally-inconsistent values that
// would make a run meaningless to start (e.g. autonomous mode with no PR and
// no way to land changes).
func (c *RunConfig) Validate() error {
	if c.Task == "" {
		return fmt.Errorf("task must not be empty")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.MaxTotalCostUSD <= 0 {
		return fmt.Errorf("max_cost must be > 0")
	}
	if c.MaxWorkerCostUSD <= 0 {
		return fmt.Errorf("max_worker_cost must be > 0")
	}
	if c.MaxWorkerAttempts < 1 {
		return fmt.Errorf("max_worker_retries must be >= 1, got %d", c.MaxWorkerAttempts)
	}
	if !c.Oversight.Valid() {
		return fmt.Errorf("invalid oversight mode: %q", c.Oversight)
	}
	if c.Oversight == OversightAutonomous && !c.CreatePR {
		return fmt.Errorf("autonomous oversight requires create_pr (auto-merge needs a PR to merge)")
	}
	return nil
}

// WorkerTask is a single subtask assigned to one worker agent.
type WorkerTask struct {
	WorkerID            string   `json:"worker_id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	TargetFiles         []string `json:"target_files"`
	AcceptanceCriteria  []string `json:"acceptance_criteria"`
	CoordinationNotes   string   `json:"coordination_notes"`
	CoupledWith         []string `json:"coupled_with"`
	SharedInterfaces    []string `json:"shared_interfaces"`
}

// Plan is the planner's decomposition of a task into parallel subtasks.
type Plan struct {
	OriginalTask      string       `json:"original_task"`
	Reasoning         string       `json:"reasoning"`
	Tasks             []WorkerTask `json:"tasks"`
	IntegrationNotes  string       `json:"integration_notes"`
	TestCommand       string       `json:"test_command,omitempty"`
	BuildCommand      string       `json:"build_command,omitempty"`
}

// WorkerResult is the outcome of a single worker's execution, including
// retries: Attempt and ModelUsed reflect the attempt that produced this
// result, not necessarily the first one.
type WorkerResult struct {
	WorkerID     string   `json:"worker_id"`
	Success      bool     `json:"success"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`
	DurationMS   *int64   `json:"duration_ms,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	FilesChanged []string `json:"files_changed"`
	Error        string   `json:"error,omitempty"`
	Attempt      int      `json:"attempt"`
	ModelUsed    string   `json:"model_used,omitempty"`
}

// WorkerState is the state store's durable record of a single worker.
type WorkerState struct {
	WorkerID     string       `json:"worker_id"`
	Title        string       `json:"title"`
	Status       WorkerStatus `json:"status"`
	Branch       string       `json:"branch"`
	WorktreePath string       `json:"worktree_path,omitempty"`
	CostUSD      *float64     `json:"cost_usd,omitempty"`
	DurationMS   *int64       `json:"duration_ms,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Error        string       `json:"error,omitempty"`
	FilesChanged []string     `json:"files_changed"`
	Attempt      int          `json:"attempt"`
	ModelUsed    string       `json:"model_used,omitempty"`
	StartedAt    string       `json:"started_at,omitempty"`
	CompletedAt  string       `json:"completed_at,omitempty"`
}

// RunState is the state store's durable record of a single swarm run.
type RunState struct {
	RunID              string                 `json:"run_id"`
	Task               string                 `json:"task"`
	Status             RunStatus              `json:"status"`
	BaseBranch         string                 `json:"base_branch"`
	Plan               *Plan                  `json:"plan,omitempty"`
	Workers            map[string]*WorkerState `json:"workers"`
	IntegrationBranch  string                 `json:"integration_branch,omitempty"`
	PRUrl              string                 `json:"pr_url,omitempty"`
	TotalCostUSD       float64                `json:"total_cost_usd"`
	Error              string                 `json:"error,omitempty"`
	StartedAt          string                 `json:"started_at"`
	UpdatedAt          string                 `json:"updated_at"`
	ConfigSnapshot     map[string]interface{} `json:"config_snapshot"`
}

// SwarmState is the top-level document persisted at .swarm/state.json.
type SwarmState struct {
	Version   int                  `json:"version"`
	ActiveRun string               `json:"active_run,omitempty"`
	Runs      map[string]*RunState `json:"runs"`
}

// NewSwarmState returns an empty, version-1 state document.
func NewSwarmState() *SwarmState {
	return &SwarmState{Version: 1, Runs: make(map[string]*RunState)}
}

// SwarmResult is the final outcome of a complete swarm run, returned to the
// CLI layer and to the issue driver for reporting.
type SwarmResult struct {
	RunID               string         `json:"run_id"`
	Task                string         `json:"task"`
	Plan                *Plan          `json:"plan"`
	WorkerResults       []WorkerResult `json:"worker_results"`
	IntegrationSuccess  bool           `json:"integration_success"`
	PRUrl               string         `json:"pr_url,omitempty"`
	TotalCostUSD        float64        `json:"total_cost_usd"`
	DurationMS          int64          `json:"duration_ms"`
}

// TotalCost sums the cost of every worker result that reported one,
// matching the State Store invariant that total_cost_usd = sum(worker costs).
func TotalCost(results []WorkerResult) float64 {
	var total float64
	for _, r := range results {
		if r.CostUSD != nil {
			total += *r.CostUSD
		}
	}
	return total
}

// MessageType classifies an inter-worker coordination message.
type MessageType string

const (
	MessageInfo     MessageType = "info"
	MessageQuestion MessageType = "question"
	MessageDecision MessageType = "decision"
	MessageBlocker  MessageType = "blocker"
)

// SharedNote is a structured note one worker writes for others to read.
type SharedNote struct {
	WorkerID  string   `json:"worker_id"`
	Timestamp string   `json:"timestamp"`
	Topic     string   `json:"topic"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
}

// Message is a directed message from one worker to another's inbox.
type Message struct {
	FromWorker string      `json:"from_worker"`
	ToWorker   string      `json:"to_worker"`
	Timestamp  string      `json:"timestamp"`
	Topic      string      `json:"topic"`
	Content    string      `json:"content"`
	Type       MessageType `json:"message_type"`
}

// PeerStatus is a worker's self-reported progress state.
type PeerStatus string

const (
	PeerStarting         PeerStatus = "starting"
	PeerInProgress       PeerStatus = "in-progress"
	PeerMilestoneReached PeerStatus = "milestone-reached"
	PeerBlocked          PeerStatus = "blocked"
	PeerDone             PeerStatus = "done"
)

// WorkerPeerStatus is a worker's self-reported progress, written to the
// coordination bus's status directory.
type WorkerPeerStatus struct {
	WorkerID  string     `json:"worker_id"`
	Timestamp string     `json:"timestamp"`
	Status    PeerStatus `json:"status"`
	Milestone string     `json:"milestone,omitempty"`
	Details   string     `json:"details,omitempty"`
}

// IssueConfig is a GitHub issue's extracted swarm configuration, produced by
// the Issue Driver from an issue's title, body, and labels.
type IssueConfig struct {
	IssueNumber     int
	Owner           string
	RepoName        string
	Title           string
	Body            string
	Labels          []string
	Oversight       string
	Model           string
	MaxWorkers      int
	MaxCost         float64
	MaxWorkerCost   float64
}

// TaskDescription strips the "[swarm]" trigger prefix from the issue title
// and appends the issue body, producing the text handed to the planner.
func (c IssueConfig) TaskDescription() string {
	title := c.Title
	const prefix = "[swarm]"
	if len(title) >= len(prefix) && title[:len(prefix)] == prefix {
		title = title[len(prefix):]
	}
	for len(title) > 0 && title[0] == ' ' {
		title = title[1:]
	}
	if c.Body != "" {
		return title + "\n\n" + c.Body
	}
	return title
}
