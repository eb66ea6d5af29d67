// Package state persists swarm run and worker lifecycle state to
// .swarm/state.json, so a run can be resumed after an interruption.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/swarm/internal/filelock"
	"github.com/harrison/swarm/internal/models"
)

const stateDirName = ".swarm"
const stateFileName = "state.json"

// Store manages the single state.json document for a repository. All writes
// go through filelock.LockAndWriteJSON so concurrent `swarm` processes (e.g.
// a `watch` loop and a manual `swarm status`) never corrupt or interleave
// writes; a local mutex additionally serializes load-modify-save sequences
// within this process.
type Store struct {
	mu        sync.Mutex
	stateDir  string
	statePath string
}

// NewStore returns a Store rooted at repoPath.
func NewStore(repoPath string) *Store {
	dir := filepath.Join(repoPath, stateDirName)
	return &Store{
		stateDir:  dir,
		statePath: filepath.Join(dir, stateFileName),
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Load reads state from disk, returning a fresh empty state if the file
// doesn't exist or is corrupt.
func (s *Store) Load() (*models.SwarmState, error) {
	data, err := os.ReadFile(s.statePath)
	if os.IsNotExist(err) {
		return models.NewSwarmState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st models.SwarmState
	if err := json.Unmarshal(data, &st); err != nil {
		return models.NewSwarmState(), nil
	}
	if st.Runs == nil {
		st.Runs = make(map[string]*models.RunState)
	}
	return &st, nil
}

// Save atomically writes state to disk.
func (s *Store) Save(st *models.SwarmState) error {
	if err := os.MkdirAll(s.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return filelock.LockAndWriteJSON(s.statePath, st)
}

// mutate loads state, applies fn, and saves it back, all under the
// in-process mutex.
func (s *Store) mutate(fn func(*models.SwarmState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.Load()
	if err != nil {
		return err
	}
	fn(st)
	return s.Save(st)
}

// ConfigSnapshot captures the config fields worth recording alongside a run,
// matching what StartRun records in the original tool.
type ConfigSnapshot struct {
	MaxWorkers        int     `json:"max_workers"`
	Model             string  `json:"model"`
	OrchestratorModel string  `json:"orchestrator_model"`
	MaxCost           float64 `json:"max_cost"`
	MaxWorkerCost     float64 `json:"max_worker_cost"`
	MaxWorkerRetries  int     `json:"max_worker_retries"`
	EscalationModel   string  `json:"escalation_model"`
	EnableEscalation  bool    `json:"enable_escalation"`
	ResolveConflicts  bool    `json:"resolve_conflicts"`
	Oversight         string  `json:"oversight"`
}

func snapshotMap(c ConfigSnapshot) map[string]interface{} {
	return map[string]interface{}{
		"max_workers":        c.MaxWorkers,
		"model":              c.Model,
		"orchestrator_model": c.OrchestratorModel,
		"max_cost":           c.MaxCost,
		"max_worker_cost":    c.MaxWorkerCost,
		"max_worker_retries": c.MaxWorkerRetries,
		"escalation_model":   c.EscalationModel,
		"enable_escalation":  c.EnableEscalation,
		"resolve_conflicts":  c.ResolveConflicts,
		"oversight":          c.Oversight,
	}
}

// StartRun registers runID as the active run. If an existing active run is
// still non-terminal, it is marked Interrupted rather than silently
// discarded — a crash-recovery signal for the next `swarm status`.
func (s *Store) StartRun(runID, task, baseBranch string, cfg ConfigSnapshot) (*models.RunState, error) {
	var created *models.RunState
	err := s.mutate(func(st *models.SwarmState) {
		if st.ActiveRun != "" {
			if existing, ok := st.Runs[st.ActiveRun]; ok && !existing.Status.Terminal() {
				existing.Status = models.StatusInterrupted
				existing.UpdatedAt = now()
			}
		}
		ts := now()
		if baseBranch == "" {
			baseBranch = "main"
		}
		run := &models.RunState{
			RunID:          runID,
			Task:           task,
			Status:         models.StatusPlanning,
			BaseBranch:     baseBranch,
			Workers:        make(map[string]*models.WorkerState),
			StartedAt:      ts,
			UpdatedAt:      ts,
			ConfigSnapshot: snapshotMap(cfg),
		}
		st.Runs[runID] = run
		st.ActiveRun = runID
		created = run
	})
	return created, err
}

// SetRunStatus updates a run's status.
func (s *Store) SetRunStatus(runID string, status models.RunStatus) error {
	return s.mutate(func(st *models.SwarmState) {
		run, ok := st.Runs[runID]
		if !ok {
			return
		}
		run.Status = status
		run.UpdatedAt = now()
	})
}

// SetRunPlan stores the planner's output for a run.
func (s *Store) SetRunPlan(runID string, plan *models.Plan) error {
	return s.mutate(func(st *models.SwarmState) {
		run, ok := st.Runs[runID]
		if !ok {
			return
		}
		run.Plan = plan
		run.UpdatedAt = now()
	})
}

// CompleteRun marks a run completed, recomputes its total cost from worker
// results, and clears it as the active run.
func (s *Store) CompleteRun(runID, prURL string) error {
	return s.mutate(func(st *models.SwarmState) {
		run, ok := st.Runs[runID]
		if !ok {
			return
		}
		run.Status = models.StatusCompleted
		run.PRUrl = prURL
		var total float64
		for _, w := range run.Workers {
			if w.CostUSD != nil {
				total += *w.CostUSD
			}
		}
		run.TotalCostUSD = total
		run.UpdatedAt = now()
		if st.ActiveRun == runID {
			st.ActiveRun = ""
		}
	})
}

// FailRun marks a run failed with the given error.
func (s *Store) FailRun(runID, errMsg string) error {
	return s.mutate(func(st *models.SwarmState) {
		run, ok := st.Runs[runID]
		if !ok {
			return
		}
		run.Status = models.StatusFailed
		run.Error = errMsg
		run.UpdatedAt = now()
		if st.ActiveRun == runID {
			st.ActiveRun = ""
		}
	})
}

// RegisterWorker adds a worker to a run's state in Pending status.
func (s *Store) RegisterWorker(runID, workerID, title, branch string) error {
	return s.mutate(func(st *models.SwarmState) {
		run, ok := st.Runs[runID]
		if !ok {
			return
		}
		run.Workers[workerID] = &models.WorkerState{
			WorkerID:  workerID,
			Title:     title,
			Status:    models.WorkerPending,
			Branch:    branch,
			StartedAt: now(),
		}
		run.UpdatedAt = now()
	})
}

// WorkerUpdate carries the subset of worker fields to change; nil pointers
// leave the existing value untouched, mirroring the original tool's
// keyword-argument update_worker.
type WorkerUpdate struct {
	Status       *models.WorkerStatus
	WorktreePath *string
	CostUSD      *float64
	DurationMS   *int64
	Summary      *string
	Error        *string
	FilesChanged []string
	Attempt      *int
	ModelUsed    *string
	CompletedAt  *string
}

// UpdateWorker applies a partial update to a worker's state.
func (s *Store) UpdateWorker(runID, workerID string, u WorkerUpdate) error {
	return s.mutate(func(st *models.SwarmState) {
		run, ok := st.Runs[runID]
		if !ok {
			return
		}
		w, ok := run.Workers[workerID]
		if !ok {
			return
		}
		if u.Status != nil {
			w.Status = *u.Status
		}
		if u.WorktreePath != nil {
			w.WorktreePath = *u.WorktreePath
		}
		if u.CostUSD != nil {
			w.CostUSD = u.CostUSD
		}
		if u.DurationMS != nil {
			w.DurationMS = u.DurationMS
		}
		if u.Summary != nil {
			w.Summary = *u.Summary
		}
		if u.Error != nil {
			w.Error = *u.Error
		}
		if u.FilesChanged != nil {
			w.FilesChanged = u.FilesChanged
		}
		if u.Attempt != nil {
			w.Attempt = *u.Attempt
		}
		if u.ModelUsed != nil {
			w.ModelUsed = *u.ModelUsed
		}
		if u.CompletedAt != nil {
			w.CompletedAt = *u.CompletedAt
		}
		run.UpdatedAt = now()
	})
}

// ActiveRun returns the currently active run, if any.
func (s *Store) ActiveRun() (*models.RunState, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	if st.ActiveRun != "" {
		if run, ok := st.Runs[st.ActiveRun]; ok {
			return run, nil
		}
	}
	return nil, nil
}

// HasActiveRun reports whether there is a currently active run.
func (s *Store) HasActiveRun() (bool, error) {
	run, err := s.ActiveRun()
	return run != nil, err
}

// ResumableWorkers returns the workers of a run that still need to run:
// those Pending or Failed.
func (s *Store) ResumableWorkers(runID string) ([]*models.WorkerState, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	run, ok := st.Runs[runID]
	if !ok {
		return nil, nil
	}
	var out []*models.WorkerState
	for _, w := range run.Workers {
		if w.Status == models.WorkerPending || w.Status == models.WorkerFailed {
			out = append(out, w)
		}
	}
	return out, nil
}

// Run returns a specific run by id.
func (s *Store) Run(runID string) (*models.RunState, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	return st.Runs[runID], nil
}

// LastInterruptedRun returns the most recently updated Interrupted run, if
// any — used by `swarm resume` when no run id is given.
func (s *Store) LastInterruptedRun() (*models.RunState, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	var latest *models.RunState
	for _, run := range st.Runs {
		if run.Status != models.StatusInterrupted {
			continue
		}
		if latest == nil || run.UpdatedAt > latest.UpdatedAt {
			latest = run
		}
	}
	return latest, nil
}

// ClearRun removes a single run from state.
func (s *Store) ClearRun(runID string) error {
	return s.mutate(func(st *models.SwarmState) {
		delete(st.Runs, runID)
		if st.ActiveRun == runID {
			st.ActiveRun = ""
		}
	})
}

// ClearAll discards all state.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Save(models.NewSwarmState())
}
