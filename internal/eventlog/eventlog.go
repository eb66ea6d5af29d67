// Package eventlog records a swarm run's events to an append-only JSONL
// file and writes a final metadata.json summary, following this
// codebase's convention of one timestamped log artifact per run.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recorder appends events for a single run to
// .swarm/logs/<run_id>/events.jsonl and accumulates the running totals
// written to metadata.json at the end of the run.
type Recorder struct {
	runID   string
	logDir  string
	start   time.Time

	mu            sync.Mutex
	file          *os.File
	workerCosts   map[string]float64
	totalCost     float64
	workerCount   int
	successCount  int
	failureCount  int
}

// NewRecorder creates the run's log directory and opens events.jsonl for
// append.
func NewRecorder(repoPath, runID string) (*Recorder, error) {
	logDir := filepath.Join(repoPath, ".swarm", "logs", runID)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events.jsonl: %w", err)
	}
	return &Recorder{
		runID:       runID,
		logDir:      logDir,
		start:       time.Now(),
		file:        f,
		workerCosts: make(map[string]float64),
	}, nil
}

// Close closes the underlying events.jsonl file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

func (r *Recorder) elapsedMS() int64 {
	return time.Since(r.start).Milliseconds()
}

// record appends one JSON event line, merging data fields alongside the
// standard timestamp/elapsed_ms/event fields. Must be called with mu held.
func (r *Recorder) record(event string, data map[string]interface{}) {
	line := map[string]interface{}{
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"elapsed_ms": r.elapsedMS(),
		"event":      event,
	}
	for k, v := range data {
		line[k] = v
	}
	enc, err := json.Marshal(line)
	if err != nil {
		return
	}
	r.file.Write(append(enc, '\n'))
}

// PlanStart records the planner beginning work on task.
func (r *Recorder) PlanStart(task string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("plan_start", map[string]interface{}{"task": task})
}

// PlanComplete records the planner finishing, with the number of subtasks
// produced and (if known) the planning agent's cost.
func (r *Recorder) PlanComplete(numSubtasks int, costUSD *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if costUSD != nil {
		r.totalCost += *costUSD
	}
	r.record("plan_complete", map[string]interface{}{"num_subtasks": numSubtasks, "cost_usd": costUSD})
}

// WorkerStart records a worker beginning execution.
func (r *Recorder) WorkerStart(workerID, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workerCount++
	r.record("worker_start", map[string]interface{}{"worker_id": workerID, "title": title})
}

// WorkerCompleteData is the set of fields recorded when a worker finishes.
type WorkerCompleteData struct {
	Success      bool
	CostUSD      *float64
	DurationMS   *int64
	FilesChanged []string
	Summary      string
}

// WorkerComplete records a worker finishing, successfully or not.
func (r *Recorder) WorkerComplete(workerID string, d WorkerCompleteData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.CostUSD != nil {
		r.workerCosts[workerID] = *d.CostUSD
		r.totalCost += *d.CostUSD
	}
	if d.Success {
		r.successCount++
	} else {
		r.failureCount++
	}
	r.record("worker_complete", map[string]interface{}{
		"worker_id":     workerID,
		"success":       d.Success,
		"cost_usd":      d.CostUSD,
		"duration_ms":   d.DurationMS,
		"files_changed": d.FilesChanged,
		"summary":       d.Summary,
	})
}

// WorkerError records a worker failing with an unrecoverable error (all
// retry attempts exhausted).
func (r *Recorder) WorkerError(workerID, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureCount++
	r.record("worker_error", map[string]interface{}{"worker_id": workerID, "error": errMsg})
}

// WorkerRetry records a worker being retried after a failed attempt.
func (r *Recorder) WorkerRetry(workerID string, attempt int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("worker_retry", map[string]interface{}{"worker_id": workerID, "attempt": attempt, "reason": reason})
}

// ConflictResolution records the outcome of an automatic merge-conflict
// resolution attempt.
func (r *Recorder) ConflictResolution(success bool, branches []string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("conflict_resolution", map[string]interface{}{"success": success, "branches": branches, "error": errMsg})
}

// IntegrationStart records the integrator beginning the merge pipeline.
func (r *Recorder) IntegrationStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("integration_start", nil)
}

// MergeResult records the outcome of merging the worker branches.
func (r *Recorder) MergeResult(success bool, branches []string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("merge_result", map[string]interface{}{"success": success, "branches": branches, "error": errMsg})
}

// TestResult records the outcome of running the build or test command.
func (r *Recorder) TestResult(success bool, command, output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("test_result", map[string]interface{}{"success": success, "command": command, "output": output})
}

// PRCreated records a pull request being opened for the run.
func (r *Recorder) PRCreated(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("pr_created", map[string]interface{}{"url": url})
}

// Metadata is the end-of-run summary written to metadata.json.
type Metadata struct {
	RunID        string             `json:"run_id"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	DurationMS   int64              `json:"duration_ms"`
	WorkerCount  int                `json:"worker_count"`
	SuccessCount int                `json:"success_count"`
	FailureCount int                `json:"failure_count"`
	WorkerCosts  map[string]float64 `json:"worker_costs"`
}

// LogDir returns the run's log directory, so other components can drop
// additional run-scoped artifacts (e.g. the coordination digest report)
// alongside events.jsonl and metadata.json.
func (r *Recorder) LogDir() string {
	return r.logDir
}

// WriteDigestReport writes the rendered coordination-bus digest to
// report.html in the run's log directory. A run with no notes, messages,
// or statuses produces an empty digest and this is a no-op.
func (r *Recorder) WriteDigestReport(html string) error {
	if html == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(r.logDir, "report.html"), []byte(html), 0o644)
}

// WriteMetadata writes the run's summary to metadata.json.
func (r *Recorder) WriteMetadata() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta := Metadata{
		RunID:        r.runID,
		TotalCostUSD: r.totalCost,
		DurationMS:   r.elapsedMS(),
		WorkerCount:  r.workerCount,
		SuccessCount: r.successCount,
		FailureCount: r.failureCount,
		WorkerCosts:  r.workerCosts,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.logDir, "metadata.json"), data, 0o644)
}
