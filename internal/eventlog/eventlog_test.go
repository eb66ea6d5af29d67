package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestRecorderWritesEventsAndMetadata(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "run-1")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	r.PlanStart("add retries")
	cost := 1.25
	r.PlanComplete(3, &cost)
	r.WorkerStart("worker-1", "add retry loop")

	workerCost := 0.75
	duration := int64(4200)
	r.WorkerComplete("worker-1", WorkerCompleteData{
		Success:      true,
		CostUSD:      &workerCost,
		DurationMS:   &duration,
		FilesChanged: []string{"client.go"},
		Summary:      "added retries",
	})
	r.IntegrationStart()
	r.MergeResult(true, []string{"swarm/run-1/worker-1"}, "")
	r.TestResult(true, "go test ./...", "ok")
	r.PRCreated("https://example.com/pr/1")

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.WriteMetadata(); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	eventsPath := filepath.Join(dir, ".swarm", "logs", "run-1", "events.jsonl")
	lines := readLines(t, eventsPath)
	if len(lines) != 8 {
		t.Fatalf("expected 8 events, got %d: %+v", len(lines), lines)
	}
	if lines[0]["event"] != "plan_start" {
		t.Errorf("expected first event plan_start, got %v", lines[0]["event"])
	}

	metaData, err := os.ReadFile(filepath.Join(dir, ".swarm", "logs", "run-1", "metadata.json"))
	if err != nil {
		t.Fatalf("read metadata.json: %v", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta.TotalCostUSD != 2.0 {
		t.Errorf("expected total cost 2.0 (plan 1.25 + worker 0.75), got %f", meta.TotalCostUSD)
	}
	if meta.WorkerCount != 1 || meta.SuccessCount != 1 || meta.FailureCount != 0 {
		t.Errorf("expected 1 worker, 1 success, 0 failures, got %+v", meta)
	}
	if meta.WorkerCosts["worker-1"] != 0.75 {
		t.Errorf("expected worker-1 cost 0.75, got %v", meta.WorkerCosts)
	}
}

func TestWorkerErrorIncrementsFailureCount(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, "run-1")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer r.Close()

	r.WorkerStart("worker-1", "t")
	r.WorkerRetry("worker-1", 2, "previous attempt failed")
	r.WorkerError("worker-1", "exceeded max attempts")

	if err := r.WriteMetadata(); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	metaData, _ := os.ReadFile(filepath.Join(dir, ".swarm", "logs", "run-1", "metadata.json"))
	var meta Metadata
	json.Unmarshal(metaData, &meta)
	if meta.FailureCount != 1 {
		t.Errorf("expected 1 failure, got %d", meta.FailureCount)
	}
}
