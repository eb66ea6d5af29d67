package issuedriver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

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

func TestParseIssueConfigAppliesLabelOverrides(t *testing.T) {
	issue := ghcli.Issue{
		Number: 7,
		Title:  "[swarm] add retry support",
		Body:   "client calls should retry on 5xx",
		Labels: []ghcli.IssueLabel{
			{Name: "swarm"},
			{Name: "oversight:autonomous"},
			{Name: "oversight:bogus"},
			{Name: "model:opus"},
			{Name: "workers:4"},
			{Name: "cost:25.5"},
			{Name: "worker-cost:3.5"},
			{Name: "workers:not-a-number"},
		},
	}

	cfg := ParseIssueConfig(issue, "o", "r")
	if cfg.Oversight != "autonomous" {
		t.Errorf("expected oversight override autonomous, got %q", cfg.Oversight)
	}
	if cfg.Model != "opus" {
		t.Errorf("expected model override opus, got %q", cfg.Model)
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("expected max workers override 4, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxCost != 25.5 {
		t.Errorf("expected max cost override 25.5, got %v", cfg.MaxCost)
	}
	if cfg.MaxWorkerCost != 3.5 {
		t.Errorf("expected max worker cost override 3.5, got %v", cfg.MaxWorkerCost)
	}
}

func TestParseIssueConfigInvalidOversightIgnored(t *testing.T) {
	issue := ghcli.Issue{Number: 1, Labels: []ghcli.IssueLabel{{Name: "oversight:not-a-mode"}}}
	cfg := ParseIssueConfig(issue, "o", "r")
	if cfg.Oversight != "" {
		t.Errorf("expected invalid oversight label to be ignored, got %q", cfg.Oversight)
	}
}

func TestRunConfigLayersOverridesOntoBase(t *testing.T) {
	base := models.RunConfig{
		MaxWorkers: 2, MaxTotalCostUSD: 10, MaxWorkerCostUSD: 2,
		WorkerModel: "sonnet", Oversight: models.OversightPRGated,
	}
	issueCfg := models.IssueConfig{
		IssueNumber: 9, Title: "[swarm] fix bug", Body: "details",
		Oversight: "autonomous", Model: "opus", MaxWorkers: 5,
	}

	cfg := RunConfig(issueCfg, base)
	if cfg.Task != "fix bug\n\ndetails" {
		t.Errorf("unexpected task description: %q", cfg.Task)
	}
	if !cfg.CreatePR {
		t.Error("expected CreatePR to always be true for issue-driven runs")
	}
	if cfg.IssueNumber != 9 {
		t.Errorf("expected issue number to carry through, got %d", cfg.IssueNumber)
	}
	if cfg.Oversight != models.OversightAutonomous {
		t.Errorf("expected oversight override to win, got %s", cfg.Oversight)
	}
	if cfg.WorkerModel != "opus" {
		t.Errorf("expected model override to win, got %s", cfg.WorkerModel)
	}
	if cfg.MaxWorkers != 5 {
		t.Errorf("expected max workers override to win, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxTotalCostUSD != 10 {
		t.Errorf("expected unset cost override to keep base value, got %v", cfg.MaxTotalCostUSD)
	}
}

type fakeGH struct {
	calls           [][]string
	prURL           string
	listOutput      string
	failRemoveLabel string
}

func (f *fakeGH) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)

	if f.failRemoveLabel != "" && name == "gh" && len(args) >= 2 && args[0] == "issue" && args[1] == "edit" {
		for i, a := range args {
			if a == "--remove-label" && i+1 < len(args) && args[i+1] == f.failRemoveLabel {
				return "", fmt.Errorf("remove label failed")
			}
		}
	}
	if name == "gh" && len(args) >= 2 && args[0] == "pr" && args[1] == "create" {
		return f.prURL, nil
	}
	if name == "gh" && len(args) >= 2 && args[0] == "issue" && args[1] == "list" {
		return f.listOutput, nil
	}
	return "", nil
}

func (f *fakeGH) hasCallContaining(parts ...string) bool {
	for _, call := range f.calls {
		joined := strings.Join(call, " ")
		all := true
		for _, p := range parts {
			if !strings.Contains(joined, p) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

type fakeGitRunner struct{}

func (fakeGitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) >= 5 && args[0] == "worktree" && args[1] == "add" {
		os.MkdirAll(args[4], 0o755)
	}
	if len(args) >= 2 && args[0] == "diff" && args[1] == "--name-only" {
		return "main.go", nil
	}
	if len(args) >= 1 && args[0] == "rev-parse" {
		return "main", nil
	}
	return "", nil
}

func fakeClaudeSequence(t *testing.T, envelopes []string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake claude script requires a POSIX shell")
	}
	dir := t.TempDir()
	counterPath := filepath.Join(dir, "count")
	os.WriteFile(counterPath, []byte("0"), 0o644)

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&script, "n=$(cat %s)\n", counterPath)
	script.WriteString("n=$((n+1))\n")
	fmt.Fprintf(&script, "echo $n > %s\n", counterPath)
	script.WriteString("case $n in\n")
	for i, env := range envelopes {
		fmt.Fprintf(&script, "%d) cat <<'EOF'\n%s\nEOF\n;;\n", i+1, env)
	}
	fmt.Fprintf(&script, "*) cat <<'EOF'\n%s\nEOF\n;;\n", envelopes[len(envelopes)-1])
	script.WriteString("esac\n")

	path := filepath.Join(dir, "claude")
	if err := os.WriteFile(path, []byte(script.String()), 0o755); err != nil {
		t.Fatalf("write fake claude script: %v", err)
	}
	return path
}

const planEnvelope = `{"structured_output": {
	"original_task": "add retries",
	"reasoning": "one self-contained change",
	"tasks": [{"worker_id": "worker-1", "title": "add retry loop", "description": "add retries to the client"}],
	"integration_notes": "none"
}}`

const workerSuccessEnvelope = `{"content": "added the retry loop"}`

func testFactory(t *testing.T, repoPath string, gh *fakeGH) OrchestratorFactory {
	t.Helper()
	claudePath := fakeClaudeSequence(t, []string{planEnvelope, workerSuccessEnvelope})
	svc := claude.NewServiceWithInvoker(&claude.Invoker{ClaudePath: claudePath, Timeout: 5 * time.Second})

	return func(runID string, cfg models.RunConfig) (*orchestrator.Orchestrator, error) {
		wm := worktree.NewManagerWithRunner(fakeGitRunner{}, repoPath, runID)
		store := state.NewStore(repoPath)
		coord := coordination.NewBus(repoPath, runID)
		p := planner.New(svc, "opus")
		w := worker.New(svc, worker.Config{Model: "sonnet", MaxAttempts: 1})
		ghClient := ghcli.NewWithRunner(gh, repoPath)
		integ := integrator.New(wm, ghClient, svc, coord)
		recorder, err := eventlog.NewRecorder(repoPath, runID)
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { recorder.Close() })

		o := orchestrator.New(runID, cfg, wm, store, coord, p, w, integ, ghClient, recorder, "o/r")
		o.Checkpoint = func(string) bool { return true }
		return o, nil
	}
}

func TestProcessorClaimFailureSkipsRun(t *testing.T) {
	repoPath := t.TempDir()
	gh := &fakeGH{failRemoveLabel: "swarm"}
	ghClient := ghcli.NewWithRunner(gh, repoPath)

	factoryCalled := false
	factory := func(runID string, cfg models.RunConfig) (*orchestrator.Orchestrator, error) {
		factoryCalled = true
		return nil, nil
	}

	issueCfg := models.IssueConfig{IssueNumber: 3, Title: "[swarm] do a thing", Body: "details"}
	p := NewProcessor(ghClient, factory, "o", "r", repoPath, issueCfg)

	if err := p.Process(context.Background(), models.RunConfig{MaxWorkers: 1, MaxTotalCostUSD: 10, MaxWorkerCostUSD: 2, MaxWorkerAttempts: 1, Oversight: models.OversightPRGated}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if factoryCalled {
		t.Error("expected the orchestrator factory not to be invoked when claim fails")
	}
	if gh.hasCallContaining("--add-label", "swarm:done") {
		t.Error("expected no lifecycle labeling after a failed claim")
	}
}

func TestProcessorHappyPathReportsAndMarksDone(t *testing.T) {
	repoPath := t.TempDir()
	gh := &fakeGH{prURL: "https://example.com/pr/4"}
	ghClient := ghcli.NewWithRunner(gh, repoPath)
	factory := testFactory(t, repoPath, gh)

	issueCfg := models.IssueConfig{IssueNumber: 11, Title: "[swarm] add retries", Body: "add retries to the client"}
	proc := NewProcessor(ghClient, factory, "o", "r", repoPath, issueCfg)

	base := models.RunConfig{MaxWorkers: 1, MaxTotalCostUSD: 50, MaxWorkerCostUSD: 5, MaxWorkerAttempts: 1, Oversight: models.OversightPRGated}
	if err := proc.Process(context.Background(), base); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !gh.hasCallContaining("--remove-label", "swarm") {
		t.Error("expected claim to remove the trigger label")
	}
	if !gh.hasCallContaining("--add-label", "swarm:active") {
		t.Error("expected claim to add swarm:active")
	}
	if !gh.hasCallContaining("--add-label", "swarm:done") {
		t.Error("expected success to add swarm:done")
	}
	if !gh.hasCallContaining("issue", "close") {
		t.Error("expected success to close the issue")
	}
	if !gh.hasCallContaining("issue", "comment") {
		t.Error("expected a result comment to be posted")
	}
}

func TestProcessorFailureMarksFailed(t *testing.T) {
	repoPath := t.TempDir()
	gh := &fakeGH{}
	ghClient := ghcli.NewWithRunner(gh, repoPath)
	factory := func(runID string, cfg models.RunConfig) (*orchestrator.Orchestrator, error) {
		return nil, fmt.Errorf("boom")
	}

	issueCfg := models.IssueConfig{IssueNumber: 12, Title: "[swarm] add retries", Body: "add retries"}
	proc := NewProcessor(ghClient, factory, "o", "r", repoPath, issueCfg)

	base := models.RunConfig{MaxWorkers: 1, MaxTotalCostUSD: 50, MaxWorkerCostUSD: 5, MaxWorkerAttempts: 1, Oversight: models.OversightPRGated}
	if err := proc.Process(context.Background(), base); err == nil {
		t.Fatal("expected Process to surface the factory error")
	}
	if !gh.hasCallContaining("--add-label", "swarm:failed") {
		t.Error("expected failure to add swarm:failed")
	}
	if !gh.hasCallContaining("Swarm processing failed") {
		t.Error("expected an error comment to be posted")
	}
}

func TestWatcherPollOnceProcessesListedIssues(t *testing.T) {
	repoPath := t.TempDir()
	gh := &fakeGH{
		prURL: "https://example.com/pr/5",
		listOutput: `[{"number": 21, "title": "[swarm] add retries", "body": "details", "labels": [{"name": "swarm"}]}]`,
	}
	ghClient := ghcli.NewWithRunner(gh, repoPath)
	factory := testFactory(t, repoPath, gh)

	w := &Watcher{
		GH:              ghClient,
		NewOrchestrator: factory,
		Owner:           "o",
		RepoName:        "r",
		RepoPath:        repoPath,
		Base:            models.RunConfig{MaxWorkers: 1, MaxTotalCostUSD: 50, MaxWorkerCostUSD: 5, MaxWorkerAttempts: 1, Oversight: models.OversightPRGated},
	}

	count, err := w.pollOnce(context.Background())
	if err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 issue processed, got %d", count)
	}
	if !gh.hasCallContaining("--add-label", "swarm:done") {
		t.Error("expected the polled issue to be fully processed")
	}
}
