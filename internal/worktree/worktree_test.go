package worktree

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// fakeRunner scripts git output per invocation without touching a real repo.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	// fail, if set, returns this error (with "lock" in the output) for the
	// first failCount calls matching the given subcommand.
	failSubcommand string
	failCount      int
	attempted      int
}

func (f *fakeRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{}, args...))
	f.mu.Unlock()

	if len(args) > 0 && args[0] == f.failSubcommand && f.attempted < f.failCount {
		f.attempted++
		return "fatal: Unable to create '.git/index.lock': File exists.", fmt.Errorf("exit status 128")
	}
	if len(args) > 0 && args[0] == "rev-parse" {
		return "main", nil
	}
	return "", nil
}

func TestCreateWorktreeUsesRunIDAndWorkerID(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManagerWithRunner(runner, "/repo", "run-1")

	path, err := m.CreateWorktree(context.Background(), "worker-1", "main")
	if err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if !strings.Contains(path, ".swarm-worktrees/run-1/worker-1") {
		t.Errorf("expected path to contain .swarm-worktrees/run-1/worker-1, got %s", path)
	}
	if got := m.BranchName("worker-1"); got != "swarm/run-1/worker-1" {
		t.Errorf("expected branch swarm/run-1/worker-1, got %s", got)
	}

	found := false
	for _, call := range runner.calls {
		if len(call) > 1 && call[0] == "worktree" && call[1] == "add" {
			found = true
		}
	}
	if !found {
		t.Error("expected a worktree add invocation")
	}
}

func TestRunGitRetriesOnLockContention(t *testing.T) {
	runner := &fakeRunner{failSubcommand: "config", failCount: 2}
	m := NewManagerWithRunner(runner, "/repo", "run-1")

	if err := m.DisableGC(context.Background()); err != nil {
		t.Fatalf("DisableGC: %v", err)
	}
	if runner.attempted != 2 {
		t.Errorf("expected 2 failed attempts before success, got %d", runner.attempted)
	}
}

func TestRunGitGivesUpAfterLockRetriesExhausted(t *testing.T) {
	runner := &fakeRunner{failSubcommand: "config", failCount: 10}
	m := NewManagerWithRunner(runner, "/repo", "run-1")

	err := m.DisableGC(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting lock retries")
	}
}

func TestWorkerBranchesExcludesIntegration(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManagerWithRunner(runner, "/repo", "run-1")

	if _, err := m.CreateWorktree(context.Background(), "worker-1", "main"); err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}
	if _, err := m.CreateIntegrationWorktree(context.Background(), "main"); err != nil {
		t.Fatalf("CreateIntegrationWorktree: %v", err)
	}

	branches := m.WorkerBranches()
	if len(branches) != 1 || branches[0] != "swarm/run-1/worker-1" {
		t.Errorf("expected only worker-1's branch, got %v", branches)
	}
}

func TestGetChangedFilesRequiresWorktree(t *testing.T) {
	runner := &fakeRunner{}
	m := NewManagerWithRunner(runner, "/repo", "run-1")

	if _, err := m.GetChangedFiles(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for worker with no worktree")
	}
}
