package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/harrison/swarm/internal/claude"
)

// fakeClaude writes an executable script that prints a canned JSON envelope
// mimicking the `claude` CLI's --output-format json output, standing in for
// the real binary in tests.
func fakeClaude(t *testing.T, envelope string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake claude script assumes a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\ncat <<'EOF'\n" + envelope + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake claude: %v", err)
	}
	return path
}

func TestBudgetPrefersLowerOfCapAndFraction(t *testing.T) {
	if got := Budget(10); got != 2 {
		t.Errorf("Budget(10) = %f, want 2 (10*0.2)", got)
	}
	if got := Budget(1000); got != maxBudgetCapUSD {
		t.Errorf("Budget(1000) = %f, want cap %f", got, maxBudgetCapUSD)
	}
}

func TestPlanParsesStructuredOutputAndTruncatesTasks(t *testing.T) {
	envelope := `{"structured_output": {"original_task": "add retries", "reasoning": "split by layer", "tasks": [{"worker_id": "worker-1", "title": "a"}, {"worker_id": "worker-2", "title": "b"}, {"worker_id": "worker-3", "title": "c"}], "integration_notes": "merge in order"}, "total_cost_usd": 0.42}`
	claudePath := fakeClaude(t, envelope)

	svc := claude.NewServiceWithInvoker(&claude.Invoker{ClaudePath: claudePath, Timeout: 5 * time.Second})
	p := New(svc, "opus")

	plan, err := p.Plan(context.Background(), "add retries", 2, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("expected tasks truncated to 2, got %d", len(plan.Tasks))
	}
	if plan.OriginalTask != "add retries" {
		t.Errorf("unexpected original_task: %q", plan.OriginalTask)
	}
}

func TestPlanErrorsOnEmptyOutput(t *testing.T) {
	claudePath := fakeClaude(t, `{"content": ""}`)
	svc := claude.NewServiceWithInvoker(&claude.Invoker{ClaudePath: claudePath, Timeout: 5 * time.Second})
	p := New(svc, "opus")

	if _, err := p.Plan(context.Background(), "task", 3, nil); err == nil {
		t.Fatal("expected error for empty planning output")
	}
}

func TestPlanErrorsWhenBinaryMissing(t *testing.T) {
	svc := claude.NewServiceWithInvoker(&claude.Invoker{ClaudePath: fmt.Sprintf("/nonexistent/%d/claude", time.Now().UnixNano()%1000), Timeout: time.Second})
	p := New(svc, "opus")
	if _, err := p.Plan(context.Background(), "task", 1, nil); err == nil {
		t.Fatal("expected error when claude binary is missing")
	}
}
