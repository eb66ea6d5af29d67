package swarmcli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/models"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	configFlags(cmd)
	return cmd
}

func TestFlagsFromCommandOnlyReportsChangedFlags(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.Flags().Set("max-workers", "8"); err != nil {
		t.Fatalf("set max-workers: %v", err)
	}
	if err := cmd.Flags().Set("oversight", "autonomous"); err != nil {
		t.Fatalf("set oversight: %v", err)
	}

	f := flagsFromCommand(cmd, "do the thing")
	if f.Task == nil || *f.Task != "do the thing" {
		t.Errorf("expected task to be set, got %+v", f.Task)
	}
	if f.MaxWorkers == nil || *f.MaxWorkers != 8 {
		t.Errorf("expected max_workers 8, got %+v", f.MaxWorkers)
	}
	if f.Oversight == nil || *f.Oversight != "autonomous" {
		t.Errorf("expected oversight autonomous, got %+v", f.Oversight)
	}
	if f.Model != nil {
		t.Errorf("expected unset --model to leave Flags.Model nil, got %+v", f.Model)
	}
	if f.MaxCost != nil {
		t.Errorf("expected unset --max-cost to leave Flags.MaxCost nil, got %+v", f.MaxCost)
	}
}

func TestLoadRunConfigLayersFileUnderFlags(t *testing.T) {
	repoPath := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repoPath, ".swarm"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yamlContent := "max_workers: 3\nmodel: opus\n"
	if err := os.WriteFile(filepath.Join(repoPath, ".swarm", "config.yaml"), []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newTestCommand()
	if err := cmd.Flags().Set("max-workers", "9"); err != nil {
		t.Fatalf("set max-workers: %v", err)
	}

	cfg, err := loadRunConfig(cmd, repoPath, "fix the bug")
	if err != nil {
		t.Fatalf("loadRunConfig: %v", err)
	}
	if cfg.Task != "fix the bug" {
		t.Errorf("expected task from flag, got %q", cfg.Task)
	}
	if cfg.RepoPath != repoPath {
		t.Errorf("expected repo_path %q, got %q", repoPath, cfg.RepoPath)
	}
	if cfg.MaxWorkers != 9 {
		t.Errorf("expected flag (9) to win over file (3), got %d", cfg.MaxWorkers)
	}
	if cfg.WorkerModel != "opus" {
		t.Errorf("expected file's model to survive since no flag overrode it, got %s", cfg.WorkerModel)
	}
	if cfg.Oversight != models.OversightPRGated {
		t.Errorf("expected untouched default oversight, got %s", cfg.Oversight)
	}
}
