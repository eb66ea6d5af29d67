package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RunConfig {
	return RunConfig{
		Task:              "add retries to the http client",
		RepoPath:          "/repo",
		MaxWorkers:        4,
		PlannerModel:      "opus",
		WorkerModel:       "sonnet",
		EscalationModel:   "opus",
		MaxTotalCostUSD:   50,
		MaxWorkerCostUSD:  5,
		MaxWorkerAttempts: 2,
		EnableEscalation:  true,
		ResolveConflicts:  true,
		Oversight:         OversightPRGated,
		CreatePR:          true,
	}
}

func TestRunConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	t.Run("empty task", func(t *testing.T) {
		c := validConfig()
		c.Task = ""
		assert.Error(t, c.Validate())
	})

	t.Run("zero workers", func(t *testing.T) {
		c := validConfig()
		c.MaxWorkers = 0
		assert.Error(t, c.Validate())
	})

	t.Run("invalid oversight", func(t *testing.T) {
		c := validConfig()
		c.Oversight = "yolo"
		assert.Error(t, c.Validate())
	})

	t.Run("autonomous requires create_pr", func(t *testing.T) {
		c := validConfig()
		c.Oversight = OversightAutonomous
		c.CreatePR = false
		assert.Error(t, c.Validate())
	})

	t.Run("autonomous with create_pr is fine", func(t *testing.T) {
		c := validConfig()
		c.Oversight = OversightAutonomous
		c.CreatePR = true
		assert.NoError(t, c.Validate())
	})
}

func TestTotalCost(t *testing.T) {
	a, b := 1.5, 2.25
	results := []WorkerResult{
		{WorkerID: "worker-1", CostUSD: &a},
		{WorkerID: "worker-2", CostUSD: &b},
		{WorkerID: "worker-3"}, // no cost reported (e.g. skipped)
	}
	assert.InDelta(t, 3.75, TotalCost(results), 0.0001)
}

func TestIssueConfigTaskDescription(t *testing.T) {
	c := IssueConfig{Title: "[swarm] add dark mode", Body: "users keep asking for this"}
	assert.Equal(t, "add dark mode\n\nusers keep asking for this", c.TaskDescription())

	noBody := IssueConfig{Title: "[swarm] fix flaky test"}
	assert.Equal(t, "fix flaky test", noBody.TaskDescription())

	noPrefix := IssueConfig{Title: "fix flaky test"}
	assert.Equal(t, "fix flaky test", noPrefix.TaskDescription())
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusExecuting.Terminal())
	assert.False(t, StatusInterrupted.Terminal())
}

func TestNewSwarmState(t *testing.T) {
	s := NewSwarmState()
	assert.Equal(t, 1, s.Version)
	assert.Empty(t, s.ActiveRun)
	assert.NotNil(t, s.Runs)
}
