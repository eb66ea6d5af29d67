package swarmerrors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorktreeErrorUnwrap(t *testing.T) {
	cause := errors.New("lock held")
	err := NewWorktreeError("create", "could not add worktree", cause)

	assert.True(t, IsWorktreeError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "worktree create")
}

func TestWorkerErrorIncludesAttempt(t *testing.T) {
	err := NewWorkerError("worker-2", 3, "agent invocation failed", nil)
	assert.True(t, IsWorkerError(err))
	assert.Contains(t, err.Error(), "attempt 3")
	assert.False(t, IsWorktreeError(err))
}

func TestMergeConflictErrorIsIntegrationError(t *testing.T) {
	longDiff := strings.Repeat("x", maxDiffContextBytes+500)
	err := NewMergeConflictError("conflict merging worker-1", []string{"swarm/run/worker-1"}, longDiff)

	require.True(t, IsMergeConflictError(err))
	require.True(t, IsIntegrationError(err), "MergeConflictError must satisfy IsIntegrationError via embedding")
	assert.Len(t, err.DiffContext, maxDiffContextBytes, "diff context must be truncated")
	assert.Equal(t, []string{"swarm/run/worker-1"}, err.ConflictingBranches)
}

func TestGitHubErrorPredicate(t *testing.T) {
	err := NewGitHubError("pr create", "gh exited non-zero", errors.New("exit status 1"))
	assert.True(t, IsGitHubError(err))
	assert.False(t, IsPlanningError(err))
}

func TestPredicatesNilSafe(t *testing.T) {
	assert.False(t, IsWorktreeError(nil))
	assert.False(t, IsWorkerError(nil))
	assert.False(t, IsPlanningError(nil))
	assert.False(t, IsIntegrationError(nil))
	assert.False(t, IsMergeConflictError(nil))
	assert.False(t, IsGitHubError(nil))
}
