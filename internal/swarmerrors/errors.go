// Package swarmerrors defines the error taxonomy for the swarm orchestration
// engine: one struct per failure domain, each wrapping its cause and
// satisfying errors.As/errors.Is through Unwrap, following the same shape as
// every other error type in this codebase's lineage (a Message/Err pair, a
// constructor, and an IsXError predicate).
package swarmerrors

import (
	"errors"
	"fmt"
)

// WorktreeError reports a failure creating, removing, or inspecting a git
// worktree, including lock-contention exhaustion.
type WorktreeError struct {
	Op      string
	Message string
	Err     error
}

func NewWorktreeError(op, message string, err error) *WorktreeError {
	return &WorktreeError{Op: op, Message: message, Err: err}
}

func (e *WorktreeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worktree %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("worktree %s: %s", e.Op, e.Message)
}

func (e *WorktreeError) Unwrap() error { return e.Err }

// WorkerError reports a failure in a worker agent invocation that survived
// the retry/escalation policy (the final attempt still failed).
type WorkerError struct {
	WorkerID string
	Attempt  int
	Message  string
	Err      error
}

func NewWorkerError(workerID string, attempt int, message string, err error) *WorkerError {
	return &WorkerError{WorkerID: workerID, Attempt: attempt, Message: message, Err: err}
}

func (e *WorkerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker %s (attempt %d): %s: %v", e.WorkerID, e.Attempt, e.Message, e.Err)
	}
	return fmt.Sprintf("worker %s (attempt %d): %s", e.WorkerID, e.Attempt, e.Message)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// PlanningError reports a failure in the planner's agent invocation or in
// parsing its structured output.
type PlanningError struct {
	Message string
	Err     error
}

func NewPlanningError(message string, err error) *PlanningError {
	return &PlanningError{Message: message, Err: err}
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("planning: %s", e.Message)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// IntegrationError reports a failure during the merge/build/test/PR pipeline
// that is not a merge conflict (see MergeConflictError below).
type IntegrationError struct {
	Stage   string
	Message string
	Err     error
}

func NewIntegrationError(stage, message string, err error) *IntegrationError {
	return &IntegrationError{Stage: stage, Message: message, Err: err}
}

func (e *IntegrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integration (%s): %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("integration (%s): %s", e.Stage, e.Message)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

// MergeConflictError is an IntegrationError specialization carrying the
// branches in conflict and a truncated diff for operator diagnosis.
type MergeConflictError struct {
	IntegrationError
	ConflictingBranches []string
	DiffContext         string
}

const maxDiffContextBytes = 2000

// NewMergeConflictError truncates diffContext to maxDiffContextBytes, matching
// the integrator's "don't dump an unbounded diff into an error" contract.
func NewMergeConflictError(message string, conflictingBranches []string, diffContext string) *MergeConflictError {
	if len(diffContext) > maxDiffContextBytes {
		diffContext = diffContext[:maxDiffContextBytes]
	}
	return &MergeConflictError{
		IntegrationError:     IntegrationError{Stage: "merge", Message: message},
		ConflictingBranches:  conflictingBranches,
		DiffContext:          diffContext,
	}
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict: %s (branches: %v)", e.Message, e.ConflictingBranches)
}

// GitHubError reports a failure invoking the `gh` CLI.
type GitHubError struct {
	Op      string
	Message string
	Err     error
}

func NewGitHubError(op, message string, err error) *GitHubError {
	return &GitHubError{Op: op, Message: message, Err: err}
}

func (e *GitHubError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("github %s: %s", e.Op, e.Message)
}

func (e *GitHubError) Unwrap() error { return e.Err }

// IsWorktreeError reports whether err is or wraps a *WorktreeError.
func IsWorktreeError(err error) bool {
	var e *WorktreeError
	return errors.As(err, &e)
}

// IsWorkerError reports whether err is or wraps a *WorkerError.
func IsWorkerError(err error) bool {
	var e *WorkerError
	return errors.As(err, &e)
}

// IsPlanningError reports whether err is or wraps a *PlanningError.
func IsPlanningError(err error) bool {
	var e *PlanningError
	return errors.As(err, &e)
}

// IsIntegrationError reports whether err is or wraps an *IntegrationError
// (true for *MergeConflictError too, since it embeds IntegrationError).
func IsIntegrationError(err error) bool {
	var e *IntegrationError
	return errors.As(err, &e)
}

// IsMergeConflictError reports whether err is or wraps a *MergeConflictError.
func IsMergeConflictError(err error) bool {
	var e *MergeConflictError
	return errors.As(err, &e)
}

// IsGitHubError reports whether err is or wraps a *GitHubError.
func IsGitHubError(err error) bool {
	var e *GitHubError
	return errors.As(err, &e)
}
