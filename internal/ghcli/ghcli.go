// Package ghcli wraps the `gh` CLI for the handful of GitHub operations the
// swarm needs: listing/labeling issues for issue-driven runs, and opening
// pull requests once an integration succeeds.
package ghcli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/harrison/swarm/internal/swarmerrors"
)

// Runner abstracts subprocess execution for testability, mirroring
// worktree.Runner's (dir, args...) shape.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Client wraps `gh` and `git remote` invocations against one repository.
type Client struct {
	runner Runner
	dir    string
}

// New creates a Client that runs gh/git commands in dir using the real
// subprocess runner.
func New(dir string) *Client {
	return &Client{runner: ExecRunner{}, dir: dir}
}

// NewWithRunner creates a Client backed by a custom Runner, for tests.
func NewWithRunner(runner Runner, dir string) *Client {
	return &Client{runner: runner, dir: dir}
}

func (c *Client) runGH(ctx context.Context, args ...string) (string, error) {
	out, err := c.runner.Run(ctx, c.dir, "gh", args...)
	trimmed := strings.TrimSpace(out)
	if err != nil {
		return "", swarmerrors.NewGitHubError(fmt.Sprintf("gh %s", strings.Join(firstN(args, 3), " ")), trimmed, err)
	}
	return trimmed, nil
}

func firstN(args []string, n int) []string {
	if len(args) <= n {
		return args
	}
	return args[:n]
}

var (
	sshRemoteRE   = regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(?:\.git)?$`)
	httpsRemoteRE = regexp.MustCompile(`^(?:https?|ssh)://[^/]+/([^/]+)/(.+?)(?:\.git)?$`)
)

// ParseRepoSlug extracts owner/repo from a git remote URL, supporting the
// same URL shapes as GitHub's own SSH and HTTPS clone URLs.
func ParseRepoSlug(url string) (owner, repo string, err error) {
	if m := sshRemoteRE.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}
	if m := httpsRemoteRE.FindStringSubmatch(url); m != nil {
		return m[1], m[2], nil
	}
	return "", "", swarmerrors.NewGitHubError("parse remote url", fmt.Sprintf("cannot parse owner/repo from %q", url), nil)
}

// RepoSlug detects owner/repo from the repository's "origin" remote.
func (c *Client) RepoSlug(ctx context.Context) (owner, repo string, err error) {
	out, err := c.runner.Run(ctx, c.dir, "git", "remote", "get-url", "origin")
	if err != nil {
		return "", "", swarmerrors.NewGitHubError("git remote get-url origin", "no git remote 'origin' found", err)
	}
	return ParseRepoSlug(strings.TrimSpace(out))
}

// Issue is the subset of GitHub issue fields the swarm consumes.
type Issue struct {
	Number int          `json:"number"`
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	Labels []IssueLabel `json:"labels"`
}

// IssueLabel matches gh's --json labels output shape.
type IssueLabel struct {
	Name string `json:"name"`
}

// ListIssues lists open issues carrying label, excluding any that also
// carry one of excludeLabels.
func (c *Client) ListIssues(ctx context.Context, slug, label string, excludeLabels []string) ([]Issue, error) {
	out, err := c.runGH(ctx, "issue", "list",
		"--repo", slug,
		"--label", label,
		"--json", "number,title,body,labels",
		"--state", "open",
		"--limit", "50",
	)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var issues []Issue
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		return nil, swarmerrors.NewGitHubError("parse issue list", "invalid JSON from gh issue list", err)
	}
	if len(excludeLabels) == 0 {
		return issues, nil
	}
	exclude := make(map[string]bool, len(excludeLabels))
	for _, l := range excludeLabels {
		exclude[l] = true
	}
	filtered := issues[:0]
	for _, issue := range issues {
		skip := false
		for _, l := range issue.Labels {
			if exclude[l.Name] {
				skip = true
				break
			}
		}
		if !skip {
			filtered = append(filtered, issue)
		}
	}
	return filtered, nil
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, slug string, number int) (*Issue, error) {
	out, err := c.runGH(ctx, "issue", "view", fmt.Sprintf("%d", number),
		"--repo", slug,
		"--json", "number,title,body,labels",
	)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		return nil, swarmerrors.NewGitHubError("parse issue", "invalid JSON from gh issue view", err)
	}
	return &issue, nil
}

// AddLabel adds label to an issue.
func (c *Client) AddLabel(ctx context.Context, slug string, number int, label string) error {
	_, err := c.runGH(ctx, "issue", "edit", fmt.Sprintf("%d", number), "--repo", slug, "--add-label", label)
	return err
}

// RemoveLabel removes label from an issue.
func (c *Client) RemoveLabel(ctx context.Context, slug string, number int, label string) error {
	_, err := c.runGH(ctx, "issue", "edit", fmt.Sprintf("%d", number), "--repo", slug, "--remove-label", label)
	return err
}

// PostComment posts a comment on an issue.
func (c *Client) PostComment(ctx context.Context, slug string, number int, body string) error {
	_, err := c.runGH(ctx, "issue", "comment", fmt.Sprintf("%d", number), "--repo", slug, "--body", body)
	return err
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, slug string, number int) error {
	_, err := c.runGH(ctx, "issue", "close", fmt.Sprintf("%d", number), "--repo", slug)
	return err
}

// swarmLabels are the labels ensureLabelsExist creates: the trigger label
// plus the three lifecycle labels the issue driver applies as it works.
var swarmLabels = []struct {
	name, color, description string
}{
	{"swarm", "0e8a16", "Trigger swarm processing"},
	{"swarm:active", "1d76db", "Swarm is processing this issue"},
	{"swarm:done", "0e8a16", "Swarm completed successfully"},
	{"swarm:failed", "d93f0b", "Swarm processing failed"},
}

// EnsureLabelsExist creates the swarm lifecycle labels if missing. Label
// creation failures (e.g. on a `gh` version without --force) are swallowed:
// the label may already exist, which is the common case.
func (c *Client) EnsureLabelsExist(ctx context.Context, slug string) {
	for _, l := range swarmLabels {
		_, _ = c.runGH(ctx, "label", "create", l.name,
			"--repo", slug,
			"--color", l.color,
			"--description", l.description,
			"--force",
		)
	}
}

// CreatePR opens a pull request from head into base with the given title
// and body, returning the PR URL.
func (c *Client) CreatePR(ctx context.Context, slug, base, head, title, body string) (string, error) {
	return c.runGH(ctx, "pr", "create",
		"--repo", slug,
		"--base", base,
		"--head", head,
		"--title", title,
		"--body", body,
	)
}

// MergePR merges a pull request by URL or number using the squash strategy.
func (c *Client) MergePR(ctx context.Context, slug, prURL string) error {
	_, err := c.runGH(ctx, "pr", "merge", prURL, "--repo", slug, "--squash", "--auto")
	return err
}
