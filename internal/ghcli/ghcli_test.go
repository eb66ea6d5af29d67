package ghcli

import (
	"context"
	"fmt"
	"testing"
)

type fakeRunner struct {
	calls   [][]string
	outputs []string
	errs    []error
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	i := len(f.calls) - 1
	var out string
	var err error
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return out, err
}

func TestParseRepoSlugVariants(t *testing.T) {
	cases := []struct {
		url        string
		owner, rep string
	}{
		{"git@github.com:harrison/swarm.git", "harrison", "swarm"},
		{"https://github.com/harrison/swarm.git", "harrison", "swarm"},
		{"https://github.com/harrison/swarm", "harrison", "swarm"},
		{"ssh://git@github.com/harrison/swarm.git", "harrison", "swarm"},
	}
	for _, c := range cases {
		owner, repo, err := ParseRepoSlug(c.url)
		if err != nil {
			t.Fatalf("ParseRepoSlug(%q): %v", c.url, err)
		}
		if owner != c.owner || repo != c.rep {
			t.Errorf("ParseRepoSlug(%q) = %s/%s, want %s/%s", c.url, owner, repo, c.owner, c.rep)
		}
	}
}

func TestParseRepoSlugRejectsUnknownFormat(t *testing.T) {
	if _, _, err := ParseRepoSlug("not-a-url"); err == nil {
		t.Fatal("expected error for unparseable remote url")
	}
}

func TestListIssuesFiltersExcludedLabels(t *testing.T) {
	runner := &fakeRunner{
		outputs: []string{`[
			{"number": 1, "title": "a", "body": "", "labels": [{"name": "swarm"}]},
			{"number": 2, "title": "b", "body": "", "labels": [{"name": "swarm"}, {"name": "swarm:active"}]}
		]`},
	}
	c := NewWithRunner(runner, "/repo")

	issues, err := c.ListIssues(context.Background(), "o/r", "swarm", []string{"swarm:active"})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 1 {
		t.Fatalf("expected only issue 1 to survive the exclusion filter, got %+v", issues)
	}
}

func TestListIssuesEmptyOutputReturnsNoIssues(t *testing.T) {
	runner := &fakeRunner{outputs: []string{""}}
	c := NewWithRunner(runner, "/repo")

	issues, err := c.ListIssues(context.Background(), "o/r", "swarm", nil)
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if issues != nil {
		t.Errorf("expected nil issues for empty gh output, got %+v", issues)
	}
}

func TestRunGHWrapsFailureAsGitHubError(t *testing.T) {
	runner := &fakeRunner{
		outputs: []string{"some stderr"},
		errs:    []error{fmt.Errorf("exit status 1")},
	}
	c := NewWithRunner(runner, "/repo")

	if err := c.AddLabel(context.Background(), "o/r", 1, "swarm:done"); err == nil {
		t.Fatal("expected error to be returned")
	}
}

func TestCreatePRPassesExpectedArgs(t *testing.T) {
	runner := &fakeRunner{outputs: []string{"https://github.com/o/r/pull/1"}}
	c := NewWithRunner(runner, "/repo")

	url, err := c.CreatePR(context.Background(), "o/r", "main", "swarm/run-1/integration", "title", "body")
	if err != nil {
		t.Fatalf("CreatePR: %v", err)
	}
	if url != "https://github.com/o/r/pull/1" {
		t.Errorf("unexpected url: %s", url)
	}
	got := runner.calls[0]
	want := []string{"gh", "pr", "create", "--repo", "o/r", "--base", "main", "--head", "swarm/run-1/integration", "--title", "title", "--body", "body"}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}
