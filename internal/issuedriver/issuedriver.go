// Package issuedriver processes GitHub issues through the swarm pipeline: a
// trigger label claims an issue, the orchestrator runs against the issue's
// description, and the result is reported back as comments and lifecycle
// labels.
package issuedriver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/swarm/internal/ghcli"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/orchestrator"
)

const (
	labelActive = "swarm:active"
	labelDone   = "swarm:done"
	labelFailed = "swarm:failed"
)

// ParseIssueConfig extracts an IssueConfig from a fetched issue, applying any
// label-derived overrides found among its labels.
func ParseIssueConfig(issue ghcli.Issue, owner, repoName string) models.IssueConfig {
	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.Name
	}
	cfg := models.IssueConfig{
		IssueNumber: issue.Number,
		Owner:       owner,
		RepoName:    repoName,
		Title:       issue.Title,
		Body:        issue.Body,
		Labels:      labels,
	}
	applyLabelOverrides(&cfg, labels)
	return cfg
}

// applyLabelOverrides parses config overrides out of an issue's labels:
//
//	oversight:autonomous|pr-gated|checkpoint
//	model:<name>
//	workers:<n>
//	cost:<usd>
//	worker-cost:<usd>
//
// Unrecognized or malformed values are ignored rather than rejected, so a
// typo'd label never blocks the rest of the issue from being processed.
func applyLabelOverrides(cfg *models.IssueConfig, labels []string) {
	for _, label := range labels {
		switch {
		case strings.HasPrefix(label, "oversight:"):
			value := strings.TrimPrefix(label, "oversight:")
			if models.OversightMode(value).Valid() {
				cfg.Oversight = value
			}
		case strings.HasPrefix(label, "model:"):
			cfg.Model = strings.TrimPrefix(label, "model:")
		case strings.HasPrefix(label, "workers:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(label, "workers:")); err == nil {
				cfg.MaxWorkers = n
			}
		case strings.HasPrefix(label, "worker-cost:"):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(label, "worker-cost:"), 64); err == nil {
				cfg.MaxWorkerCost = v
			}
		case strings.HasPrefix(label, "cost:"):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(label, "cost:"), 64); err == nil {
				cfg.MaxCost = v
			}
		}
	}
}

// RunConfig builds the RunConfig the orchestrator should run with for this
// issue, layering the issue's label overrides on top of base (the repo's
// default configuration).
func RunConfig(issueCfg models.IssueConfig, base models.RunConfig) models.RunConfig {
	cfg := base
	cfg.Task = issueCfg.TaskDescription()
	cfg.CreatePR = true
	cfg.IssueNumber = issueCfg.IssueNumber
	if issueCfg.Oversight != "" {
		cfg.Oversight = models.OversightMode(issueCfg.Oversight)
	}
	if issueCfg.Model != "" {
		cfg.WorkerModel = issueCfg.Model
	}
	if issueCfg.MaxWorkers > 0 {
		cfg.MaxWorkers = issueCfg.MaxWorkers
	}
	if issueCfg.MaxCost > 0 {
		cfg.MaxTotalCostUSD = issueCfg.MaxCost
	}
	if issueCfg.MaxWorkerCost > 0 {
		cfg.MaxWorkerCostUSD = issueCfg.MaxWorkerCost
	}
	return cfg
}

// OrchestratorFactory builds a fresh Orchestrator for one run. Processor
// calls this once per issue, since every run needs its own run ID and
// worktree/state/coordination wiring.
type OrchestratorFactory func(runID string, cfg models.RunConfig) (*orchestrator.Orchestrator, error)

// Processor drives a single GitHub issue through the full pipeline: claim,
// run, report, and mark done or failed.
//
// claim() swaps the trigger label for swarm:active before anything else
// runs. This is not atomic: two concurrent watchers polling the same repo
// can both observe the trigger label before either removes it, and both
// will claim the same issue. Run only one watch loop per repository.
type Processor struct {
	GH              *ghcli.Client
	NewOrchestrator OrchestratorFactory
	RepoPath        string
	Owner           string
	RepoName        string
	TriggerLabel    string

	Issue models.IssueConfig
}

// NewProcessor creates a Processor for one issue, defaulting TriggerLabel to
// "swarm" when unset.
func NewProcessor(gh *ghcli.Client, factory OrchestratorFactory, owner, repoName, repoPath string, issue models.IssueConfig) *Processor {
	return &Processor{
		GH:              gh,
		NewOrchestrator: factory,
		RepoPath:        repoPath,
		Owner:           owner,
		RepoName:        repoName,
		TriggerLabel:    "swarm",
		Issue:           issue,
	}
}

func (p *Processor) slug() string {
	return fmt.Sprintf("%s/%s", p.Owner, p.RepoName)
}

// claim removes the trigger label and adds swarm:active. A failure here
// (the issue was claimed by another watcher, or a transient API error)
// aborts processing before any orchestrator run starts.
func (p *Processor) claim(ctx context.Context) bool {
	trigger := p.TriggerLabel
	if trigger == "" {
		trigger = "swarm"
	}
	if err := p.GH.RemoveLabel(ctx, p.slug(), p.Issue.IssueNumber, trigger); err != nil {
		return false
	}
	if err := p.GH.AddLabel(ctx, p.slug(), p.Issue.IssueNumber, labelActive); err != nil {
		return false
	}
	return true
}

// Process runs the full pipeline for the Processor's issue: claim, run the
// orchestrator, post a result comment, and mark the issue done or failed.
// A claim failure returns nil without reporting anything, matching the
// original's silent skip of issues another watcher already took.
func (p *Processor) Process(ctx context.Context, base models.RunConfig) error {
	if !p.claim(ctx) {
		return nil
	}

	cfg := RunConfig(p.Issue, base)
	cfg.RepoPath = p.RepoPath

	runID := uuid.NewString()
	o, err := p.NewOrchestrator(runID, cfg)
	if err != nil {
		p.markFailed(ctx, err.Error())
		return err
	}

	p.postStartedComment(ctx, runID)

	result, err := o.Run(ctx)
	if err != nil {
		p.markFailed(ctx, err.Error())
		return err
	}

	p.postResultComment(ctx, result)
	p.markDone(ctx)
	return nil
}

func (p *Processor) postStartedComment(ctx context.Context, runID string) {
	body := fmt.Sprintf("Swarm run `%s` started.", runID)
	_ = p.GH.PostComment(ctx, p.slug(), p.Issue.IssueNumber, body)
}

func (p *Processor) postResultComment(ctx context.Context, result *models.SwarmResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "Swarm run `%s` completed.\n\n", result.RunID)
	b.WriteString("| Worker | Status | Cost |\n")
	b.WriteString("|--------|--------|------|\n")
	for _, wr := range result.WorkerResults {
		status := "OK"
		if !wr.Success {
			status = "FAIL"
		}
		cost := "-"
		if wr.CostUSD != nil {
			cost = fmt.Sprintf("$%.2f", *wr.CostUSD)
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", wr.WorkerID, status, cost)
	}
	fmt.Fprintf(&b, "\n**Total cost**: $%.2f\n", result.TotalCostUSD)
	if result.PRUrl != "" {
		fmt.Fprintf(&b, "\nPR: %s\n", result.PRUrl)
	}
	_ = p.GH.PostComment(ctx, p.slug(), p.Issue.IssueNumber, b.String())
}

func (p *Processor) markDone(ctx context.Context) {
	_ = p.GH.RemoveLabel(ctx, p.slug(), p.Issue.IssueNumber, labelActive)
	_ = p.GH.AddLabel(ctx, p.slug(), p.Issue.IssueNumber, labelDone)
	_ = p.GH.CloseIssue(ctx, p.slug(), p.Issue.IssueNumber)
}

func (p *Processor) markFailed(ctx context.Context, errMsg string) {
	escaped := strings.ReplaceAll(errMsg, "```", "` ` `")
	body := fmt.Sprintf("Swarm processing failed:\n\n```\n%s\n```", escaped)
	_ = p.GH.PostComment(ctx, p.slug(), p.Issue.IssueNumber, body)
	_ = p.GH.RemoveLabel(ctx, p.slug(), p.Issue.IssueNumber, labelActive)
	_ = p.GH.AddLabel(ctx, p.slug(), p.Issue.IssueNumber, labelFailed)
}

// Watcher polls a repository for issues carrying the trigger label and
// processes them one at a time. Run only one Watcher per repository: the
// label-swap claim mechanism is not atomic across concurrent watchers.
type Watcher struct {
	GH              *ghcli.Client
	NewOrchestrator OrchestratorFactory
	Owner           string
	RepoName        string
	RepoPath        string
	TriggerLabel    string
	Interval        time.Duration
	Base            models.RunConfig

	// OnPoll, when set, is called after every poll with the number of
	// issues processed. Used by tests and by the CLI's progress output.
	OnPoll func(count int)

	stop chan struct{}
}

func (w *Watcher) slug() string {
	return fmt.Sprintf("%s/%s", w.Owner, w.RepoName)
}

// Stop signals Run's poll loop to exit after its current sleep interval.
func (w *Watcher) Stop() {
	if w.stop != nil {
		close(w.stop)
	}
}

// Run ensures the swarm lifecycle labels exist, then polls until Stop is
// called or ctx is cancelled, sleeping Interval between polls in one-second
// increments so Stop is responsive mid-sleep.
func (w *Watcher) Run(ctx context.Context) error {
	w.stop = make(chan struct{})
	w.GH.EnsureLabelsExist(ctx, w.slug())

	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		count, err := w.pollOnce(ctx)
		if err != nil {
			fmt.Printf("poll error: %v\n", err)
		}
		if w.OnPoll != nil {
			w.OnPoll(count)
		}

		ticks := int(interval / time.Second)
		if ticks < 1 {
			ticks = 1
		}
		for i := 0; i < ticks; i++ {
			select {
			case <-w.stop:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *Watcher) trigger() string {
	if w.TriggerLabel != "" {
		return w.TriggerLabel
	}
	return "swarm"
}

// pollOnce fetches open issues carrying the trigger label (excluding ones
// already claimed or finished) and processes each sequentially.
func (w *Watcher) pollOnce(ctx context.Context) (int, error) {
	issues, err := w.GH.ListIssues(ctx, w.slug(), w.trigger(), []string{labelActive, labelDone, labelFailed})
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, issue := range issues {
		select {
		case <-w.stop:
			return processed, nil
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		issueCfg := ParseIssueConfig(issue, w.Owner, w.RepoName)
		p := NewProcessor(w.GH, w.NewOrchestrator, w.Owner, w.RepoName, w.RepoPath, issueCfg)
		p.TriggerLabel = w.trigger()
		if err := p.Process(ctx, w.Base); err != nil {
			fmt.Printf("issue #%d processing failed: %v\n", issue.Number, err)
		}
		processed++
	}
	return processed, nil
}
