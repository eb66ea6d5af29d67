package swarmcli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/config"
	"github.com/harrison/swarm/internal/ghcli"
	"github.com/harrison/swarm/internal/issuedriver"
	"github.com/harrison/swarm/internal/swarmapp"
)

// NewProcessCommand creates the process command.
func NewProcessCommand() *cobra.Command {
	var owner, repoName, triggerLabel string
	var issueNum int
	cmd := &cobra.Command{
		Use:   "process --issue <n>",
		Short: "Process a single GitHub issue through the swarm pipeline",
		Long: `process claims the given issue (swapping its trigger label for
swarm:active), runs the swarm against the issue's title and body, and
reports the result back as issue comments and lifecycle labels.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if issueNum <= 0 {
				return fmt.Errorf("--issue is required")
			}

			repoPath, err := repoFlag(cmd)
			if err != nil {
				return err
			}
			gh := ghcli.New(repoPath)
			ctx := cmd.Context()

			owner, repoName, err = resolveRepoSlug(ctx, gh, owner, repoName)
			if err != nil {
				return err
			}

			slug := owner + "/" + repoName
			issue, err := gh.GetIssue(ctx, slug, issueNum)
			if err != nil {
				return fmt.Errorf("get issue #%d: %w", issueNum, err)
			}
			issueCfg := issuedriver.ParseIssueConfig(*issue, owner, repoName)

			base, err := config.LoadConfig(config.Path(repoPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			p := issuedriver.NewProcessor(gh, swarmapp.NewFactory(consoleWaiter{}), owner, repoName, repoPath, issueCfg)
			if triggerLabel != "" {
				p.TriggerLabel = triggerLabel
			}
			return p.Process(ctx, *base)
		},
	}
	cmd.Flags().IntVar(&issueNum, "issue", 0, "GitHub issue number to process")
	cmd.Flags().StringVar(&owner, "owner", "", "GitHub repository owner (default: detected from origin remote)")
	cmd.Flags().StringVar(&repoName, "repo-name", "", "GitHub repository name (default: detected from origin remote)")
	cmd.Flags().StringVar(&triggerLabel, "trigger-label", "", "Label that identifies an issue as swarm-eligible (default: swarm)")
	return cmd
}

// resolveRepoSlug uses explicit --owner/--repo-name flags when given,
// falling back to detecting the repository's "origin" remote.
func resolveRepoSlug(ctx context.Context, gh *ghcli.Client, owner, repoName string) (string, string, error) {
	if owner != "" && repoName != "" {
		return owner, repoName, nil
	}
	detectedOwner, detectedRepo, err := gh.RepoSlug(ctx)
	if err != nil {
		return "", "", fmt.Errorf("detect owner/repo from origin remote: %w (pass --owner and --repo-name explicitly)", err)
	}
	if owner == "" {
		owner = detectedOwner
	}
	if repoName == "" {
		repoName = detectedRepo
	}
	return owner, repoName, nil
}
