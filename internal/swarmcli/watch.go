package swarmcli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/config"
	"github.com/harrison/swarm/internal/ghcli"
	"github.com/harrison/swarm/internal/issuedriver"
	"github.com/harrison/swarm/internal/swarmapp"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	var owner, repoName, triggerLabel string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously poll a repository for swarm-eligible issues",
		Long: `watch polls the repository for open issues carrying the trigger label
(default "swarm"), processing them one at a time, until interrupted.

Run only one watch loop per repository: the label-swap claim mechanism
issues use to avoid double-processing is not atomic across concurrent
watchers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			base, err := config.LoadConfig(config.Path(repoPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			w := &issuedriver.Watcher{
				GH:              gh,
				NewOrchestrator: swarmapp.NewFactory(consoleWaiter{}),
				Owner:           owner,
				RepoName:        repoName,
				RepoPath:        repoPath,
				TriggerLabel:    triggerLabel,
				Interval:        interval,
				Base:            *base,
				OnPoll: func(count int) {
					if count > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "processed %d issue(s)\n", count)
					}
				},
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "GitHub repository owner (default: detected from origin remote)")
	cmd.Flags().StringVar(&repoName, "repo-name", "", "GitHub repository name (default: detected from origin remote)")
	cmd.Flags().StringVar(&triggerLabel, "trigger-label", "swarm", "Label that identifies an issue as swarm-eligible")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Polling interval")
	return cmd
}
