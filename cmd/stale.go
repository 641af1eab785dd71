package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/output"
	"github.com/jamesbinford/LGTM/internal/store"
)

var staleEscalate bool

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Show staleness of pending reviews",
	Long: `Show the staleness classification of every pending review against the
configured thresholds.

With --escalate, reviews past the escalate threshold are transitioned to
stale, closing them and freeing their PR/commit key for a fresh review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return staleRun()
	},
}

func init() {
	staleCmd.Flags().BoolVar(&staleEscalate, "escalate", false, "Transition escalated reviews to stale")
	rootCmd.AddCommand(staleCmd)
}

func staleRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	lm, err := getLifecycle()
	if err != nil {
		return err
	}
	ctx := context.Background()
	now := time.Now().UTC()

	pending, err := s.ListReviews(ctx, store.ReviewListFilter{Status: models.ReviewStatusPending})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		ui.Success("No pending reviews")
		return nil
	}

	table := ui.Table([]string{"ID", "REPO", "PR", "AGE (DAYS)", "STALENESS"})
	for _, r := range pending {
		pr := "-"
		if r.PRNumber != 0 {
			pr = fmt.Sprintf("#%d", r.PRNumber)
		}
		ageDays := int(now.Sub(r.CreatedAt).Hours() / 24)
		_ = table.Append([]string{
			shortSHA(r.ID),
			r.Repo,
			pr,
			fmt.Sprintf("%d", ageDays),
			output.StalenessColor(string(lm.Classify(r, now))),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if !staleEscalate {
		return nil
	}

	escalated, err := lm.SweepStale(ctx, now)
	if err != nil {
		return err
	}
	if len(escalated) == 0 {
		ui.Info("No reviews past the escalate threshold")
		return nil
	}
	for _, id := range escalated {
		ui.Warning("Review %s marked stale", id)
	}
	ui.Success("%d review(s) marked stale", len(escalated))
	return nil
}
