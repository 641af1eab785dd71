package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/output"
	"github.com/jamesbinford/LGTM/internal/report"
	"github.com/jamesbinford/LGTM/internal/store"
)

var (
	reviewRepo   string
	reviewStatus string
	reviewOut    string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect recorded reviews",
	Long:  "List, show, and export reviews recorded in the ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List reviews awaiting decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewStatus = string(models.ReviewStatusPending)
		return reviewListRun()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show a review and its findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

var reviewExportCmd = &cobra.Command{
	Use:   "export <review-id>",
	Short: "Export a review as a markdown summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewExportRun(args[0])
	},
}

var reviewApplyCmd = &cobra.Command{
	Use:   "apply <review-id>",
	Short: "Mark a decided review's accepted fixes as applied",
	Long: `Mark a review as applied. This records an external confirmation that the
accepted fixes were committed; lgtm itself never changes code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewApplyRun(args[0])
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewRepo, "repo", "", "Filter by repository (owner/repo)")
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "Filter by status: pending, decided, applied, stale")
	reviewPendingCmd.Flags().StringVar(&reviewRepo, "repo", "", "Filter by repository (owner/repo)")

	reviewExportCmd.Flags().StringVar(&reviewOut, "output", "", "Write summary to file instead of stdout")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewPendingCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewExportCmd)
	reviewCmd.AddCommand(reviewApplyCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	lm, err := getLifecycle()
	if err != nil {
		return err
	}
	ctx := context.Background()

	reviews, err := s.ListReviews(ctx, store.ReviewListFilter{
		Repo:   reviewRepo,
		Status: models.ReviewStatus(reviewStatus),
	})
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		ui.Info("No reviews found")
		return nil
	}

	now := time.Now().UTC()
	table := ui.Table([]string{"ID", "REPO", "PR", "COMMIT", "STATUS", "AGE", "CREATED"})
	for _, r := range reviews {
		pr := "-"
		if r.PRNumber != 0 {
			pr = fmt.Sprintf("#%d", r.PRNumber)
		}
		age := string(lm.Classify(r, now))
		_ = table.Append([]string{
			shortSHA(r.ID),
			r.Repo,
			pr,
			shortSHA(r.CommitSHA),
			output.StatusColor(string(r.Status)),
			output.StalenessColor(age),
			r.CreatedAt.Format("2006-01-02"),
		})
	}
	return table.Render()
}

func reviewShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	r, err := s.GetReview(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", output.Cyan("Review:"), r.ID)
	fmt.Printf("  Repo:    %s\n", r.Repo)
	if r.PRNumber != 0 {
		fmt.Printf("  PR:      #%d\n", r.PRNumber)
	}
	if r.Branch != "" {
		fmt.Printf("  Branch:  %s\n", r.Branch)
	}
	fmt.Printf("  Commit:  %s\n", r.CommitSHA)
	fmt.Printf("  Status:  %s\n", output.StatusColor(string(r.Status)))
	fmt.Printf("  Created: %s\n\n", r.CreatedAt.Format(time.RFC3339))

	if len(r.Findings) == 0 {
		ui.Info("No findings recorded")
		return nil
	}

	table := ui.Table([]string{"ID", "SEVERITY", "CATEGORY", "LOCATION", "EVAL", "DECISION"})
	for _, f := range r.Findings {
		eval := "-"
		if f.Recommendation != nil {
			eval = fmt.Sprintf("%s (%.2f)", f.Recommendation.Action, f.Recommendation.Confidence)
		}
		decision := "-"
		if f.Decision != nil {
			decision = fmt.Sprintf("%s by %s", f.Decision.Outcome, f.Decision.DecidedBy)
		}
		_ = table.Append([]string{
			f.ExternalID,
			output.SeverityColor(string(f.Severity)),
			string(f.Category),
			fmt.Sprintf("%s:%d-%d", f.File, f.LineStart, f.LineEnd),
			eval,
			decision,
		})
	}
	return table.Render()
}

func reviewExportRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	r, err := s.GetReview(context.Background(), id)
	if err != nil {
		return err
	}

	md := report.Markdown(r)
	if reviewOut == "" {
		fmt.Print(md)
		return nil
	}
	if err := os.WriteFile(reviewOut, []byte(md), 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	ui.Success("Summary written to %s", reviewOut)
	return nil
}

func reviewApplyRun(id string) error {
	lm, err := getLifecycle()
	if err != nil {
		return err
	}
	if err := lm.MarkApplied(context.Background(), id); err != nil {
		return err
	}
	ui.Success("Review %s marked applied", id)
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
