package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesbinford/LGTM/internal/output"
	"github.com/jamesbinford/LGTM/internal/pipeline"
	"github.com/jamesbinford/LGTM/internal/rules"
	"github.com/jamesbinford/LGTM/internal/suppress"
)

var (
	runRepo        string
	runPR          int
	runBranch      string
	runCommit      string
	runFindings    string
	runEvaluations string
	runDiff        string
	runTimeout     time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one review pass from agent output files",
	Long: `Run the full review pipeline for a PR or commit: ingest agent findings
through the suppression filter, merge agent evaluations, apply auto-rules,
and advance the review lifecycle.

Findings and evaluations are JSON files written by the review agents; lgtm
never talks to an agent itself. A run for a commit already under review
re-ingests into the existing review; a run for a newer commit closes the
old review as stale and opens a fresh one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun()
	},
}

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Repository (owner/repo, required)")
	runCmd.Flags().IntVar(&runPR, "pr", 0, "Pull request number (omit for a commit-keyed review)")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "Branch under review")
	runCmd.Flags().StringVar(&runCommit, "commit", "", "Commit SHA under review (required)")
	runCmd.Flags().StringVar(&runFindings, "findings", "", "JSON file of agent findings (required)")
	runCmd.Flags().StringVar(&runEvaluations, "evaluations", "", "JSON file of agent evaluations")
	runCmd.Flags().StringVar(&runDiff, "diff", "", "Diff file the agents reviewed")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "Overall run timeout")
	_ = runCmd.MarkFlagRequired("repo")
	_ = runCmd.MarkFlagRequired("commit")
	_ = runCmd.MarkFlagRequired("findings")

	rootCmd.AddCommand(runCmd)
}

func runRun() error {
	svc, err := getLedger()
	if err != nil {
		return err
	}
	lm, err := getLifecycle()
	if err != nil {
		return err
	}
	cfg, err := getProjectConfig()
	if err != nil {
		return err
	}
	engine, err := rules.New(cfg.AutoRules)
	if err != nil {
		return fmt.Errorf("load auto-rules: %w", err)
	}

	diff := ""
	if runDiff != "" {
		data, err := os.ReadFile(runDiff)
		if err != nil {
			return fmt.Errorf("read diff: %w", err)
		}
		diff = string(data)
	}

	var recommender pipeline.Recommender
	if runEvaluations != "" {
		recommender = &pipeline.FileRecommender{Path: runEvaluations}
	}

	hasher := suppress.NewFileHasher(viper.GetString("repo_root"))
	o := pipeline.New(svc, lm, engine, hasher, &pipeline.FileSource{Path: runFindings}, recommender)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	rc := pipeline.ReviewContext{Repo: runRepo, PRNumber: runPR, Branch: runBranch, CommitSHA: runCommit}
	report, err := o.Run(ctx, diff, rc)
	if err != nil {
		return err
	}

	if report.Superseded != "" {
		ui.Warning("Review %s superseded (newer commit)", shortSHA(report.Superseded))
	}
	ui.Info("Review %s (%s)", report.Review.ID, output.StatusColor(string(report.Review.Status)))
	ui.Info("Ingested %d new, %d unchanged, %d suppressed",
		report.Ingest.Inserted, report.Ingest.Unchanged, len(report.Ingest.Suppressed))
	for _, sup := range report.Ingest.Suppressed {
		ui.VerboseLog("Suppressed %s (suppression %s): %s", sup.ExternalID, shortSHA(sup.SuppressionID), sup.Reason)
	}
	for _, c := range report.Ingest.Conflicts {
		ui.Warning("Conflict: %s", c.Detail)
	}
	if report.Merge != nil {
		ui.Info("Merged %d evaluations", report.Merge.Merged)
		for _, id := range report.Merge.Unknown {
			ui.Warning("Evaluation for unknown finding %s ignored", id)
		}
	}
	if report.AutoDecisions > 0 {
		ui.Info("Auto-rules decided %d finding(s)", report.AutoDecisions)
	}
	if report.Decided {
		ui.Success("All findings decided; review is decided")
	} else if undecided := report.Review.UndecidedFindings(); len(undecided) > 0 {
		ui.Info("%d finding(s) awaiting decision (lgtm decide %s <finding-id>)", len(undecided), report.Review.ID)
	}
	return nil
}
