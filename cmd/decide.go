package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesbinford/LGTM/internal/models"
)

var (
	decideAccept   bool
	decideReject   bool
	decideDefer    bool
	decideReason   string
	decideUser     string
	decideOverride bool
	decideSuppress bool
)

var decideCmd = &cobra.Command{
	Use:   "decide <review-id> <finding-id>",
	Short: "Record a decision on a finding",
	Long: `Record an accept/reject/defer decision on a finding, identified by its
reporter-assigned id within the review (e.g. S001).

Re-deciding an already-decided finding requires --override; the replaced
decision is kept in the audit trail, never erased. Rejecting with
--suppress also records a suppression so the finding does not resurface
until the code at its location changes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decideRun(args[0], args[1])
	},
}

func init() {
	decideCmd.Flags().BoolVar(&decideAccept, "accept", false, "Accept the finding")
	decideCmd.Flags().BoolVar(&decideReject, "reject", false, "Reject the finding")
	decideCmd.Flags().BoolVar(&decideDefer, "defer", false, "Defer the finding")
	decideCmd.Flags().StringVar(&decideReason, "reason", "", "Reason for the decision")
	decideCmd.Flags().StringVar(&decideUser, "user", os.Getenv("USER"), "Decider identity")
	decideCmd.Flags().BoolVar(&decideOverride, "override", false, "Replace an existing decision (previous goes to the audit trail)")
	decideCmd.Flags().BoolVar(&decideSuppress, "suppress", false, "On reject, also suppress the finding's location")
	decideCmd.MarkFlagsMutuallyExclusive("accept", "reject", "defer")

	rootCmd.AddCommand(decideCmd)
}

func decideRun(reviewID, findingID string) error {
	var outcome models.DecisionOutcome
	switch {
	case decideAccept:
		outcome = models.OutcomeAccepted
	case decideReject:
		outcome = models.OutcomeRejected
	case decideDefer:
		outcome = models.OutcomeDeferred
	default:
		return fmt.Errorf("one of --accept, --reject, --defer is required")
	}
	if decideUser == "" {
		return fmt.Errorf("--user is required when $USER is unset")
	}

	svc, err := getLedger()
	if err != nil {
		return err
	}
	ctx := context.Background()

	d := &models.Decision{
		Outcome:   outcome,
		Reason:    decideReason,
		DecidedBy: decideUser,
	}
	if err := svc.Decide(ctx, reviewID, findingID, d, decideOverride); err != nil {
		return err
	}
	ui.Success("Finding %s of review %s: %s by %s", findingID, reviewID, outcome, decideUser)

	if decideSuppress && outcome == models.OutcomeRejected {
		if err := suppressFinding(ctx, reviewID, findingID, decideReason, decideUser); err != nil {
			return err
		}
	}

	lm, err := getLifecycle()
	if err != nil {
		return err
	}
	decided, err := lm.TryDecide(ctx, reviewID)
	if err != nil {
		return err
	}
	if decided {
		ui.Success("All findings decided; review %s is now decided", reviewID)
	}
	return nil
}
