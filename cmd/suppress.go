package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/suppress"
)

var (
	supFile     string
	supLines    string
	supCategory string
	supPattern  string
	supReason   string
	supUser     string
	supExpires  string
	supNoHash   bool
)

var suppressCmd = &cobra.Command{
	Use:   "suppress",
	Short: "Manage finding suppressions",
	Long: `Manage suppression records. A suppression keeps a semantically equivalent
finding from resurfacing at a location. Suppressions are immutable; they
expire through an explicit timestamp or when the code at the recorded
range changes, and are kept forever for audit history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return suppressListRun()
	},
}

var suppressListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List suppressions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return suppressListRun()
	},
}

var suppressAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a suppression",
	RunE: func(cmd *cobra.Command, args []string) error {
		return suppressAddRun()
	},
}

func init() {
	suppressAddCmd.Flags().StringVar(&supFile, "file", "", "File path (required)")
	suppressAddCmd.Flags().StringVar(&supLines, "lines", "", "Line range start-end (required)")
	suppressAddCmd.Flags().StringVar(&supCategory, "category", "", "Only suppress findings of this category")
	suppressAddCmd.Flags().StringVar(&supPattern, "pattern", "", "Only suppress findings whose description contains this text")
	suppressAddCmd.Flags().StringVar(&supReason, "reason", "", "Why the finding is suppressed (required)")
	suppressAddCmd.Flags().StringVar(&supUser, "user", os.Getenv("USER"), "Creator identity")
	suppressAddCmd.Flags().StringVar(&supExpires, "expires", "", "Expiry duration, e.g. 720h")
	suppressAddCmd.Flags().BoolVar(&supNoHash, "no-hash", false, "Skip content pinning (suppression survives code changes)")
	_ = suppressAddCmd.MarkFlagRequired("file")
	_ = suppressAddCmd.MarkFlagRequired("lines")
	_ = suppressAddCmd.MarkFlagRequired("reason")

	suppressCmd.AddCommand(suppressListCmd)
	suppressCmd.AddCommand(suppressAddCmd)
	rootCmd.AddCommand(suppressCmd)
}

func suppressListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sups, err := s.ListSuppressions(context.Background())
	if err != nil {
		return err
	}
	if len(sups) == 0 {
		ui.Info("No suppressions recorded")
		return nil
	}

	now := time.Now().UTC()
	hasher := suppress.NewFileHasher(viper.GetString("repo_root"))

	table := ui.Table([]string{"ID", "LOCATION", "CATEGORY", "CREATED BY", "STATE", "REASON"})
	for _, sup := range sups {
		category := string(sup.Category)
		if category == "" {
			category = "any"
		}
		_ = table.Append([]string{
			shortSHA(sup.ID),
			fmt.Sprintf("%s:%d-%d", sup.File, sup.LineStart, sup.LineEnd),
			category,
			sup.CreatedBy,
			suppressionState(sup, now, hasher),
			sup.Reason,
		})
	}
	return table.Render()
}

// suppressionState reports active/expired for display only; matching always
// re-checks expiry itself.
func suppressionState(sup *models.Suppression, now time.Time, hasher suppress.Hasher) string {
	if sup.ExpiresAt != nil && !sup.ExpiresAt.After(now) {
		return "expired"
	}
	if sup.ContentHash != "" {
		current, err := hasher.Hash(sup.File, sup.LineStart, sup.LineEnd)
		if err != nil || current != sup.ContentHash {
			return "expired (code changed)"
		}
	}
	return "active"
}

func suppressAddRun() error {
	start, end, err := parseLineRange(supLines)
	if err != nil {
		return err
	}
	if supUser == "" {
		return fmt.Errorf("--user is required when $USER is unset")
	}
	if supCategory != "" && !models.ValidCategory(models.Category(supCategory)) {
		return fmt.Errorf("unknown category: %s", supCategory)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	sup := &models.Suppression{
		File:      supFile,
		LineStart: start,
		LineEnd:   end,
		Category:  models.Category(supCategory),
		Pattern:   supPattern,
		Reason:    supReason,
		CreatedBy: supUser,
	}

	if supExpires != "" {
		d, err := time.ParseDuration(supExpires)
		if err != nil {
			return fmt.Errorf("invalid --expires %q: %w", supExpires, err)
		}
		t := time.Now().UTC().Add(d)
		sup.ExpiresAt = &t
	}

	if !supNoHash {
		hasher := suppress.NewFileHasher(viper.GetString("repo_root"))
		hash, err := hasher.Hash(supFile, start, end)
		if err != nil {
			return fmt.Errorf("hash %s:%d-%d (use --no-hash to skip content pinning): %w", supFile, start, end, err)
		}
		sup.ContentHash = hash
	}

	if err := s.CreateSuppression(context.Background(), sup); err != nil {
		return err
	}
	ui.Success("Suppression %s recorded for %s:%d-%d", sup.ID, supFile, start, end)
	return nil
}

// suppressFinding records a suppression derived from a rejected finding,
// pinning it to the code currently at the finding's location.
func suppressFinding(ctx context.Context, reviewID, findingID, reason, user string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	f, err := s.GetFinding(ctx, reviewID, findingID)
	if err != nil {
		return err
	}

	sup := &models.Suppression{
		File:      f.File,
		LineStart: f.LineStart,
		LineEnd:   f.LineEnd,
		Category:  f.Category,
		Reason:    reason,
		CreatedBy: user,
	}
	hasher := suppress.NewFileHasher(viper.GetString("repo_root"))
	if hash, err := hasher.Hash(f.File, f.LineStart, f.LineEnd); err == nil {
		sup.ContentHash = hash
	}

	if err := s.CreateSuppression(ctx, sup); err != nil {
		return err
	}
	ui.Success("Suppressed %s:%d-%d (%s)", f.File, f.LineStart, f.LineEnd, f.Category)
	return nil
}

func parseLineRange(s string) (int, int, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid line range %q, expected start-end", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line range %q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line range %q: %w", s, err)
	}
	if start < 1 || start > end {
		return 0, 0, fmt.Errorf("invalid line range %q: start must be >= 1 and <= end", s)
	}
	return start, end, nil
}
