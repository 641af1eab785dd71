// Package report renders a review as a markdown summary suitable for a PR
// comment or a file artifact.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jamesbinford/LGTM/internal/models"
)

var severityEmoji = map[models.Severity]string{
	models.SeverityCritical: "🔴",
	models.SeverityHigh:     "🟠",
	models.SeverityMedium:   "🟡",
	models.SeverityLow:      "🟢",
}

// Markdown renders the review summary: severity counts, then every finding
// with its evaluation and decision state, most severe first.
func Markdown(r *models.Review) string {
	var b strings.Builder

	b.WriteString("## AI Code Review Summary\n\n")
	fmt.Fprintf(&b, "**Repo:** %s", r.Repo)
	if r.PRNumber != 0 {
		fmt.Fprintf(&b, " · **PR:** #%d", r.PRNumber)
	}
	fmt.Fprintf(&b, " · **Commit:** `%s` · **Status:** %s\n\n", r.CommitSHA, r.Status)

	if len(r.Findings) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	counts := map[models.Severity]int{}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	b.WriteString("| Severity | Count |\n|----------|-------|\n")
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		fmt.Fprintf(&b, "| %s | %d |\n", titleCase(string(sev)), counts[sev])
	}
	b.WriteString("\n### Findings\n\n")

	findings := make([]*models.Finding, len(r.Findings))
	copy(findings, r.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := models.SeverityRank(findings[i].Severity), models.SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return findings[i].ExternalID < findings[j].ExternalID
	})

	for _, f := range findings {
		writeFinding(&b, f)
	}

	fmt.Fprintf(&b, "\n**Review ID:** `%s`\n\n", r.ID)
	b.WriteString("Use `lgtm decide` to accept or reject findings.\n")
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeFinding(b *strings.Builder, f *models.Finding) {
	fmt.Fprintf(b, "#### %s %s `%s` - %s\n",
		severityEmoji[f.Severity], strings.ToUpper(string(f.Severity)), f.ExternalID, f.Category)
	fmt.Fprintf(b, "**File:** `%s` (lines %d-%d)\n\n", f.File, f.LineStart, f.LineEnd)
	fmt.Fprintf(b, "%s\n\n", f.Description)

	if f.ProposedFix != "" {
		fmt.Fprintf(b, "**Proposed fix:**\n```\n%s\n```\n\n", f.ProposedFix)
	}

	if rec := f.Recommendation; rec != nil {
		fmt.Fprintf(b, "**Evaluation:** %s (confidence %.2f)", rec.Action, rec.Confidence)
		if rec.Rationale != "" {
			fmt.Fprintf(b, ": %s", rec.Rationale)
		}
		b.WriteString("\n\n")
	}

	if d := f.Decision; d != nil {
		marker := map[models.DecisionOutcome]string{
			models.OutcomeAccepted: "✅ ACCEPTED",
			models.OutcomeRejected: "❌ REJECTED",
			models.OutcomeDeferred: "⏸ DEFERRED",
		}[d.Outcome]
		fmt.Fprintf(b, "**Decision:** %s by %s\n", marker, d.DecidedBy)
		if d.Reason != "" {
			fmt.Fprintf(b, "> %s\n", d.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
}
