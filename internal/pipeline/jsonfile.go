package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jamesbinford/LGTM/internal/ledger"
	"github.com/jamesbinford/LGTM/internal/models"
)

// findingJSON is the wire shape review agents emit per finding.
type findingJSON struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	File        string `json:"file"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	Description string `json:"description"`
	ProposedFix string `json:"proposed_fix,omitempty"`
}

// evaluationJSON is the wire shape evaluation agents emit per finding.
type evaluationJSON struct {
	ID          string  `json:"id"`
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale,omitempty"`
	ModifiedFix string  `json:"modified_fix,omitempty"`
}

// FileSource is a FindingSource reading a JSON array of findings an agent
// already wrote to disk. It lets a pipeline run consume agent output without
// the ledger ever talking to the agent itself.
type FileSource struct {
	Path string
}

// Review loads and validates the finding file. The ReviewContext and diff are
// ignored; the agent that produced the file already saw them.
func (fs *FileSource) Review(_ context.Context, _ string, _ ReviewContext) ([]*models.Finding, error) {
	data, err := os.ReadFile(fs.Path)
	if err != nil {
		return nil, fmt.Errorf("read findings file: %w", err)
	}

	var raw []findingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse findings file %s: %w", fs.Path, err)
	}

	findings := make([]*models.Finding, 0, len(raw))
	for i, f := range raw {
		if f.ID == "" {
			return nil, fmt.Errorf("finding %d in %s has no id", i+1, fs.Path)
		}
		sev := models.Severity(f.Severity)
		if !models.ValidSeverity(sev) {
			return nil, fmt.Errorf("finding %s: unknown severity %q", f.ID, f.Severity)
		}
		cat := models.Category(f.Category)
		if !models.ValidCategory(cat) {
			return nil, fmt.Errorf("finding %s: unknown category %q", f.ID, f.Category)
		}
		if f.LineStart < 1 || f.LineEnd < f.LineStart {
			return nil, fmt.Errorf("finding %s: invalid line range %d-%d", f.ID, f.LineStart, f.LineEnd)
		}
		findings = append(findings, &models.Finding{
			ExternalID:  f.ID,
			Category:    cat,
			Severity:    sev,
			File:        f.File,
			LineStart:   f.LineStart,
			LineEnd:     f.LineEnd,
			Description: f.Description,
			ProposedFix: f.ProposedFix,
		})
	}
	return findings, nil
}

// FileRecommender is a Recommender reading a JSON array of evaluations an
// agent wrote to disk.
type FileRecommender struct {
	Path string
}

// Evaluate loads and validates the evaluation file. Evaluations referencing
// findings outside the review are passed through; the merge reports them.
func (fr *FileRecommender) Evaluate(_ context.Context, _ *models.Review) ([]ledger.Evaluation, error) {
	data, err := os.ReadFile(fr.Path)
	if err != nil {
		return nil, fmt.Errorf("read evaluations file: %w", err)
	}

	var raw []evaluationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse evaluations file %s: %w", fr.Path, err)
	}

	evals := make([]ledger.Evaluation, 0, len(raw))
	for i, e := range raw {
		if e.ID == "" {
			return nil, fmt.Errorf("evaluation %d in %s has no finding id", i+1, fr.Path)
		}
		action := models.RecommendedAction(e.Action)
		switch action {
		case models.ActionAccept, models.ActionReject, models.ActionModify:
		default:
			return nil, fmt.Errorf("evaluation %s: unknown action %q", e.ID, e.Action)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("evaluation %s: confidence %v outside [0,1]", e.ID, e.Confidence)
		}
		evals = append(evals, ledger.Evaluation{
			ExternalID: e.ID,
			Recommendation: models.Recommendation{
				Action:      action,
				Confidence:  e.Confidence,
				Rationale:   e.Rationale,
				ModifiedFix: e.ModifiedFix,
			},
		})
	}
	return evals, nil
}
