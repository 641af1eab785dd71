package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesbinford/LGTM/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileSource(t *testing.T) {
	path := writeFile(t, "findings.json", `[
		{"id": "S001", "category": "security", "severity": "critical",
		 "file": "auth.go", "line_start": 10, "line_end": 12,
		 "description": "token logged in plaintext", "proposed_fix": "redact it"},
		{"id": "S002", "category": "style", "severity": "low",
		 "file": "main.go", "line_start": 1, "line_end": 1,
		 "description": "missing doc comment"}
	]`)

	src := &FileSource{Path: path}
	findings, err := src.Review(context.Background(), "", ReviewContext{})
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, "S001", findings[0].ExternalID)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
	assert.Equal(t, models.CategorySecurity, findings[0].Category)
	assert.Equal(t, "redact it", findings[0].ProposedFix)
	assert.Equal(t, 10, findings[0].LineStart)
}

func TestFileSource_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "nope"},
		{"missing id", `[{"category": "style", "severity": "low"}]`},
		{"unknown severity", `[{"id": "S001", "category": "style", "severity": "urgent"}]`},
		{"unknown category", `[{"id": "S001", "category": "vibes", "severity": "low"}]`},
		{"zero line start", `[{"id": "S001", "category": "style", "severity": "low", "file": "main.go", "line_start": 0, "line_end": 3, "description": "x"}]`},
		{"inverted line range", `[{"id": "S001", "category": "style", "severity": "low", "file": "main.go", "line_start": 5, "line_end": 3, "description": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &FileSource{Path: writeFile(t, "findings.json", tt.content)}
			_, err := src.Review(context.Background(), "", ReviewContext{})
			assert.Error(t, err)
		})
	}

	missing := &FileSource{Path: "/nonexistent/findings.json"}
	_, err := missing.Review(context.Background(), "", ReviewContext{})
	assert.Error(t, err)
}

func TestFileRecommender(t *testing.T) {
	path := writeFile(t, "evals.json", `[
		{"id": "S001", "action": "accept", "confidence": 0.97, "rationale": "clear fix"},
		{"id": "S002", "action": "modify", "confidence": 0.6, "modified_fix": "narrower change"}
	]`)

	rec := &FileRecommender{Path: path}
	evals, err := rec.Evaluate(context.Background(), &models.Review{})
	require.NoError(t, err)
	require.Len(t, evals, 2)

	assert.Equal(t, "S001", evals[0].ExternalID)
	assert.Equal(t, models.ActionAccept, evals[0].Recommendation.Action)
	assert.InDelta(t, 0.97, evals[0].Recommendation.Confidence, 1e-9)
	assert.Equal(t, "narrower change", evals[1].Recommendation.ModifiedFix)
}

func TestFileRecommender_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown action", `[{"id": "S001", "action": "maybe", "confidence": 0.5}]`},
		{"confidence above one", `[{"id": "S001", "action": "accept", "confidence": 1.5}]`},
		{"negative confidence", `[{"id": "S001", "action": "accept", "confidence": -0.1}]`},
		{"missing id", `[{"action": "accept", "confidence": 0.5}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &FileRecommender{Path: writeFile(t, "evals.json", tt.content)}
			_, err := rec.Evaluate(context.Background(), &models.Review{})
			assert.Error(t, err)
		})
	}
}

func TestRunWithFileSource(t *testing.T) {
	findings := writeFile(t, "findings.json", `[
		{"id": "S001", "category": "style", "severity": "low",
		 "file": "main.go", "line_start": 1, "line_end": 1,
		 "description": "missing doc comment"}
	]`)

	o, _ := newTestOrchestrator(t, &FileSource{Path: findings}, nil)
	report, err := o.Run(context.Background(), "", prContext())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingest.Inserted)
}
