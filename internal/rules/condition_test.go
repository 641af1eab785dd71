package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesbinford/LGTM/internal/models"
)

func TestParseCondition_Valid(t *testing.T) {
	cond, err := ParseCondition("severity == low AND category == style AND age_days > 14")
	require.NoError(t, err)
	assert.Len(t, cond.Clauses, 3)
}

func TestParseCondition_QuotedLiterals(t *testing.T) {
	cond, err := ParseCondition(`severity == 'low' AND category == "style"`)
	require.NoError(t, err)
	require.Len(t, cond.Clauses, 2)

	f := &models.Finding{Severity: models.SeverityLow, Category: models.CategoryStyle}
	assert.True(t, cond.Matches(f, 0))
}

func TestParseCondition_Errors(t *testing.T) {
	tests := []struct {
		name string
		cond string
	}{
		{"empty", ""},
		{"unknown field", "priority == high"},
		{"no operator", "severity low"},
		{"unknown severity", "severity == urgent"},
		{"unknown category", "category == vibes"},
		{"unknown action", "action == maybe"},
		{"bad age literal", "age_days > soon"},
		{"bad confidence literal", "confidence >= high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition(tt.cond)
			assert.Error(t, err)
		})
	}
}

func TestParseCondition_OrderingOnEqualityOnlyField(t *testing.T) {
	_, err := ParseCondition("category > style")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleField)

	_, err = ParseCondition("action <= accept")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleField)

	// Inequality is fine on those fields.
	_, err = ParseCondition("category != style")
	assert.NoError(t, err)
}

func TestCondition_SeverityOrdinal(t *testing.T) {
	cond, err := ParseCondition("severity >= high")
	require.NoError(t, err)

	assert.True(t, cond.Matches(&models.Finding{Severity: models.SeverityCritical}, 0))
	assert.True(t, cond.Matches(&models.Finding{Severity: models.SeverityHigh}, 0))
	assert.False(t, cond.Matches(&models.Finding{Severity: models.SeverityMedium}, 0))
	assert.False(t, cond.Matches(&models.Finding{Severity: models.SeverityLow}, 0))
}

func TestCondition_AgeDays(t *testing.T) {
	cond, err := ParseCondition("age_days > 14")
	require.NoError(t, err)

	f := &models.Finding{Severity: models.SeverityLow}
	assert.False(t, cond.Matches(f, 14))
	assert.True(t, cond.Matches(f, 15))
}

func TestCondition_ConjunctionAllMustHold(t *testing.T) {
	cond, err := ParseCondition("severity == low AND category == style")
	require.NoError(t, err)

	assert.True(t, cond.Matches(&models.Finding{Severity: models.SeverityLow, Category: models.CategoryStyle}, 0))
	assert.False(t, cond.Matches(&models.Finding{Severity: models.SeverityLow, Category: models.CategoryLogic}, 0))
	assert.False(t, cond.Matches(&models.Finding{Severity: models.SeverityHigh, Category: models.CategoryStyle}, 0))
}

func TestCondition_RecommendationFields(t *testing.T) {
	cond, err := ParseCondition("action == accept AND confidence >= 0.9")
	require.NoError(t, err)

	// No recommendation yet: clauses over it never hold.
	bare := &models.Finding{Severity: models.SeverityLow}
	assert.False(t, cond.Matches(bare, 0))

	evaluated := &models.Finding{
		Severity:       models.SeverityLow,
		Recommendation: &models.Recommendation{Action: models.ActionAccept, Confidence: 0.95},
	}
	assert.True(t, cond.Matches(evaluated, 0))

	lowConfidence := &models.Finding{
		Recommendation: &models.Recommendation{Action: models.ActionAccept, Confidence: 0.5},
	}
	assert.False(t, cond.Matches(lowConfidence, 0))
}

func TestCondition_NotEqual(t *testing.T) {
	cond, err := ParseCondition("severity != low")
	require.NoError(t, err)

	assert.True(t, cond.Matches(&models.Finding{Severity: models.SeverityHigh}, 0))
	assert.False(t, cond.Matches(&models.Finding{Severity: models.SeverityLow}, 0))
}
