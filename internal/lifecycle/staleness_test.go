package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ageDays int
		want    Staleness
	}{
		{"new review", 0, StalenessFresh},
		{"just under warn", 2, StalenessFresh},
		{"at warn threshold", 3, StalenessWarn},
		{"between thresholds", 5, StalenessWarn},
		{"at escalate threshold", 7, StalenessEscalate},
		{"long past escalate", 30, StalenessEscalate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			createdAt := now.AddDate(0, 0, -tt.ageDays)
			assert.Equal(t, tt.want, Classify(createdAt, now, 3, 7))
		})
	}
}

func TestClassify_PartialDaysTruncate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// 2 days 23 hours old is still 2 whole days: fresh under warn=3.
	createdAt := now.Add(-71 * time.Hour)
	assert.Equal(t, StalenessFresh, Classify(createdAt, now, 3, 7))

	assert.Equal(t, StalenessWarn, Classify(now.Add(-72*time.Hour), now, 3, 7))
}

func TestClassify_DisabledThresholds(t *testing.T) {
	now := time.Now()
	old := now.AddDate(0, 0, -100)

	assert.Equal(t, StalenessFresh, Classify(old, now, 0, 0))
	// Escalate disabled but warn active.
	assert.Equal(t, StalenessWarn, Classify(old, now, 3, 0))
}
