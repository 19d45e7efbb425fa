package billingperiod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	at := time.Date(2026, time.August, 31, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		freq      Frequency
		wantID    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "monthly",
			freq:      FrequencyMonthly,
			wantID:    "2026-08",
			wantStart: time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "quarterly",
			freq:      FrequencyQuarterly,
			wantID:    "2026-Q3",
			wantStart: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "yearly",
			freq:      FrequencyYearly,
			wantID:    "2026",
			wantStart: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period, err := For(at, tt.freq)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantID, period.ID)
			assert.Equal(t, tt.wantStart, period.Start)
			assert.Equal(t, tt.wantEnd, period.End)
		})
	}

	t.Run("unknown frequency", func(t *testing.T) {
		_, err := For(at, Frequency("weekly"))
		assert.ErrorIs(t, err, ErrInvalidFrequency)
	})
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-01", MonthKey(time.Date(2026, time.January, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "2025-12", MonthKey(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)))
}
