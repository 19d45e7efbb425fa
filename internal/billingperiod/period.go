// Package billingperiod computes the recurring windows usage and charges
// accumulate against. Periods are identified by explicit string IDs so the
// engine never depends on the wall clock directly.
package billingperiod

import (
	"errors"
	"fmt"
	"time"
)

// Frequency enumerates supported billing frequencies.
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

var ErrInvalidFrequency = errors.New("invalid_billing_frequency")

// Period is a half-open window [Start, End).
type Period struct {
	ID    string
	Start time.Time
	End   time.Time
}

// For returns the period containing t for the given frequency. IDs are
// stable and sortable: "2026-08", "2026-Q3", "2026".
func For(t time.Time, freq Frequency) (Period, error) {
	t = t.UTC()
	switch freq {
	case FrequencyMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{
			ID:    fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())),
			Start: start,
			End:   start.AddDate(0, 1, 0),
		}, nil
	case FrequencyQuarterly:
		quarter := (int(t.Month()) - 1) / 3
		start := time.Date(t.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, time.UTC)
		return Period{
			ID:    fmt.Sprintf("%04d-Q%d", t.Year(), quarter+1),
			Start: start,
			End:   start.AddDate(0, 3, 0),
		}, nil
	case FrequencyYearly:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{
			ID:    fmt.Sprintf("%04d", t.Year()),
			Start: start,
			End:   start.AddDate(1, 0, 0),
		}, nil
	default:
		return Period{}, ErrInvalidFrequency
	}
}

// MonthKey returns the monthly bucket for t, used by the monthly dollar cap
// regardless of the firm's billing frequency.
func MonthKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// Valid reports whether freq is a known billing frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	default:
		return false
	}
}
