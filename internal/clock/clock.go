// Package clock abstracts wall-clock access so billing-period logic stays
// deterministic under test.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
