// Package firmcontext carries the authenticated firm (tenant) through the
// request context.
package firmcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// FirmContextKey is the request context key for the active firm ID.
type FirmContextKey struct{}

// WithFirmID stores the firm ID in the context.
func WithFirmID(ctx context.Context, firmID int64) context.Context {
	return context.WithValue(ctx, FirmContextKey{}, firmID)
}

// FirmIDFromContext returns the firm ID from context, if set.
func FirmIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(FirmContextKey{})
	if value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
