package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Catalog is the external plan-catalog collaborator. Implementations live
// outside this engine.
type Catalog interface {
	GetActiveSubscription(ctx context.Context, firmID snowflake.ID) (Subscription, error)
	GetResourceLimits(ctx context.Context, planID snowflake.ID) ([]ResourceLimit, error)
}

// Service resolves a firm's active subscription to per-category limits.
type Service interface {
	ActiveSubscription(ctx context.Context, firmID snowflake.ID) (Subscription, error)
	ResolveLimits(ctx context.Context, firmID snowflake.ID) ([]ResourceLimit, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidFirm          = errors.New("invalid_firm")
)
