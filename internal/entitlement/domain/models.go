// Package domain contains read models for plan entitlements.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Category enumerates the metered resources a plan can limit.
type Category string

const (
	CategoryClients      Category = "clients"
	CategoryStaffSeats   Category = "staff_seats"
	CategoryStorageGB    Category = "storage_gb"
	CategoryESignatures  Category = "esignatures"
	CategoryWorkflowRuns Category = "workflow_runs"
	CategoryAPICalls     Category = "api_calls"
	CategorySMS          Category = "sms"
	CategoryOffices      Category = "offices"
	CategoryUsers        Category = "users"
)

// Categories lists every metered category in display order.
var Categories = []Category{
	CategoryClients,
	CategoryStaffSeats,
	CategoryStorageGB,
	CategoryESignatures,
	CategoryWorkflowRuns,
	CategoryAPICalls,
	CategorySMS,
	CategoryOffices,
	CategoryUsers,
}

// Valid reports whether c is a known metered category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// SubscriptionStatus mirrors the catalog's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusActive                SubscriptionStatus = "active"
	SubscriptionStatusScheduledCancellation SubscriptionStatus = "scheduled_cancellation"
	SubscriptionStatusCanceled              SubscriptionStatus = "canceled"
)

// Subscription is the catalog's view of a firm's active plan. The policy
// engine only reads it.
type Subscription struct {
	FirmID             snowflake.ID
	PlanID             snowflake.ID
	BillingCycle       string
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// ResourceLimit is a plan's cap for one category. A nil Limit means
// unlimited.
type ResourceLimit struct {
	PlanID   snowflake.ID
	Category Category
	Limit    *int64
}

// Unlimited reports whether the limit is uncapped.
func (l ResourceLimit) Unlimited() bool { return l.Limit == nil }
