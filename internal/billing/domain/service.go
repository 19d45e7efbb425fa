// Package domain defines the billing facade, the single entry point
// callers use for usage ingestion, growth charges and overviews.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
)

type RecordUsageRequest struct {
	FirmID snowflake.ID `json:"firm_id"`
	// PeriodID defaults to the current month when empty.
	PeriodID string                     `json:"period_id"`
	Category entitlementdomain.Category `json:"category"`
	Delta    int64                      `json:"delta"`
}

type RecordUsageResponse struct {
	Record      usagedomain.UsageRecord  `json:"record"`
	Alerts      []usagedomain.UsageAlert `json:"alerts"`
	HasCritical bool                     `json:"has_critical"`
}

type RequestGrowthChargeRequest struct {
	FirmID         snowflake.ID            `json:"firm_id"`
	ChargeType     chargedomain.ChargeType `json:"charge_type"`
	Quantity       int64                   `json:"quantity"`
	IdempotencyKey string                  `json:"idempotency_key"`
	Metadata       map[string]any          `json:"metadata"`
}

type UsageOverview struct {
	FirmID       snowflake.ID                   `json:"firm_id"`
	PeriodID     string                         `json:"period_id"`
	Subscription entitlementdomain.Subscription `json:"subscription"`
	Records      []usagedomain.UsageRecord      `json:"records"`
	Alerts       []usagedomain.UsageAlert       `json:"alerts"`
	HasCritical  bool                           `json:"has_critical"`
}

// Service is the facade over the ledger, classifier and approval engine.
type Service interface {
	// RecordUsage increments one counter and reclassifies the firm's period.
	RecordUsage(ctx context.Context, req RecordUsageRequest) (RecordUsageResponse, error)
	// RequestGrowthCharge prices the request from policy config, resolves
	// the firm's billing period and delegates to the approval engine.
	RequestGrowthCharge(ctx context.Context, req RequestGrowthChargeRequest) (*chargedomain.BillingCharge, error)
	// Overview returns the firm's subscription, counters and alerts for one
	// period.
	Overview(ctx context.Context, firmID snowflake.ID, periodID string) (UsageOverview, error)
}

var ErrInvalidFirm = errors.New("invalid_firm")
