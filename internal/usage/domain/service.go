package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
)

type IncrementRequest struct {
	FirmID   snowflake.ID               `json:"firm_id"`
	PeriodID string                     `json:"period_id"`
	Category entitlementdomain.Category `json:"category"`
	Delta    int64                      `json:"delta"`
}

type CorrectRequest struct {
	FirmID   snowflake.ID               `json:"firm_id"`
	PeriodID string                     `json:"period_id"`
	Category entitlementdomain.Category `json:"category"`
	Used     int64                      `json:"used"`
}

type ClassifyResponse struct {
	Alerts      []UsageAlert `json:"alerts"`
	HasCritical bool         `json:"has_critical"`
}

// Service is the usage ledger plus the classifier over it.
type Service interface {
	// Increment atomically adds delta to one counter, creating it on first
	// use. Delta must be positive.
	Increment(ctx context.Context, req IncrementRequest) (*UsageRecord, error)
	// Correct overwrites one counter with an explicit non-negative value.
	Correct(ctx context.Context, req CorrectRequest) (*UsageRecord, error)
	// Read returns every counter for the firm and period.
	Read(ctx context.Context, firmID snowflake.ID, periodID string) ([]UsageRecord, error)
	// Classify evaluates every limited category against the ledger. Pure
	// read, no side effects.
	Classify(ctx context.Context, firmID snowflake.ID, periodID string) (ClassifyResponse, error)
}

var (
	ErrInvalidFirm     = errors.New("invalid_firm")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidDelta    = errors.New("invalid_delta")
	ErrInvalidUsage    = errors.New("invalid_usage")
)
