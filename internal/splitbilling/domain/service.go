package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type UpdateConfigRequest struct {
	FirmID             snowflake.ID `json:"firm_id"`
	BasePlanFirmPays   bool         `json:"base_plan_firm_pays"`
	StaffAddonFirmPays bool         `json:"staff_addons_firm_pays"`
	SharedSplitPercent int          `json:"shared_resources_split_percentage"`
}

// Service computes firm/staff cost splits from per-firm policy.
type Service interface {
	// Allocate splits totalAmount (cents) for the firm's configured policy.
	// Pure aside from the config read; safe to call concurrently.
	Allocate(ctx context.Context, firmID snowflake.ID, category CostCategory, totalAmount int64) (Allocation, error)
	GetConfig(ctx context.Context, firmID snowflake.ID) (*SplitBillingConfig, error)
	// UpdateConfig replaces the firm's policy in one validated write.
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) (*SplitBillingConfig, error)
}

var (
	ErrInvalidFirm        = errors.New("invalid_firm")
	ErrInvalidCategory    = errors.New("invalid_category")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidSplitConfig = errors.New("invalid_split_config")
	ErrConfigNotFound     = errors.New("split_config_not_found")
)
