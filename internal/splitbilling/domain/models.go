// Package domain contains persistence models for split-billing policy.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CostCategory enumerates the cost buckets a priced line item falls into.
type CostCategory string

const (
	CostCategoryBasePlan       CostCategory = "base_plan"
	CostCategoryStaffAddon     CostCategory = "staff_addon"
	CostCategorySharedResource CostCategory = "shared_resource"
)

// Valid reports whether c is a known cost category.
func (c CostCategory) Valid() bool {
	switch c {
	case CostCategoryBasePlan, CostCategoryStaffAddon, CostCategorySharedResource:
		return true
	default:
		return false
	}
}

// SplitBillingConfig is a firm's policy for dividing costs between the firm
// and its staff. SharedSplitPercent is the staff share of shared resources,
// 0-100.
type SplitBillingConfig struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	FirmID             snowflake.ID `gorm:"not null;uniqueIndex"`
	BasePlanFirmPays   bool         `gorm:"not null;default:true"`
	StaffAddonFirmPays bool         `gorm:"not null;default:true"`
	SharedSplitPercent int          `gorm:"not null;default:0"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SplitBillingConfig) TableName() string { return "split_billing_configs" }

// Allocation is the outcome of splitting one amount. Amounts are minor
// units (cents) and always sum exactly to the input.
type Allocation struct {
	FirmAmount  int64 `json:"firm_amount"`
	StaffAmount int64 `json:"staff_amount"`
}
