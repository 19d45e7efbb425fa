// Package domain contains persistence models for the per-firm usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
)

// UsageRecord is one (firm, period, category) counter. Created lazily on
// first increment and superseded, never deleted, when a new period starts.
type UsageRecord struct {
	ID        snowflake.ID               `gorm:"primaryKey"`
	FirmID    snowflake.ID               `gorm:"not null;uniqueIndex:ux_usage_firm_period_category,priority:1"`
	PeriodID  string                     `gorm:"type:text;not null;uniqueIndex:ux_usage_firm_period_category,priority:2"`
	Category  entitlementdomain.Category `gorm:"type:text;not null;uniqueIndex:ux_usage_firm_period_category,priority:3"`
	Used      int64                      `gorm:"not null;default:0"`
	CreatedAt time.Time                  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time                  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Severity classifies a category's consumption against its limit.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// UsageAlert is the derived per-category classification. Percent carries
// the raw value (can exceed 100); DisplayPercent is clamped to [0,100] for
// rendering by the caller.
type UsageAlert struct {
	Category       entitlementdomain.Category `json:"category"`
	Severity       Severity                   `json:"severity"`
	Used           int64                      `json:"used"`
	Limit          *int64                     `json:"limit"`
	Unlimited      bool                       `json:"unlimited"`
	Percent        float64                    `json:"percent"`
	DisplayPercent float64                    `json:"display_percent"`
}
