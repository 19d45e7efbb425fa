// Package domain contains persistence models for growth charges and
// per-firm billing rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	"gorm.io/datatypes"
)

// ChargeType enumerates billable growth events.
type ChargeType string

const (
	ChargeTypeOffice ChargeType = "office"
	ChargeTypeUser   ChargeType = "user"
)

// Valid reports whether t is a known charge type.
func (t ChargeType) Valid() bool {
	return t == ChargeTypeOffice || t == ChargeTypeUser
}

// ApprovalType enumerates how growth charges clear approval.
type ApprovalType string

const (
	ApprovalTypeAutomatic ApprovalType = "automatic"
	ApprovalTypeManual    ApprovalType = "manual"
	ApprovalTypeThreshold ApprovalType = "threshold"
)

// Valid reports whether a is a known approval type.
func (a ApprovalType) Valid() bool {
	switch a {
	case ApprovalTypeAutomatic, ApprovalTypeManual, ApprovalTypeThreshold:
		return true
	default:
		return false
	}
}

// ChargeStatus enumerates the charge lifecycle. Paid and cancelled are
// terminal.
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusApproved  ChargeStatus = "approved"
	ChargeStatusBilled    ChargeStatus = "billed"
	ChargeStatusPaid      ChargeStatus = "paid"
	ChargeStatusCancelled ChargeStatus = "cancelled"
)

// ClearedStatuses are the states counted toward cumulative thresholds.
// Pending charges are excluded: only charges that actually cleared
// approval consume auto-approve budget.
var ClearedStatuses = []ChargeStatus{
	ChargeStatusApproved,
	ChargeStatusBilled,
	ChargeStatusPaid,
}

// BillingRule is a firm's growth-charge approval policy. Max counts and
// the monthly threshold (cents) only apply to the threshold approval type;
// a nil max behaves as zero, i.e. every charge needs approval.
type BillingRule struct {
	ID                      snowflake.ID            `gorm:"primaryKey"`
	FirmID                  snowflake.ID            `gorm:"not null;uniqueIndex"`
	OfficeApprovalType      ApprovalType            `gorm:"type:text;not null;default:'manual'"`
	MaxOfficesAutoApprove   *int64                  `gorm:""`
	UserApprovalType        ApprovalType            `gorm:"type:text;not null;default:'manual'"`
	MaxUsersAutoApprove     *int64                  `gorm:""`
	AutoBillingEnabled      bool                    `gorm:"not null;default:false"`
	BillingFrequency        billingperiod.Frequency `gorm:"type:text;not null;default:'monthly'"`
	MonthlyBillingThreshold *int64                  `gorm:""`
	CreatedAt               time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt               time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingRule) TableName() string { return "billing_rules" }

// ApprovalTypeFor returns the approval policy and auto-approve cap for one
// charge type.
func (r BillingRule) ApprovalTypeFor(chargeType ChargeType) (ApprovalType, *int64) {
	if chargeType == ChargeTypeUser {
		return r.UserApprovalType, r.MaxUsersAutoApprove
	}
	return r.OfficeApprovalType, r.MaxOfficesAutoApprove
}

// BillingCharge is one growth charge. Amounts are minor units (cents).
// Immutable once paid.
type BillingCharge struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	FirmID           snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_charge_idempotency,priority:1"`
	ChargeType       ChargeType        `gorm:"type:text;not null"`
	Quantity         int64             `gorm:"not null"`
	UnitPrice        int64             `gorm:"not null"`
	TotalAmount      int64             `gorm:"not null"`
	Status           ChargeStatus      `gorm:"type:text;not null;default:'pending'"`
	RequiresApproval bool              `gorm:"not null;default:true"`
	PeriodID         string            `gorm:"type:text;not null;index"`
	PeriodStart      time.Time         `gorm:"not null"`
	PeriodEnd        time.Time         `gorm:"not null"`
	MonthKey         string            `gorm:"type:text;not null;index"`
	IdempotencyKey   *string           `gorm:"type:text;uniqueIndex:ux_charge_idempotency,priority:2"`
	InvoiceID        *snowflake.ID     `gorm:"index"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingCharge) TableName() string { return "billing_charges" }
