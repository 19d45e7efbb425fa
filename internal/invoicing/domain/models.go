// Package domain contains persistence models for period-close invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
)

// InvoiceStatus enumerates the invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusPaid   InvoiceStatus = "paid"
)

// Invoice is one firm's bill for a closed period. Amounts are minor units
// (cents); firm plus staff always equals total.
type Invoice struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	FirmID      snowflake.ID  `gorm:"not null;uniqueIndex:ux_invoice_firm_period,priority:1"`
	PeriodID    string        `gorm:"type:text;not null;uniqueIndex:ux_invoice_firm_period,priority:2"`
	Status      InvoiceStatus `gorm:"type:text;not null;default:'issued'"`
	TotalAmount int64         `gorm:"not null"`
	FirmAmount  int64         `gorm:"not null"`
	StaffAmount int64         `gorm:"not null"`
	IssuedAt    time.Time     `gorm:"not null"`
	PaidAt      *time.Time    `gorm:""`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`

	LineItems []InvoiceLineItem `gorm:"foreignKey:InvoiceID"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem is one billed charge with its firm/staff allocation.
type InvoiceLineItem struct {
	ID          snowflake.ID             `gorm:"primaryKey"`
	InvoiceID   snowflake.ID             `gorm:"not null;index"`
	ChargeID    snowflake.ID             `gorm:"not null;uniqueIndex"`
	Category    splitdomain.CostCategory `gorm:"type:text;not null"`
	Description string                   `gorm:"type:text;not null"`
	Quantity    int64                    `gorm:"not null"`
	UnitPrice   int64                    `gorm:"not null"`
	TotalAmount int64                    `gorm:"not null"`
	FirmAmount  int64                    `gorm:"not null"`
	StaffAmount int64                    `gorm:"not null"`
	CreatedAt   time.Time                `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }
