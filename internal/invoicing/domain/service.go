package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CloseBillingPeriodRequest struct {
	FirmID   snowflake.ID `json:"firm_id"`
	PeriodID string       `json:"period_id"`
}

// Service turns a firm's approved charges into an invoice at period close.
type Service interface {
	// CloseBillingPeriod gathers the firm's approved charges for the period,
	// allocates each line between firm and staff, marks the charges billed
	// and persists the invoice. One invoice per firm and period.
	CloseBillingPeriod(ctx context.Context, req CloseBillingPeriodRequest) (*Invoice, error)
	// MarkInvoicePaid settles the invoice and its charges.
	MarkInvoicePaid(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
	Get(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
}

var (
	ErrInvalidFirm       = errors.New("invalid_firm")
	ErrInvalidPeriod     = errors.New("invalid_period")
	ErrNoApprovedCharges = errors.New("no_approved_charges")
	ErrInvoiceExists     = errors.New("invoice_already_issued")
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
)
