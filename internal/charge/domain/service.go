package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	"github.com/smallbiznis/firmbill/pkg/db/pagination"
)

type ProposeChargeRequest struct {
	FirmID         snowflake.ID         `json:"firm_id"`
	ChargeType     ChargeType           `json:"charge_type"`
	Quantity       int64                `json:"quantity"`
	UnitPrice      int64                `json:"unit_price"`
	Period         billingperiod.Period `json:"period"`
	IdempotencyKey string               `json:"idempotency_key"`
	Metadata       map[string]any       `json:"metadata"`
}

type UpdateRuleRequest struct {
	FirmID                  snowflake.ID            `json:"firm_id"`
	OfficeApprovalType      ApprovalType            `json:"office_approval_type"`
	MaxOfficesAutoApprove   *int64                  `json:"max_offices_auto_approve"`
	UserApprovalType        ApprovalType            `json:"user_approval_type"`
	MaxUsersAutoApprove     *int64                  `json:"max_users_auto_approve"`
	AutoBillingEnabled      bool                    `json:"auto_billing_enabled"`
	BillingFrequency        billingperiod.Frequency `json:"billing_frequency"`
	MonthlyBillingThreshold *int64                  `json:"monthly_billing_threshold"`
}

type ListChargesRequest struct {
	FirmID    snowflake.ID `json:"firm_id"`
	PeriodID  string       `json:"period_id"`
	Status    ChargeStatus `json:"status"`
	PageToken string       `json:"page_token"`
	PageSize  int32        `json:"page_size"`
}

type ListChargesResponse struct {
	pagination.PageInfo
	Charges []BillingCharge `json:"charges"`
}

// Service is the approval engine plus the charge lifecycle state machine.
type Service interface {
	// Propose creates a growth charge, deciding auto-approve vs pending
	// under the firm's billing rule. The cumulative read, the decision and
	// the insert form one critical section per firm.
	Propose(ctx context.Context, req ProposeChargeRequest) (*BillingCharge, error)
	Approve(ctx context.Context, chargeID snowflake.ID) (*BillingCharge, error)
	Cancel(ctx context.Context, chargeID snowflake.ID) (*BillingCharge, error)
	MarkBilled(ctx context.Context, chargeID snowflake.ID) (*BillingCharge, error)
	MarkPaid(ctx context.Context, chargeID snowflake.ID) (*BillingCharge, error)
	Get(ctx context.Context, chargeID snowflake.ID) (*BillingCharge, error)
	List(ctx context.Context, req ListChargesRequest) (ListChargesResponse, error)

	GetRule(ctx context.Context, firmID snowflake.ID) (*BillingRule, error)
	// UpdateRule replaces the firm's rule in one validated write.
	UpdateRule(ctx context.Context, req UpdateRuleRequest) (*BillingRule, error)
}

var (
	ErrInvalidFirm                 = errors.New("invalid_firm")
	ErrInvalidChargeType           = errors.New("invalid_charge_type")
	ErrInvalidQuantity             = errors.New("invalid_quantity")
	ErrInvalidUnitPrice            = errors.New("invalid_unit_price")
	ErrInvalidPeriod               = errors.New("invalid_period")
	ErrInvalidApprovalType         = errors.New("invalid_approval_type")
	ErrInvalidTransition           = errors.New("invalid_transition")
	ErrChargeNotFound              = errors.New("charge_not_found")
	ErrRuleNotFound                = errors.New("billing_rule_not_found")
	ErrConcurrentThresholdViolated = errors.New("concurrent_threshold_violation")
)
