package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/firmbill/internal/billing/domain"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
)

type requestGrowthChargeRequest struct {
	ChargeType     string         `json:"charge_type"`
	Quantity       int64          `json:"quantity"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) RequestGrowthCharge(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req requestGrowthChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	charge, err := s.billingSvc.RequestGrowthCharge(c.Request.Context(), billingdomain.RequestGrowthChargeRequest{
		FirmID:         firmID,
		ChargeType:     chargedomain.ChargeType(strings.TrimSpace(req.ChargeType)),
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, charge)
}

func (s *Server) ListCharges(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var page struct {
		PageToken string `form:"page_token"`
		PageSize  int32  `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.chargeSvc.List(c.Request.Context(), chargedomain.ListChargesRequest{
		FirmID:    firmID,
		PeriodID:  c.Query("period_id"),
		Status:    chargedomain.ChargeStatus(strings.TrimSpace(c.Query("status"))),
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCharge(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}
	chargeID, ok := parseIDParam(c, "chargeId")
	if !ok {
		return
	}

	charge, err := s.ownedCharge(c, firmID, chargeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, charge)
}

func (s *Server) ApproveCharge(c *gin.Context) {
	s.transitionCharge(c, s.chargeSvc.Approve)
}

func (s *Server) CancelCharge(c *gin.Context) {
	s.transitionCharge(c, s.chargeSvc.Cancel)
}

func (s *Server) MarkChargeBilled(c *gin.Context) {
	s.transitionCharge(c, s.chargeSvc.MarkBilled)
}

func (s *Server) MarkChargePaid(c *gin.Context) {
	s.transitionCharge(c, s.chargeSvc.MarkPaid)
}

func (s *Server) transitionCharge(c *gin.Context, transition func(ctx context.Context, chargeID snowflake.ID) (*chargedomain.BillingCharge, error)) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}
	chargeID, ok := parseIDParam(c, "chargeId")
	if !ok {
		return
	}

	if _, err := s.ownedCharge(c, firmID, chargeID); err != nil {
		AbortWithError(c, err)
		return
	}

	charge, err := transition(c.Request.Context(), chargeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, charge)
}

func (s *Server) ownedCharge(c *gin.Context, firmID, chargeID snowflake.ID) (*chargedomain.BillingCharge, error) {
	charge, err := s.chargeSvc.Get(c.Request.Context(), chargeID)
	if err != nil {
		return nil, err
	}
	if charge.FirmID != firmID {
		return nil, chargedomain.ErrChargeNotFound
	}
	return charge, nil
}

func (s *Server) GetBillingRule(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	rule, err := s.chargeSvc.GetRule(c.Request.Context(), firmID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

type updateBillingRuleRequest struct {
	OfficeApprovalType      string `json:"office_approval_type"`
	MaxOfficesAutoApprove   *int64 `json:"max_offices_auto_approve"`
	UserApprovalType        string `json:"user_approval_type"`
	MaxUsersAutoApprove     *int64 `json:"max_users_auto_approve"`
	AutoBillingEnabled      bool   `json:"auto_billing_enabled"`
	BillingFrequency        string `json:"billing_frequency"`
	MonthlyBillingThreshold *int64 `json:"monthly_billing_threshold"`
}

func (s *Server) UpdateBillingRule(c *gin.Context) {
	firmID, ok := firmFromContext(c)
	if !ok {
		return
	}

	var req updateBillingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	rule, err := s.chargeSvc.UpdateRule(c.Request.Context(), chargedomain.UpdateRuleRequest{
		FirmID:                  firmID,
		OfficeApprovalType:      chargedomain.ApprovalType(strings.TrimSpace(req.OfficeApprovalType)),
		MaxOfficesAutoApprove:   req.MaxOfficesAutoApprove,
		UserApprovalType:        chargedomain.ApprovalType(strings.TrimSpace(req.UserApprovalType)),
		MaxUsersAutoApprove:     req.MaxUsersAutoApprove,
		AutoBillingEnabled:      req.AutoBillingEnabled,
		BillingFrequency:        billingperiod.Frequency(strings.TrimSpace(req.BillingFrequency)),
		MonthlyBillingThreshold: req.MonthlyBillingThreshold,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}
