package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	"github.com/smallbiznis/firmbill/internal/clock"
	"github.com/smallbiznis/firmbill/internal/locking"
	obsmetrics "github.com/smallbiznis/firmbill/internal/observability/metrics"
	"github.com/smallbiznis/firmbill/pkg/db/option"
	"github.com/smallbiznis/firmbill/pkg/db/pagination"
	"github.com/smallbiznis/firmbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     locking.FirmLocker
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	locker     locking.FirmLocker
	charges    repository.Repository[chargedomain.BillingCharge]
	rules      repository.Repository[chargedomain.BillingRule]
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) chargedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("charge.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		charges:    repository.ProvideStore[chargedomain.BillingCharge](p.DB),
		rules:      repository.ProvideStore[chargedomain.BillingRule](p.DB),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Propose(ctx context.Context, req chargedomain.ProposeChargeRequest) (*chargedomain.BillingCharge, error) {
	if req.FirmID == 0 {
		return nil, chargedomain.ErrInvalidFirm
	}
	if !req.ChargeType.Valid() {
		return nil, chargedomain.ErrInvalidChargeType
	}
	if req.Quantity <= 0 {
		return nil, chargedomain.ErrInvalidQuantity
	}
	if req.UnitPrice < 0 {
		return nil, chargedomain.ErrInvalidUnitPrice
	}
	if strings.TrimSpace(req.Period.ID) == "" {
		return nil, chargedomain.ErrInvalidPeriod
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.FirmID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	// Per-firm critical section: read-cumulative, decide and persist must
	// not interleave with another proposal for the same firm.
	release, err := s.locker.Lock(ctx, req.FirmID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	rule, err := s.GetRule(ctx, req.FirmID)
	if err != nil {
		return nil, err
	}

	approvalType, maxAuto := rule.ApprovalTypeFor(req.ChargeType)
	if !approvalType.Valid() {
		return nil, chargedomain.ErrInvalidApprovalType
	}

	now := s.clock.Now()
	charge := &chargedomain.BillingCharge{
		ID:          s.genID.Generate(),
		FirmID:      req.FirmID,
		ChargeType:  req.ChargeType,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		TotalAmount: req.Quantity * req.UnitPrice,
		PeriodID:    req.Period.ID,
		PeriodStart: req.Period.Start,
		PeriodEnd:   req.Period.End,
		MonthKey:    billingperiod.MonthKey(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if idempotencyKey != "" {
		charge.IdempotencyKey = &idempotencyKey
	}
	if req.Metadata != nil {
		charge.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted := true
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		priorQuantity, err := clearedQuantity(tx, req.FirmID, req.ChargeType, req.Period.ID)
		if err != nil {
			return err
		}

		autoApprove, err := s.decide(tx, rule, approvalType, maxAuto, priorQuantity, charge)
		if err != nil {
			return err
		}
		if autoApprove {
			// Creation-time shortcut: automatic decisions skip pending.
			charge.Status = chargedomain.ChargeStatusApproved
			charge.RequiresApproval = false
		} else {
			charge.Status = chargedomain.ChargeStatusPending
			charge.RequiresApproval = true
		}

		stmt := tx
		if idempotencyKey != "" {
			stmt = stmt.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "firm_id"}, {Name: "idempotency_key"}},
				DoNothing: true,
			})
		}
		result := stmt.Create(charge)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected > 0
		if !inserted {
			return nil
		}

		if autoApprove && approvalType == chargedomain.ApprovalTypeThreshold {
			// Optimistic re-check: if another writer changed the cleared
			// sum mid-section, the firm lock was bypassed and the
			// decision can no longer be trusted.
			recheck, err := clearedQuantityExcluding(tx, req.FirmID, req.ChargeType, req.Period.ID, charge.ID)
			if err != nil {
				return err
			}
			if recheck != priorQuantity {
				return chargedomain.ErrConcurrentThresholdViolated
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !inserted && idempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.FirmID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	decision := "pending"
	if !charge.RequiresApproval {
		decision = "auto_approved"
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordChargeProposed(ctx, string(req.ChargeType), decision)
	}
	s.log.Info("growth charge proposed",
		zap.String("firm_id", req.FirmID.String()),
		zap.String("charge_type", string(req.ChargeType)),
		zap.Int64("quantity", req.Quantity),
		zap.String("decision", decision),
	)

	return charge, nil
}

// decide applies the approval policy. Returns true to auto-approve.
func (s *Service) decide(tx *gorm.DB, rule *chargedomain.BillingRule, approvalType chargedomain.ApprovalType, maxAuto *int64, priorQuantity int64, charge *chargedomain.BillingCharge) (bool, error) {
	switch approvalType {
	case chargedomain.ApprovalTypeAutomatic:
		return true, nil
	case chargedomain.ApprovalTypeManual:
		return false, nil
	default:
		// Absent cap behaves as zero: everything needs approval.
		limit := int64(0)
		if maxAuto != nil {
			limit = *maxAuto
		}
		if priorQuantity+charge.Quantity > limit {
			return false, nil
		}
		if rule.AutoBillingEnabled && rule.MonthlyBillingThreshold != nil {
			monthAmount, err := clearedMonthAmount(tx, charge.FirmID, charge.MonthKey)
			if err != nil {
				return false, err
			}
			if monthAmount+charge.TotalAmount > *rule.MonthlyBillingThreshold {
				return false, nil
			}
		}
		return true, nil
	}
}

func (s *Service) Approve(ctx context.Context, chargeID snowflake.ID) (*chargedomain.BillingCharge, error) {
	return s.transition(ctx, chargeID,
		[]chargedomain.ChargeStatus{chargedomain.ChargeStatusPending},
		chargedomain.ChargeStatusApproved)
}

func (s *Service) Cancel(ctx context.Context, chargeID snowflake.ID) (*chargedomain.BillingCharge, error) {
	return s.transition(ctx, chargeID,
		[]chargedomain.ChargeStatus{chargedomain.ChargeStatusPending, chargedomain.ChargeStatusApproved},
		chargedomain.ChargeStatusCancelled)
}

func (s *Service) MarkBilled(ctx context.Context, chargeID snowflake.ID) (*chargedomain.BillingCharge, error) {
	return s.transition(ctx, chargeID,
		[]chargedomain.ChargeStatus{chargedomain.ChargeStatusApproved},
		chargedomain.ChargeStatusBilled)
}

func (s *Service) MarkPaid(ctx context.Context, chargeID snowflake.ID) (*chargedomain.BillingCharge, error) {
	return s.transition(ctx, chargeID,
		[]chargedomain.ChargeStatus{chargedomain.ChargeStatusBilled},
		chargedomain.ChargeStatusPaid)
}

// transition moves a charge between adjacent states with a guarded update.
// A failed guard leaves the row untouched.
func (s *Service) transition(ctx context.Context, chargeID snowflake.ID, from []chargedomain.ChargeStatus, to chargedomain.ChargeStatus) (*chargedomain.BillingCharge, error) {
	result := s.db.WithContext(ctx).
		Model(&chargedomain.BillingCharge{}).
		Where("id = ? AND status IN ?", chargeID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": s.clock.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, chargeID); err != nil {
			return nil, err
		}
		return nil, chargedomain.ErrInvalidTransition
	}
	return s.Get(ctx, chargeID)
}

func (s *Service) Get(ctx context.Context, chargeID snowflake.ID) (*chargedomain.BillingCharge, error) {
	charge, err := s.charges.FindOne(ctx, &chargedomain.BillingCharge{ID: chargeID})
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, chargedomain.ErrChargeNotFound
	}
	return charge, nil
}

func (s *Service) List(ctx context.Context, req chargedomain.ListChargesRequest) (chargedomain.ListChargesResponse, error) {
	if req.FirmID == 0 {
		return chargedomain.ListChargesResponse{}, chargedomain.ErrInvalidFirm
	}

	filter := &chargedomain.BillingCharge{
		FirmID:   req.FirmID,
		PeriodID: strings.TrimSpace(req.PeriodID),
		Status:   req.Status,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.charges.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  int(pageSize),
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return chargedomain.ListChargesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(charge *chargedomain.BillingCharge) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        charge.ID.String(),
			CreatedAt: charge.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	charges := make([]chargedomain.BillingCharge, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		charges = append(charges, *item)
	}

	resp := chargedomain.ListChargesResponse{Charges: charges}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetRule(ctx context.Context, firmID snowflake.ID) (*chargedomain.BillingRule, error) {
	if firmID == 0 {
		return nil, chargedomain.ErrInvalidFirm
	}

	rule, err := s.rules.FindOne(ctx, &chargedomain.BillingRule{FirmID: firmID})
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, chargedomain.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, req chargedomain.UpdateRuleRequest) (*chargedomain.BillingRule, error) {
	if req.FirmID == 0 {
		return nil, chargedomain.ErrInvalidFirm
	}
	if !req.OfficeApprovalType.Valid() || !req.UserApprovalType.Valid() {
		return nil, chargedomain.ErrInvalidApprovalType
	}
	if !req.BillingFrequency.Valid() {
		return nil, billingperiod.ErrInvalidFrequency
	}
	if req.MonthlyBillingThreshold != nil && *req.MonthlyBillingThreshold < 0 {
		return nil, chargedomain.ErrInvalidUnitPrice
	}

	now := s.clock.Now()
	rule := &chargedomain.BillingRule{
		ID:                      s.genID.Generate(),
		FirmID:                  req.FirmID,
		OfficeApprovalType:      req.OfficeApprovalType,
		MaxOfficesAutoApprove:   req.MaxOfficesAutoApprove,
		UserApprovalType:        req.UserApprovalType,
		MaxUsersAutoApprove:     req.MaxUsersAutoApprove,
		AutoBillingEnabled:      req.AutoBillingEnabled,
		BillingFrequency:        req.BillingFrequency,
		MonthlyBillingThreshold: req.MonthlyBillingThreshold,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "firm_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"office_approval_type":      req.OfficeApprovalType,
			"max_offices_auto_approve":  req.MaxOfficesAutoApprove,
			"user_approval_type":        req.UserApprovalType,
			"max_users_auto_approve":    req.MaxUsersAutoApprove,
			"auto_billing_enabled":      req.AutoBillingEnabled,
			"billing_frequency":         req.BillingFrequency,
			"monthly_billing_threshold": req.MonthlyBillingThreshold,
			"updated_at":                now,
		}),
	}).Create(rule).Error
	if err != nil {
		return nil, err
	}

	return s.GetRule(ctx, req.FirmID)
}

func (s *Service) findByIdempotencyKey(ctx context.Context, firmID snowflake.ID, key string) (*chargedomain.BillingCharge, error) {
	var charge chargedomain.BillingCharge
	err := s.db.WithContext(ctx).
		Where("firm_id = ? AND idempotency_key = ?", firmID, key).
		First(&charge).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &charge, nil
}

func clearedQuantity(tx *gorm.DB, firmID snowflake.ID, chargeType chargedomain.ChargeType, periodID string) (int64, error) {
	var sum int64
	err := tx.Model(&chargedomain.BillingCharge{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("firm_id = ? AND charge_type = ? AND period_id = ? AND status IN ?",
			firmID, chargeType, periodID, chargedomain.ClearedStatuses).
		Scan(&sum).Error
	return sum, err
}

func clearedQuantityExcluding(tx *gorm.DB, firmID snowflake.ID, chargeType chargedomain.ChargeType, periodID string, excludeID snowflake.ID) (int64, error) {
	var sum int64
	err := tx.Model(&chargedomain.BillingCharge{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("firm_id = ? AND charge_type = ? AND period_id = ? AND status IN ? AND id <> ?",
			firmID, chargeType, periodID, chargedomain.ClearedStatuses, excludeID).
		Scan(&sum).Error
	return sum, err
}

func clearedMonthAmount(tx *gorm.DB, firmID snowflake.ID, monthKey string) (int64, error) {
	var sum int64
	err := tx.Model(&chargedomain.BillingCharge{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("firm_id = ? AND month_key = ? AND status IN ?",
			firmID, monthKey, chargedomain.ClearedStatuses).
		Scan(&sum).Error
	return sum, err
}
