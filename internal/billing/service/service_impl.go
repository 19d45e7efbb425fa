package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/firmbill/internal/billing/domain"
	"github.com/smallbiznis/firmbill/internal/billingperiod"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	"github.com/smallbiznis/firmbill/internal/clock"
	"github.com/smallbiznis/firmbill/internal/config"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Policy       *config.PolicyConfigHolder
	Usage        usagedomain.Service
	Charges      chargedomain.Service
	Entitlements entitlementdomain.Service
}

type Service struct {
	log *zap.Logger

	clock        clock.Clock
	policy       *config.PolicyConfigHolder
	usage        usagedomain.Service
	charges      chargedomain.Service
	entitlements entitlementdomain.Service
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		log: p.Log.Named("billing.facade"),

		clock:        p.Clock,
		policy:       p.Policy,
		usage:        p.Usage,
		charges:      p.Charges,
		entitlements: p.Entitlements,
	}
}

func (s *Service) RecordUsage(ctx context.Context, req billingdomain.RecordUsageRequest) (billingdomain.RecordUsageResponse, error) {
	periodID := s.resolvePeriod(req.PeriodID)

	record, err := s.usage.Increment(ctx, usagedomain.IncrementRequest{
		FirmID:   req.FirmID,
		PeriodID: periodID,
		Category: req.Category,
		Delta:    req.Delta,
	})
	if err != nil {
		return billingdomain.RecordUsageResponse{}, err
	}

	classified, err := s.usage.Classify(ctx, req.FirmID, periodID)
	if err != nil {
		return billingdomain.RecordUsageResponse{}, err
	}

	if classified.HasCritical {
		s.log.Warn("usage critical after increment",
			zap.String("firm_id", req.FirmID.String()),
			zap.String("period_id", periodID),
			zap.String("category", string(req.Category)),
		)
	}

	return billingdomain.RecordUsageResponse{
		Record:      *record,
		Alerts:      classified.Alerts,
		HasCritical: classified.HasCritical,
	}, nil
}

func (s *Service) RequestGrowthCharge(ctx context.Context, req billingdomain.RequestGrowthChargeRequest) (*chargedomain.BillingCharge, error) {
	if req.FirmID == 0 {
		return nil, billingdomain.ErrInvalidFirm
	}
	if !req.ChargeType.Valid() {
		return nil, chargedomain.ErrInvalidChargeType
	}

	rule, err := s.charges.GetRule(ctx, req.FirmID)
	if err != nil {
		return nil, err
	}

	period, err := billingperiod.For(s.clock.Now(), rule.BillingFrequency)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	unitPrice := policy.OfficeUnitPriceCents
	if req.ChargeType == chargedomain.ChargeTypeUser {
		unitPrice = policy.UserUnitPriceCents
	}

	return s.charges.Propose(ctx, chargedomain.ProposeChargeRequest{
		FirmID:         req.FirmID,
		ChargeType:     req.ChargeType,
		Quantity:       req.Quantity,
		UnitPrice:      unitPrice,
		Period:         period,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
}

func (s *Service) Overview(ctx context.Context, firmID snowflake.ID, periodID string) (billingdomain.UsageOverview, error) {
	if firmID == 0 {
		return billingdomain.UsageOverview{}, billingdomain.ErrInvalidFirm
	}
	periodID = s.resolvePeriod(periodID)

	subscription, err := s.entitlements.ActiveSubscription(ctx, firmID)
	if err != nil {
		return billingdomain.UsageOverview{}, err
	}

	records, err := s.usage.Read(ctx, firmID, periodID)
	if err != nil {
		return billingdomain.UsageOverview{}, err
	}

	classified, err := s.usage.Classify(ctx, firmID, periodID)
	if err != nil {
		return billingdomain.UsageOverview{}, err
	}

	return billingdomain.UsageOverview{
		FirmID:       firmID,
		PeriodID:     periodID,
		Subscription: subscription,
		Records:      records,
		Alerts:       classified.Alerts,
		HasCritical:  classified.HasCritical,
	}, nil
}

func (s *Service) resolvePeriod(periodID string) string {
	periodID = strings.TrimSpace(periodID)
	if periodID != "" {
		return periodID
	}
	return billingperiod.MonthKey(s.clock.Now())
}
