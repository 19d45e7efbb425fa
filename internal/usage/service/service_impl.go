package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/clock"
	"github.com/smallbiznis/firmbill/internal/config"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/firmbill/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Entitlements entitlementdomain.Service
	Policy       *config.PolicyConfigHolder
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	clock        clock.Clock
	entitlements entitlementdomain.Service
	policy       *config.PolicyConfigHolder
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:        p.GenID,
		clock:        p.Clock,
		entitlements: p.Entitlements,
		policy:       p.Policy,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) Increment(ctx context.Context, req usagedomain.IncrementRequest) (*usagedomain.UsageRecord, error) {
	if err := validateCounterKey(req.FirmID, req.PeriodID, req.Category); err != nil {
		return nil, err
	}
	if req.Delta <= 0 {
		return nil, usagedomain.ErrInvalidDelta
	}

	now := s.clock.Now()
	record := &usagedomain.UsageRecord{
		ID:        s.genID.Generate(),
		FirmID:    req.FirmID,
		PeriodID:  strings.TrimSpace(req.PeriodID),
		Category:  req.Category,
		Used:      req.Delta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Single-statement upsert keeps the counter atomic per
	// (firm, period, category) under concurrent producers.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "firm_id"}, {Name: "period_id"}, {Name: "category"}},
		DoUpdates: clause.Assignments(map[string]any{
			"used":       gorm.Expr("used + ?", req.Delta),
			"updated_at": now,
		}),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordUsageIncrement(ctx, string(req.Category))
	}

	return s.findCounter(ctx, req.FirmID, record.PeriodID, req.Category)
}

func (s *Service) Correct(ctx context.Context, req usagedomain.CorrectRequest) (*usagedomain.UsageRecord, error) {
	if err := validateCounterKey(req.FirmID, req.PeriodID, req.Category); err != nil {
		return nil, err
	}
	if req.Used < 0 {
		return nil, usagedomain.ErrInvalidUsage
	}

	now := s.clock.Now()
	record := &usagedomain.UsageRecord{
		ID:        s.genID.Generate(),
		FirmID:    req.FirmID,
		PeriodID:  strings.TrimSpace(req.PeriodID),
		Category:  req.Category,
		Used:      req.Used,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "firm_id"}, {Name: "period_id"}, {Name: "category"}},
		DoUpdates: clause.Assignments(map[string]any{
			"used":       req.Used,
			"updated_at": now,
		}),
	}).Create(record).Error
	if err != nil {
		return nil, err
	}

	s.log.Info("usage corrected",
		zap.String("firm_id", req.FirmID.String()),
		zap.String("period_id", record.PeriodID),
		zap.String("category", string(req.Category)),
		zap.Int64("used", req.Used),
	)

	return s.findCounter(ctx, req.FirmID, record.PeriodID, req.Category)
}

func (s *Service) Read(ctx context.Context, firmID snowflake.ID, periodID string) ([]usagedomain.UsageRecord, error) {
	if firmID == 0 {
		return nil, usagedomain.ErrInvalidFirm
	}
	if strings.TrimSpace(periodID) == "" {
		return nil, usagedomain.ErrInvalidPeriod
	}

	var records []usagedomain.UsageRecord
	err := s.db.WithContext(ctx).
		Where("firm_id = ? AND period_id = ?", firmID, strings.TrimSpace(periodID)).
		Order("category").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) Classify(ctx context.Context, firmID snowflake.ID, periodID string) (usagedomain.ClassifyResponse, error) {
	limits, err := s.entitlements.ResolveLimits(ctx, firmID)
	if err != nil {
		return usagedomain.ClassifyResponse{}, err
	}

	records, err := s.Read(ctx, firmID, periodID)
	if err != nil {
		return usagedomain.ClassifyResponse{}, err
	}

	used := make(map[entitlementdomain.Category]int64, len(records))
	for _, record := range records {
		used[record.Category] = record.Used
	}

	policy := s.policy.Get()
	resp := usagedomain.ClassifyResponse{
		Alerts: make([]usagedomain.UsageAlert, 0, len(limits)),
	}
	for _, limit := range limits {
		alert := classifyCategory(limit, used[limit.Category], policy)
		if alert.Severity != usagedomain.SeverityNormal && s.obsMetrics != nil {
			s.obsMetrics.RecordAlert(ctx, string(alert.Category), string(alert.Severity))
		}
		if alert.Severity == usagedomain.SeverityCritical {
			resp.HasCritical = true
		}
		resp.Alerts = append(resp.Alerts, alert)
	}

	return resp, nil
}

// classifyCategory applies the severity policy to one category. Unlimited
// categories never alert but are still returned for display. The raw
// percentage is kept unclamped so overruns (e.g. 134%) stay visible.
func classifyCategory(limit entitlementdomain.ResourceLimit, used int64, policy config.PolicyConfig) usagedomain.UsageAlert {
	alert := usagedomain.UsageAlert{
		Category:  limit.Category,
		Severity:  usagedomain.SeverityNormal,
		Used:      used,
		Limit:     limit.Limit,
		Unlimited: limit.Unlimited(),
	}

	if limit.Unlimited() || *limit.Limit == 0 {
		if !limit.Unlimited() {
			// A zero limit with any usage is a full overrun.
			if used > 0 {
				alert.Percent = 100
				alert.DisplayPercent = 100
				alert.Severity = usagedomain.SeverityCritical
			}
		}
		return alert
	}

	percent := float64(used) / float64(*limit.Limit) * 100
	alert.Percent = percent
	alert.DisplayPercent = percent
	if alert.DisplayPercent > 100 {
		alert.DisplayPercent = 100
	}
	if alert.DisplayPercent < 0 {
		alert.DisplayPercent = 0
	}

	switch {
	case percent >= policy.CriticalPercent:
		alert.Severity = usagedomain.SeverityCritical
	case percent >= policy.WarningPercent:
		alert.Severity = usagedomain.SeverityWarning
	}

	return alert
}

func (s *Service) findCounter(ctx context.Context, firmID snowflake.ID, periodID string, category entitlementdomain.Category) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := s.db.WithContext(ctx).
		Where("firm_id = ? AND period_id = ? AND category = ?", firmID, periodID, category).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func validateCounterKey(firmID snowflake.ID, periodID string, category entitlementdomain.Category) error {
	if firmID == 0 {
		return usagedomain.ErrInvalidFirm
	}
	if strings.TrimSpace(periodID) == "" {
		return usagedomain.ErrInvalidPeriod
	}
	if !category.Valid() {
		return usagedomain.ErrInvalidCategory
	}
	return nil
}
