package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/clock"
	obsmetrics "github.com/smallbiznis/firmbill/internal/observability/metrics"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
	"github.com/smallbiznis/firmbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	configs    repository.Repository[splitdomain.SplitBillingConfig]
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) splitdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("splitbilling.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		configs:    repository.ProvideStore[splitdomain.SplitBillingConfig](p.DB),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Allocate(ctx context.Context, firmID snowflake.ID, category splitdomain.CostCategory, totalAmount int64) (splitdomain.Allocation, error) {
	if !category.Valid() {
		return splitdomain.Allocation{}, splitdomain.ErrInvalidCategory
	}
	if totalAmount < 0 {
		return splitdomain.Allocation{}, splitdomain.ErrInvalidAmount
	}

	cfg, err := s.GetConfig(ctx, firmID)
	if err != nil {
		return splitdomain.Allocation{}, err
	}

	allocation, err := Split(*cfg, category, totalAmount)
	if err != nil {
		return splitdomain.Allocation{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordAllocation(ctx, string(category))
	}
	return allocation, nil
}

// Split applies cfg to one amount. The shared-resource staff share is
// rounded half-up at the cent; the remainder lands in the firm's share so
// the two always sum exactly to totalAmount.
func Split(cfg splitdomain.SplitBillingConfig, category splitdomain.CostCategory, totalAmount int64) (splitdomain.Allocation, error) {
	switch category {
	case splitdomain.CostCategoryBasePlan:
		if cfg.BasePlanFirmPays {
			return splitdomain.Allocation{FirmAmount: totalAmount}, nil
		}
		return splitdomain.Allocation{StaffAmount: totalAmount}, nil

	case splitdomain.CostCategoryStaffAddon:
		if cfg.StaffAddonFirmPays {
			return splitdomain.Allocation{FirmAmount: totalAmount}, nil
		}
		return splitdomain.Allocation{StaffAmount: totalAmount}, nil

	case splitdomain.CostCategorySharedResource:
		// Unreachable given the model invariant, but misallocating
		// silently is worse than failing.
		if cfg.SharedSplitPercent < 0 || cfg.SharedSplitPercent > 100 {
			return splitdomain.Allocation{}, splitdomain.ErrInvalidSplitConfig
		}
		staff := roundHalfUpPercent(totalAmount, int64(cfg.SharedSplitPercent))
		return splitdomain.Allocation{
			FirmAmount:  totalAmount - staff,
			StaffAmount: staff,
		}, nil

	default:
		return splitdomain.Allocation{}, splitdomain.ErrInvalidCategory
	}
}

// roundHalfUpPercent computes amount*percent/100 in integer cents, rounding
// half-up.
func roundHalfUpPercent(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}

func (s *Service) GetConfig(ctx context.Context, firmID snowflake.ID) (*splitdomain.SplitBillingConfig, error) {
	if firmID == 0 {
		return nil, splitdomain.ErrInvalidFirm
	}

	cfg, err := s.configs.FindOne(ctx, &splitdomain.SplitBillingConfig{FirmID: firmID})
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, splitdomain.ErrConfigNotFound
	}
	return cfg, nil
}

func (s *Service) UpdateConfig(ctx context.Context, req splitdomain.UpdateConfigRequest) (*splitdomain.SplitBillingConfig, error) {
	if req.FirmID == 0 {
		return nil, splitdomain.ErrInvalidFirm
	}
	if req.SharedSplitPercent < 0 || req.SharedSplitPercent > 100 {
		return nil, splitdomain.ErrInvalidSplitConfig
	}

	now := s.clock.Now()
	cfg := &splitdomain.SplitBillingConfig{
		ID:                 s.genID.Generate(),
		FirmID:             req.FirmID,
		BasePlanFirmPays:   req.BasePlanFirmPays,
		StaffAddonFirmPays: req.StaffAddonFirmPays,
		SharedSplitPercent: req.SharedSplitPercent,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "firm_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"base_plan_firm_pays":   req.BasePlanFirmPays,
			"staff_addon_firm_pays": req.StaffAddonFirmPays,
			"shared_split_percent":  req.SharedSplitPercent,
			"updated_at":            now,
		}),
	}).Create(cfg).Error
	if err != nil {
		return nil, err
	}

	s.log.Info("split billing config updated",
		zap.String("firm_id", req.FirmID.String()),
		zap.Int("shared_split_percent", req.SharedSplitPercent),
	)

	return s.GetConfig(ctx, req.FirmID)
}
