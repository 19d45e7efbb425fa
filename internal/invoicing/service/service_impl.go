package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	"github.com/smallbiznis/firmbill/internal/clock"
	invoicingdomain "github.com/smallbiznis/firmbill/internal/invoicing/domain"
	"github.com/smallbiznis/firmbill/internal/locking"
	obsmetrics "github.com/smallbiznis/firmbill/internal/observability/metrics"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
	"github.com/smallbiznis/firmbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     locking.FirmLocker
	Allocator  splitdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	locker     locking.FirmLocker
	allocator  splitdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) invoicingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoicing.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		allocator:  p.Allocator,
		obsMetrics: p.ObsMetrics,
	}
}

// costCategoryFor maps a growth charge to its allocation category. Staff
// seats are staff add-ons; offices are shared infrastructure.
func costCategoryFor(chargeType chargedomain.ChargeType) splitdomain.CostCategory {
	if chargeType == chargedomain.ChargeTypeUser {
		return splitdomain.CostCategoryStaffAddon
	}
	return splitdomain.CostCategorySharedResource
}

func (s *Service) CloseBillingPeriod(ctx context.Context, req invoicingdomain.CloseBillingPeriodRequest) (*invoicingdomain.Invoice, error) {
	if req.FirmID == 0 {
		return nil, invoicingdomain.ErrInvalidFirm
	}
	periodID := strings.TrimSpace(req.PeriodID)
	if periodID == "" {
		return nil, invoicingdomain.ErrInvalidPeriod
	}

	// Same critical section as proposals so a charge cannot clear approval
	// while its period is being closed.
	release, err := s.locker.Lock(ctx, req.FirmID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	var charges []chargedomain.BillingCharge
	err = s.db.WithContext(ctx).
		Where("firm_id = ? AND period_id = ? AND status = ?",
			req.FirmID, periodID, chargedomain.ChargeStatusApproved).
		Order("created_at").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	if len(charges) == 0 {
		return nil, invoicingdomain.ErrNoApprovedCharges
	}

	now := s.clock.Now()
	invoice := &invoicingdomain.Invoice{
		ID:       s.genID.Generate(),
		FirmID:   req.FirmID,
		PeriodID: periodID,
		Status:   invoicingdomain.InvoiceStatusIssued,
		IssuedAt: now,
	}

	chargeIDs := make([]snowflake.ID, 0, len(charges))
	for _, charge := range charges {
		category := costCategoryFor(charge.ChargeType)
		allocation, err := s.allocator.Allocate(ctx, req.FirmID, category, charge.TotalAmount)
		if err != nil {
			return nil, err
		}

		invoice.LineItems = append(invoice.LineItems, invoicingdomain.InvoiceLineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			ChargeID:    charge.ID,
			Category:    category,
			Description: fmt.Sprintf("%s growth charge (%s)", charge.ChargeType, charge.PeriodID),
			Quantity:    charge.Quantity,
			UnitPrice:   charge.UnitPrice,
			TotalAmount: charge.TotalAmount,
			FirmAmount:  allocation.FirmAmount,
			StaffAmount: allocation.StaffAmount,
		})
		invoice.TotalAmount += charge.TotalAmount
		invoice.FirmAmount += allocation.FirmAmount
		invoice.StaffAmount += allocation.StaffAmount
		chargeIDs = append(chargeIDs, charge.ID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(invoice).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicingdomain.ErrInvoiceExists
			}
			return err
		}

		result := tx.Model(&chargedomain.BillingCharge{}).
			Where("id IN ? AND status = ?", chargeIDs, chargedomain.ChargeStatusApproved).
			Updates(map[string]any{
				"status":     chargedomain.ChargeStatusBilled,
				"invoice_id": invoice.ID,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(chargeIDs)) {
			return invoicingdomain.ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceIssued(ctx)
	}
	s.log.Info("billing period closed",
		zap.String("firm_id", req.FirmID.String()),
		zap.String("period_id", periodID),
		zap.Int("line_items", len(invoice.LineItems)),
		zap.Int64("total_amount", invoice.TotalAmount),
	)

	return invoice, nil
}

func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceID snowflake.ID) (*invoicingdomain.Invoice, error) {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&invoicingdomain.Invoice{}).
			Where("id = ? AND status = ?", invoiceID, invoicingdomain.InvoiceStatusIssued).
			Updates(map[string]any{
				"status":     invoicingdomain.InvoiceStatusPaid,
				"paid_at":    now,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&invoicingdomain.Invoice{}).Where("id = ?", invoiceID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return invoicingdomain.ErrInvoiceNotFound
			}
			return invoicingdomain.ErrInvalidTransition
		}

		return tx.Model(&chargedomain.BillingCharge{}).
			Where("invoice_id = ? AND status = ?", invoiceID, chargedomain.ChargeStatusBilled).
			Updates(map[string]any{
				"status":     chargedomain.ChargeStatusPaid,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, invoiceID)
}

func (s *Service) Get(ctx context.Context, invoiceID snowflake.ID) (*invoicingdomain.Invoice, error) {
	var invoice invoicingdomain.Invoice
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Where("id = ?", invoiceID).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, invoicingdomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}
