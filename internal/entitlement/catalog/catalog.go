// Package catalog is the default plan-catalog adapter. It reads the
// catalog-owned tables in the shared database; the policy engine never
// writes them.
package catalog

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/firmbill/internal/entitlement/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type subscriptionRow struct {
	FirmID             snowflake.ID
	PlanID             snowflake.ID
	BillingCycle       string
	Status             entitlementdomain.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

func (subscriptionRow) TableName() string { return "subscriptions" }

type resourceLimitRow struct {
	PlanID   snowflake.ID
	Category entitlementdomain.Category
	Limit    *int64 `gorm:"column:resource_limit"`
}

func (resourceLimitRow) TableName() string { return "plan_resource_limits" }

type CatalogParam struct {
	fx.In

	DB *gorm.DB
}

type Catalog struct {
	db *gorm.DB
}

func New(p CatalogParam) entitlementdomain.Catalog {
	return &Catalog{db: p.DB}
}

func (c *Catalog) GetActiveSubscription(ctx context.Context, firmID snowflake.ID) (entitlementdomain.Subscription, error) {
	var row subscriptionRow
	err := c.db.WithContext(ctx).
		Where("firm_id = ? AND status IN ?", firmID, []entitlementdomain.SubscriptionStatus{
			entitlementdomain.SubscriptionStatusActive,
			entitlementdomain.SubscriptionStatusScheduledCancellation,
		}).
		Order("current_period_start DESC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return entitlementdomain.Subscription{}, entitlementdomain.ErrSubscriptionNotFound
		}
		return entitlementdomain.Subscription{}, err
	}

	return entitlementdomain.Subscription{
		FirmID:             row.FirmID,
		PlanID:             row.PlanID,
		BillingCycle:       row.BillingCycle,
		Status:             row.Status,
		CurrentPeriodStart: row.CurrentPeriodStart,
		CurrentPeriodEnd:   row.CurrentPeriodEnd,
	}, nil
}

func (c *Catalog) GetResourceLimits(ctx context.Context, planID snowflake.ID) ([]entitlementdomain.ResourceLimit, error) {
	var rows []resourceLimitRow
	err := c.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	limits := make([]entitlementdomain.ResourceLimit, 0, len(rows))
	for _, row := range rows {
		limits = append(limits, entitlementdomain.ResourceLimit{
			PlanID:   row.PlanID,
			Category: row.Category,
			Limit:    row.Limit,
		})
	}
	return limits, nil
}
