package migration

import (
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	"github.com/smallbiznis/firmbill/internal/config"
	invoicingdomain "github.com/smallbiznis/firmbill/internal/invoicing/domain"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned SQL migrations target postgres. Other dialects
			// (sqlite in dev, mysql) fall back to the model schema.
			return conn.AutoMigrate(
				&usagedomain.UsageRecord{},
				&splitdomain.SplitBillingConfig{},
				&chargedomain.BillingRule{},
				&chargedomain.BillingCharge{},
				&invoicingdomain.Invoice{},
				&invoicingdomain.InvoiceLineItem{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
