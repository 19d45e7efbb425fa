package db

import (
	"context"
	"time"

	"github.com/smallbiznis/firmbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// New opens the gorm connection described by cfg and applies pool settings.
func New(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          cfg.DBName,
		RefreshInterval: 15,
	})); err != nil {
		log.Warn("gorm prometheus plugin not registered", zap.Error(err))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	}
	if cfg.DBMaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	}
	if cfg.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	}
	if cfg.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)
	}

	return conn, nil
}

func registerHooks(lc fx.Lifecycle, conn *gorm.DB, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("closing database connection")
			return sqlDB.Close()
		},
	})
}

// Module wires the database connection for the application.
var Module = fx.Module("db",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
