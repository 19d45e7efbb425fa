package locking

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/firmbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFirmLocker(cfg config.Config, log *zap.Logger) FirmLocker {
	if cfg.ProposalLockMode == "redis" && cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("using redis proposal lock", zap.String("addr", cfg.RedisAddr))
		return NewRedisLocker(client)
	}
	return NewKeyedMutex()
}

var Module = fx.Module("locking",
	fx.Provide(NewFirmLocker),
)
