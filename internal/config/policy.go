package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyConfig holds the tunable billing policy constants: usage alert
// thresholds and growth-charge unit prices. Prices are minor units (cents).
type PolicyConfig struct {
	WarningPercent       float64 `mapstructure:"warningPercent"`
	CriticalPercent      float64 `mapstructure:"criticalPercent"`
	OfficeUnitPriceCents int64   `mapstructure:"officeUnitPriceCents"`
	UserUnitPriceCents   int64   `mapstructure:"userUnitPriceCents"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		WarningPercent:       70,
		CriticalPercent:      90,
		OfficeUnitPriceCents: 9900,
		UserUnitPriceCents:   2500,
	}
}

type PolicyConfigHolder struct {
	current atomic.Value // holds PolicyConfig
}

// NewStaticPolicyHolder wraps a fixed config, used by tests.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyConfigHolder {
	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPolicyConfigHolder() (*PolicyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/firmbill/config") // Volume-mounted config
	v.AddConfigPath("/etc/firmbill")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("FIRMBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	v.SetDefault("policy.warningPercent", defaults.WarningPercent)
	v.SetDefault("policy.criticalPercent", defaults.CriticalPercent)
	v.SetDefault("policy.officeUnitPriceCents", defaults.OfficeUnitPriceCents)
	v.SetDefault("policy.userUnitPriceCents", defaults.UserUnitPriceCents)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy-config] reload failed: %v", err)
			return
		}
		if err := validatePolicyConfig(updated); err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyConfigHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.WarningPercent <= 0 || cfg.CriticalPercent <= 0 {
		return errors.New("policy thresholds must be positive")
	}
	if cfg.WarningPercent >= cfg.CriticalPercent {
		return errors.New("policy.warningPercent must be below policy.criticalPercent")
	}
	if cfg.OfficeUnitPriceCents < 0 || cfg.UserUnitPriceCents < 0 {
		return errors.New("policy unit prices cannot be negative")
	}
	return nil
}
