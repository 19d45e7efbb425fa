package observability

import (
	"github.com/smallbiznis/firmbill/internal/config"
	"github.com/smallbiznis/firmbill/internal/observability/metrics"
	"go.uber.org/fx"
)

func newMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: "grpc",
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

// Module wires the otel meter provider and domain instruments.
var Module = fx.Module("observability",
	fx.Provide(
		newMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
)
