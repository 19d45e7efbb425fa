package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	usageIncrements metric.Int64Counter
	alertsRaised    metric.Int64Counter
	chargesProposed metric.Int64Counter
	allocations     metric.Int64Counter
	invoicesIssued  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "firmbill"
	}
	meter := provider.Meter(name)

	usageIncrements, err := meter.Int64Counter("firmbill_usage_increments_total")
	if err != nil {
		return nil, err
	}
	alertsRaised, err := meter.Int64Counter("firmbill_usage_alerts_total")
	if err != nil {
		return nil, err
	}
	chargesProposed, err := meter.Int64Counter("firmbill_charges_proposed_total")
	if err != nil {
		return nil, err
	}
	allocations, err := meter.Int64Counter("firmbill_split_allocations_total")
	if err != nil {
		return nil, err
	}
	invoicesIssued, err := meter.Int64Counter("firmbill_invoices_issued_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		usageIncrements: usageIncrements,
		alertsRaised:    alertsRaised,
		chargesProposed: chargesProposed,
		allocations:     allocations,
		invoicesIssued:  invoicesIssued,
	}, nil
}

// RecordUsageIncrement increments ledger write counts.
func (m *Metrics) RecordUsageIncrement(ctx context.Context, category string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("category", strings.TrimSpace(category)))
	m.usageIncrements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlert increments raised alert counts by severity.
func (m *Metrics) RecordAlert(ctx context.Context, category, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("category", strings.TrimSpace(category)),
		attribute.String("severity", strings.TrimSpace(severity)),
	)
	m.alertsRaised.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordChargeProposed increments proposal counts by decision outcome.
func (m *Metrics) RecordChargeProposed(ctx context.Context, chargeType, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("charge_type", strings.TrimSpace(chargeType)),
		attribute.String("decision", strings.TrimSpace(decision)),
	)
	m.chargesProposed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAllocation increments split allocation counts.
func (m *Metrics) RecordAllocation(ctx context.Context, category string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("category", strings.TrimSpace(category)))
	m.allocations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceIssued increments issued invoice counts.
func (m *Metrics) RecordInvoiceIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesIssued.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"category":    {},
	"severity":    {},
	"charge_type": {},
	"decision":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
