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
	readingsValidated metric.Int64Counter
	receiptsMatched   metric.Int64Counter
	receiptsImported  metric.Int64Counter
	balanceRecomputes metric.Int64Counter
	analysisRuns      metric.Int64Counter
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
		name = "wattshare"
	}
	meter := provider.Meter(name)

	readingsValidated, err := meter.Int64Counter("wattshare_readings_validated_total")
	if err != nil {
		return nil, err
	}
	receiptsMatched, err := meter.Int64Counter("wattshare_receipts_matched_total")
	if err != nil {
		return nil, err
	}
	receiptsImported, err := meter.Int64Counter("wattshare_receipts_imported_total")
	if err != nil {
		return nil, err
	}
	balanceRecomputes, err := meter.Int64Counter("wattshare_balance_recomputes_total")
	if err != nil {
		return nil, err
	}
	analysisRuns, err := meter.Int64Counter("wattshare_analysis_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		readingsValidated: readingsValidated,
		receiptsMatched:   receiptsMatched,
		receiptsImported:  receiptsImported,
		balanceRecomputes: balanceRecomputes,
		analysisRuns:      analysisRuns,
	}, nil
}

// RecordReadingValidated increments reading validation counts per outcome.
func (m *Metrics) RecordReadingValidated(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.readingsValidated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReceiptMatched increments match counts per confidence class.
func (m *Metrics) RecordReceiptMatched(ctx context.Context, confidence string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("confidence", strings.TrimSpace(confidence)))
	m.receiptsMatched.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReceiptImported increments import counts per status.
func (m *Metrics) RecordReceiptImported(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.receiptsImported.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBalanceRecompute increments balance recomputation counts.
func (m *Metrics) RecordBalanceRecompute(ctx context.Context) {
	if m == nil {
		return
	}
	m.balanceRecomputes.Add(ctx, 1)
}

// RecordAnalysisRun increments history analysis counts.
func (m *Metrics) RecordAnalysisRun(ctx context.Context) {
	if m == nil {
		return
	}
	m.analysisRuns.Add(ctx, 1)
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
	"outcome":    {},
	"confidence": {},
	"status":     {},
	"endpoint":   {},
	"reason":     {},
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
