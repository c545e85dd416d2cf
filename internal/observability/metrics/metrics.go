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
	usageEvaluations  metric.Int64Counter
	usageDenied       metric.Int64Counter
	notifications     metric.Int64Counter
	buildOutcomes     metric.Int64Counter
	deploymentChanges metric.Int64Counter
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
		name = "console"
	}
	meter := provider.Meter(name)

	usageEvaluations, err := meter.Int64Counter("console_usage_evaluations_total")
	if err != nil {
		return nil, err
	}
	usageDenied, err := meter.Int64Counter("console_usage_denied_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("console_notifications_total")
	if err != nil {
		return nil, err
	}
	buildOutcomes, err := meter.Int64Counter("console_build_outcomes_total")
	if err != nil {
		return nil, err
	}
	deploymentChanges, err := meter.Int64Counter("console_deployments_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		usageEvaluations:  usageEvaluations,
		usageDenied:       usageDenied,
		notifications:     notifications,
		buildOutcomes:     buildOutcomes,
		deploymentChanges: deploymentChanges,
	}, nil
}

// RecordUsageEvaluation counts one evaluated resource by verdict.
func (m *Metrics) RecordUsageEvaluation(ctx context.Context, resourceType, verdict string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("resource_type", strings.TrimSpace(resourceType)),
		attribute.String("verdict", strings.TrimSpace(verdict)),
	)
	m.usageEvaluations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUsageDenied counts an operation refused for being over limit.
func (m *Metrics) RecordUsageDenied(ctx context.Context, resourceType, verdict string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("resource_type", strings.TrimSpace(resourceType)),
		attribute.String("verdict", strings.TrimSpace(verdict)),
	)
	m.usageDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotification counts a handled notification by queue and outcome.
func (m *Metrics) RecordNotification(ctx context.Context, queue, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("queue", strings.TrimSpace(queue)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBuildOutcome counts a reconciled build by final status.
func (m *Metrics) RecordBuildOutcome(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.buildOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDeploymentStatus counts an appended deployment status by environment.
func (m *Metrics) RecordDeploymentStatus(ctx context.Context, environment, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("environment", strings.TrimSpace(environment)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.deploymentChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"resource_type": {},
	"verdict":       {},
	"queue":         {},
	"outcome":       {},
	"status":        {},
	"environment":   {},
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
