package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("resource_type", "PROJECT"),
		attribute.String("organization", "acme"),
		attribute.String("verdict", "OVER_LIMIT"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("resource_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("verdict"), attrs[1].Key)
}

func TestRecordersAddToCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "console"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordUsageEvaluation(ctx, "PROJECT", "UNDER_LIMIT")
	m.RecordUsageEvaluation(ctx, "PROJECT", "UNDER_LIMIT")
	m.RecordNotification(ctx, "build-updates-queue", "processed")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, mm := range scope.Metrics {
			sum, ok := mm.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[mm.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["console_usage_evaluations_total"])
	assert.Equal(t, int64(1), totals["console_notifications_total"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordUsageEvaluation(ctx, "PROJECT", "UNDER_LIMIT")
	m.RecordUsageDenied(ctx, "PROJECT", "OVER_LIMIT")
	m.RecordNotification(ctx, "q", "processed")
	m.RecordBuildOutcome(ctx, "SUCCEEDED")
	m.RecordDeploymentStatus(ctx, "production", "DEPLOYED")
}
