package metricbundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestBridgeMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewBridgeMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRequestSent(ctx, attribute.String("qmt.action", "query_assets"))
	m.RecordRequestSent(ctx, attribute.String("qmt.action", "query_assets"))
	m.RecordRequestResolved(ctx, attribute.String("qmt.outcome", "success"))
	m.RecordRequestLatency(ctx, 12.5)
	m.RecordEventDispatched(ctx, 3, attribute.String("qmt.event", "tick"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	histCount := uint64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[md.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}

	assert.Equal(t, int64(2), sums["qmt.bridge.request.sent"])
	assert.Equal(t, int64(1), sums["qmt.bridge.request.resolved"])
	assert.Equal(t, int64(3), sums["qmt.bridge.event.dispatched"])
	assert.Equal(t, uint64(1), histCount)
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "qmt.bridge.link.down", MetricName("link", "down"))
}
