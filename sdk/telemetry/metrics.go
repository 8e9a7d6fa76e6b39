package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RecordCounter incrementa un contador ad-hoc.
//
// Para métricas fijas del bridge preferir metricbundle.BridgeMetrics.
func (c *Client) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	counter, err := c.GetOrCreateCounter(name, "")
	if err != nil {
		c.Error(ctx, "failed to get counter", err, attribute.String("counter_name", name))
		return
	}

	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// RecordHistogram registra un valor en un histograma
func (c *Client) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	histogram, err := c.GetOrCreateHistogram(name, "")
	if err != nil {
		c.Error(ctx, "failed to get histogram", err, attribute.String("histogram_name", name))
		return
	}

	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordLatency registra la latencia de una operación en milisegundos
// bajo "<operation>.latency_ms".
func (c *Client) RecordLatency(ctx context.Context, operation string, elapsed time.Duration, attrs ...attribute.KeyValue) {
	ms := float64(elapsed) / float64(time.Millisecond)
	c.RecordHistogram(ctx, operation+".latency_ms", ms, attrs...)
}
