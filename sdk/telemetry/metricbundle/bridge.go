package metricbundle

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BridgeMetrics bundle de métricas del link terminal <-> motor QMT.
//
// # Métricas de Conteo
//
//   - qmt.bridge.request.sent: requests escritos al request pipe
//   - qmt.bridge.request.resolved: requests resueltos (qmt.outcome, qmt.code)
//   - qmt.bridge.reply.orphan: replies sin request pendiente (duplicados/tardíos)
//   - qmt.bridge.link.up: sesiones establecidas
//   - qmt.bridge.link.down: caídas del link
//   - qmt.bridge.reconnect.scheduled: reconexiones programadas
//   - qmt.bridge.frame.malformed: frames descartados
//   - qmt.bridge.event.dispatched: eventos entregados (qmt.event)
//   - qmt.bridge.event.handler_panic: handlers que entraron en pánico
//
// # Métricas de Latencia
//
//   - qmt.bridge.request.latency: write -> resolución (ms)
type BridgeMetrics struct {
	// Counters
	RequestSent        metric.Int64Counter
	RequestResolved    metric.Int64Counter
	ReplyOrphan        metric.Int64Counter
	LinkUp             metric.Int64Counter
	LinkDown           metric.Int64Counter
	ReconnectScheduled metric.Int64Counter
	FrameMalformed     metric.Int64Counter
	EventDispatched    metric.Int64Counter
	EventHandlerPanic  metric.Int64Counter

	// Histograms
	RequestLatency metric.Float64Histogram
}

// MetricName genera un nombre con formato qmt.bridge.<entity>.<metricType>.
func MetricName(entity, metricType string) string {
	return strings.Join([]string{"qmt", "bridge", entity, metricType}, ".")
}

type counterDef struct {
	target      *metric.Int64Counter
	name        string
	description string
	unit        string
}

// NewBridgeMetrics crea el bundle de métricas del bridge.
func NewBridgeMetrics(meter metric.Meter) (*BridgeMetrics, error) {
	m := &BridgeMetrics{}

	counters := []counterDef{
		{&m.RequestSent, MetricName("request", "sent"), "Requests escritos al request pipe", "{request}"},
		{&m.RequestResolved, MetricName("request", "resolved"), "Requests resueltos por reply, timeout o falla local", "{request}"},
		{&m.ReplyOrphan, MetricName("reply", "orphan"), "Replies sin request pendiente (duplicados o tardíos)", "{reply}"},
		{&m.LinkUp, MetricName("link", "up"), "Sesiones del link establecidas", "{session}"},
		{&m.LinkDown, MetricName("link", "down"), "Caídas del link detectadas", "{event}"},
		{&m.ReconnectScheduled, MetricName("reconnect", "scheduled"), "Reconexiones programadas", "{attempt}"},
		{&m.FrameMalformed, MetricName("frame", "malformed"), "Frames descartados por body inválido o forma desconocida", "{frame}"},
		{&m.EventDispatched, MetricName("event", "dispatched"), "Eventos entregados a suscriptores", "{event}"},
		{&m.EventHandlerPanic, MetricName("event", "handler_panic"), "Handlers de eventos que entraron en pánico", "{panic}"},
	}

	for _, def := range counters {
		counter, err := meter.Int64Counter(
			def.name,
			metric.WithDescription(def.description),
			metric.WithUnit(def.unit),
		)
		if err != nil {
			return nil, err
		}
		*def.target = counter
	}

	latency, err := meter.Float64Histogram(
		MetricName("request", "latency"),
		metric.WithDescription("Latencia write -> resolución de requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.RequestLatency = latency

	return m, nil
}

// RecordRequestSent registra un request escrito.
func (m *BridgeMetrics) RecordRequestSent(ctx context.Context, attrs ...attribute.KeyValue) {
	m.RequestSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRequestResolved registra la resolución de un request.
func (m *BridgeMetrics) RecordRequestResolved(ctx context.Context, attrs ...attribute.KeyValue) {
	m.RequestResolved.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRequestLatency registra la latencia en ms.
func (m *BridgeMetrics) RecordRequestLatency(ctx context.Context, latencyMs float64, attrs ...attribute.KeyValue) {
	m.RequestLatency.Record(ctx, latencyMs, metric.WithAttributes(attrs...))
}

// RecordReplyOrphan registra un reply descartado.
func (m *BridgeMetrics) RecordReplyOrphan(ctx context.Context, attrs ...attribute.KeyValue) {
	m.ReplyOrphan.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLinkUp registra una sesión establecida.
func (m *BridgeMetrics) RecordLinkUp(ctx context.Context, attrs ...attribute.KeyValue) {
	m.LinkUp.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLinkDown registra una caída del link.
func (m *BridgeMetrics) RecordLinkDown(ctx context.Context, attrs ...attribute.KeyValue) {
	m.LinkDown.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconnectScheduled registra una reconexión programada.
func (m *BridgeMetrics) RecordReconnectScheduled(ctx context.Context, attrs ...attribute.KeyValue) {
	m.ReconnectScheduled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFrameMalformed registra un frame descartado.
func (m *BridgeMetrics) RecordFrameMalformed(ctx context.Context, attrs ...attribute.KeyValue) {
	m.FrameMalformed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventDispatched registra eventos entregados.
func (m *BridgeMetrics) RecordEventDispatched(ctx context.Context, handlers int, attrs ...attribute.KeyValue) {
	m.EventDispatched.Add(ctx, int64(handlers), metric.WithAttributes(attrs...))
}

// RecordEventHandlerPanic registra un handler que entró en pánico.
func (m *BridgeMetrics) RecordEventHandlerPanic(ctx context.Context, attrs ...attribute.KeyValue) {
	m.EventHandlerPanic.Add(ctx, 1, metric.WithAttributes(attrs...))
}
