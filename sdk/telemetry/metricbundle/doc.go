// Package metricbundle agrupa los instrumentos OpenTelemetry del bridge.
//
// BridgeMetrics crea todos los contadores e histogramas una sola vez a partir
// de un metric.Meter (telemetry.Client.Meter()) y expone helpers Record*:
//
//	metrics, err := metricbundle.NewBridgeMetrics(client.Meter())
//	metrics.RecordRequestSent(ctx, semconv.Bridge.Action.String("query_assets"))
//	metrics.RecordRequestLatency(ctx, 12.5, semconv.Bridge.Outcome.String("success"))
//
// Convención de nombres: qmt.bridge.<entidad>.<métrica>.
package metricbundle
