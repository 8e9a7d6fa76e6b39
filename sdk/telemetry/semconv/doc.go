// Package semconv define convenciones semánticas para atributos OpenTelemetry
// utilizados por el bridge.
//
// Uso básico:
//
//	client.Warn(ctx, "Duplicate reply dropped",
//	    semconv.Logs.Feature.String("correlator"),
//	    semconv.Bridge.ReqID.Int64(7),
//	)
//
//	metrics.RecordLinkDown(ctx, semconv.Metrics.Reason.String("response pipe closed"))
package semconv
