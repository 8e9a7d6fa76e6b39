// Package telemetry proporciona observabilidad para qmtbridge mediante los tres pilares:
//
// 1. Logs: Registro estructurado JSON (slog)
// 2. Métricas: OpenTelemetry exportables vía OTLP
// 3. Trazas: Trazado con OpenTelemetry
//
// El bridge corre junto al terminal en el escritorio del operador, así que
// por defecto no hay collector: sin endpoint OTLP las métricas usan un meter
// no-op y los spans no se graban. Los logs siempre salen por LogWriter.
//
// Uso básico:
//
//	client, err := telemetry.New(ctx, "qmt-bridge", "production",
//	    telemetry.WithOTLPEndpoint("127.0.0.1:4317"),
//	    telemetry.WithLogLevel("DEBUG"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Shutdown(ctx)
//
//	ctx = telemetry.AppendCommonAttrs(ctx, semconv.Bridge.Session.String(sessionID))
//	client.Info(ctx, "Link established")
//
//	ctx, span := client.StartSpan(ctx, "bridge.send_request")
//	defer span.End()
package telemetry
