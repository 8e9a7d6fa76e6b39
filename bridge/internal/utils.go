package internal

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// logHelper agrega logInfo/logWarn/logError/logDebug a un componente.
//
// El contexto base lleva feature=<componente> como atributo común.
type logHelper struct {
	telemetry *telemetry.Client
	logCtx    context.Context
}

func newLogHelper(tel *telemetry.Client, component string) logHelper {
	return logHelper{
		telemetry: tel,
		logCtx:    telemetry.AppendCommonAttrs(context.Background(), semconv.Logs.Feature.String(component)),
	}
}

// logInfo loggea un mensaje INFO.
func (l logHelper) logInfo(message string, fields map[string]interface{}) {
	l.telemetry.Info(l.logCtx, message, mapToAttrs(fields)...)
}

// logWarn loggea un mensaje WARN.
func (l logHelper) logWarn(message string, fields map[string]interface{}) {
	l.telemetry.Warn(l.logCtx, message, mapToAttrs(fields)...)
}

// logError loggea un mensaje ERROR.
func (l logHelper) logError(message string, err error, fields map[string]interface{}) {
	l.telemetry.Error(l.logCtx, message, err, mapToAttrs(fields)...)
}

// logDebug loggea un mensaje DEBUG.
func (l logHelper) logDebug(message string, fields map[string]interface{}) {
	l.telemetry.Debug(l.logCtx, message, mapToAttrs(fields)...)
}

// mapToAttrs convierte un map[string]interface{} a atributos OTEL.
//
// Helper para pasar fields a métodos de telemetría.
func mapToAttrs(fields map[string]interface{}) []attribute.KeyValue {
	if fields == nil {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(fields))
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case uint64:
			attrs = append(attrs, attribute.Int64(key, int64(v)))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(key, v.String()))
		default:
			attrs = append(attrs, attribute.String(key, toString(v)))
		}
	}

	return attrs
}

// toString convierte un valor a string de forma segura.
func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// preview devuelve los primeros max bytes de b, seguros para log.
func preview(b []byte, max int) string {
	if len(b) == 0 {
		return ""
	}
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
