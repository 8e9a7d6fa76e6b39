package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

// Metrics define atributos genéricos para dimensionar métricas.
var Metrics struct {
	// Status estado de la operación medida ("ok", "error", "timeout").
	Status attribute.Key

	// Result resultado final ("success", "failure").
	Result attribute.Key

	// Component componente dentro del servicio ("transport", "gateway").
	Component attribute.Key

	// Reason causa de un evento (ej. motivo de un link caído).
	Reason attribute.Key
}

func init() {
	Metrics.Status = attribute.Key("status")
	Metrics.Result = attribute.Key("result")
	Metrics.Component = attribute.Key("component")
	Metrics.Reason = attribute.Key("reason")
}
