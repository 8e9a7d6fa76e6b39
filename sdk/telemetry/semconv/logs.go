package semconv

import (
	"go.opentelemetry.io/otel/attribute"
)

// Logs define las convenciones semánticas para atributos usados en logs.
var Logs struct {
	// Feature identifica el componente funcional que genera el log.
	// Ejemplos: "transport", "correlator", "supervisor", "gateway".
	Feature attribute.Key

	// Event identifica la acción específica que ocurrió dentro del componente.
	// Ejemplos: "link_up", "link_down", "duplicate_reply".
	Event attribute.Key

	// ServiceName identifica el servicio que genera el log.
	ServiceName attribute.Key

	// Environment identifica el entorno de ejecución.
	Environment attribute.Key
}

func init() {
	Logs.Feature = attribute.Key("feature")
	Logs.Event = attribute.Key("event")

	// Atributos de servicio (siguiendo convenciones OTel)
	Logs.ServiceName = attribute.Key("service.name")
	Logs.Environment = attribute.Key("service.environment")
}
