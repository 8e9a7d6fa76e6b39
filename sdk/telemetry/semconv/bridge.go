package semconv

import "go.opentelemetry.io/otel/attribute"

// Bridge contiene atributos semánticos del link terminal <-> motor QMT.
//
// # Requests
//
//   - qmt.req_id: id de correlación del request
//   - qmt.action: acción (query_assets, place_order...)
//   - qmt.code: código local de falla (DISCONNECTED, TIMEOUT...)
//   - qmt.outcome: success / remote_error / local_error
//
// # Link
//
//   - qmt.session: UUIDv7 de la sesión actual del link
//   - qmt.channel: request / response
//   - qmt.endpoint: nombre del pipe
//   - qmt.state: estado del supervisor
//   - qmt.attempt: número de intento de conexión
//
// # Uso
//
//	client.Info(ctx, "Request resolved",
//	    semconv.Bridge.ReqID.Int64(7),
//	    semconv.Bridge.Action.String("query_assets"),
//	    semconv.Bridge.Outcome.String(semconv.OutcomeValues.Success),
//	)
var Bridge = bridgeAttributes{
	// Requests
	ReqID:   attribute.Key("qmt.req_id"),
	Action:  attribute.Key("qmt.action"),
	Code:    attribute.Key("qmt.code"),
	Outcome: attribute.Key("qmt.outcome"),

	// Eventos
	Event: attribute.Key("qmt.event"),

	// Link
	Session:  attribute.Key("qmt.session"),
	Channel:  attribute.Key("qmt.channel"),
	Endpoint: attribute.Key("qmt.endpoint"),
	State:    attribute.Key("qmt.state"),
	Attempt:  attribute.Key("qmt.attempt"),

	// Trading
	AccountID: attribute.Key("qmt.account_id"),
	Symbol:    attribute.Key("qmt.symbol"),
}

type bridgeAttributes struct {
	ReqID   attribute.Key // id de correlación
	Action  attribute.Key // acción del request
	Code    attribute.Key // código local de falla
	Outcome attribute.Key // resultado (success/remote_error/local_error)

	Event attribute.Key // nombre del evento despachado

	Session  attribute.Key // sesión del link (UUIDv7)
	Channel  attribute.Key // request/response
	Endpoint attribute.Key // nombre del pipe
	State    attribute.Key // estado del supervisor
	Attempt  attribute.Key // intento de conexión

	AccountID attribute.Key // cuenta QMT
	Symbol    attribute.Key // símbolo (600000.SH)
}

// OutcomeValues valores válidos para qmt.outcome
var OutcomeValues = struct {
	Success     string
	RemoteError string
	LocalError  string
}{
	Success:     "success",
	RemoteError: "remote_error",
	LocalError:  "local_error",
}

// ChannelValues valores válidos para qmt.channel
var ChannelValues = struct {
	Request  string
	Response string
}{
	Request:  "request",
	Response: "response",
}

// RequestAttributes crea el conjunto de atributos de un request.
func RequestAttributes(reqID int64, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		Bridge.ReqID.Int64(reqID),
		Bridge.Action.String(action),
	}
}
