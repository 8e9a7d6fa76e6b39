package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/xKoRx/qmtbridge/sdk/utils"
)

// Kind identifica la variante de un Envelope.
type Kind int

const (
	// KindMalformed JSON válido pero sin forma reconocible
	KindMalformed Kind = iota
	// KindRequest {action, req_id, params}; el bridge solo los emite
	KindRequest
	// KindReply respuesta correlacionada por req_id / reqId
	KindReply
	// KindEvent push no solicitado {event, data}
	KindEvent
)

// String implementa fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindReply:
		return "reply"
	case KindEvent:
		return "event"
	default:
		return "malformed"
	}
}

// Campos de correlación aceptados. req_id tiene prioridad.
const (
	FieldReqID       = "req_id"
	FieldReqIDLegacy = "reqId"
)

// Request es el envelope de salida hacia el motor.
type Request struct {
	Action string          `json:"action"`
	ReqID  int64           `json:"req_id"`
	Params json.RawMessage `json:"params"`
}

// NewRequest construye un Request serializando params.
//
// params nil se envía como objeto vacío {}.
func NewRequest(action string, reqID int64, params interface{}) (*Request, error) {
	raw, err := MarshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{Action: action, ReqID: reqID, Params: raw}, nil
}

// MarshalParams serializa params a JSON. nil se normaliza a {}.
func MarshalParams(params interface{}) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !utils.ValidateUTF8JSON(p) {
			return nil, fmt.Errorf("params is not valid UTF-8 JSON")
		}
		return p, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	return raw, nil
}

// Reply es una respuesta del motor a un Request.
type Reply struct {
	ReqID int64
	// Field campo de correlación usado por el motor (req_id o reqId)
	Field string
	// Error texto de la falla remota; vacío si no hubo
	Error string
	// Data payload: el campo "data" si existe, si no el mensaje completo
	Data json.RawMessage
}

// HasError reporta si el motor reportó una falla.
func (r *Reply) HasError() bool {
	return r.Error != ""
}

// Event es un push no solicitado del motor.
type Event struct {
	Name string
	Data json.RawMessage
}

// Envelope es la unión etiquetada de un mensaje entrante.
//
// Solo el puntero correspondiente a Kind es no-nil. Reason explica un
// KindMalformed.
type Envelope struct {
	Kind    Kind
	Request *Request
	Reply   *Reply
	Event   *Event
	Reason  string
	Raw     json.RawMessage
}

// ParseEnvelope clasifica un body ya validado como JSON.
//
// Orden de decisión: campo de correlación no-nulo => Reply; "event" string
// no vacío => Event; "action" string no vacío => Request; cualquier otra
// cosa => Malformed.
func ParseEnvelope(raw json.RawMessage) Envelope {
	env := Envelope{Kind: KindMalformed, Raw: raw}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		env.Reason = "not a JSON object"
		return env
	}

	if field, idRaw, ok := correlationField(fields); ok {
		id, err := parseReqID(idRaw)
		if err != nil {
			env.Reason = fmt.Sprintf("invalid %s: %v", field, err)
			return env
		}
		reply := &Reply{ReqID: id, Field: field, Error: errorText(fields["error"])}
		if data, present := fields["data"]; present {
			reply.Data = data
		} else {
			reply.Data = raw
		}
		env.Kind = KindReply
		env.Reply = reply
		return env
	}

	if name := stringField(fields["event"]); name != "" {
		data := fields["data"]
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		env.Kind = KindEvent
		env.Event = &Event{Name: name, Data: data}
		return env
	}

	if action := stringField(fields["action"]); action != "" {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			env.Reason = fmt.Sprintf("invalid request: %v", err)
			return env
		}
		env.Kind = KindRequest
		env.Request = &req
		return env
	}

	env.Reason = "no correlation id, event or action"
	return env
}

// ParseRequest decodifica un Request del lado del motor. Exige "action"
// string no vacío y un req_id entero; params ausente o null queda como {}.
// ParseEnvelope clasifica desde el lado del bridge, donde req_id implica Reply.
func ParseRequest(raw json.RawMessage) (*Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("not a JSON object")
	}

	action := stringField(fields["action"])
	if action == "" {
		return nil, fmt.Errorf("missing action")
	}

	idRaw, ok := fields[FieldReqID]
	if !ok || isNull(idRaw) {
		return nil, fmt.Errorf("missing %s", FieldReqID)
	}
	id, err := parseReqID(idRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", FieldReqID, err)
	}

	params := fields["params"]
	if len(params) == 0 || isNull(params) {
		params = json.RawMessage(`{}`)
	}
	return &Request{Action: action, ReqID: id, Params: params}, nil
}

func correlationField(fields map[string]json.RawMessage) (string, json.RawMessage, bool) {
	for _, name := range []string{FieldReqID, FieldReqIDLegacy} {
		if v, ok := fields[name]; ok && !isNull(v) {
			return name, v, true
		}
	}
	return "", nil, false
}

func parseReqID(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if id, err := n.Int64(); err == nil {
		return id, nil
	}
	// 7.0 es un id válido para serializadores que no distinguen enteros
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("not an integer")
	}
	return int64(f), nil
}

// errorText retorna el texto de error si el valor es "truthy":
// ausente, null, "", false y 0 no cuentan como error.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
	case float64:
		if val == 0 {
			return ""
		}
	}
	return string(bytes.TrimSpace(raw))
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
