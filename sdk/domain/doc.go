// Package domain provee los modelos del protocolo entre el terminal y el
// motor de trading QMT.
//
// # Envelopes
//
// Todo body de frame entrante se clasifica con ParseEnvelope en una de
// cuatro variantes:
//
//   - Reply: lleva req_id (o reqId, forma legacy). Si trae "error" no vacío
//     es una falla remota; si no, el payload es "data" o, en su ausencia,
//     el mensaje completo.
//   - Event: lleva "event" y "data", sin correlación (tick, order_update...).
//   - Request: {action, req_id, params}. Solo el bridge los emite.
//   - Malformed: JSON válido sin ninguna de las formas anteriores.
//
// # Respuestas
//
// SendRequest siempre retorna un *Response:
//
//	{success: true, data: ...}
//	{success: false, error: "...", code: "TIMEOUT"}   // falla local
//	{success: false, error: "..."}                    // falla remota
//
// Los códigos locales son DISCONNECTED, TIMEOUT y WRITE_ERROR, más SHUTDOWN,
// CANCELLED y ENCODE_ERROR.
//
// # Trading
//
// trading.go define las acciones (place_order, cancel_order, query_*,
// subscribe) y los payloads que el motor usa en params, respuestas y eventos.
package domain
