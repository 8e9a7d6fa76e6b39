package domain

import (
	"encoding/json"
	"fmt"
)

// Response es el resultado de SendRequest.
//
// Forma JSON: {success, data?, error?, code?}. Code solo viaja en fallas
// locales; una falla reportada por el motor lleva Error sin Code.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    ErrorCode       `json:"code,omitempty"`
}

// Success crea una respuesta exitosa con el payload dado.
func Success(data json.RawMessage) *Response {
	return &Response{Success: true, Data: data}
}

// Failure crea una respuesta fallida. code vacío = falla remota.
func Failure(code ErrorCode, message string) *Response {
	return &Response{Success: false, Error: message, Code: code}
}

// ResponseFromReply traduce un Reply del motor a Response.
func ResponseFromReply(r *Reply) *Response {
	if r.HasError() {
		return Failure(ErrNoError, r.Error)
	}
	return Success(r.Data)
}

// Decode deserializa Data en v.
//
// Falla si la respuesta no fue exitosa o si Data no coincide con v.
func (r *Response) Decode(v interface{}) error {
	if !r.Success {
		return r.Err()
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Err retorna nil si la respuesta fue exitosa, o el error equivalente.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Code.IsLocal() {
		return NewError(r.Code, r.Error)
	}
	return &RemoteError{Message: r.Error}
}

// RemoteError es una falla reportada por el motor en el campo "error".
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}
