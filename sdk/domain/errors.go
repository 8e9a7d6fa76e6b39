package domain

import (
	"errors"
	"fmt"
)

// ErrorCode representa el código de una falla local del bridge.
//
// Las fallas remotas (el motor respondió con "error") no llevan código.
type ErrorCode string

// Códigos de error estándar
const (
	// ErrNoError indica éxito o falla remota (sin código)
	ErrNoError ErrorCode = ""

	// Errores del link
	ErrDisconnected ErrorCode = "DISCONNECTED" // link caído al momento del request
	ErrTimeout      ErrorCode = "TIMEOUT"      // sin respuesta dentro del deadline
	ErrWriteError   ErrorCode = "WRITE_ERROR"  // el write al request pipe falló

	// Errores del proceso local
	ErrShutdown  ErrorCode = "SHUTDOWN"     // el bridge se detuvo con el request pendiente
	ErrCancelled ErrorCode = "CANCELLED"    // el contexto del caller se canceló
	ErrEncode    ErrorCode = "ENCODE_ERROR" // params no serializables a JSON
)

// Mensajes visibles en el terminal, en el idioma de la UI.
const (
	MsgDisconnected = "核心未连接"
	MsgTimeout      = "请求超时"
	MsgShutdown     = "桥接已停止"
	MsgCancelled    = "请求已取消"
)

// BridgeError representa una falla local con contexto.
type BridgeError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implementa la interfaz error.
func (e *BridgeError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implementa la interfaz errors.Unwrap.
func (e *BridgeError) Unwrap() error {
	return e.Wrapped
}

// WithDetail agrega un detalle al error.
func (e *BridgeError) WithDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Response convierte el error en una respuesta fallida para el caller.
func (e *BridgeError) Response() *Response {
	msg := e.Message
	if e.Wrapped != nil && msg == "" {
		msg = e.Wrapped.Error()
	}
	return Failure(e.Code, msg)
}

// NewError crea un nuevo BridgeError.
//
// Example:
//
//	err := domain.NewError(domain.ErrDisconnected, domain.MsgDisconnected)
func NewError(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
	}
}

// WrapError envuelve un error existente con un código local.
//
// Example:
//
//	err := domain.WrapError(domain.ErrWriteError, "", writeErr)
func WrapError(code ErrorCode, message string, wrapped error) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
		Wrapped: wrapped,
	}
}

// CodeOf extrae el ErrorCode de un error (ErrNoError si no es BridgeError).
func CodeOf(err error) ErrorCode {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrNoError
}

// IsLocal reporta si el código corresponde a una falla generada por el bridge.
func (c ErrorCode) IsLocal() bool {
	return c != ErrNoError
}

// String implementa fmt.Stringer.
func (c ErrorCode) String() string {
	return string(c)
}
