package ipc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Pipe define la interfaz para un canal de bytes con el motor.
//
// Compatible con Windows Named Pipes y Unix Domain Sockets (ambos net.Conn).
type Pipe interface {
	// Read lee datos del pipe.
	Read(p []byte) (n int, err error)

	// Write escribe datos al pipe.
	Write(p []byte) (n int, err error)

	// Close cierra el pipe y libera recursos.
	Close() error

	// SetReadDeadline establece el deadline para operaciones de lectura.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline establece el deadline para operaciones de escritura.
	SetWriteDeadline(t time.Time) error
}

// Dialer abre conexiones cliente hacia un endpoint con nombre.
//
// El endpoint es el nombre lógico del pipe (ej. "request_pipe"); cada
// plataforma lo resuelve a su path real con PipePath.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Pipe, error)
}

// DialerFunc adapta una función a Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Pipe, error)

// Dial implementa Dialer.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Pipe, error) {
	return f(ctx, endpoint)
}

// PipeListener acepta conexiones en un endpoint (lado servidor).
//
// Lo usan el simulador del motor y los tests.
type PipeListener interface {
	// Accept espera una conexión o la cancelación del contexto.
	Accept(ctx context.Context) (Pipe, error)

	// Close cierra el listener. Las conexiones aceptadas siguen vivas.
	Close() error

	// Name retorna el nombre lógico del endpoint.
	Name() string
}

// PipeConfig configuración para crear o conectar pipes.
type PipeConfig struct {
	// Name nombre del pipe (sin el prefijo \\.\pipe\)
	Name string

	// BufferSize tamaño del buffer del pipe (bytes)
	BufferSize int

	// Timeout timeout de conexión (0 = depende solo del contexto)
	Timeout time.Duration
}

// DefaultPipeConfig retorna una configuración por defecto.
func DefaultPipeConfig(name string) *PipeConfig {
	return &PipeConfig{
		Name:       name,
		BufferSize: 64 * 1024, // 64KB, snapshots de posiciones pueden ser grandes
		Timeout:    5 * time.Second,
	}
}

// ErrPipeClosed indica que el pipe fue cerrado.
var ErrPipeClosed = io.ErrClosedPipe

// ErrTimeout indica que una operación excedió el timeout.
var ErrTimeout = context.DeadlineExceeded

// ErrInvalidMessage indica que el body de un frame no es JSON UTF-8 válido.
type ErrInvalidMessage struct {
	Reason string
	Data   []byte
}

func (e *ErrInvalidMessage) Error() string {
	return "invalid message: " + e.Reason
}

// NewErrInvalidMessage crea un error de mensaje inválido.
func NewErrInvalidMessage(reason string, data []byte) error {
	return &ErrInvalidMessage{
		Reason: reason,
		Data:   data,
	}
}

// connPipe adapta un net.Conn a Pipe con Close idempotente.
type connPipe struct {
	conn      net.Conn
	name      string
	closeOnce sync.Once
	closeErr  error
}

func newConnPipe(conn net.Conn, name string) *connPipe {
	return &connPipe{conn: conn, name: name}
}

func (p *connPipe) Read(b []byte) (int, error)  { return p.conn.Read(b) }
func (p *connPipe) Write(b []byte) (int, error) { return p.conn.Write(b) }

func (p *connPipe) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *connPipe) SetReadDeadline(t time.Time) error  { return p.conn.SetReadDeadline(t) }
func (p *connPipe) SetWriteDeadline(t time.Time) error { return p.conn.SetWriteDeadline(t) }

// String retorna el nombre del endpoint (útil en logs).
func (p *connPipe) String() string { return p.name }

// WrapConn adapta cualquier net.Conn a Pipe (tests con net.Pipe).
func WrapConn(conn net.Conn, name string) Pipe {
	return newConnPipe(conn, name)
}

// IsClosed reporta si err indica un pipe cerrado localmente o por el peer.
func IsClosed(err error) bool {
	return isClosedErr(err)
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}
