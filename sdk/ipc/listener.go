package ipc

import (
	"context"
	"fmt"
	"net"
)

// netListener implementa PipeListener sobre cualquier net.Listener
// (go-winio en Windows, unix en el resto).
type netListener struct {
	listener net.Listener
	name     string
}

// Accept espera a que un cliente se conecte.
//
// Bloquea hasta que un cliente se conecta o el contexto se cancela.
func (l *netListener) Accept(ctx context.Context) (Pipe, error) {
	// Canal para manejar Accept con cancelación
	connCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)

	go func() {
		conn, err := l.listener.Accept()
		if err != nil {
			errCh <- err
			return
		}
		connCh <- conn
	}()

	select {
	case conn := <-connCh:
		return newConnPipe(conn, l.name), nil
	case err := <-errCh:
		return nil, fmt.Errorf("accept failed: %w", err)
	case <-ctx.Done():
		// Accept pendiente: lo libera el Close del listener
		go func() {
			select {
			case conn := <-connCh:
				conn.Close()
			case <-errCh:
			}
		}()
		return nil, ctx.Err()
	}
}

// Close cierra el listener.
func (l *netListener) Close() error {
	return l.listener.Close()
}

// Name retorna el nombre lógico del endpoint.
func (l *netListener) Name() string {
	return l.name
}
