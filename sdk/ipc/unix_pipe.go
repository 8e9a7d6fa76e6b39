//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// PipePath resuelve el nombre lógico a un Unix Domain Socket.
//
// Nombres sin separador viven en el directorio temporal:
//
//	ipc.PipePath("request_pipe") // => /tmp/request_pipe.sock
func PipePath(name string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(os.TempDir(), name+".sock")
}

type unixDialer struct {
	config *PipeConfig
}

// NewPipeDialer retorna un Dialer sobre Unix Domain Sockets.
//
// Permite correr el bridge y el simulador del motor fuera de Windows.
func NewPipeDialer(config *PipeConfig) Dialer {
	if config == nil {
		config = DefaultPipeConfig("")
	}
	return &unixDialer{config: config}
}

// Dial conecta al socket del endpoint.
func (d *unixDialer) Dial(ctx context.Context, endpoint string) (Pipe, error) {
	dialer := net.Dialer{Timeout: d.config.Timeout}
	conn, err := dialer.DialContext(ctx, "unix", PipePath(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pipe %s: %w", endpoint, err)
	}
	return newConnPipe(conn, endpoint), nil
}

// Listen crea un listener unix en el endpoint, removiendo un socket huérfano.
func Listen(endpoint string, config *PipeConfig) (PipeListener, error) {
	path := PipePath(endpoint)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe listener: %w", err)
	}
	// Close del listener borra el archivo del socket
	if ul, ok := listener.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(true)
	}

	return &netListener{listener: listener, name: endpoint}, nil
}
