//go:build windows

package ipc

import (
	"context"
	"fmt"
	"strings"

	"github.com/Microsoft/go-winio"
)

const pipePrefix = `\\.\pipe\`

// PipePath resuelve el nombre lógico al path del Named Pipe.
//
// Example:
//
//	ipc.PipePath("request_pipe") // => \\.\pipe\request_pipe
func PipePath(name string) string {
	if strings.HasPrefix(name, `\\`) {
		return name
	}
	return pipePrefix + name
}

type windowsDialer struct {
	config *PipeConfig
}

// NewPipeDialer retorna el Dialer de Named Pipes de Windows.
//
// Usa github.com/Microsoft/go-winio (DialPipeContext llama a CreateFile y
// reintenta mientras el pipe esté ocupado).
func NewPipeDialer(config *PipeConfig) Dialer {
	if config == nil {
		config = DefaultPipeConfig("")
	}
	return &windowsDialer{config: config}
}

// Dial conecta al Named Pipe del endpoint.
func (d *windowsDialer) Dial(ctx context.Context, endpoint string) (Pipe, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	conn, err := winio.DialPipeContext(ctx, PipePath(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pipe %s: %w", endpoint, err)
	}
	return newConnPipe(conn, endpoint), nil
}

// Listen crea un servidor de Named Pipe en el endpoint.
func Listen(endpoint string, config *PipeConfig) (PipeListener, error) {
	if config == nil {
		config = DefaultPipeConfig(endpoint)
	}

	pipeConfig := &winio.PipeConfig{
		// Security descriptor: default = acceso local
		SecurityDescriptor: "",

		// Byte mode: el framing lo hace el codec, no el pipe
		MessageMode: false,

		InputBufferSize:  int32(config.BufferSize),
		OutputBufferSize: int32(config.BufferSize),
	}

	listener, err := winio.ListenPipe(PipePath(endpoint), pipeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe listener: %w", err)
	}

	return &netListener{listener: listener, name: endpoint}, nil
}
