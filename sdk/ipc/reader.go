package ipc

import (
	"errors"
	"io"
)

// FrameReader bombea bytes de un Pipe hacia un Parser.
//
// Debe usarse desde una sola goroutine. Los mensajes se despachan desde esa
// misma goroutine, en orden de llegada.
type FrameReader struct {
	pipe   Pipe
	parser *Parser
	buf    []byte
}

// NewFrameReader crea un FrameReader con buffer de lectura de 64KB.
func NewFrameReader(pipe Pipe, parser *Parser) *FrameReader {
	return &FrameReader{
		pipe:   pipe,
		parser: parser,
		buf:    make([]byte, 64*1024),
	}
}

// Run lee hasta que el pipe se cierre o falle.
//
// Siempre retorna un error no-nil: io.EOF si el peer cerró limpio,
// ErrFrameTooLarge si el stream quedó corrupto, o el error de lectura.
func (r *FrameReader) Run() error {
	for {
		n, err := r.pipe.Read(r.buf)
		if n > 0 {
			if ferr := r.parser.Feed(r.buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return err
		}
	}
}
