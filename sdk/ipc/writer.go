package ipc

import (
	"fmt"
	"sync"
	"time"
)

// FrameWriter escribe frames length-prefixed a un Pipe.
//
// Serializa writes para thread-safety: un frame nunca se intercala con otro.
type FrameWriter struct {
	pipe    Pipe
	mu      sync.Mutex // Serializar writes
	timeout time.Duration
}

// NewFrameWriter crea un FrameWriter. timeout 0 = sin deadline de escritura.
//
// Example:
//
//	writer := ipc.NewFrameWriter(pipe, 5*time.Second)
//	if err := writer.WriteMessage(envelope); err != nil {
//	    // Handle error
//	}
func NewFrameWriter(pipe Pipe, timeout time.Duration) *FrameWriter {
	return &FrameWriter{
		pipe:    pipe,
		timeout: timeout,
	}
}

// WriteFrame escribe un frame ya codificado (header incluido).
//
// Es thread-safe. Un write parcial se reporta como error.
func (w *FrameWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Establecer deadline si timeout está configurado
	if w.timeout > 0 {
		if err := w.pipe.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	n, err := w.pipe.Write(frame)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	// Verificar que se escribió todo
	if n != len(frame) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))
	}

	return nil
}

// WriteMessage serializa v y lo escribe como un frame.
func (w *FrameWriter) WriteMessage(v interface{}) error {
	frame, err := Encode(v)
	if err != nil {
		return err
	}
	return w.WriteFrame(frame)
}

// SetTimeout establece el timeout para operaciones de escritura.
func (w *FrameWriter) SetTimeout(timeout time.Duration) {
	w.mu.Lock()
	w.timeout = timeout
	w.mu.Unlock()
}
