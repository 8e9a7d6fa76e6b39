package ipc

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortPipe acepta menos bytes de los pedidos.
type shortPipe struct {
	deadline time.Time
}

func (p *shortPipe) Read(b []byte) (int, error)  { return 0, io.EOF }
func (p *shortPipe) Write(b []byte) (int, error) { return len(b) / 2, nil }
func (p *shortPipe) Close() error                { return nil }
func (p *shortPipe) SetReadDeadline(t time.Time) error {
	return nil
}
func (p *shortPipe) SetWriteDeadline(t time.Time) error {
	p.deadline = t
	return nil
}

func TestFrameWriterIncompleteWrite(t *testing.T) {
	pipe := &shortPipe{}
	w := NewFrameWriter(pipe, time.Second)

	err := w.WriteMessage(map[string]interface{}{"action": "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete write")
	assert.False(t, pipe.deadline.IsZero())
}

func TestFrameWriterClosedPipe(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	w := NewFrameWriter(WrapConn(client, "request_pipe"), time.Second)
	err := w.WriteFrame(EncodeFrame([]byte(`{}`)))
	require.Error(t, err)
	assert.True(t, IsClosed(err))
}

func TestFrameWriterReaderConcurrent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := NewFrameWriter(WrapConn(client, "request_pipe"), time.Second)

	const writers = 4
	const perWriter = 25

	var (
		mu  sync.Mutex
		got []map[string]interface{}
	)
	parser := NewParser(func(msg json.RawMessage) {
		var m map[string]interface{}
		if err := json.Unmarshal(msg, &m); err == nil {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- NewFrameReader(WrapConn(server, "request_pipe"), parser).Run()
	}()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				assert.NoError(t, w.WriteMessage(map[string]interface{}{"writer": i, "seq": j}))
			}
		}(i)
	}
	wg.Wait()
	client.Close()

	err := <-done
	assert.True(t, errors.Is(err, io.EOF) || IsClosed(err), "unexpected reader error: %v", err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, writers*perWriter)
}
