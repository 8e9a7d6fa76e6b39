//go:build !windows

package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAndDial(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "req.sock")

	ln, err := Listen(endpoint, nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Pipe, 1)
	go func() {
		p, err := ln.Accept(ctx)
		if err == nil {
			accepted <- p
		}
	}()

	client, err := NewPipeDialer(DefaultPipeConfig(endpoint)).Dial(ctx, endpoint)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, NewFrameWriter(client, time.Second).WriteMessage(map[string]interface{}{"action": "ping"}))

	buf := make([]byte, 64)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, EncodeFrame([]byte(`{"action":"ping"}`)), buf[:n])

	// Close idempotente
	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestDialWithoutListener(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "missing.sock")
	_, err := NewPipeDialer(nil).Dial(context.Background(), endpoint)
	assert.Error(t, err)
}

func TestAcceptCancelled(t *testing.T) {
	ln, err := Listen(filepath.Join(t.TempDir(), "idle.sock"), nil)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ln.Accept(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp", "x.sock"), PipePath("/tmp/x.sock"))
	assert.Equal(t, ".sock", filepath.Ext(PipePath("request_pipe")))
}
