package internal

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/ipc"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/metricbundle"
)

func newTestTelemetry(t *testing.T) *telemetry.Client {
	t.Helper()
	tel, err := telemetry.New(context.Background(), "bridge-test", "test",
		telemetry.WithLogsDisabled(), telemetry.WithMetricsDisabled(), telemetry.WithTracesDisabled())
	require.NoError(t, err)
	return tel
}

func newTestMetrics(t *testing.T, tel *telemetry.Client) *metricbundle.BridgeMetrics {
	t.Helper()
	m, err := metricbundle.NewBridgeMetrics(tel.Meter())
	require.NoError(t, err)
	return m
}

// fakeClock dispara timers solo cuando el test llama Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance mueve el reloj y ejecuta en orden los timers vencidos.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Active retorna los timers que todavía pueden disparar.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// pipeDialer conecta cada Dial a un net.Pipe cuyo extremo remoto queda
// disponible para el test.
type pipeDialer struct {
	mu    sync.Mutex
	peers map[string]chan net.Conn
	fail  map[string]error
	dials atomic.Int32
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{
		peers: make(map[string]chan net.Conn),
		fail:  make(map[string]error),
	}
}

func (d *pipeDialer) peer(endpoint string) chan net.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.peers[endpoint]
	if !ok {
		ch = make(chan net.Conn, 8)
		d.peers[endpoint] = ch
	}
	return ch
}

func (d *pipeDialer) setFail(endpoint string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, endpoint)
		return
	}
	d.fail[endpoint] = err
}

func (d *pipeDialer) Dial(_ context.Context, endpoint string) (ipc.Pipe, error) {
	d.dials.Add(1)
	d.mu.Lock()
	err := d.fail[endpoint]
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	client, server := net.Pipe()
	d.peer(endpoint) <- server
	return ipc.WrapConn(client, endpoint), nil
}

func (d *pipeDialer) accept(t *testing.T, endpoint string) net.Conn {
	t.Helper()
	select {
	case c := <-d.peer(endpoint):
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no dial on %s", endpoint)
		return nil
	}
}

const (
	testRequestPipe  = "req"
	testResponsePipe = "resp"
)

// fakeEngine es el lado motor de una sesión sobre pipeDialer.
type fakeEngine struct {
	t        *testing.T
	req      net.Conn
	resp     net.Conn
	requests chan *domain.Request
}

func acceptEngine(t *testing.T, d *pipeDialer) *fakeEngine {
	t.Helper()
	e := &fakeEngine{
		t:        t,
		req:      d.accept(t, testRequestPipe),
		resp:     d.accept(t, testResponsePipe),
		requests: make(chan *domain.Request, 16),
	}

	go func() {
		parser := ipc.NewParser(func(raw json.RawMessage) {
			if r, err := domain.ParseRequest(raw); err == nil {
				e.requests <- r
			}
		})
		_ = ipc.NewFrameReader(ipc.WrapConn(e.req, "engine-req"), parser).Run()
	}()

	t.Cleanup(e.close)
	return e
}

func (e *fakeEngine) nextRequest() *domain.Request {
	e.t.Helper()
	select {
	case r := <-e.requests:
		return r
	case <-time.After(2 * time.Second):
		e.t.Fatal("engine received no request")
		return nil
	}
}

func (e *fakeEngine) send(v interface{}) {
	e.t.Helper()
	frame, err := ipc.Encode(v)
	require.NoError(e.t, err)
	e.sendRaw(frame)
}

func (e *fakeEngine) sendRaw(frame []byte) {
	e.t.Helper()
	require.NoError(e.t, e.resp.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := e.resp.Write(frame)
	require.NoError(e.t, err)
}

func (e *fakeEngine) close() {
	e.req.Close()
	e.resp.Close()
}

// recorder captura eventos publicados.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name string
	data json.RawMessage
}

func (r *recorder) handler(name string) EventHandler {
	return func(_ context.Context, data json.RawMessage) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, recordedEvent{name: name, data: append(json.RawMessage(nil), data...)})
	}
}

func (r *recorder) PublishValue(_ context.Context, name string, v interface{}) int {
	data, _ := json.Marshal(v)
	r.handler(name)(context.Background(), data)
	return 1
}

func (r *recorder) named(name string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []json.RawMessage
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e.data)
		}
	}
	return out
}

func (r *recorder) count(name string) int {
	return len(r.named(name))
}
