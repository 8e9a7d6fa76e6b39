package internal

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/xKoRx/qmtbridge/sdk/domain"
)

// gatewayBackend responde con lo que el test programe y publica eventos en un
// Dispatcher real.
type gatewayBackend struct {
	*Dispatcher

	mu       sync.Mutex
	actions  []string
	params   []json.RawMessage
	timeouts []time.Duration
	reply    *domain.Response
	state    ConnState
}

func (b *gatewayBackend) State() ConnState {
	return b.state
}

func (b *gatewayBackend) SendRequest(_ context.Context, action string, params interface{}, timeout time.Duration) *domain.Response {
	raw, _ := domain.MarshalParams(params)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append(b.actions, action)
	b.params = append(b.params, raw)
	b.timeouts = append(b.timeouts, timeout)
	return b.reply
}

func startTestGateway(t *testing.T, backend *gatewayBackend) *GatewayClient {
	t.Helper()
	tel := newTestTelemetry(t)
	lis := bufconn.Listen(1 << 20)

	gw, err := NewGatewayWithListener(backend, tel, lis)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gw.Serve(ctx)
	}()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	client, err := DialGateway(dialCtx, "bufnet", tel, grpcgo.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		cancel()
		<-done
	})
	return client
}

func newGatewayBackend(t *testing.T) *gatewayBackend {
	return &gatewayBackend{Dispatcher: newTestDispatcher(t)}
}

func TestGatewayInvokeSuccess(t *testing.T) {
	backend := newGatewayBackend(t)
	backend.reply = domain.Success(json.RawMessage(`{"accountId":"A1","cash":1000}`))
	client := startTestGateway(t, backend)

	resp, err := client.Invoke(context.Background(), "query_assets", domain.AccountQuery{AccountID: "A1"}, 1500*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"accountId":"A1","cash":1000}`, string(resp.Data))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"query_assets"}, backend.actions)
	assert.JSONEq(t, `{"account_id":"A1"}`, string(backend.params[0]))
	assert.Equal(t, 1500*time.Millisecond, backend.timeouts[0])
}

func TestGatewayInvokeLocalFailure(t *testing.T) {
	backend := newGatewayBackend(t)
	backend.reply = domain.Failure(domain.ErrDisconnected, domain.MsgDisconnected)
	client := startTestGateway(t, backend)

	resp, err := client.Invoke(context.Background(), "query_orders", nil, 0)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, domain.ErrDisconnected, resp.Code)
	assert.Equal(t, domain.MsgDisconnected, resp.Error)
	assert.Empty(t, resp.Data)
}

func TestGatewayInvokeRequiresAction(t *testing.T) {
	backend := newGatewayBackend(t)
	client := startTestGateway(t, backend)

	_, err := client.Invoke(context.Background(), "", nil, 0)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGatewayEventsStream(t *testing.T) {
	backend := newGatewayBackend(t)
	client := startTestGateway(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan GatewayEvent, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Events(ctx, func(ev GatewayEvent) { got <- ev }, domain.EventTick)
	}()

	require.Eventually(t, func() bool { return backend.Subscribers(domain.EventTick) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, backend.Subscribers(domain.EventLog))

	backend.Publish(context.Background(), domain.EventLog, json.RawMessage(`"ignored"`))
	backend.Publish(context.Background(), domain.EventTick, json.RawMessage(`{"symbol":"600000.SH","lastPrice":9.88}`))

	select {
	case ev := <-got:
		assert.Equal(t, domain.EventTick, ev.Name)
		assert.JSONEq(t, `{"symbol":"600000.SH","lastPrice":9.88}`, string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}

	// El stream cerrado desregistra sus handlers
	require.Eventually(t, func() bool { return backend.Subscribers(domain.EventTick) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestGatewayEventsDefaultsToKnownEvents(t *testing.T) {
	backend := newGatewayBackend(t)
	client := startTestGateway(t, backend)

	// El gateway ya escucha status para su health
	before := map[string]int{}
	for _, name := range domain.KnownEvents {
		before[name] = backend.Subscribers(name)
	}
	assert.Equal(t, 1, before[domain.EventStatus])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Events(ctx, func(GatewayEvent) {}) }()

	require.Eventually(t, func() bool {
		for _, name := range domain.KnownEvents {
			if backend.Subscribers(name) != before[name]+1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGatewayHealthFollowsLink(t *testing.T) {
	backend := newGatewayBackend(t)
	client := startTestGateway(t, backend)
	ctx := context.Background()

	ok, err := client.Healthy(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	backend.PublishValue(ctx, domain.EventStatus, StatusEvent{State: StateConnected.String(), Session: "s-1"})
	require.Eventually(t, func() bool {
		ok, err := client.Healthy(ctx)
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)

	backend.PublishValue(ctx, domain.EventStatus, StatusEvent{State: StateDisconnected.String()})
	require.Eventually(t, func() bool {
		ok, err := client.Healthy(ctx)
		return err == nil && !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestResponseStructRoundTrip(t *testing.T) {
	in := &domain.Response{Success: true, Data: json.RawMessage(`{"list":[1,2],"ok":true}`)}
	s, err := responseToStruct(in)
	require.NoError(t, err)

	out, err := structToResponse(s)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.JSONEq(t, string(in.Data), string(out.Data))
	assert.Equal(t, domain.ErrNoError, out.Code)
}
