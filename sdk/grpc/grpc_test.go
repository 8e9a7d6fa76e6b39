package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/xKoRx/qmtbridge/sdk/telemetry"
)

func newTestTelemetry(t *testing.T) *telemetry.Client {
	t.Helper()
	tel, err := telemetry.New(context.Background(), "grpc-test", "test",
		telemetry.WithLogsDisabled(), telemetry.WithMetricsDisabled(), telemetry.WithTracesDisabled())
	require.NoError(t, err)
	return tel
}

func TestServerClientOverBufconn(t *testing.T) {
	tel := newTestTelemetry(t)
	lis := bufconn.Listen(1 << 20)

	cfg := DefaultServerConfig("")
	cfg.UnaryInterceptors = []grpcgo.UnaryServerInterceptor{
		CallIDUnaryServerInterceptor(),
		LoggingUnaryServerInterceptor(tel),
	}
	server, err := NewServerWithListener(cfg, lis)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	ccfg := DefaultClientConfig("bufnet")
	ccfg.UnaryInterceptors = []grpcgo.UnaryClientInterceptor{
		CallIDUnaryClientInterceptor(),
		LoggingUnaryClientInterceptor(tel),
	}
	ccfg.DialOptions = []grpcgo.DialOption{
		grpcgo.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}
	client, err := NewClient(context.Background(), ccfg)
	require.NoError(t, err)
	defer client.Close()

	ok, err := client.CheckHealth(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, server.IsServing())

	server.SetServingStatus("qmt.test.Service", false)
	ok, err = client.CheckHealth(context.Background(), "qmt.test.Service")
	require.NoError(t, err)
	assert.False(t, ok)

	server.SetServingStatus("qmt.test.Service", true)
	ok, err = client.CheckHealth(context.Background(), "qmt.test.Service")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = client.CheckHealth(context.Background(), "qmt.test.Unknown")
	assert.Equal(t, codes.NotFound, status.Code(err))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, server.IsServing())
}

func TestNewServerRejectsNil(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServerWithListener(DefaultServerConfig(""), nil)
	assert.Error(t, err)
}

func TestCallIDHelpers(t *testing.T) {
	ctx, id := GetOrGenerateCallID(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetCallID(ctx))

	ctx2, id2 := GetOrGenerateCallID(ctx)
	assert.Equal(t, id, id2)
	assert.Equal(t, ctx, ctx2)
}

func TestCallIDServerInterceptorReadsMetadata(t *testing.T) {
	interceptor := CallIDUnaryServerInterceptor()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(CallIDMetadataKey, "abc"))

	var seen string
	_, err := interceptor(ctx, nil, &grpcgo.UnaryServerInfo{FullMethod: "/x/y"}, func(ctx context.Context, _ interface{}) (interface{}, error) {
		seen = GetCallID(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", seen)
}
