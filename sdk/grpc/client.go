package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ClientConfig configuración para cliente gRPC.
type ClientConfig struct {
	// Target dirección del servidor (ej: "127.0.0.1:50071")
	Target string

	// DialTimeout timeout para la conexión inicial
	DialTimeout time.Duration

	// KeepAlive configuración de keepalive
	KeepAlive *KeepAliveConfig

	// UnaryInterceptors interceptors para llamadas unary
	UnaryInterceptors []grpc.UnaryClientInterceptor

	// StreamInterceptors interceptors para streams
	StreamInterceptors []grpc.StreamClientInterceptor

	// DialOptions opciones extra (ej: grpc.WithContextDialer para bufconn)
	DialOptions []grpc.DialOption
}

// KeepAliveConfig configuración de keepalive.
type KeepAliveConfig struct {
	// Time intervalo de keepalive pings
	Time time.Duration

	// Timeout timeout para respuesta de ping
	Timeout time.Duration

	// PermitWithoutStream permitir pings sin streams activos
	PermitWithoutStream bool
}

// DefaultClientConfig retorna configuración por defecto.
func DefaultClientConfig(target string) *ClientConfig {
	return &ClientConfig{
		Target:      target,
		DialTimeout: 5 * time.Second,
		KeepAlive: &KeepAliveConfig{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		},
	}
}

// Client wrapper sobre grpc.ClientConn.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient conecta al gateway y bloquea hasta READY o DialTimeout.
//
// El gateway escucha solo en loopback, por eso no hay TLS.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	opts := []grpc.DialOption{
		grpc.WithBlock(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	if config.KeepAlive != nil {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                config.KeepAlive.Time,
			Timeout:             config.KeepAlive.Timeout,
			PermitWithoutStream: config.KeepAlive.PermitWithoutStream,
		}))
	}

	if len(config.UnaryInterceptors) > 0 {
		opts = append(opts, grpc.WithChainUnaryInterceptor(config.UnaryInterceptors...))
	}
	if len(config.StreamInterceptors) > 0 {
		opts = append(opts, grpc.WithChainStreamInterceptor(config.StreamInterceptors...))
	}
	opts = append(opts, config.DialOptions...)

	dialCtx := ctx
	if config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, config.DialTimeout)
		defer cancel()
	}

	//nolint:staticcheck // DialContext+WithBlock: fallar rápido si el gateway no está
	conn, err := grpc.DialContext(dialCtx, config.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", config.Target, err)
	}

	return &Client{conn: conn}, nil
}

// Conn retorna la conexión gRPC subyacente.
func (c *Client) Conn() *grpc.ClientConn {
	return c.conn
}

// Close cierra la conexión.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// CheckHealth consulta grpc.health.v1 por service ("" es el servidor entero).
//
// Retorna true solo con SERVING.
func (c *Client) CheckHealth(ctx context.Context, service string) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, fmt.Errorf("health check %q: %w", service, err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
