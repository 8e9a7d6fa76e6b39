package grpc

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServerConfig configuración para servidor gRPC.
type ServerConfig struct {
	// Address dirección de bind host:port (ej: "127.0.0.1:50071")
	Address string

	// KeepAlive configuración de keepalive
	KeepAlive *ServerKeepAliveConfig

	// ShutdownGracePeriod periodo de gracia para shutdown
	ShutdownGracePeriod time.Duration

	// UnaryInterceptors interceptors para llamadas unary
	UnaryInterceptors []grpc.UnaryServerInterceptor

	// StreamInterceptors interceptors para streams
	StreamInterceptors []grpc.StreamServerInterceptor
}

// ServerKeepAliveConfig configuración de keepalive del servidor.
type ServerKeepAliveConfig struct {
	// MaxConnectionIdle tiempo máximo de conexión idle antes de cerrar
	MaxConnectionIdle time.Duration

	// Time intervalo de keepalive pings
	Time time.Duration

	// Timeout timeout para respuesta de ping
	Timeout time.Duration
}

// DefaultServerConfig retorna configuración por defecto.
//
// El gateway es local al terminal: address vacío se normaliza a loopback.
func DefaultServerConfig(address string) *ServerConfig {
	if address == "" {
		address = "127.0.0.1:50071"
	}
	return &ServerConfig{
		Address:             address,
		ShutdownGracePeriod: 5 * time.Second,
		KeepAlive: &ServerKeepAliveConfig{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           10 * time.Second,
		},
	}
}

// Server wrapper sobre grpc.Server. Registra grpc.health.v1 para que los
// clientes puedan consultar el estado de cada servicio.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	config     *ServerConfig
	listener   net.Listener
	serving    atomic.Bool
}

// NewServer crea un servidor gRPC escuchando TCP en config.Address.
//
// Example:
//
//	server, err := grpc.NewServer(grpc.DefaultServerConfig("127.0.0.1:50071"))
//	if err != nil {
//	    return err
//	}
//	server.GRPCServer().RegisterService(&desc, impl)
//	go server.Serve(ctx)
func NewServer(config *ServerConfig) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	listener, err := net.Listen("tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Address, err)
	}

	return NewServerWithListener(config, listener)
}

// NewServerWithListener crea un servidor sobre un listener existente.
//
// Los tests lo usan con bufconn.
func NewServerWithListener(config *ServerConfig, listener net.Listener) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if listener == nil {
		return nil, fmt.Errorf("listener cannot be nil")
	}

	opts := []grpc.ServerOption{}

	if config.KeepAlive != nil {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: config.KeepAlive.MaxConnectionIdle,
			Time:              config.KeepAlive.Time,
			Timeout:           config.KeepAlive.Timeout,
		}))
		opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}))
	}

	if len(config.UnaryInterceptors) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(config.UnaryInterceptors...))
	}
	if len(config.StreamInterceptors) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(config.StreamInterceptors...))
	}

	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		health:     health.NewServer(),
		config:     config,
		listener:   listener,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s, nil
}

// SetServingStatus publica el estado de service en el health server.
func (s *Server) SetServingStatus(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// GRPCServer retorna el servidor gRPC subyacente para registrar servicios.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address retorna la dirección real del listener (útil con puerto 0).
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Serve bloquea sirviendo hasta que el contexto se cancele o Serve falle.
//
// Al cancelar el contexto hace graceful shutdown acotado por
// ShutdownGracePeriod.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	s.serving.Store(true)
	go func() {
		errCh <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		s.serving.Store(false)
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown hace un graceful shutdown del servidor.
//
// Los streams de eventos no terminan solos: pasado el periodo de gracia se
// fuerza Stop.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.serving.Store(false)
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	timeout := s.config.ShutdownGracePeriod
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		s.grpcServer.Stop()
		return fmt.Errorf("forced shutdown after %v", timeout)
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}

// Stop detiene el servidor inmediatamente (no graceful).
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
	s.serving.Store(false)
}

// IsServing indica si Serve está activo.
func (s *Server) IsServing() bool {
	return s.serving.Load()
}
