package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	sdkgrpc "github.com/xKoRx/qmtbridge/sdk/grpc"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
)

// Servicio gRPC del gateway. Los mensajes son google.protobuf.Struct:
//
//	Invoke({action, params, timeout_ms}) -> {success, data, error, code}
//	Events({events: [...]})              -> stream {event, data}
const (
	gatewayServiceName  = "qmtbridge.v1.TerminalGateway"
	gatewayInvokeMethod = "/" + gatewayServiceName + "/Invoke"
	gatewayEventsMethod = "/" + gatewayServiceName + "/Events"

	// eventBufferSize eventos en cola por stream antes de descartar.
	eventBufferSize = 256
)

// GatewayBackend es lo que el gateway necesita del Bridge.
type GatewayBackend interface {
	SendRequest(ctx context.Context, action string, params interface{}, timeout time.Duration) *domain.Response
	Subscribe(name string, handler EventHandler) func()
	State() ConnState
}

// terminalGatewayServer es la interfaz del servicio registrado.
type terminalGatewayServer interface {
	Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Events(in *structpb.Struct, stream grpcgo.ServerStream) error
}

var terminalGatewayDesc = grpcgo.ServiceDesc{
	ServiceName: gatewayServiceName,
	HandlerType: (*terminalGatewayServer)(nil),
	Methods: []grpcgo.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams: []grpcgo.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "qmtbridge/v1/gateway.proto",
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpcgo.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(terminalGatewayServer).Invoke(ctx, in)
	}
	info := &grpcgo.UnaryServerInfo{Server: srv, FullMethod: gatewayInvokeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(terminalGatewayServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func eventsHandler(srv interface{}, stream grpcgo.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(terminalGatewayServer).Events(in, stream)
}

// Gateway expone el Bridge a procesos front-end locales via gRPC.
//
// Es el equivalente de los handlers trade:* y los forwards push:* del
// proceso principal del terminal.
type Gateway struct {
	logHelper
	backend       GatewayBackend
	server        *sdkgrpc.Server
	unwatchStatus func()
}

// NewGateway crea el gateway escuchando TCP en address.
func NewGateway(backend GatewayBackend, tel *telemetry.Client, address string) (*Gateway, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return NewGatewayWithListener(backend, tel, lis)
}

// NewGatewayWithListener crea el gateway sobre un listener existente.
func NewGatewayWithListener(backend GatewayBackend, tel *telemetry.Client, lis net.Listener) (*Gateway, error) {
	cfg := sdkgrpc.DefaultServerConfig(lis.Addr().String())
	cfg.UnaryInterceptors = []grpcgo.UnaryServerInterceptor{
		sdkgrpc.CallIDUnaryServerInterceptor(),
		sdkgrpc.LoggingUnaryServerInterceptor(tel),
	}
	cfg.StreamInterceptors = []grpcgo.StreamServerInterceptor{
		sdkgrpc.LoggingStreamServerInterceptor(tel),
	}

	server, err := sdkgrpc.NewServerWithListener(cfg, lis)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		logHelper: newLogHelper(tel, "gateway"),
		backend:   backend,
		server:    server,
	}
	server.GRPCServer().RegisterService(&terminalGatewayDesc, g)

	// El health del servicio sigue al link con el motor
	server.SetServingStatus(gatewayServiceName, backend.State() == StateConnected)
	g.unwatchStatus = backend.Subscribe(domain.EventStatus, g.onStatus)
	return g, nil
}

func (g *Gateway) onStatus(_ context.Context, data json.RawMessage) {
	var st StatusEvent
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	g.server.SetServingStatus(gatewayServiceName, st.State == StateConnected.String())
}

// Serve bloquea hasta que ctx se cancele.
func (g *Gateway) Serve(ctx context.Context) error {
	g.logInfo("Gateway serving", map[string]interface{}{
		"address": g.server.Address(),
	})
	defer g.unwatchStatus()
	return g.server.Serve(ctx)
}

// Address retorna la dirección real del gateway.
func (g *Gateway) Address() string {
	return g.server.Address()
}

// Stop detiene el gateway inmediatamente.
func (g *Gateway) Stop() {
	g.unwatchStatus()
	g.server.Stop()
}

// Invoke ejecuta un request del front-end contra el motor.
//
// Las fallas del bridge viajan dentro de la respuesta (success=false); solo
// un request mal formado es un error gRPC.
func (g *Gateway) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	action := fields["action"].GetStringValue()
	if action == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}

	var params interface{}
	if v := fields["params"]; v != nil {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid params: %v", err)
		}
		params = json.RawMessage(raw)
	}

	timeout := time.Duration(fields["timeout_ms"].GetNumberValue()) * time.Millisecond

	resp := g.backend.SendRequest(ctx, action, params, timeout)

	out, err := responseToStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// Events reenvía los eventos pedidos hasta que el cliente se vaya.
//
// Lista vacía = todos los eventos conocidos. Si el cliente no consume y la
// cola se llena, los eventos nuevos se descartan: el lector del pipe nunca se
// bloquea por un front-end lento.
func (g *Gateway) Events(in *structpb.Struct, stream grpcgo.ServerStream) error {
	names := domain.KnownEvents
	if list := in.GetFields()["events"].GetListValue(); list != nil && len(list.GetValues()) > 0 {
		names = make([]string, 0, len(list.GetValues()))
		for _, v := range list.GetValues() {
			if name := v.GetStringValue(); name != "" {
				names = append(names, name)
			}
		}
	}

	ch := make(chan *structpb.Struct, eventBufferSize)
	for _, name := range names {
		name := name
		unsubscribe := g.backend.Subscribe(name, func(_ context.Context, data json.RawMessage) {
			msg, err := eventToStruct(name, data)
			if err != nil {
				g.logWarn("Event payload not representable, dropped", map[string]interface{}{
					"event": name,
					"error": err.Error(),
				})
				return
			}
			select {
			case ch <- msg:
			default:
				g.logWarn("Gateway event queue full, dropped", map[string]interface{}{
					"event": name,
				})
			}
		})
		defer unsubscribe()
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func responseToStruct(resp *domain.Response) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"success": resp.Success,
	}
	if len(resp.Data) > 0 {
		var data interface{}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return nil, err
		}
		m["data"] = data
	}
	if resp.Error != "" {
		m["error"] = resp.Error
	}
	if resp.Code != domain.ErrNoError {
		m["code"] = resp.Code.String()
	}
	return structpb.NewStruct(m)
}

func structToResponse(s *structpb.Struct) (*domain.Response, error) {
	fields := s.GetFields()
	resp := &domain.Response{
		Success: fields["success"].GetBoolValue(),
		Error:   fields["error"].GetStringValue(),
		Code:    domain.ErrorCode(fields["code"].GetStringValue()),
	}
	if v := fields["data"]; v != nil {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		resp.Data = raw
	}
	return resp, nil
}

func eventToStruct(name string, data json.RawMessage) (*structpb.Struct, error) {
	var payload interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
	}
	return structpb.NewStruct(map[string]interface{}{
		"event": name,
		"data":  payload,
	})
}

// GatewayEvent es un evento recibido por GatewayClient.
type GatewayEvent struct {
	Name string
	Data json.RawMessage
}

// GatewayClient es el cliente del gateway (CLI y front-ends en Go).
type GatewayClient struct {
	client *sdkgrpc.Client
}

// DialGateway conecta al gateway en address.
//
// extra se agrega a las opciones de dial (ej. bufconn en tests).
func DialGateway(ctx context.Context, address string, tel *telemetry.Client, extra ...grpcgo.DialOption) (*GatewayClient, error) {
	cfg := sdkgrpc.DefaultClientConfig(address)
	cfg.UnaryInterceptors = []grpcgo.UnaryClientInterceptor{
		sdkgrpc.CallIDUnaryClientInterceptor(),
		sdkgrpc.LoggingUnaryClientInterceptor(tel),
	}
	cfg.DialOptions = extra

	client, err := sdkgrpc.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &GatewayClient{client: client}, nil
}

// Invoke envía action al motor a través del gateway.
func (c *GatewayClient) Invoke(ctx context.Context, action string, params interface{}, timeout time.Duration) (*domain.Response, error) {
	raw, err := domain.MarshalParams(params)
	if err != nil {
		return nil, err
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}

	in, err := structpb.NewStruct(map[string]interface{}{
		"action":     action,
		"params":     decoded,
		"timeout_ms": float64(timeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("params not representable: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.client.Conn().Invoke(ctx, gatewayInvokeMethod, in, out); err != nil {
		return nil, err
	}
	return structToResponse(out)
}

// Events abre el stream de eventos y llama fn por cada uno hasta que ctx se
// cancele o el stream falle.
func (c *GatewayClient) Events(ctx context.Context, fn func(GatewayEvent), names ...string) error {
	list := make([]interface{}, 0, len(names))
	for _, n := range names {
		list = append(list, n)
	}
	in, err := structpb.NewStruct(map[string]interface{}{"events": list})
	if err != nil {
		return err
	}

	stream, err := c.client.Conn().NewStream(ctx, &terminalGatewayDesc.Streams[0], gatewayEventsMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fields := msg.GetFields()
		data := json.RawMessage("null")
		if v := fields["data"]; v != nil {
			if raw, err := v.MarshalJSON(); err == nil {
				data = raw
			}
		}
		fn(GatewayEvent{Name: fields["event"].GetStringValue(), Data: data})
	}
}

// Healthy reporta si el bridge detrás del gateway tiene link con el motor.
func (c *GatewayClient) Healthy(ctx context.Context) (bool, error) {
	return c.client.CheckHealth(ctx, gatewayServiceName)
}

// Close cierra la conexión.
func (c *GatewayClient) Close() error {
	return c.client.Close()
}
