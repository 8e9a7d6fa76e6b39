package grpc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/utils"
)

// CallIDMetadataKey header con el id de la llamada front-end -> gateway.
const CallIDMetadataKey = "x-qmt-call-id"

func rpcAttrs(method string, err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.method", method),
		attribute.String("rpc.grpc.status_code", status.Code(err).String()),
	}
}

// LoggingUnaryClientInterceptor registra cada llamada unary con duración y resultado.
func LoggingUnaryClientInterceptor(client *telemetry.Client) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)

		attrs := append(rpcAttrs(method, err), attribute.Int64("rpc.duration_ms", utils.ElapsedMsSince(start)))
		if err != nil {
			client.Error(ctx, "gRPC call failed", err, attrs...)
		} else {
			client.Debug(ctx, "gRPC call succeeded", attrs...)
		}
		return err
	}
}

// LoggingUnaryServerInterceptor registra cada handler unary del gateway.
func LoggingUnaryServerInterceptor(client *telemetry.Client) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		attrs := append(rpcAttrs(info.FullMethod, err), attribute.Int64("rpc.duration_ms", utils.ElapsedMsSince(start)))
		if err != nil {
			client.Error(ctx, "gRPC handler failed", err, attrs...)
		} else {
			client.Debug(ctx, "gRPC handler succeeded", attrs...)
		}
		return resp, err
	}
}

// LoggingStreamServerInterceptor registra apertura y cierre de streams.
func LoggingStreamServerInterceptor(client *telemetry.Client) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		ctx := ss.Context()

		client.Info(ctx, "gRPC stream opened", attribute.String("rpc.method", info.FullMethod))

		err := handler(srv, ss)

		attrs := append(rpcAttrs(info.FullMethod, err), attribute.Int64("rpc.duration_ms", utils.ElapsedMsSince(start)))
		if err != nil && ctx.Err() == nil {
			client.Error(ctx, "gRPC stream failed", err, attrs...)
		} else {
			client.Info(ctx, "gRPC stream closed", attrs...)
		}
		return err
	}
}

// CallIDUnaryClientInterceptor propaga el call id del contexto via metadata,
// generando uno si no existe.
func CallIDUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, callID := GetOrGenerateCallID(ctx)
		ctx = metadata.AppendToOutgoingContext(ctx, CallIDMetadataKey, callID)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CallIDUnaryServerInterceptor extrae el call id de metadata y lo agrega a
// los atributos de log del request.
func CallIDUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if callID := callIDFromMetadata(ctx); callID != "" {
			ctx = SetCallID(ctx, callID)
			ctx = telemetry.AppendEventAttrs(ctx, attribute.String("rpc.call_id", callID))
		}
		return handler(ctx, req)
	}
}

type contextKey string

const callIDKey contextKey = "call_id"

// SetCallID establece el call id en el contexto.
func SetCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey, callID)
}

// GetCallID obtiene el call id del contexto ("" si no hay).
func GetCallID(ctx context.Context) string {
	if id, ok := ctx.Value(callIDKey).(string); ok {
		return id
	}
	return ""
}

// GetOrGenerateCallID obtiene el call id del contexto o genera un UUIDv7.
func GetOrGenerateCallID(ctx context.Context) (context.Context, string) {
	if id := GetCallID(ctx); id != "" {
		return ctx, id
	}
	id := utils.GenerateUUIDv7()
	return SetCallID(ctx, id), id
}

func callIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(CallIDMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
