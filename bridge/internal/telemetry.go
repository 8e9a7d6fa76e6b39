package internal

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// InitTelemetry inicializa el cliente de telemetría desde la config.
//
// Sin telemetry/otlp_endpoint solo hay logs JSON; métricas y trazas quedan
// no-op. logWriter nil = stdout.
func InitTelemetry(ctx context.Context, config *Config, logWriter io.Writer) (*telemetry.Client, error) {
	opts := []telemetry.Option{
		telemetry.WithVersion(config.ServiceVersion),
		telemetry.WithLogLevel(config.LogLevel),
		telemetry.WithCommonAttributes(
			semconv.Bridge.Endpoint.String(config.RequestPipe),
			attribute.String("qmt.response_endpoint", config.ResponsePipe),
		),
	}

	if config.OTLPEndpoint != "" {
		opts = append(opts, telemetry.WithOTLPEndpoint(config.OTLPEndpoint))
	}
	if logWriter != nil {
		opts = append(opts, telemetry.WithLogWriter(logWriter))
	}

	client, err := telemetry.New(ctx, config.ServiceName, config.Environment, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	return client, nil
}
