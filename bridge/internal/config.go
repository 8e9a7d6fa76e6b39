package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xKoRx/qmtbridge/sdk/etcd"
	"github.com/xKoRx/qmtbridge/sdk/ipc"
	"github.com/xKoRx/qmtbridge/sdk/utils"
)

// Variables de entorno reconocidas.
const (
	EnvConfigFile   = "QMT_BRIDGE_CONFIG"
	EnvRequestPipe  = "QMT_REQUEST_PIPE"
	EnvResponsePipe = "QMT_RESPONSE_PIPE"
	envScope        = "ENV"
)

// Config configuración del bridge.
//
// Fuentes, en orden: defaults, archivo YAML (QMT_BRIDGE_CONFIG), ETCD en
// /qmt-bridge/{ENV}/ si ETCD_ENDPOINTS está definido, variables de entorno.
type Config struct {
	// Pipes
	RequestPipe  string // pipes/request
	ResponsePipe string // pipes/response

	// Bridge
	ReconnectDelay time.Duration // bridge/reconnect_delay_ms
	RequestTimeout time.Duration // bridge/request_timeout_ms
	DialTimeout    time.Duration // bridge/dial_timeout_ms
	WriteTimeout   time.Duration // bridge/write_timeout_ms
	MaxFrameBytes  int           // bridge/max_frame_bytes
	JournalPath    string        // bridge/journal_path (vacío = sin journal)

	// Gateway
	GatewayAddress string // gateway/address (vacío = sin gateway)

	// Telemetry
	ServiceName    string // telemetry/service_name
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // telemetry/otlp_endpoint
	LogLevel       string // telemetry/log_level
}

// DefaultConfig retorna la configuración por defecto.
func DefaultConfig() *Config {
	env := os.Getenv(envScope)
	if env == "" {
		env = "development"
	}
	return &Config{
		RequestPipe:    "request_pipe",
		ResponsePipe:   "response_pipe",
		ReconnectDelay: 3000 * time.Millisecond,
		RequestTimeout: 10000 * time.Millisecond,
		DialTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxFrameBytes:  ipc.DefaultMaxFrameSize,
		ServiceName:    "qmt-bridge",
		ServiceVersion: "0.1.0",
		Environment:    env,
		LogLevel:       "INFO",
	}
}

// fileConfig es la forma YAML del archivo de configuración.
type fileConfig struct {
	Pipes struct {
		Request  string `yaml:"request"`
		Response string `yaml:"response"`
	} `yaml:"pipes"`
	Bridge struct {
		ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
		RequestTimeoutMs int    `yaml:"request_timeout_ms"`
		DialTimeoutMs    int    `yaml:"dial_timeout_ms"`
		WriteTimeoutMs   int    `yaml:"write_timeout_ms"`
		MaxFrameBytes    int    `yaml:"max_frame_bytes"`
		JournalPath      string `yaml:"journal_path"`
	} `yaml:"bridge"`
	Gateway struct {
		Address string `yaml:"address"`
	} `yaml:"gateway"`
	Telemetry struct {
		ServiceName  string `yaml:"service_name"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		LogLevel     string `yaml:"log_level"`
	} `yaml:"telemetry"`
}

// varSource es la parte del cliente ETCD que usa la config.
type varSource interface {
	GetVarWithDefault(ctx context.Context, key, defaultValue string) (string, error)
	GetVarIntWithDefault(ctx context.Context, key string, defaultValue int) (int, error)
	GetVarMillisWithDefault(ctx context.Context, key string, defaultValue time.Duration) (time.Duration, error)
}

// LoadConfig carga la configuración desde todas las fuentes y la valida.
//
// Uso:
//
//	cfg, err := internal.LoadConfig(ctx)
//	if err != nil {
//	    return err
//	}
func LoadConfig(ctx context.Context) (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if len(etcd.EndpointsFromEnv()) > 0 {
		etcdClient, err := etcd.New(
			etcd.WithApp("qmt-bridge"),
			etcd.WithEnv(cfg.Environment),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ETCD client: %w", err)
		}
		defer etcdClient.Close()

		if err := cfg.applyVars(ctx, etcdClient); err != nil {
			return nil, fmt.Errorf("failed to load config from ETCD: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile superpone un archivo YAML. Campos ausentes no cambian.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return c.applyYAML(data)
}

func (c *Config) applyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.RequestPipe, fc.Pipes.Request)
	setString(&c.ResponsePipe, fc.Pipes.Response)
	setMillis(&c.ReconnectDelay, fc.Bridge.ReconnectDelayMs)
	setMillis(&c.RequestTimeout, fc.Bridge.RequestTimeoutMs)
	setMillis(&c.DialTimeout, fc.Bridge.DialTimeoutMs)
	setMillis(&c.WriteTimeout, fc.Bridge.WriteTimeoutMs)
	if fc.Bridge.MaxFrameBytes > 0 {
		c.MaxFrameBytes = fc.Bridge.MaxFrameBytes
	}
	setString(&c.JournalPath, fc.Bridge.JournalPath)
	setString(&c.GatewayAddress, fc.Gateway.Address)
	setString(&c.ServiceName, fc.Telemetry.ServiceName)
	setString(&c.OTLPEndpoint, fc.Telemetry.OTLPEndpoint)
	setString(&c.LogLevel, fc.Telemetry.LogLevel)
	return nil
}

// applyVars superpone las claves de ETCD. Una clave ausente conserva el valor
// actual; un valor mal formado o un backend caído abortan la carga.
func (c *Config) applyVars(ctx context.Context, src varSource) error {
	strs := []struct {
		key    string
		target *string
	}{
		{"pipes/request", &c.RequestPipe},
		{"pipes/response", &c.ResponsePipe},
		{"bridge/journal_path", &c.JournalPath},
		{"gateway/address", &c.GatewayAddress},
		{"telemetry/service_name", &c.ServiceName},
		{"telemetry/otlp_endpoint", &c.OTLPEndpoint},
		{"telemetry/log_level", &c.LogLevel},
	}
	for _, s := range strs {
		val, err := src.GetVarWithDefault(ctx, s.key, *s.target)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		*s.target = val
	}

	millis := []struct {
		key    string
		target *time.Duration
	}{
		{"bridge/reconnect_delay_ms", &c.ReconnectDelay},
		{"bridge/request_timeout_ms", &c.RequestTimeout},
		{"bridge/dial_timeout_ms", &c.DialTimeout},
		{"bridge/write_timeout_ms", &c.WriteTimeout},
	}
	for _, m := range millis {
		d, err := src.GetVarMillisWithDefault(ctx, m.key, *m.target)
		if err != nil {
			return fmt.Errorf("%s: %w", m.key, err)
		}
		*m.target = d
	}

	maxFrame, err := src.GetVarIntWithDefault(ctx, "bridge/max_frame_bytes", c.MaxFrameBytes)
	if err != nil {
		return fmt.Errorf("bridge/max_frame_bytes: %w", err)
	}
	c.MaxFrameBytes = maxFrame
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.RequestPipe, strings.TrimSpace(os.Getenv(EnvRequestPipe)))
	setString(&c.ResponsePipe, strings.TrimSpace(os.Getenv(EnvResponsePipe)))
}

// Validate verifica la configuración mínima requerida.
func (c *Config) Validate() error {
	var errs []error
	if c.RequestPipe == "" {
		errs = append(errs, errors.New("pipes/request not configured"))
	}
	if c.ResponsePipe == "" {
		errs = append(errs, errors.New("pipes/response not configured"))
	}
	if c.RequestPipe != "" && c.RequestPipe == c.ResponsePipe {
		errs = append(errs, fmt.Errorf("pipes/request and pipes/response must differ (both %q)", c.RequestPipe))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("bridge/reconnect_delay_ms must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("bridge/request_timeout_ms must be positive"))
	}
	if c.MaxFrameBytes < 0 {
		errs = append(errs, errors.New("bridge/max_frame_bytes must not be negative"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setMillis(dst *time.Duration, ms int) {
	if d := utils.DurationFromMs(int64(ms)); d > 0 {
		*dst = d
	}
}
