package etcd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
)

const (
	defaultTimeout = 5 * time.Second
	defaultApp     = "qmt-bridge"

	// EnvEndpoints lista de endpoints separada por comas
	EnvEndpoints = "ETCD_ENDPOINTS"
	envTimeout   = "ETCD_TIMEOUT"
	envScope     = "ENV"
)

// ErrKeyNotFound la clave no existe en el namespace.
var ErrKeyNotFound = errors.New("etcd key not found")

type (
	// KV es la parte de etcd que usa el overlay de configuración. Solo lectura:
	// el bridge nunca escribe su config.
	KV interface {
		Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	}

	// Client lee variables bajo /APP/ENV/.
	Client struct {
		raw     *clientv3.Client
		kv      KV
		prefix  string
		timeout time.Duration
	}
)

// Option define una función que modifica la configuración del cliente
type Option func(*config)

type config struct {
	endpoints []string
	timeout   time.Duration
	app       string
	env       string
}

func defaultConfig() *config {
	timeout := defaultTimeout
	if secs, err := strconv.Atoi(os.Getenv(envTimeout)); err == nil && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	endpoints := EndpointsFromEnv()
	if len(endpoints) == 0 {
		endpoints = []string{"http://127.0.0.1:2379"}
	}

	return &config{
		endpoints: endpoints,
		timeout:   timeout,
		app:       defaultApp,
		env:       firstNonEmpty(os.Getenv(envScope), "development"),
	}
}

// WithTimeout timeout de dial y de cada lectura.
func WithTimeout(t time.Duration) Option { return func(c *config) { c.timeout = t } }

// WithApp establece el nombre de la aplicación para el namespace
func WithApp(name string) Option { return func(c *config) { c.app = name } }

// WithEnv establece el entorno para el namespace. Vacío conserva el default.
func WithEnv(env string) Option {
	return func(c *config) {
		if env != "" {
			c.env = env
		}
	}
}

// EndpointsFromEnv extrae la lista de endpoints del clúster leyendo la variable ETCD_ENDPOINTS.
// Devuelve nil si la variable no está definida o está vacía.
func EndpointsFromEnv() []string {
	return splitEndpoints(os.Getenv(EnvEndpoints))
}

func splitEndpoints(eps string) []string {
	var clean []string
	for _, p := range strings.Split(eps, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}

// New conecta a etcd con los endpoints de ETCD_ENDPOINTS.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.endpoints,
		DialTimeout: cfg.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating etcd client: %w", err)
	}

	prefix := namespacePrefix(cfg)
	client := &Client{
		raw:     cli,
		kv:      namespace.NewKV(cli.KV, prefix),
		prefix:  prefix,
		timeout: cfg.timeout,
	}
	return client, nil
}

// NewWithKV construye un Client sobre un KV ya namespaced (tests, KV embebido).
func NewWithKV(kv KV, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{kv: kv, prefix: namespacePrefix(cfg), timeout: cfg.timeout}
}

func namespacePrefix(cfg *config) string {
	return fmt.Sprintf("/%s/%s/", cfg.app, cfg.env)
}

// NamespacePrefix devuelve el prefijo absoluto, con formato "/<app>/<env>/".
func (c *Client) NamespacePrefix() string {
	return c.prefix
}

// GetVar lee una clave del namespace. Una clave ausente retorna ErrKeyNotFound.
func (c *Client) GetVar(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.kv.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return string(resp.Kvs[0].Value), nil
}

// GetVarWithDefault retorna defaultValue solo si la clave no existe. Un error
// del backend se propaga.
func (c *Client) GetVarWithDefault(ctx context.Context, key, defaultValue string) (string, error) {
	value, err := c.GetVar(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return defaultValue, nil
	}
	return value, err
}

// GetVarIntWithDefault como GetVarWithDefault, pero el valor debe ser entero.
func (c *Client) GetVarIntWithDefault(ctx context.Context, key string, defaultValue int) (int, error) {
	raw, err := c.GetVar(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return defaultValue, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("key %s: %q is not an integer", key, raw)
	}
	return n, nil
}

// GetVarMillisWithDefault lee una duración expresada en milisegundos enteros
// (claves *_ms). Valores negativos son error.
func (c *Client) GetVarMillisWithDefault(ctx context.Context, key string, defaultValue time.Duration) (time.Duration, error) {
	ms, err := c.GetVarIntWithDefault(ctx, key, int(defaultValue.Milliseconds()))
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("key %s: negative duration %d ms", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Close cierra la conexión con etcd
func (c *Client) Close() error {
	if c.raw != nil {
		return c.raw.Close()
	}
	return nil
}

// firstNonEmpty devuelve el primer valor no vacío de la lista
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
