// Package internal contiene el servicio Bridge del terminal QMT.
//
// El Bridge une el proceso del terminal con el motor de trading QMT sobre dos
// pipes: request (salida) y response (entrada). Sobre los bytes crudos arma
// un protocolo request/response correlacionado por req_id, con eventos push
// (tick, order_update, log) multiplexados en el mismo canal de entrada.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/ipc"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/metricbundle"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// Option configura un Bridge.
type Option func(*bridgeOptions)

type bridgeOptions struct {
	dialer  ipc.Dialer
	clock   Clock
	journal *Journal
}

// WithDialer reemplaza el dialer de pipes de la plataforma.
func WithDialer(d ipc.Dialer) Option {
	return func(o *bridgeOptions) { o.dialer = d }
}

// WithClock reemplaza el reloj (tests).
func WithClock(c Clock) Option {
	return func(o *bridgeOptions) { o.clock = c }
}

// WithJournal usa un journal abierto por el caller, que sigue siendo su dueño.
func WithJournal(j *Journal) Option {
	return func(o *bridgeOptions) { o.journal = j }
}

// Bridge es el core de transporte del terminal.
//
// Responsabilidades:
//   - Transport: dueño de los dos pipes
//   - Correlator: req_id, deadlines, resolución única
//   - Dispatcher: eventos con nombre a suscriptores
//   - Supervisor: estado del link y reconexión
type Bridge struct {
	logHelper
	config  *Config
	metrics *metricbundle.BridgeMetrics

	transport  *Transport
	correlator *Correlator
	dispatcher *Dispatcher
	supervisor *Supervisor

	journal     *Journal
	ownsJournal bool
	journalW    *journalWriter

	mu     sync.Mutex
	closed bool
}

// New crea un Bridge sin conectar.
//
// Example:
//
//	b, err := internal.New(cfg, tel)
//	if err != nil {
//	    return err
//	}
//	defer b.Stop()
//	b.Subscribe(domain.EventTick, onTick)
//	_ = b.Start()
func New(config *Config, tel *telemetry.Client, opts ...Option) (*Bridge, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := bridgeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		pipeCfg := ipc.DefaultPipeConfig("")
		pipeCfg.Timeout = config.DialTimeout
		o.dialer = ipc.NewPipeDialer(pipeCfg)
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}

	metrics, err := metricbundle.NewBridgeMetrics(tel.Meter())
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge metrics: %w", err)
	}

	b := &Bridge{
		logHelper: newLogHelper(tel, "bridge"),
		config:    config,
		metrics:   metrics,
		journal:   o.journal,
	}

	if b.journal == nil && config.JournalPath != "" {
		j, err := OpenJournal(config.JournalPath, 0)
		if err != nil {
			return nil, err
		}
		b.journal = j
		b.ownsJournal = true
	}

	b.dispatcher = NewDispatcher(tel, metrics)
	b.transport = NewTransport(TransportConfig{
		RequestEndpoint:  config.RequestPipe,
		ResponseEndpoint: config.ResponsePipe,
		DialTimeout:      config.DialTimeout,
		WriteTimeout:     config.WriteTimeout,
		MaxFrameBytes:    config.MaxFrameBytes,
	}, o.dialer, TransportCallbacks{
		OnMessage:   b.dispatch,
		OnMalformed: b.onMalformed,
		OnDown:      b.onLinkDown,
	}, tel)

	var journal requestJournal
	if b.journal != nil {
		b.journalW = newJournalWriter(b.journal, tel)
		journal = b.journalW
	}
	b.correlator = NewCorrelator(b.transport, o.clock, config.RequestTimeout, tel, metrics, journal)
	b.supervisor = NewSupervisor(b.transport, b.dispatcher, o.clock, config.ReconnectDelay, tel, metrics)

	return b, nil
}

// Start inicia la conexión al motor. No bloquea: usar WaitConnected o el
// evento status para saber cuándo el link está arriba.
func (b *Bridge) Start() error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBridgeClosed
	}

	b.logInfo("Bridge starting", map[string]interface{}{
		"request_pipe":  b.config.RequestPipe,
		"response_pipe": b.config.ResponsePipe,
	})
	return b.supervisor.Start()
}

// Stop detiene el bridge. Los requests pendientes se resuelven con SHUTDOWN.
// Es idempotente.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.supervisor.Stop()
	failed := b.correlator.FailAll(domain.ErrShutdown, domain.MsgShutdown)

	var err error
	if b.journalW != nil {
		b.journalW.Close()
	}
	if b.ownsJournal {
		err = b.journal.Close()
	}

	b.logInfo("Bridge stopped", map[string]interface{}{
		"failed_pending": failed,
	})
	return err
}

// SendRequest envía action al motor y espera la respuesta.
//
// timeout <= 0 usa bridge/request_timeout_ms.
func (b *Bridge) SendRequest(ctx context.Context, action string, params interface{}, timeout time.Duration) *domain.Response {
	return b.correlator.SendRequest(ctx, action, params, timeout)
}

// Subscribe registra handler para el evento name (tick, order_update, log,
// error, status). Retorna la función para desregistrarlo.
//
// handler corre en la goroutine que lee el response pipe, la misma que
// entrega los replies. Llamar SendRequest de forma síncrona desde handler
// bloquea esa goroutine hasta el timeout: el reply nunca se lee. Un handler
// que necesite pedir algo al motor debe lanzar su propia goroutine.
func (b *Bridge) Subscribe(name string, handler EventHandler) func() {
	return b.dispatcher.Subscribe(name, handler)
}

// State retorna el estado del link.
func (b *Bridge) State() ConnState {
	return b.supervisor.State()
}

// WaitConnected bloquea hasta que el link esté arriba.
func (b *Bridge) WaitConnected(ctx context.Context) error {
	return b.supervisor.WaitConnected(ctx)
}

// Pending retorna la cantidad de requests en vuelo.
func (b *Bridge) Pending() int {
	return b.correlator.Pending()
}

// Journal retorna el journal en uso (nil si no hay).
func (b *Bridge) Journal() *Journal {
	return b.journal
}

// dispatch es el único punto de entrada de mensajes del motor.
//
// Corre en la goroutine lectora: replies y eventos se procesan en orden de
// llegada.
func (b *Bridge) dispatch(raw json.RawMessage) {
	env := domain.ParseEnvelope(raw)
	ctx := context.Background()

	switch env.Kind {
	case domain.KindReply:
		ctx = telemetry.AppendEventAttrs(ctx, semconv.Bridge.ReqID.Int64(env.Reply.ReqID))
		b.correlator.HandleReply(ctx, env.Reply)

	case domain.KindEvent:
		ctx = telemetry.AppendEventAttrs(ctx, semconv.Bridge.Event.String(env.Event.Name))
		b.dispatcher.Publish(ctx, env.Event.Name, env.Event.Data)

	case domain.KindRequest:
		b.metrics.RecordFrameMalformed(ctx, semconv.Metrics.Reason.String("unexpected_request"))
		b.logWarn("Unexpected request from trading engine, dropped", map[string]interface{}{
			"action": env.Request.Action,
			"req_id": env.Request.ReqID,
		})

	default:
		b.metrics.RecordFrameMalformed(ctx, semconv.Metrics.Reason.String("unknown_shape"))
		b.logWarn("Message with unknown shape, dropped", map[string]interface{}{
			"reason":  env.Reason,
			"preview": preview(raw, 128),
		})
	}
}

func (b *Bridge) onMalformed(body []byte, err error) {
	b.metrics.RecordFrameMalformed(context.Background(), semconv.Metrics.Reason.String("invalid_body"))
	b.logWarn("Malformed frame skipped", map[string]interface{}{
		"error":   err.Error(),
		"bytes":   len(body),
		"preview": preview(body, 128),
	})
}

func (b *Bridge) onLinkDown(err error) {
	b.supervisor.LinkDown(err)
}
