package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/metricbundle"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// DefaultReconnectDelay espera entre una caída del link y el reintento.
const DefaultReconnectDelay = 3000 * time.Millisecond

// ErrBridgeClosed indica una operación sobre un bridge detenido.
var ErrBridgeClosed = errors.New("bridge closed")

// Textos de ciclo de vida visibles en el terminal.
const (
	msgLinkUp           = "交易核心连接成功"
	msgLinkDownTemplate = "交易核心连接断开，%s秒后重连..."
	msgBackendDown      = "Backend Disconnected"
)

// ConnState estado del link visto por el Supervisor.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String implementa fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// linkConnector es la parte del Transport que usa el Supervisor.
type linkConnector interface {
	Connect(ctx context.Context) error
	Close() error
	SessionID() string
}

// eventPublisher publica eventos de ciclo de vida.
type eventPublisher interface {
	PublishValue(ctx context.Context, name string, v interface{}) int
}

// StatusEvent es el payload del evento status.
type StatusEvent struct {
	State   string `json:"state"`
	Session string `json:"session,omitempty"`
}

// Supervisor maneja el ciclo de vida del link y la reconexión.
//
// Ante cualquier falla cierra ambos pipes y programa un único reintento tras
// el delay fijo. Mientras haya un reintento programado, nuevas fallas se
// ignoran. Stop es el único fin permanente.
//
// Los eventos de ciclo de vida se publican en orden: un "connected" que
// pierde la carrera contra LinkDown no se publica. Los handlers de log,
// error y status no deben llamar LinkDown ni Stop de forma síncrona.
type Supervisor struct {
	logHelper
	link    linkConnector
	events  eventPublisher
	clock   Clock
	delay   time.Duration
	metrics *metricbundle.BridgeMetrics

	ctx    context.Context
	cancel context.CancelFunc

	// announceMu ordena los anuncios connected/disconnected entre sí
	announceMu sync.Mutex

	mu        sync.Mutex
	state     ConnState
	attempt   uint64
	reconnect Timer
	stopped   bool
	changed   chan struct{}
}

// NewSupervisor crea un Supervisor en estado Disconnected.
func NewSupervisor(link linkConnector, events eventPublisher, clock Clock, delay time.Duration, tel *telemetry.Client, metrics *metricbundle.BridgeMetrics) *Supervisor {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		logHelper: newLogHelper(tel, "supervisor"),
		link:      link,
		events:    events,
		clock:     clock,
		delay:     delay,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		changed:   make(chan struct{}),
	}
}

// Start pasa de Disconnected a Connecting y lanza un intento de conexión.
//
// No bloquea. Es no-op si ya hay un intento en curso, el link está arriba o
// hay una reconexión programada.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrBridgeClosed
	}
	if s.state != StateDisconnected || s.reconnect != nil {
		s.mu.Unlock()
		return nil
	}
	s.attempt++
	attempt := s.attempt
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.logInfo("Connecting to trading engine", map[string]interface{}{
		string(semconv.Bridge.Attempt): attempt,
	})
	s.publishStatus(StateConnecting, "")

	go s.connect(attempt)
	return nil
}

func (s *Supervisor) connect(attempt uint64) {
	err := s.link.Connect(s.ctx)

	s.mu.Lock()
	if s.stopped || s.attempt != attempt || s.state != StateConnecting {
		// Stop o una caída ya resolvieron este intento
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.logWarn("Connect attempt failed", map[string]interface{}{
			string(semconv.Bridge.Attempt): attempt,
			"error":                        err.Error(),
		})
		s.LinkDown(err)
		return
	}
	s.setStateLocked(StateConnected)
	s.mu.Unlock()

	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	if !s.stillConnected(attempt) {
		// el link cayó antes del anuncio; LinkDown ya publicó disconnected
		return
	}

	session := s.link.SessionID()
	ctx := telemetry.AppendEventAttrs(s.ctx, semconv.Bridge.Session.String(session))
	s.metrics.RecordLinkUp(ctx)
	s.logInfo("Trading engine connected", map[string]interface{}{
		string(semconv.Bridge.Attempt): attempt,
		"session":                      session,
	})

	s.events.PublishValue(ctx, domain.EventLog, msgLinkUp)
	s.publishStatus(StateConnected, session)
}

// LinkDown reporta una falla de cualquiera de los dos pipes.
//
// Con una reconexión ya programada es no-op.
func (s *Supervisor) LinkDown(cause error) {
	s.mu.Lock()
	if s.stopped || s.reconnect != nil {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.setStateLocked(StateDisconnected)
	s.reconnect = s.clock.AfterFunc(s.delay, s.fireReconnect)
	s.mu.Unlock()

	_ = s.link.Close()

	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	s.metrics.RecordLinkDown(s.ctx, semconv.Bridge.State.String(prev.String()))
	s.metrics.RecordReconnectScheduled(s.ctx)
	s.logWarn("Trading engine disconnected, reconnect scheduled", map[string]interface{}{
		"previous_state": prev.String(),
		"cause":          causeText,
		"delay_ms":       s.delay.Milliseconds(),
	})

	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	s.events.PublishValue(s.ctx, domain.EventLog, fmt.Sprintf(msgLinkDownTemplate, formatSeconds(s.delay)))
	s.events.PublishValue(s.ctx, domain.EventError, msgBackendDown)
	s.publishStatus(StateDisconnected, "")
}

func (s *Supervisor) fireReconnect() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnect = nil
	s.mu.Unlock()

	_ = s.Start()
}

// Stop cancela la reconexión programada, cierra el link y no reintenta más.
// Es idempotente.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	s.cancel()
	_ = s.link.Close()

	s.logInfo("Supervisor stopped", nil)
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	s.publishStatus(StateDisconnected, "")
}

// stillConnected reporta si attempt sigue siendo el link vigente.
func (s *Supervisor) stillConnected(attempt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && s.attempt == attempt && s.state == StateConnected
}

// State retorna el estado actual.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectPending reporta si hay un reintento programado.
func (s *Supervisor) ReconnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnect != nil
}

// WaitConnected bloquea hasta StateConnected, Stop o la cancelación de ctx.
func (s *Supervisor) WaitConnected(ctx context.Context) error {
	for {
		s.mu.Lock()
		state, stopped, changed := s.state, s.stopped, s.changed
		s.mu.Unlock()

		if stopped {
			return ErrBridgeClosed
		}
		if state == StateConnected {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// setStateLocked cambia el estado y despierta a WaitConnected. Requiere s.mu.
func (s *Supervisor) setStateLocked(state ConnState) {
	s.state = state
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Supervisor) publishStatus(state ConnState, session string) {
	s.events.PublishValue(s.ctx, domain.EventStatus, StatusEvent{State: state.String(), Session: session})
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%g", d.Seconds())
}
