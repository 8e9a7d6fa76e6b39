package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xKoRx/qmtbridge/sdk/ipc"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
	"github.com/xKoRx/qmtbridge/sdk/utils"
)

var (
	// ErrNotConnected indica un write sin link establecido.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectAborted indica que Close se llamó mientras Connect discaba.
	ErrConnectAborted = errors.New("connect aborted by close")
)

// TransportConfig configuración del Transport.
type TransportConfig struct {
	RequestEndpoint  string
	ResponseEndpoint string
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxFrameBytes    int
}

// TransportCallbacks conecta el Transport con el resto del bridge.
//
// Los tres se invocan desde las goroutines del Transport.
type TransportCallbacks struct {
	// OnMessage recibe cada body válido del response pipe, en orden.
	OnMessage func(raw json.RawMessage)
	// OnMalformed recibe frames cuyo body no es JSON UTF-8.
	OnMalformed func(body []byte, err error)
	// OnDown se invoca una vez por sesión ante la primera falla de cualquiera de
	// los dos pipes.
	OnDown func(err error)
}

// Transport es dueño de los dos pipes del link con el motor.
//
// Cada Connect exitoso abre una sesión nueva (generación + UUIDv7). Close
// invalida la sesión: las fallas que sus goroutines reporten después se
// ignoran.
type Transport struct {
	logHelper
	config    TransportConfig
	dialer    ipc.Dialer
	callbacks TransportCallbacks

	mu         sync.Mutex
	reqPipe    ipc.Pipe
	respPipe   ipc.Pipe
	writer     *ipc.FrameWriter
	connected  bool
	generation uint64
	sessionID  string
}

// NewTransport crea un Transport desconectado.
func NewTransport(config TransportConfig, dialer ipc.Dialer, callbacks TransportCallbacks, tel *telemetry.Client) *Transport {
	return &Transport{
		logHelper: newLogHelper(tel, "transport"),
		config:    config,
		dialer:    dialer,
		callbacks: callbacks,
	}
}

// Connect disca ambos pipes en paralelo. El link es usable solo si ambos
// conectan; ante una falla parcial el pipe abierto se cierra.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	startGen := t.generation
	t.mu.Unlock()

	dialCtx := ctx
	if t.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.config.DialTimeout)
		defer cancel()
	}

	var reqPipe, respPipe ipc.Pipe
	g, gctx := errgroup.WithContext(dialCtx)
	g.Go(func() error {
		p, err := t.dialer.Dial(gctx, t.config.RequestEndpoint)
		if err != nil {
			return fmt.Errorf("%s channel: %w", semconv.ChannelValues.Request, err)
		}
		reqPipe = p
		return nil
	})
	g.Go(func() error {
		p, err := t.dialer.Dial(gctx, t.config.ResponseEndpoint)
		if err != nil {
			return fmt.Errorf("%s channel: %w", semconv.ChannelValues.Response, err)
		}
		respPipe = p
		return nil
	})

	if err := g.Wait(); err != nil {
		closePipes(reqPipe, respPipe)
		return err
	}

	t.mu.Lock()
	if t.generation != startGen {
		t.mu.Unlock()
		closePipes(reqPipe, respPipe)
		return ErrConnectAborted
	}
	t.generation++
	gen := t.generation
	t.reqPipe = reqPipe
	t.respPipe = respPipe
	t.writer = ipc.NewFrameWriter(reqPipe, t.config.WriteTimeout)
	t.connected = true
	t.sessionID = utils.GenerateUUIDv7()
	session := t.sessionID
	t.mu.Unlock()

	t.logInfo("Link established", map[string]interface{}{
		"session":           session,
		"request_endpoint":  t.config.RequestEndpoint,
		"response_endpoint": t.config.ResponseEndpoint,
	})

	down := &sessionDown{}
	go t.readLoop(gen, respPipe, down)
	go t.watchLoop(gen, reqPipe, down)

	return nil
}

// sessionDown asegura un único reporte de caída por sesión.
type sessionDown struct {
	once sync.Once
}

func (t *Transport) reportDown(gen uint64, down *sessionDown, err error) {
	down.once.Do(func() {
		t.mu.Lock()
		stale := gen != t.generation
		session := t.sessionID
		t.mu.Unlock()

		if stale {
			t.logDebug("Ignoring failure of closed session", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		t.logWarn("Link failure detected", map[string]interface{}{
			"session": session,
			"error":   err.Error(),
		})
		if t.callbacks.OnDown != nil {
			t.callbacks.OnDown(err)
		}
	})
}

// readLoop bombea el response pipe al parser y despacha cada mensaje en orden.
func (t *Transport) readLoop(gen uint64, pipe ipc.Pipe, down *sessionDown) {
	opts := []ipc.ParserOption{ipc.WithMaxFrameSize(t.config.MaxFrameBytes)}
	if t.callbacks.OnMalformed != nil {
		opts = append(opts, ipc.WithMalformedHandler(t.callbacks.OnMalformed))
	}

	onMessage := t.callbacks.OnMessage
	if onMessage == nil {
		onMessage = func(json.RawMessage) {}
	}

	reader := ipc.NewFrameReader(pipe, ipc.NewParser(onMessage, opts...))
	err := reader.Run()
	t.reportDown(gen, down, fmt.Errorf("%s channel: %w", semconv.ChannelValues.Response, err))
}

// watchLoop detecta el cierre del request pipe. El motor no escribe por él:
// cualquier byte recibido se descarta.
func (t *Transport) watchLoop(gen uint64, pipe ipc.Pipe, down *sessionDown) {
	buf := make([]byte, 512)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			t.logDebug("Discarding unexpected bytes", map[string]interface{}{
				string(semconv.Bridge.Channel): semconv.ChannelValues.Request,
				"bytes":                        n,
				"preview":                      preview(buf[:n], 64),
			})
		}
		if err != nil {
			t.reportDown(gen, down, fmt.Errorf("%s channel: %w", semconv.ChannelValues.Request, err))
			return
		}
	}
}

// WriteFrame escribe un frame completo al request pipe.
//
// Sin link retorna ErrNotConnected sin tocar el pipe. Un write fallido no
// fuerza la reconexión: si el pipe murió, watchLoop lo reporta.
func (t *Transport) WriteFrame(frame []byte) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	writer := t.writer
	t.mu.Unlock()

	if err := writer.WriteFrame(frame); err != nil {
		return fmt.Errorf("%s channel: %w", semconv.ChannelValues.Request, err)
	}
	return nil
}

// Close cierra ambos pipes e invalida la sesión. Es idempotente.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.generation++
	wasConnected := t.connected
	reqPipe, respPipe := t.reqPipe, t.respPipe
	t.reqPipe, t.respPipe, t.writer = nil, nil, nil
	t.connected = false
	session := t.sessionID
	t.sessionID = ""
	t.mu.Unlock()

	err := closePipes(reqPipe, respPipe)
	if wasConnected {
		t.logInfo("Link closed", map[string]interface{}{
			"session": session,
		})
	}
	return err
}

// Connected reporta si ambos pipes están establecidos.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SessionID retorna el id de la sesión actual ("" sin link).
func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func closePipes(pipes ...ipc.Pipe) error {
	var errs []error
	for _, p := range pipes {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && !ipc.IsClosed(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
