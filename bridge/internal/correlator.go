package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/ipc"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/metricbundle"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// DefaultRequestTimeout deadline de un request sin timeout explícito.
const DefaultRequestTimeout = 10 * time.Second

// frameLink es la parte del Transport que usa el Correlator.
type frameLink interface {
	Connected() bool
	WriteFrame(frame []byte) error
	SessionID() string
}

// requestJournal registra requests resueltos.
type requestJournal interface {
	Record(entry JournalEntry) error
}

// pendingRequest es un request escrito que espera reply o deadline.
type pendingRequest struct {
	id       int64
	action   string
	session  string
	start    time.Time
	timer    Timer
	resolved atomic.Bool
	done     chan *domain.Response
}

// Correlator asigna req_ids y resuelve cada request exactamente una vez.
//
// Un request se resuelve por el primero de: reply, deadline, falla de write,
// cancelación del contexto del caller o FailAll. El resto son no-ops.
type Correlator struct {
	logHelper
	link           frameLink
	clock          Clock
	defaultTimeout time.Duration
	metrics        *metricbundle.BridgeMetrics
	journal        requestJournal

	mu      sync.Mutex
	lastID  int64
	pending map[int64]*pendingRequest
}

// NewCorrelator crea un Correlator. journal puede ser nil.
func NewCorrelator(link frameLink, clock Clock, defaultTimeout time.Duration, tel *telemetry.Client, metrics *metricbundle.BridgeMetrics, journal requestJournal) *Correlator {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultRequestTimeout
	}
	return &Correlator{
		logHelper:      newLogHelper(tel, "correlator"),
		link:           link,
		clock:          clock,
		defaultTimeout: defaultTimeout,
		metrics:        metrics,
		journal:        journal,
		pending:        make(map[int64]*pendingRequest),
	}
}

// SendRequest envía action al motor y espera el resultado.
//
// Nunca retorna nil: las fallas locales vuelven como Response con Code.
// timeout <= 0 usa el default. params nil se envía como {}.
func (c *Correlator) SendRequest(ctx context.Context, action string, params interface{}, timeout time.Duration) *domain.Response {
	ctx, span := c.telemetry.StartSpan(ctx, "bridge.send_request")
	defer span.End()
	c.telemetry.SetSpanAttributes(ctx, semconv.Bridge.Action.String(action))

	if !c.link.Connected() {
		resp := domain.Failure(domain.ErrDisconnected, domain.MsgDisconnected)
		c.recordOutcome(ctx, 0, action, resp, 0)
		return resp
	}

	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	id := c.nextID()
	c.telemetry.SetSpanAttributes(ctx, semconv.Bridge.ReqID.Int64(id))

	req, err := domain.NewRequest(action, id, params)
	if err != nil {
		resp := domain.WrapError(domain.ErrEncode, err.Error(), err).Response()
		c.recordOutcome(ctx, id, action, resp, 0)
		return resp
	}
	frame, err := ipc.Encode(req)
	if err != nil {
		resp := domain.WrapError(domain.ErrEncode, err.Error(), err).Response()
		c.recordOutcome(ctx, id, action, resp, 0)
		return resp
	}

	// Registrar antes del write: el reply puede llegar antes de que Write retorne
	p := c.register(id, action, timeout)

	if err := c.link.WriteFrame(frame); err != nil {
		resp := writeFailure(err)
		c.logWarn("Request write failed", map[string]interface{}{
			"req_id": id,
			"action": action,
			"error":  err.Error(),
		})
		c.resolve(ctx, id, resp)
		return <-p.done
	}

	c.metrics.RecordRequestSent(ctx, semconv.RequestAttributes(id, action)...)
	c.logDebug("Request sent", map[string]interface{}{
		"req_id":     id,
		"action":     action,
		"timeout_ms": timeout.Milliseconds(),
	})

	select {
	case resp := <-p.done:
		return resp
	case <-ctx.Done():
		c.resolve(ctx, id, domain.Failure(domain.ErrCancelled, domain.MsgCancelled))
		// Si el reply ganó la carrera, done ya tiene su respuesta
		return <-p.done
	}
}

func writeFailure(err error) *domain.Response {
	if errors.Is(err, ErrNotConnected) {
		return domain.Failure(domain.ErrDisconnected, domain.MsgDisconnected)
	}
	return domain.WrapError(domain.ErrWriteError, err.Error(), err).Response()
}

// nextID pre-incrementa el contador. Empieza en 1 y nunca se reinicia.
func (c *Correlator) nextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	return c.lastID
}

func (c *Correlator) register(id int64, action string, timeout time.Duration) *pendingRequest {
	p := &pendingRequest{
		id:      id,
		action:  action,
		session: c.link.SessionID(),
		start:   c.clock.Now(),
		done:    make(chan *domain.Response, 1),
	}

	c.mu.Lock()
	c.pending[id] = p
	p.timer = c.clock.AfterFunc(timeout, func() {
		if c.resolve(context.Background(), id, domain.Failure(domain.ErrTimeout, domain.MsgTimeout)) {
			c.logWarn("Request timed out", map[string]interface{}{
				"req_id":     id,
				"action":     action,
				"timeout_ms": timeout.Milliseconds(),
			})
		}
	})
	c.mu.Unlock()

	return p
}

// take quita el request del mapa. Solo el primero en llamarlo lo obtiene.
func (c *Correlator) take(id int64) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// resolve entrega resp al request id. Retorna false si ya estaba resuelto.
func (c *Correlator) resolve(ctx context.Context, id int64, resp *domain.Response) bool {
	p := c.take(id)
	if p == nil {
		return false
	}
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}
	p.timer.Stop()

	latency := c.clock.Now().Sub(p.start)
	p.done <- resp
	c.recordOutcome(ctx, id, p.action, resp, latency)
	c.recordJournal(p, resp, latency)
	return true
}

// HandleReply resuelve el request del reply.
//
// Retorna false si no hay request pendiente con ese id (duplicado, tardío o
// desconocido); el reply se descarta.
func (c *Correlator) HandleReply(ctx context.Context, reply *domain.Reply) bool {
	if c.resolve(ctx, reply.ReqID, domain.ResponseFromReply(reply)) {
		return true
	}

	c.metrics.RecordReplyOrphan(ctx, semconv.Bridge.ReqID.Int64(reply.ReqID))
	c.logWarn("Reply without pending request, dropped", map[string]interface{}{
		"req_id": reply.ReqID,
		"field":  reply.Field,
	})
	return false
}

// FailAll resuelve todos los requests pendientes con code/message.
func (c *Correlator) FailAll(code domain.ErrorCode, message string) int {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	failed := 0
	for _, id := range ids {
		if c.resolve(context.Background(), id, domain.Failure(code, message)) {
			failed++
		}
	}
	if failed > 0 {
		c.logInfo("Pending requests failed", map[string]interface{}{
			"count": failed,
			"code":  code.String(),
		})
	}
	return failed
}

// Pending retorna la cantidad de requests en vuelo.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) recordOutcome(ctx context.Context, id int64, action string, resp *domain.Response, latency time.Duration) {
	outcome := semconv.OutcomeValues.Success
	switch {
	case resp.Success:
	case resp.Code.IsLocal():
		outcome = semconv.OutcomeValues.LocalError
	default:
		outcome = semconv.OutcomeValues.RemoteError
	}

	attrs := []attribute.KeyValue{
		semconv.Bridge.Action.String(action),
		semconv.Bridge.Outcome.String(outcome),
	}
	if resp.Code.IsLocal() {
		attrs = append(attrs, semconv.Bridge.Code.String(resp.Code.String()))
		c.telemetry.MarkSpanFailed(ctx, resp.Code.String())
	} else if !resp.Success {
		c.telemetry.MarkSpanFailed(ctx, resp.Error)
	}

	c.metrics.RecordRequestResolved(ctx, attrs...)
	if id > 0 && latency > 0 {
		c.metrics.RecordRequestLatency(ctx, float64(latency.Microseconds())/1000, attrs...)
	}
}

func (c *Correlator) recordJournal(p *pendingRequest, resp *domain.Response, latency time.Duration) {
	if c.journal == nil {
		return
	}
	entry := JournalEntry{
		ReqID:      p.id,
		Session:    p.session,
		Action:     p.action,
		Success:    resp.Success,
		Code:       resp.Code.String(),
		Error:      resp.Error,
		LatencyMs:  latency.Milliseconds(),
		FinishedAt: c.clock.Now().UnixMilli(),
	}
	if err := c.journal.Record(entry); err != nil {
		c.logError("Failed to journal request", err, map[string]interface{}{
			"req_id": p.id,
		})
	}
}
