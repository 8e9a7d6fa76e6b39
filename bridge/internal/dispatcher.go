package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xKoRx/qmtbridge/sdk/telemetry"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/metricbundle"
	"github.com/xKoRx/qmtbridge/sdk/telemetry/semconv"
)

// EventHandler recibe el payload de un evento.
//
// Corre en la goroutine lectora del response pipe: no debe bloquear ni
// esperar un reply del motor (ver Bridge.Subscribe).
type EventHandler func(ctx context.Context, data json.RawMessage)

type subscription struct {
	id      uint64
	handler EventHandler
}

// Dispatcher entrega eventos con nombre a sus suscriptores.
//
// Los handlers se invocan de forma sincrónica en orden de registro. Un
// handler que entra en pánico se loggea y no afecta al resto.
type Dispatcher struct {
	logHelper
	metrics *metricbundle.BridgeMetrics

	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

// NewDispatcher crea un Dispatcher vacío.
func NewDispatcher(tel *telemetry.Client, metrics *metricbundle.BridgeMetrics) *Dispatcher {
	return &Dispatcher{
		logHelper: newLogHelper(tel, "dispatcher"),
		metrics:   metrics,
		subs:      make(map[string][]subscription),
	}
}

// Subscribe registra handler para el evento name.
//
// La función retornada lo desregistra; llamarla más de una vez no hace nada.
func (d *Dispatcher) Subscribe(name string, handler EventHandler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[name] = append(d.subs[name], subscription{id: id, handler: handler})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(name, id) })
	}
}

func (d *Dispatcher) unsubscribe(name string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subs[name]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copia nueva: un Publish en curso conserva su snapshot
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(d.subs, name)
		} else {
			d.subs[name] = next
		}
		return
	}
}

// Publish entrega data a los suscriptores de name y retorna cuántos hubo.
func (d *Dispatcher) Publish(ctx context.Context, name string, data json.RawMessage) int {
	d.mu.RLock()
	subs := d.subs[name]
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.logDebug("Event without subscribers", map[string]interface{}{
			"event": name,
		})
		return 0
	}

	for _, s := range subs {
		d.invoke(ctx, name, s, data)
	}

	d.metrics.RecordEventDispatched(ctx, len(subs), semconv.Bridge.Event.String(name))
	return len(subs)
}

// PublishValue serializa v y lo publica. Usado para eventos de ciclo de vida.
func (d *Dispatcher) PublishValue(ctx context.Context, name string, v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		d.logError("Failed to marshal event payload", err, map[string]interface{}{
			"event": name,
		})
		return 0
	}
	return d.Publish(ctx, name, data)
}

// Subscribers retorna la cantidad de handlers registrados para name.
func (d *Dispatcher) Subscribers(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[name])
}

func (d *Dispatcher) invoke(ctx context.Context, name string, s subscription, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordEventHandlerPanic(ctx, semconv.Bridge.Event.String(name))
			d.logError("Event handler panicked", fmt.Errorf("panic: %v", r), map[string]interface{}{
				"event":         name,
				"subscriber_id": int64(s.id),
			})
		}
	}()
	s.handler(ctx, data)
}
