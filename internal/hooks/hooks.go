// Package hooks dispatches flowbook lifecycle events to in-process handlers.
// Payloads never carry customer details or key material.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/flowbook/internal/logging"
)

// Event names for the hook system.
const (
	EventBookingConfirmed = "booking_confirmed"
	EventKeyBootstrapped  = "key_bootstrapped"
	EventKeyRegistered    = "key_registered"
	EventServerStart      = "server_start"
	EventServerStop       = "server_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventBookingConfirmed,
	EventKeyBootstrapped,
	EventKeyRegistered,
	EventServerStart,
	EventServerStop,
}

// AsyncTimeout bounds each handler started by EmitAsync.
const AsyncTimeout = 30 * time.Second

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error or a panic is logged and does
// not affect other handlers or the emitter.
type Handler func(ctx context.Context, p Payload) error

// Manager keeps handler registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
	now      func() time.Time
	inflight sync.WaitGroup
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
		now:      time.Now,
	}
}

// Known reports whether event is one of AllEvents.
func Known(event string) bool {
	return slices.Contains(AllEvents, event)
}

// On registers a handler for the given event under name. Registering for an
// event nothing emits is allowed but logged.
func (m *Manager) On(event, name string, handler Handler) {
	if !Known(event) {
		m.log.Warn().Str("event", event).Str("handler", name).Msg("handler registered for unknown event")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

// Emit calls the handlers of event one after another, in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers, payload := m.prepare(event, data)
	for _, h := range handlers {
		m.run(ctx, h, payload)
	}
}

// EmitAsync starts every handler of event in its own goroutine and returns.
// Each handler runs under AsyncTimeout. Use Wait to drain them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers, payload := m.prepare(event, data)
	for _, h := range handlers {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			hctx, cancel := context.WithTimeout(ctx, AsyncTimeout)
			defer cancel()
			m.run(hctx, h, payload)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}

func (m *Manager) prepare(event string, data map[string]any) ([]namedHandler, Payload) {
	m.mu.RLock()
	handlers := slices.Clone(m.handlers[event])
	m.mu.RUnlock()
	return handlers, Payload{Event: event, At: m.now(), Data: data}
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("event", p.Event).
				Str("handler", h.name).
				Str("panic", fmt.Sprint(r)).
				Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler error")
	}
}
