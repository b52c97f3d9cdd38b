// Package hooks dispatches channel and post office lifecycle events to
// registered handlers.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/rcmesh/internal/logging"
)

// Event names.
const (
	EventChannelJoined   = "channel_joined"
	EventChannelLeft     = "channel_left"
	EventMessageReceived = "message_received"
	EventMessageSending  = "message_sending"
	EventDeliveryFailed  = "delivery_failed"
	EventSessionState    = "session_state"
	EventPostOfficeStart = "postoffice_start"
	EventPostOfficeStop  = "postoffice_stop"
)

// AllEvents lists every event the client and post office emit.
var AllEvents = []string{
	EventChannelJoined,
	EventChannelLeft,
	EventMessageReceived,
	EventMessageSending,
	EventDeliveryFailed,
	EventSessionState,
	EventPostOfficeStart,
	EventPostOfficeStop,
}

// Payload carries event data to hook handlers. Channel-scoped events put
// the canonical channel name under Data["channel"].
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Channel returns the channel the event concerns, or "".
func (p Payload) Channel() string {
	s, _ := p.Data["channel"].(string)
	return s
}

// Handler handles one event. A returned error is logged and does not stop
// later handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager holds hook registrations.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	channel string // "" matches every channel
	handler Handler
}

func (h namedHandler) matches(p Payload) bool {
	return h.channel == "" || strings.EqualFold(h.channel, p.Channel())
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for every occurrence of event.
func (m *Manager) On(event, name string, handler Handler) {
	m.OnChannel(event, "", name, handler)
}

// OnChannel registers a handler that only fires for events about the
// named channel. Channel names compare case-insensitively.
func (m *Manager) OnChannel(event, channel, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, channel: channel, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Str("channel", channel).Msg("hook registered")
}

// Off removes every handler with the given name from event and reports
// how many were removed.
func (m *Manager) Off(event, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	kept := handlers[:0:0]
	for _, h := range handlers {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, event)
	} else {
		m.handlers[event] = kept
	}
	return len(handlers) - len(kept)
}

func (m *Manager) matching(p Payload) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []namedHandler
	for _, h := range m.handlers[p.Event] {
		if h.matches(p) {
			out = append(out, h)
		}
	}
	return out
}

// Emit calls matching handlers in registration order on the caller's
// goroutine.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.matching(p) {
		m.run(ctx, h, p)
	}
}

// EmitAsync calls each matching handler on its own goroutine and returns
// immediately.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	p := Payload{Event: event, Data: data}
	for _, h := range m.matching(p) {
		go m.run(ctx, h, p)
	}
}

// run isolates one handler so a panic or error never reaches the emitter.
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

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns, sorted, the events with at least one handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
