package agentloop

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart  EventKind = "session_start"
	EventSessionEnd    EventKind = "session_end"
	EventUserInput     EventKind = "user_input"
	EventModelRequest  EventKind = "model_request"
	EventModelResponse EventKind = "model_response"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

// EventData is the free-form payload of a SessionEvent.
type EventData map[string]interface{}

// SessionEvent is one entry of the diagnostic stream. Exchange is "initial"
// or "continuation" for events tied to a model call and empty otherwise.
type SessionEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Exchange  string    `json:"exchange,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// MarshalZerologObject lets a SessionEvent be logged with zerolog's Object.
// Data keys are written in sorted order.
func (ev SessionEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("kind", string(ev.Kind)).Str("session_id", ev.SessionID)
	if ev.Exchange != "" {
		e.Str("exchange", ev.Exchange)
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Interface(k, ev.Data[k])
	}
}

// EventEmitter feeds the session's event channel. Sends never block: when
// the buffer is full the event is counted and discarded.
type EventEmitter struct {
	mu        sync.Mutex
	sessionID string
	ch        chan SessionEvent
	closed    bool
	dropped   int
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit sends an event unrelated to a particular exchange.
func (e *EventEmitter) Emit(kind EventKind, data EventData) {
	e.send(SessionEvent{Kind: kind, Data: data})
}

// EmitExchange sends an event tagged with the exchange it belongs to.
func (e *EventEmitter) EmitExchange(kind EventKind, exchange string, data EventData) {
	e.send(SessionEvent{Kind: kind, Exchange: exchange, Data: data})
}

func (e *EventEmitter) send(ev SessionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	ev.SessionID = e.sessionID
	ev.Timestamp = time.Now()
	select {
	case e.ch <- ev:
	default:
		e.dropped++
	}
}

// Dropped returns how many events were lost to a full buffer.
func (e *EventEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Events returns the read-only event channel. It is closed by Close.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Later sends are ignored.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
