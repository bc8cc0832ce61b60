package orchestrator

import (
	"sync"
	"time"
)

// EventType classifies orchestrator lifecycle and automation events.
type EventType string

const (
	EventStarted         EventType = "started"
	EventStopped         EventType = "stopped"
	EventCycleCompleted  EventType = "cycle_completed"
	EventAlert           EventType = "alert"
	EventIncidentCreated EventType = "incident_created"
)

// Event is a single orchestrator occurrence delivered to subscribers.
type Event struct {
	Type      EventType              `json:"type"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Emitter fans events out to subscribers over buffered channels. Delivery is
// best effort: a subscriber that stops draining loses events rather than
// stalling the control loops.
type Emitter struct {
	mu        sync.Mutex
	subs      []chan Event
	closed    bool
	closeOnce sync.Once
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe returns a channel receiving future events. The channel is closed
// when the emitter shuts down.
func (e *Emitter) Subscribe() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, 64)
	if e.closed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

// Emit delivers an event to every subscriber without blocking.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close shuts the emitter and closes all subscriber channels. Safe to call
// more than once.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		for _, ch := range e.subs {
			close(ch)
		}
		e.subs = nil
	})
}
