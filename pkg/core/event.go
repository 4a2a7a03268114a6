package core

import (
	"context"
	"sync"
	"time"
)

// EventType identifies a lifecycle event emitted by agents and the pipeline.
type EventType string

const (
	EventAgentDispatched EventType = "agent.dispatched"
	EventAgentStarted    EventType = "agent.started"
	EventAgentPaused     EventType = "agent.paused"
	EventAgentResumed    EventType = "agent.resumed"
	EventStepFinished    EventType = "agent.step.finished"
	EventAgentFinished   EventType = "agent.finished"
	EventAgentError      EventType = "agent.error"
	EventModeDecided     EventType = "pipeline.mode"
)

// Event captures a lifecycle event.
type Event struct {
	Type      EventType
	Agent     string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives lifecycle events. Implementations must not block.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EventRecorder keeps every emitted event in memory. Useful in tests.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements EventEmitter.
func (r *EventRecorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type.
func (r *EventRecorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// NewEvent builds an event with a timestamp.
func NewEvent(eventType EventType, agent string, runID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Agent:     agent,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
