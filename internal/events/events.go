// Package events defines the structured event envelopes the supervision
// engine emits to its log sink: one event per phase transition, handoff,
// conflict, and consensus computation. Delivery is fire-and-forget; a slow or
// absent sink never blocks the phase loop.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event.
type Type string

const (
	TypePhaseTransition Type = "phase.transition"
	TypeTaskSettled     Type = "task.settled"
	TypeHandoff         Type = "handoff"
	TypeConflict        Type = "conflict"
	TypeConsensus       Type = "consensus"
	TypeRetry           Type = "retry"
	TypeRunCompleted    Type = "run.completed"
)

// Event is the envelope published to sinks. Payload is the JSON encoding of
// the event-specific body.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New creates an event with a fresh ID and current timestamp. Marshal errors
// on the payload degrade to an empty payload rather than failing: events are
// observability, not control flow.
func New(t Type, sessionID string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
}

// Sink consumes events. Implementations must not block; the engine calls
// Publish inline between phases.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// Discard is a Sink that drops every event.
var Discard = SinkFunc(func(Event) {})

// Multi fans events out to several sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ev Event) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(ev)
			}
		}
	})
}
