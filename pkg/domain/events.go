package domain

import (
	"context"
	"time"
)

// EventKind classifies a stream event.
type EventKind string

const (
	EventData           EventKind = "data"
	EventInterrupt      EventKind = "interrupt"
	EventTerminal       EventKind = "terminal"
	EventTransportError EventKind = "transport_error"
)

// Closes reports whether an event of this kind ends its session.
func (k EventKind) Closes() bool {
	return k != EventData
}

// StreamEvent is the single message type a streaming session delivers.
// Exactly the fields belonging to Kind are populated.
type StreamEvent struct {
	Kind  EventKind `json:"kind"`
	RunID RunID     `json:"run_id"`

	// Payload is the decoded data frame (EventData).
	Payload any `json:"payload,omitempty"`

	// Result is the value carried in the payload's "result" field (EventData).
	Result    any  `json:"result,omitempty"`
	HasResult bool `json:"has_result,omitempty"`

	// Interrupt holds the requested fields (EventInterrupt).
	Interrupt InterruptRequest `json:"interrupt,omitempty"`

	// Err describes the failure (EventTransportError).
	Err error `json:"-"`
}

// DataEvent builds a data event. A non-null top-level "result" field in an
// object payload is surfaced as the event's result.
func DataEvent(runID RunID, payload any) StreamEvent {
	ev := StreamEvent{Kind: EventData, RunID: runID, Payload: payload}
	if obj, ok := payload.(map[string]any); ok {
		if res, found := obj["result"]; found && res != nil {
			ev.Result = res
			ev.HasResult = true
		}
	}
	return ev
}

// InterruptEvent builds an interrupt event.
func InterruptEvent(runID RunID, req InterruptRequest) StreamEvent {
	return StreamEvent{Kind: EventInterrupt, RunID: runID, Interrupt: req}
}

// TerminalEvent builds the end-of-stream event.
func TerminalEvent(runID RunID) StreamEvent {
	return StreamEvent{Kind: EventTerminal, RunID: runID}
}

// TransportErrorEvent builds a connection or framing failure event.
func TransportErrorEvent(runID RunID, err error) StreamEvent {
	return StreamEvent{Kind: EventTransportError, RunID: runID, Err: err}
}

// Transition records one state machine edge taken by the controller.
type Transition struct {
	RunID RunID     `json:"run_id,omitempty"`
	From  RunState  `json:"from"`
	To    RunState  `json:"to"`
	At    time.Time `json:"at"`
	Err   error     `json:"-"`
}

// LifecycleHooks defines callbacks for controller observability.
// Hooks run synchronously while the controller holds its lock: they must
// return quickly and must not call back into the controller.
type LifecycleHooks struct {
	OnTransition  func(context.Context, Transition)
	OnStreamEvent func(context.Context, StreamEvent)
}

// Merge combines hooks so that each callback of h runs before the one of other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition:  chain(h.OnTransition, other.OnTransition),
		OnStreamEvent: chain(h.OnStreamEvent, other.OnStreamEvent),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
