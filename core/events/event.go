package events

// Event represents a structured state change emitted by the protocol core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter records emitted events in order. It backs the RPC event feed
// and deterministic engine tests.
type MemoryEmitter struct {
	events []Event
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	m.events = append(m.events, evt)
}

// Events returns the recorded events in emission order.
func (m *MemoryEmitter) Events() []Event {
	if m == nil {
		return nil
	}
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
