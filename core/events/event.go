package events

// Event represents a structured state change emitted by the contract.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers,
// the append-only journal).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events for the duration of a call frame so that nothing is
// published for a call that ends up rolled back. Flush forwards the buffered
// events in emission order.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.pending = append(b.pending, e)
}

// Flush forwards every buffered event to sink and clears the buffer.
func (b *Buffer) Flush(sink Emitter) {
	if sink != nil {
		for _, e := range b.pending {
			sink.Emit(e)
		}
	}
	b.pending = nil
}

// Discard drops the buffered events without publishing them.
func (b *Buffer) Discard() {
	b.pending = nil
}

// Truncate drops every event buffered after mark, keeping earlier ones. It is
// used to unwind the emissions of a failed nested frame without touching the
// enclosing call's events.
func (b *Buffer) Truncate(mark int) {
	if mark < 0 || mark > len(b.pending) {
		return
	}
	b.pending = b.pending[:mark]
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.pending) }
