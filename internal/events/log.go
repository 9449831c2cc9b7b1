package events

// Event is a single append-only, fully self-describing record (spec §4.9):
// enough fields to reconstruct a human-readable rendering without
// consulting other state.
type Event struct {
	Tick    int64
	Kind    Kind
	Payload Payload
}

// EventLog is the sole replay medium: two core instances driven by
// identical configuration and seed must produce identical event
// sequences in identical order (spec §2, §8 invariant #1).
type EventLog struct {
	events []Event
}

// NewLog constructs an empty event log.
func NewLog() *EventLog {
	return &EventLog{events: make([]Event, 0, 256)}
}

// Append adds an event at the given tick to the end of the log.
func (l *EventLog) Append(tick int64, kind Kind, payload Payload) Event {
	e := Event{Tick: tick, Kind: kind, Payload: payload}
	l.events = append(l.events, e)
	return e
}

// All returns every event ever appended, in emission order.
func (l *EventLog) All() []Event {
	cp := make([]Event, len(l.events))
	copy(cp, l.events)
	return cp
}

// AtTick returns the events emitted during a specific tick, in emission
// order.
func (l *EventLog) AtTick(tick int64) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Tick == tick {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the total number of events logged so far.
func (l *EventLog) Len() int { return len(l.events) }

// SinceIndex returns a copy of every event from index i (inclusive)
// onward — used by the orchestrator to slice out "this tick's events" for
// the TickResult without re-scanning by tick number.
func (l *EventLog) SinceIndex(i int) []Event {
	if i >= len(l.events) {
		return nil
	}
	cp := make([]Event, len(l.events)-i)
	copy(cp, l.events[i:])
	return cp
}
