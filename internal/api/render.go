package api

import "simcash/internal/events"

// eventResponse is the wire shape for one log entry streamed or queried
// over the control plane: the event's kind name plus whatever fields its
// concrete payload carries, serialized as-is.
type eventResponse struct {
	Tick    int64       `json:"tick"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

func renderEvents(evts []events.Event) []eventResponse {
	out := make([]eventResponse, 0, len(evts))
	for _, e := range evts {
		out = append(out, eventResponse{
			Tick:    e.Tick,
			Kind:    e.Kind.String(),
			Payload: e.Payload,
		})
	}
	return out
}
