package handlers

import (
	"net/http"

	"github.com/hirescreen/hirescreen/internal/bus"
)

// EventsHandler exposes bus metrics and the dead letter queue.
type EventsHandler struct {
	bus *bus.Bus
}

func NewEventsHandler(b *bus.Bus) *EventsHandler {
	return &EventsHandler{bus: b}
}

func (h *EventsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bus.GetMetrics())
}

func (h *EventsHandler) DeadLetterQueue(w http.ResponseWriter, r *http.Request) {
	dlq := h.bus.DeadLetterQueue()
	writeJSON(w, http.StatusOK, map[string]any{
		"size":   len(dlq),
		"events": dlq,
	})
}

func (h *EventsHandler) ClearDeadLetterQueue(w http.ResponseWriter, r *http.Request) {
	cleared := h.bus.ClearDeadLetterQueue()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}
