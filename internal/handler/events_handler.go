package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/service"
)

const sseHeartbeat = 30 * time.Second

// EventsHandler streams integration status changes over SSE.
type EventsHandler struct {
	bus *service.EventBus
}

// NewEventsHandler creates an SSE handler over bus.
func NewEventsHandler(bus *service.EventBus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Register sets up the event stream route. EventSource cannot set headers,
// so protect must accept the token query parameter.
func (h *EventsHandler) Register(router fiber.Router, protect fiber.Handler) {
	router.Get("/github/events", protect, h.Stream)
}

// Stream writes one SSE message per integration event until the client
// goes away. Idle streams get a comment line every sseHeartbeat and a failed
// flush ends the stream.
func (h *EventsHandler) Stream(c fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	ch := h.bus.Subscribe()

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.bus.Unsubscribe(ch)

		ticker := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()
		if err := writeEvents(w, ch, ticker.C); err != nil {
			slog.Debug("SSE client disconnected", "error", err)
		}
	})
}

// writeEvents copies events to w and sends a comment line on every
// heartbeat tick. It returns when ch is closed or a flush fails.
func writeEvents(w *bufio.Writer, ch <-chan domain.IntegrationEvent, heartbeat <-chan time.Time) error {
	fmt.Fprintf(w, ": connected\n\n")
	if err := w.Flush(); err != nil {
		return err
	}

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			data, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
		case <-heartbeat:
			fmt.Fprintf(w, ": ping\n\n")
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}
