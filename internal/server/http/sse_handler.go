// Package http exposes the chat and streaming endpoints.
package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parley/internal/observability"
	"parley/internal/shared/logging"
	"parley/internal/stream"
)

// SSEHandler streams session events to browsers over Server-Sent Events.
type SSEHandler struct {
	broadcaster *stream.Broadcaster
	heartbeat   time.Duration
	metrics     *observability.Metrics
	logger      logging.Logger
}

// NewSSEHandler creates the handler.
func NewSSEHandler(broadcaster *stream.Broadcaster, heartbeat time.Duration, metrics *observability.Metrics, logger logging.Logger) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &SSEHandler{
		broadcaster: broadcaster,
		heartbeat:   heartbeat,
		metrics:     metrics,
		logger:      logging.OrNop(logger),
	}
}

// Handle serves one SSE connection. Retained session history is replayed
// before live events so a reconnecting client can rebuild its segments.
func (h *SSEHandler) Handle(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.String(http.StatusBadRequest, "session_id required")
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h.logger.Info("sse connection established for session %s", sessionID)
	disconnected := h.metrics.ClientConnected()
	defer disconnected()

	events, cancel := h.broadcaster.Subscribe(sessionID)
	defer cancel()

	if _, err := fmt.Fprintf(w, "event: connected\ndata: {\"session_id\":%q}\n\n", sessionID); err != nil {
		return
	}
	flusher.Flush()

	for _, ev := range h.broadcaster.History(sessionID) {
		if !h.writeEvent(w, ev) {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if !h.writeEvent(w, ev) {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-c.Request.Context().Done():
			h.logger.Info("sse connection closed for session %s", sessionID)
			return
		}
	}
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, ev stream.Event) bool {
	data, err := stream.Encode(redactEvent(ev))
	if err != nil {
		h.logger.Error("failed to serialize %s event: %v", ev.EventType(), err)
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType(), data); err != nil {
		return false
	}
	h.metrics.AddEventsEmitted(1)
	return true
}

// redactEvent strips secret-shaped values from tool inputs before they go
// out to a client. The stored event is left untouched.
func redactEvent(ev stream.Event) stream.Event {
	step, ok := ev.(*stream.StepEvent)
	if !ok || step.Kind != stream.StepKindTool || len(step.Input) == 0 {
		return ev
	}
	clean := *step
	clean.Input = sanitizeArguments(step.Input)
	return &clean
}
