package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"parley/internal/observability"
	"parley/internal/shared/logging"
	"parley/internal/stream"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
)

// WSHandler streams session events over a websocket for clients that prefer
// it to SSE. The payload per message is the same wire envelope.
type WSHandler struct {
	broadcaster *stream.Broadcaster
	upgrader    websocket.Upgrader
	metrics     *observability.Metrics
	logger      logging.Logger
}

// NewWSHandler creates the handler. checkOrigin decides which origins may
// upgrade; nil allows all, matching the CORS middleware's defaults.
func NewWSHandler(broadcaster *stream.Broadcaster, checkOrigin func(*http.Request) bool, metrics *observability.Metrics, logger logging.Logger) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		metrics: metrics,
		logger:  logging.OrNop(logger),
	}
}

// Handle upgrades the connection and relays session events until either
// side goes away.
func (h *WSHandler) Handle(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.String(http.StatusBadRequest, "session_id required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.logger.Info("websocket connected for session %s", sessionID)
	disconnected := h.metrics.ClientConnected()
	defer disconnected()

	events, cancel := h.broadcaster.Subscribe(sessionID)
	defer cancel()

	// Reader goroutine: surfaces client close and keeps pong handling alive.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range h.broadcaster.History(sessionID) {
		if !h.writeEvent(conn, ev) {
			return
		}
	}

	ping := time.NewTicker(wsPongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			if !h.writeEvent(conn, ev) {
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			h.logger.Info("websocket closed for session %s", sessionID)
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *WSHandler) writeEvent(conn *websocket.Conn, ev stream.Event) bool {
	data, err := stream.Encode(redactEvent(ev))
	if err != nil {
		h.logger.Error("failed to serialize %s event: %v", ev.EventType(), err)
		return true
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	h.metrics.AddEventsEmitted(1)
	return true
}
