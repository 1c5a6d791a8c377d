package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parley/internal/delegate"
	"parley/internal/shared/logging"
	"parley/internal/stream"
)

// DelegateHandler runs a delegated task synchronously and returns its
// analysis. The run's events still flow to the session stream, so a client
// can watch progress while the request is in flight.
type DelegateHandler struct {
	tool        *delegate.Tool
	broadcaster *stream.Broadcaster
	logger      logging.Logger
}

// NewDelegateHandler creates the handler.
func NewDelegateHandler(tool *delegate.Tool, broadcaster *stream.Broadcaster, logger logging.Logger) *DelegateHandler {
	return &DelegateHandler{tool: tool, broadcaster: broadcaster, logger: logging.OrNop(logger)}
}

type delegateRequest struct {
	SessionID string          `json:"sessionId"`
	Toolkits  json.RawMessage `json:"toolkits"`
	Task      string          `json:"task"`
	Context   string          `json:"context"`
}

// Handle validates and executes one delegated task.
func (h *DelegateHandler) Handle(c *gin.Context) {
	var req delegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	args := map[string]any{"task": req.Task, "context": req.Context}
	if len(req.Toolkits) > 0 {
		var toolkits any
		if err := json.Unmarshal(req.Toolkits, &toolkits); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "toolkits must be a string or array"})
			return
		}
		args["toolkits"] = toolkits
	}

	result, err := h.tool.Execute(c.Request.Context(), userID, args, h.broadcaster.SessionSink(sessionID))
	if err != nil {
		c.JSON(httpStatusFor(err), gin.H{"error": err.Error()})
		return
	}

	var analysis stream.Analysis
	if jsonErr := json.Unmarshal([]byte(result), &analysis); jsonErr == nil {
		c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "analysis": analysis})
		return
	}
	// Batch form or plain-text fallback.
	trimmed := strings.TrimSpace(result)
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "result": json.RawMessage(trimmed)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "result": trimmed})
}
