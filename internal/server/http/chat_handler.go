package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parley/internal/chat"
	apperrors "parley/internal/errors"
	"parley/internal/shared/logging"
)

// ChatHandler accepts user turns and starts them asynchronously; clients
// follow progress on the session's event stream.
type ChatHandler struct {
	service *chat.Service
	logger  logging.Logger
}

// NewChatHandler creates the handler.
func NewChatHandler(service *chat.Service, logger logging.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logging.OrNop(logger)}
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// Handle validates the turn, assigns a session id when absent, and kicks
// off processing in the background.
func (h *ChatHandler) Handle(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
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

	turn := chat.Turn{SessionID: sessionID, UserID: userID, Message: req.Message}
	go func() {
		if err := h.service.HandleTurn(context.WithoutCancel(c.Request.Context()), turn); err != nil {
			h.logger.Error("turn for session %s failed: %v", sessionID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"sessionId": sessionID})
}

// httpStatusFor maps resolution errors onto HTTP statuses for synchronous
// validation surfaces.
func httpStatusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsAuthenticationRequired(err):
		return http.StatusUnauthorized
	case apperrors.IsUnavailableConnector(err), apperrors.IsNoToolsAvailable(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
