package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parley/internal/connector"
	"parley/internal/shared/logging"
)

// RouterConfig collects the handlers and middleware inputs for the HTTP
// surface.
type RouterConfig struct {
	AllowedOrigins []string
	Chat           *ChatHandler
	Delegate       *DelegateHandler
	SSE            *SSEHandler
	WS             *WSHandler
	Directory      connector.Directory
	Logger         logging.Logger
}

// NewRouter builds the gin engine with CORS, health, metrics, and the chat
// and streaming routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/chat", cfg.Chat.Handle)
		api.POST("/delegate", cfg.Delegate.Handle)
		api.GET("/stream", cfg.SSE.Handle)
		api.GET("/ws", cfg.WS.Handle)
		api.GET("/connectors", connectorsHandler(cfg.Directory, cfg.Logger))
	}
	return r
}

// connectorsHandler lists the caller's connector view so clients can offer
// valid toolkit choices.
func connectorsHandler(directory connector.Directory, logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
			return
		}
		toolkits, err := directory.Toolkits(c.Request.Context(), userID)
		if err != nil {
			logger.Error("connector listing failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "connector listing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connectors": toolkits})
	}
}
