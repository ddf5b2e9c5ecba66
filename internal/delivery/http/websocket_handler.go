package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/domain"
	"github.com/openuav/buildforge/internal/manager"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development; restrict in production
	},
}

// WebSocketHandler handles WebSocket connections for real-time build
// progress updates.
type WebSocketHandler struct {
	mgr    *manager.BuildManager
	logger *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(mgr *manager.BuildManager, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{mgr: mgr, logger: logger}
}

// Stream handles GET /api/v1/builds/:id/stream (WebSocket upgrade)
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.mgr.Get(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Build not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("build_id", id))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		build, err := h.mgr.Get(c.Request.Context(), id)
		if err != nil {
			conn.WriteJSON(gin.H{"error": "Build not found"})
			return
		}

		if err := conn.WriteJSON(domain.Snapshot{BuildID: id, Build: *build}); err != nil {
			h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}

		// Stop streaming once the build reaches a terminal state
		if build.Progress.State.IsTerminal() {
			h.logger.Debug("Build reached terminal state, closing WebSocket", zap.String("build_id", id))
			return
		}
	}
}
