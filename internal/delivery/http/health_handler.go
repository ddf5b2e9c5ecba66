package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	store  Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(c *gin.Context) {
	overall := "ok"
	redisStatus := "ok"
	status := http.StatusOK
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("Health check: store unreachable", zap.Error(err))
		overall = "degraded"
		redisStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": overall,
		"services": gin.H{
			"redis": redisStatus,
		},
	})
}
