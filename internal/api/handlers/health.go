package handlers

import (
	"context"
	"net/http"

	"github.com/ericyu4real/mscac-chatbot/internal/health"
	"github.com/gin-gonic/gin"
)

type HealthReporter interface {
	CheckAll(ctx context.Context) health.OverallHealth
}

type HealthHandler struct {
	checker HealthReporter
}

func NewHealthHandler(checker HealthReporter) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HandleHealth returns 503 only when a required dependency is down;
// a degraded cache still reports 200.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	result := h.checker.CheckAll(c.Request.Context())

	code := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, result)
}
