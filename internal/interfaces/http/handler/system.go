package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/musicschool/ledger/internal/interfaces/http/dto"
)

// Pinger reports whether a dependency is reachable
type Pinger func(ctx context.Context) error

// SystemHandler serves liveness
type SystemHandler struct {
	BaseHandler
	startTime time.Time
	checks    map[string]Pinger
}

// NewSystemHandler creates a SystemHandler. checks are run by Health.
func NewSystemHandler(checks map[string]Pinger) *SystemHandler {
	return &SystemHandler{startTime: time.Now(), checks: checks}
}

// Health handles GET /health. It answers 503 when a dependency check fails.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	c.JSON(status, dto.Response{
		Success: status == http.StatusOK,
		Data: gin.H{
			"status":       http.StatusText(status),
			"uptime":       time.Since(h.startTime).Round(time.Second).String(),
			"dependencies": deps,
		},
	})
}
