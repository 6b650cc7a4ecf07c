package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/audit", func(c *gin.Context) {
		var req struct {
			Level string `json:"level"`
			Text  string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Level == "" {
			req.Level = "INFO"
		}

		emitter.Emit(c.Request.Context(), req.Level, req.Text, requestIDFromContext(c), nil)
		c.JSON(http.StatusAccepted, gin.H{"status": "emitted"})
	})
}
