package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/fanout"
	"chat-backend/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, engine *fanout.Engine, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured", "code": "unavailable"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/subscribers/:chat_id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"chat_id": c.Param("chat_id"), "subscribers": engine.Subscribers(c.Param("chat_id"))})
	})
}
