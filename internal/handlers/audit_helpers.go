package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/middleware"
	"chat-backend/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if uid := middleware.UserID(c); uid != "" {
		return &uid
	}
	return nil
}

func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action, resource string, attrs map[string]string) {
	emitter.Record(c.Request.Context(), telemetry.AuditRecord{
		Text:      action + " " + resource,
		Action:    action,
		Resource:  resource,
		Attrs:     attrs,
		RequestID: requestIDFromContext(c),
		UserID:    middleware.UserID(c),
	})
}
