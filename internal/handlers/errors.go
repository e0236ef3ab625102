package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-backend/internal/identity"
	"chat-backend/internal/models"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: ErrBlocked must be checked before the generic 403s.
var errorTable = []errorMapping{
	{models.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{models.ErrBlocked, http.StatusForbidden, "blocked", "sender is blocked in this chat"},
	{models.ErrNotParticipant, http.StatusForbidden, "not_participant", "not a chat member"},
	{models.ErrNotOwner, http.StatusForbidden, "not_owner", "only the sender can change this message"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden", "not allowed"},
	{models.ErrUsernameTaken, http.StatusConflict, "username_taken", "username already taken"},
	{models.ErrEmailInUse, http.StatusConflict, "email_in_use", "email already in use"},
	{models.ErrConflict, http.StatusConflict, "conflict", "conflicting update, retry"},
	{models.ErrWeakPassword, http.StatusBadRequest, "weak_password", "password must have 6+ characters with a letter and a digit"},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid username or password"},
	{models.ErrRetryable, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable"},
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "code": "validation", "field": verr.Field})
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"error": m.message, "code": m.code})
			return
		}
	}
	logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
}
