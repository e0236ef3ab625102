package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-backend/internal/chats"
	"chat-backend/internal/messages"
	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
	"chat-backend/internal/telemetry"
)

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	registry *chats.Registry
	messages *messages.Log
	audit    *telemetry.AuditEmitter
	log      *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(registry *chats.Registry, log *messages.Log, emitter *telemetry.AuditEmitter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		messages: log,
		audit:    emitter,
		log:      logger.Named("handlers.chats"),
	}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	summaries, err := h.registry.ListChats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// StartChat creates or returns the private chat between the caller and friend_id.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chat, err := h.registry.GetOrCreateChat(c.Request.Context(), middleware.UserID(c), req.FriendID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chat.ID, "chat": chat})
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chat, err := h.registry.GetChat(c.Request.Context(), middleware.UserID(c), c.Param("chat_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// Block blocks or unblocks the other participant.
func (h *ChatHandler) Block(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		Blocked *bool  `json:"blocked" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chatID := c.Param("chat_id")
	chat, err := h.registry.SetBlocked(c.Request.Context(), middleware.UserID(c), chatID, req.UserID, *req.Blocked)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	action := "chat.unblock"
	if *req.Blocked {
		action = "chat.block"
	}
	audit(c, h.audit, action, chatID, map[string]string{"target": req.UserID})
	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) Mute(c *gin.Context) {
	var req struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chat, err := h.registry.SetMuted(c.Request.Context(), middleware.UserID(c), c.Param("chat_id"), *req.Muted)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// Open is called when the participant opens the chat screen.
func (h *ChatHandler) Open(c *gin.Context) {
	uid := middleware.UserID(c)
	chatID := c.Param("chat_id")
	if err := h.registry.ResetUnread(c.Request.Context(), uid, chatID); err != nil {
		writeError(c, h.log, err)
		return
	}
	n, err := h.messages.MarkRead(c.Request.Context(), chatID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": n})
}

// MarkUnread bumps the caller's own counter.
func (h *ChatHandler) MarkUnread(c *gin.Context) {
	uid := middleware.UserID(c)
	chatID := c.Param("chat_id")
	if _, err := h.registry.GetChat(c.Request.Context(), uid, chatID); err != nil {
		writeError(c, h.log, err)
		return
	}
	unread, err := h.registry.IncrementUnread(c.Request.Context(), chatID, uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread})
}

// GetChatMessages returns the chat's log in commit order.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	snap, err := h.messages.List(c.Request.Context(), middleware.UserID(c), c.Param("chat_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PostChatMessage appends a message. Delivery happens through the fan-out engine.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req models.Payload
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), c.Param("chat_id"), middleware.UserID(c), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) EditMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !h.messageInChat(c) {
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), middleware.UserID(c), c.Param("message_id"), req.Text)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	if !h.messageInChat(c) {
		return
	}

	msg, err := h.messages.Delete(c.Request.Context(), middleware.UserID(c), c.Param("message_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	audit(c, h.audit, "message.delete", msg.ChatID, map[string]string{"message_id": msg.ID})
	c.Status(http.StatusNoContent)
}

// MarkRead flags the other participant's messages as read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	n, err := h.messages.MarkRead(c.Request.Context(), c.Param("chat_id"), middleware.UserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": n})
}

// messageInChat rejects message ids that belong to another chat.
func (h *ChatHandler) messageInChat(c *gin.Context) bool {
	msg, err := h.messages.Get(c.Request.Context(), middleware.UserID(c), c.Param("message_id"))
	if err != nil {
		writeError(c, h.log, err)
		return false
	}
	if msg.ChatID != c.Param("chat_id") {
		writeError(c, h.log, models.ErrNotFound)
		return false
	}
	return true
}
