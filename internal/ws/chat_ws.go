package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"chat-backend/internal/chats"
	"chat-backend/internal/fanout"
	"chat-backend/internal/identity"
	"chat-backend/internal/messages"
	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

const (
	kindChat     = "chat"
	kindPresence = "presence"
	kindUnread   = "unread"
)

// Handler upgrades subscription requests into websocket streams.
type Handler struct {
	engine   *fanout.Engine
	messages *messages.Log
	registry *chats.Registry
	identity *identity.Service
	hub      *Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(engine *fanout.Engine, log *messages.Log, registry *chats.Registry, idSvc *identity.Service, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		messages: log,
		registry: registry,
		identity: idSvc,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.Named("ws"),
	}
}

// Register mounts the subscription endpoints behind auth.
func (h *Handler) Register(router gin.IRouter, protected ...gin.HandlerFunc) {
	group := router.Group("/ws", protected...)
	group.GET("/chats/:chat_id", h.Chat)
	group.GET("/presence/:uid", h.Presence)
	group.GET("/unread", h.Unread)
}

// Chat streams a snapshot of the chat followed by its changes.
func (h *Handler) Chat(c *gin.Context) {
	uid := middleware.UserID(c)
	chatID := c.Param("chat_id")
	h.serve(c, kindChat, chatID, func(ctx context.Context) (*fanout.Subscription, error) {
		return h.engine.SubscribeChat(ctx, chatID, h.messages.SnapshotFor(uid, chatID))
	})
}

// Presence streams a user's online state.
func (h *Handler) Presence(c *gin.Context) {
	target := c.Param("uid")
	h.serve(c, kindPresence, target, func(ctx context.Context) (*fanout.Subscription, error) {
		return h.engine.SubscribePresence(ctx, target, func(ctx context.Context) (models.Presence, error) {
			return h.identity.Presence(ctx, target)
		})
	})
}

// Unread streams the caller's count of chats with unread messages.
func (h *Handler) Unread(c *gin.Context) {
	uid := middleware.UserID(c)
	h.serve(c, kindUnread, uid, func(ctx context.Context) (*fanout.Subscription, error) {
		return h.engine.SubscribeUnread(ctx, uid, func(ctx context.Context) (int, error) {
			return h.registry.UnreadChats(ctx, uid)
		})
	})
}

func (h *Handler) serve(c *gin.Context, kind, resourceID string, subscribe func(ctx context.Context) (*fanout.Subscription, error)) {
	ctx, span := otel.Tracer("chat-backend/ws").Start(c.Request.Context(), "ws.handshake")
	span.SetAttributes(attribute.String("ws.kind", kind), attribute.String("ws.resource_id", resourceID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := subscribe(ctx)
	if err != nil {
		span.RecordError(err)
		span.End()
		h.rejectHandshake(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.End()
		sub.Cancel()
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Kind:        kind,
		ResourceID:  resourceID,
		UserID:      middleware.UserID(c),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()

	cl := newClient(conn, sub, info, h.log)
	h.hub.add(cl)
	reason, failed := cl.run()
	h.hub.remove(cl, reason, failed)
	h.log.Debug("websocket closed",
		zap.String("kind", kind),
		zap.String("resource_id", resourceID),
		zap.String("conn_id", info.ConnID),
		zap.String("reason", reason),
	)
}

func (h *Handler) rejectHandshake(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
	case errors.Is(err, models.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat", "code": "not_participant"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "code": "validation"})
	case errors.Is(err, fanout.ErrClosed), errors.Is(err, models.ErrRetryable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscriptions unavailable", "code": "unavailable"})
	default:
		h.log.Error("subscribe failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}
