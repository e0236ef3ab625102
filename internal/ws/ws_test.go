package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/auth"
	"chat-backend/internal/chats"
	"chat-backend/internal/fanout"
	"chat-backend/internal/identity"
	"chat-backend/internal/messages"
	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories/memory"
)

type fixture struct {
	server   *httptest.Server
	hub      *Hub
	identity *identity.Service
	registry *chats.Registry
	messages *messages.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := memory.New()
	engine := fanout.NewEngine(fanout.Options{Logger: logger})
	tokens := auth.NewTokens("ws-secret", time.Hour)
	idSvc := identity.NewService(store.Users(), tokens, engine, logger)
	idSvc.HashCost = bcrypt.MinCost
	registry := chats.NewRegistry(store.Chats(), store.Users(), engine, logger)
	msgLog := messages.NewLog(store, engine, registry, 0, logger)
	hub := NewHub(logger)

	r := gin.New()
	NewHandler(engine, msgLog, registry, idSvc, hub, logger).Register(r, middleware.AuthMiddleware(tokens))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
		engine.Close()
	})

	return &fixture{server: srv, hub: hub, identity: idSvc, registry: registry, messages: msgLog}
}

func (f *fixture) user(t *testing.T, name string) (string, string) {
	t.Helper()
	ctx := context.Background()
	u, err := f.identity.Register(ctx, name, "", "secret1")
	require.NoError(t, err)
	session, err := f.identity.Login(ctx, name, "secret1")
	require.NoError(t, err)
	return u.ID, session.Token
}

func (f *fixture) dial(t *testing.T, path, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestChatStreamDeliversSnapshotThenAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, aliceToken := f.user(t, "alice")
	bob, _ := f.user(t, "bob")

	chat, err := f.registry.GetOrCreateChat(ctx, alice, bob)
	require.NoError(t, err)
	_, err = f.messages.Append(ctx, chat.ID, alice, models.Payload{Text: "first"})
	require.NoError(t, err)

	conn, _, err := f.dial(t, "/ws/chats/"+chat.ID, aliceToken)
	require.NoError(t, err)

	snap := readEvent(t, conn)
	assert.Equal(t, models.EventSnapshot, snap.Type)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "first", snap.Messages[0].Text)

	_, err = f.messages.Append(ctx, chat.ID, bob, models.Payload{Text: "second"})
	require.NoError(t, err)

	ev := readEvent(t, conn)
	assert.Equal(t, models.EventMessageAppended, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "second", ev.Message.Text)
	assert.Greater(t, ev.Seq, snap.Seq)
	assert.Equal(t, 1, f.hub.Count(kindChat))
}

func TestChatStreamRejectsOutsider(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.user(t, "alice")
	bob, _ := f.user(t, "bob")
	_, eveToken := f.user(t, "eve")

	chat, err := f.registry.GetOrCreateChat(context.Background(), alice, bob)
	require.NoError(t, err)

	_, resp, err := f.dial(t, "/ws/chats/"+chat.ID, eveToken)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = f.dial(t, "/ws/chats/"+chat.ID, "bogus")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPresenceAndUnreadStreams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, aliceToken := f.user(t, "alice")
	bob, bobToken := f.user(t, "bob")

	presence, _, err := f.dial(t, "/ws/presence/"+bob, aliceToken)
	require.NoError(t, err)
	ev := readEvent(t, presence)
	assert.Equal(t, models.EventPresence, ev.Type)
	require.NotNil(t, ev.Presence)
	assert.False(t, ev.Presence.Online)

	_, err = f.identity.SetPresence(ctx, bob, true)
	require.NoError(t, err)
	ev = readEvent(t, presence)
	require.NotNil(t, ev.Presence)
	assert.True(t, ev.Presence.Online)

	unread, _, err := f.dial(t, "/ws/unread", bobToken)
	require.NoError(t, err)
	ev = readEvent(t, unread)
	require.NotNil(t, ev.UnreadChats)
	assert.Equal(t, 0, *ev.UnreadChats)

	chat, err := f.registry.GetOrCreateChat(ctx, alice, bob)
	require.NoError(t, err)
	_, err = f.messages.Append(ctx, chat.ID, alice, models.Payload{Text: "ping"})
	require.NoError(t, err)

	ev = readEvent(t, unread)
	assert.Equal(t, models.EventUnread, ev.Type)
	require.NotNil(t, ev.UnreadChats)
	assert.Equal(t, 1, *ev.UnreadChats)
}

func TestHubShutdownSendsGoingAway(t *testing.T) {
	f := newFixture(t)
	_, token := f.user(t, "alice")

	conn, _, err := f.dial(t, "/ws/unread", token)
	require.NoError(t, err)
	readEvent(t, conn)

	require.Eventually(t, func() bool { return f.hub.Count("") == 1 }, time.Second, 10*time.Millisecond)
	f.hub.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return f.hub.Count("") == 0 }, time.Second, 10*time.Millisecond)
}
