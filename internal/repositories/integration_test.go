//go:build integration

package repositories_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"chat-backend/internal/db"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("chat_service"),
		postgres.WithUsername("chat_user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		os.Exit(1)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Printf("failed to get connection string: %v", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	testDB, err = db.Connect(ctx, dsn, db.Options{MaxOpenConns: 20}, zap.NewNop())
	if err != nil {
		log.Printf("failed to connect: %v", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func createUser(t *testing.T, store repositories.Store, name string) models.User {
	t.Helper()
	u, err := store.Users().CreateUser(context.Background(), models.User{
		ID:        uuid.NewString(),
		Username:  name + "_" + uuid.NewString()[:6],
		CreatedAt: time.Now().UTC(),
	}, "hash")
	require.NoError(t, err)
	return u
}

func TestPostgresConcurrentChatCreation(t *testing.T) {
	store := repositories.NewPostgresStore(testDB)
	a := createUser(t, store, "a")
	b := createUser(t, store, "b")

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a.ID, b.ID
			if i%2 == 1 {
				x, y = y, x
			}
			chat, _, err := store.Chats().CreateChatIfAbsent(context.Background(), models.NewChat(x, y, time.Now().UTC()))
			assert.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, models.CanonicalChatID(a.ID, b.ID), id)
	}
	var count int
	require.NoError(t, testDB.Get(&count, `SELECT COUNT(*) FROM chats WHERE id = $1`, ids[0]))
	assert.Equal(t, 1, count)
}

func TestPostgresAppendEditDeleteRead(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewPostgresStore(testDB)
	a := createUser(t, store, "a")
	b := createUser(t, store, "b")
	chat, _, err := store.Chats().CreateChatIfAbsent(ctx, models.NewChat(a.ID, b.ID, time.Now().UTC()))
	require.NoError(t, err)

	var last time.Time
	for i := 0; i < 5; i++ {
		msg, updated, err := store.Messages().AppendMessage(ctx, models.Message{
			ID:      uuid.Must(uuid.NewV7()).String(),
			ChatID:  chat.ID,
			OwnerID: a.ID,
			Text:    "hello",
			Kind:    models.KindText,
		})
		require.NoError(t, err)
		assert.True(t, msg.Timestamp.After(last))
		last = msg.Timestamp
		assert.Equal(t, i+1, updated.UnreadCount[b.ID])
		require.NotNil(t, updated.LastMessageTime)
		assert.True(t, updated.LastMessageTime.Equal(msg.Timestamp))
	}

	snap, err := store.Messages().ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 5)

	latest := snap.Messages[4]
	_, _, err = store.Messages().EditMessage(ctx, latest.ID, b.ID, "nope")
	assert.ErrorIs(t, err, models.ErrNotOwner)
	edited, updated, err := store.Messages().EditMessage(ctx, latest.ID, a.ID, "edited")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "edited", updated.LastMessagePreview)
	assert.Greater(t, updated.Seq, snap.Seq)

	res, err := store.Messages().MarkRead(ctx, chat.ID, b.ID)
	require.NoError(t, err)
	assert.Len(t, res.MessageIDs, 5)
	assert.True(t, res.UnreadCleared)
	again, err := store.Messages().MarkRead(ctx, chat.ID, b.ID)
	require.NoError(t, err)
	assert.Empty(t, again.MessageIDs)
	assert.Equal(t, res.Chat.Seq, again.Chat.Seq)

	_, _, err = store.Messages().DeleteMessage(ctx, snap.Messages[0].ID, a.ID)
	require.NoError(t, err)
	snap, err = store.Messages().ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 4)
}

func TestPostgresBlockedAppendLeavesChatUntouched(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewPostgresStore(testDB)
	a := createUser(t, store, "a")
	b := createUser(t, store, "b")
	chat, _, err := store.Chats().CreateChatIfAbsent(ctx, models.NewChat(a.ID, b.ID, time.Now().UTC()))
	require.NoError(t, err)

	_, err = store.Chats().SetBlocked(ctx, chat.ID, a.ID, true)
	require.NoError(t, err)

	_, _, err = store.Messages().AppendMessage(ctx, models.Message{
		ID: uuid.Must(uuid.NewV7()).String(), ChatID: chat.ID, OwnerID: a.ID, Text: "x", Kind: models.KindText,
	})
	require.ErrorIs(t, err, models.ErrBlocked)

	after, err := store.Chats().GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, after.LastMessageTime)
	assert.Equal(t, 0, after.UnreadCount[b.ID])
}

func TestPostgresConcurrentUnreadIncrements(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewPostgresStore(testDB)
	a := createUser(t, store, "a")
	b := createUser(t, store, "b")
	chat, _, err := store.Chats().CreateChatIfAbsent(ctx, models.NewChat(a.ID, b.ID, time.Now().UTC()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Chats().IncrementUnread(ctx, chat.ID, b.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	after, err := store.Chats().GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, after.UnreadCount[b.ID])

	n, err := store.Chats().CountUnreadChats(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
