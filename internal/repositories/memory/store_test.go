package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/models"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedChat(t *testing.T, s *Store) models.Chat {
	t.Helper()
	chat, created, err := s.Chats().CreateChatIfAbsent(context.Background(), models.NewChat("alice", "bob", now))
	require.NoError(t, err)
	require.True(t, created)
	return chat
}

func TestConcurrentCreateYieldsOneChat(t *testing.T) {
	s := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 0 {
				a, b = b, a
			}
			_, ok, err := s.Chats().CreateChatIfAbsent(context.Background(), models.NewChat(a, b, now))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	chats, err := s.Chats().ListChats(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "alice_bob", chats[0].ID)
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	s := New()
	chat := seedChat(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Chats().IncrementUnread(context.Background(), chat.ID, "bob")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Chats().GetChat(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.UnreadCount["bob"])
}

func TestAppendOrdersTimestampsAndBumpsSeq(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	ctx := context.Background()

	first, c1, err := s.Messages().AppendMessage(ctx, models.Message{ID: "m1", ChatID: chat.ID, OwnerID: "alice", Timestamp: now, Text: "hi", Kind: models.KindText})
	require.NoError(t, err)
	second, c2, err := s.Messages().AppendMessage(ctx, models.Message{ID: "m2", ChatID: chat.ID, OwnerID: "alice", Timestamp: now, Text: "again", Kind: models.KindText})
	require.NoError(t, err)

	assert.True(t, second.Timestamp.After(first.Timestamp))
	assert.Equal(t, c1.Seq+1, c2.Seq)
	assert.Equal(t, 2, c2.UnreadCount["bob"])
	assert.Equal(t, "again", c2.LastMessagePreview)
}

func TestAppendRejectsBlockedSender(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	ctx := context.Background()

	_, err := s.Chats().SetBlocked(ctx, chat.ID, "alice", true)
	require.NoError(t, err)

	_, _, err = s.Messages().AppendMessage(ctx, models.Message{ID: "m1", ChatID: chat.ID, OwnerID: "alice", Timestamp: now, Text: "hi"})
	assert.ErrorIs(t, err, models.ErrBlocked)

	_, _, err = s.Messages().AppendMessage(ctx, models.Message{ID: "m2", ChatID: chat.ID, OwnerID: "bob", Timestamp: now, Text: "hi"})
	assert.NoError(t, err)
}

func TestEditAndDeleteRequireOwner(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	ctx := context.Background()

	_, _, err := s.Messages().AppendMessage(ctx, models.Message{ID: "m1", ChatID: chat.ID, OwnerID: "alice", Timestamp: now, Text: "hi"})
	require.NoError(t, err)

	_, _, err = s.Messages().EditMessage(ctx, "m1", "bob", "x")
	assert.ErrorIs(t, err, models.ErrNotOwner)
	_, _, err = s.Messages().DeleteMessage(ctx, "m1", "bob")
	assert.ErrorIs(t, err, models.ErrNotOwner)

	edited, chatAfter, err := s.Messages().EditMessage(ctx, "m1", "alice", "hello")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "hello", chatAfter.LastMessagePreview)

	_, _, err = s.Messages().DeleteMessage(ctx, "m1", "alice")
	require.NoError(t, err)
	snap, err := s.Messages().ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
	got, err := s.Chats().GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.LastMessagePreview)
}

func TestMarkReadOnlyTouchesOtherParticipantsMessages(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	ctx := context.Background()

	for _, m := range []models.Message{
		{ID: "a1", ChatID: chat.ID, OwnerID: "alice", Timestamp: now, Text: "1"},
		{ID: "b1", ChatID: chat.ID, OwnerID: "bob", Timestamp: now, Text: "2"},
		{ID: "a2", ChatID: chat.ID, OwnerID: "alice", Timestamp: now, Text: "3"},
	} {
		_, _, err := s.Messages().AppendMessage(ctx, m)
		require.NoError(t, err)
	}

	res, err := s.Messages().MarkRead(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, res.MessageIDs)
	assert.True(t, res.UnreadCleared)
	assert.Equal(t, 0, res.Chat.UnreadCount["bob"])
	assert.Equal(t, 1, res.Chat.UnreadCount["alice"])

	again, err := s.Messages().MarkRead(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, again.MessageIDs)
	assert.Equal(t, res.Chat.Seq, again.Chat.Seq)
}

func TestUsernameUniquenessIsCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Users().CreateUser(ctx, models.User{ID: "u1", Username: "Alice", Email: "a@x.io"}, "h")
	require.NoError(t, err)
	_, err = s.Users().CreateUser(ctx, models.User{ID: "u2", Username: "alice", Email: "b@x.io"}, "h")
	assert.ErrorIs(t, err, models.ErrUsernameTaken)
	_, err = s.Users().CreateUser(ctx, models.User{ID: "u3", Username: "carol", Email: "A@X.io"}, "h")
	assert.ErrorIs(t, err, models.ErrEmailInUse)
}
