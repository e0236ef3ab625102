package chats_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-backend/internal/chats"
	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
)

func newMockedRegistry() (*chats.Registry, *mocks.Store, *mocks.EventsMock) {
	store := mocks.NewStore()
	events := new(mocks.EventsMock)
	return chats.NewRegistry(store.Chats(), store.Users(), events, zap.NewNop()), store, events
}

func TestGetOrCreateChatPropagatesStorageError(t *testing.T) {
	registry, store, events := newMockedRegistry()
	ctx := context.Background()

	store.UsersMock.On("GetUsers", ctx, []string{"u1", "u2"}).
		Return([]models.User{{ID: "u1"}, {ID: "u2"}}, nil)
	store.ChatsMock.On("CreateChatIfAbsent", ctx, mock.MatchedBy(func(c models.Chat) bool {
		return c.ID == "u1_u2"
	})).Return(nil, false, models.ErrRetryable)

	_, err := registry.GetOrCreateChat(ctx, "u1", "u2")
	require.ErrorIs(t, err, models.ErrRetryable)

	store.UsersMock.AssertExpectations(t)
	store.ChatsMock.AssertExpectations(t)
	events.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestGetOrCreateChatUnknownFriend(t *testing.T) {
	registry, store, _ := newMockedRegistry()
	ctx := context.Background()

	store.UsersMock.On("GetUsers", ctx, []string{"u1", "ghost"}).Return([]models.User{{ID: "u1"}}, nil)

	_, err := registry.GetOrCreateChat(ctx, "u1", "ghost")
	require.ErrorIs(t, err, models.ErrNotFound)
	store.ChatsMock.AssertNotCalled(t, "CreateChatIfAbsent", mock.Anything, mock.Anything)
}

func TestSetMutedFailureEmitsNothing(t *testing.T) {
	registry, store, events := newMockedRegistry()
	ctx := context.Background()
	chat := models.NewChat("u1", "u2", time.Now())

	store.ChatsMock.On("GetChat", ctx, chat.ID).Return(chat, nil)
	store.ChatsMock.On("SetMuted", ctx, chat.ID, "u1", true).Return(nil, errors.New("boom"))

	_, err := registry.SetMuted(ctx, "u1", chat.ID, true)
	require.Error(t, err)
	events.AssertNotCalled(t, "Publish", mock.Anything)
}

func TestResetUnreadPublishesOnlyWhenCounterChanged(t *testing.T) {
	registry, store, events := newMockedRegistry()
	ctx := context.Background()
	chat := models.NewChat("u1", "u2", time.Now())

	store.ChatsMock.On("GetChat", ctx, chat.ID).Return(chat, nil)
	store.ChatsMock.On("ResetUnread", ctx, chat.ID, "u1").Return(false, nil).Once()
	require.NoError(t, registry.ResetUnread(ctx, "u1", chat.ID))
	events.AssertNotCalled(t, "Publish", mock.Anything)

	store.ChatsMock.On("ResetUnread", ctx, chat.ID, "u1").Return(true, nil).Once()
	store.ChatsMock.On("CountUnreadChats", ctx, "u1").Return(0, nil)
	events.On("Publish", mock.MatchedBy(func(ev models.Event) bool {
		return ev.Type == models.EventUnread && ev.UserID == "u1" && ev.UnreadChats != nil && *ev.UnreadChats == 0
	})).Once()

	require.NoError(t, registry.ResetUnread(ctx, "u1", chat.ID))
	events.AssertExpectations(t)
	assert.Len(t, events.Calls, 1)
}
