package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	args := m.Called(ctx, user, passwordHash)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) GetCredentials(ctx context.Context, username string) (models.User, string, error) {
	args := m.Called(ctx, username)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.String(1), args.Error(2)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, userID string, field models.ProfileField, value string) (models.User, error) {
	args := m.Called(ctx, userID, field, value)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) SetPresence(ctx context.Context, userID string, online bool, at time.Time) (models.User, error) {
	args := m.Called(ctx, userID, online, at)
	var out models.User
	if val := args.Get(0); val != nil {
		out = val.(models.User)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	args := m.Called(ctx, prefix, limit)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChatIfAbsent(ctx context.Context, chat models.Chat) (models.Chat, bool, error) {
	args := m.Called(ctx, chat)
	var out models.Chat
	if val := args.Get(0); val != nil {
		out = val.(models.Chat)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) SetBlocked(ctx context.Context, chatID string, userID string, blocked bool) (models.Chat, error) {
	args := m.Called(ctx, chatID, userID, blocked)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) SetMuted(ctx context.Context, chatID string, userID string, muted bool) (models.Chat, error) {
	args := m.Called(ctx, chatID, userID, muted)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IncrementUnread(ctx context.Context, chatID string, userID string) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) ResetUnread(ctx context.Context, chatID string, userID string) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) CountUnreadChats(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, msg models.Message) (models.Message, models.Chat, error) {
	args := m.Called(ctx, msg)
	var (
		out  models.Message
		chat models.Chat
	)
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	if val := args.Get(1); val != nil {
		chat = val.(models.Chat)
	}
	return out, chat, args.Error(2)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID string, editorID string, text string) (models.Message, models.Chat, error) {
	args := m.Called(ctx, messageID, editorID, text)
	var (
		out  models.Message
		chat models.Chat
	)
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	if val := args.Get(1); val != nil {
		chat = val.(models.Chat)
	}
	return out, chat, args.Error(2)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID string, ownerID string) (models.Message, models.Chat, error) {
	args := m.Called(ctx, messageID, ownerID)
	var (
		out  models.Message
		chat models.Chat
	)
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	if val := args.Get(1); val != nil {
		chat = val.(models.Chat)
	}
	return out, chat, args.Error(2)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, chatID string, readerID string) (models.ReadResult, error) {
	args := m.Called(ctx, chatID, readerID)
	var res models.ReadResult
	if val := args.Get(0); val != nil {
		res = val.(models.ReadResult)
	}
	return res, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, chatID string) (models.Snapshot, error) {
	args := m.Called(ctx, chatID)
	var snap models.Snapshot
	if val := args.Get(0); val != nil {
		snap = val.(models.Snapshot)
	}
	return snap, args.Error(1)
}

// Store bundles the repository mocks behind repositories.Store.
type Store struct {
	UsersMock    *UserRepositoryMock
	ChatsMock    *ChatRepositoryMock
	MessagesMock *MessageRepositoryMock
}

func NewStore() *Store {
	return &Store{
		UsersMock:    new(UserRepositoryMock),
		ChatsMock:    new(ChatRepositoryMock),
		MessagesMock: new(MessageRepositoryMock),
	}
}

func (s *Store) Users() repositories.UserRepository       { return s.UsersMock }
func (s *Store) Chats() repositories.ChatRepository       { return s.ChatsMock }
func (s *Store) Messages() repositories.MessageRepository { return s.MessagesMock }
