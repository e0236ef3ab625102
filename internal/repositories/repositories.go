package repositories

import (
	"context"
	"time"

	"chat-backend/internal/models"
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
	GetCredentials(ctx context.Context, username string) (models.User, string, error)
	UpdateProfile(ctx context.Context, userID string, field models.ProfileField, value string) (models.User, error)
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) (models.User, error)
	SearchByPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error)
}

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	// CreateChatIfAbsent inserts chat unless its id exists and returns the stored chat.
	CreateChatIfAbsent(ctx context.Context, chat models.Chat) (models.Chat, bool, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	SetBlocked(ctx context.Context, chatID string, userID string, blocked bool) (models.Chat, error)
	SetMuted(ctx context.Context, chatID string, userID string, muted bool) (models.Chat, error)
	IncrementUnread(ctx context.Context, chatID string, userID string) (int, error)
	// ResetUnread zeroes the counter and reports whether it was non-zero.
	ResetUnread(ctx context.Context, chatID string, userID string) (bool, error)
	CountUnreadChats(ctx context.Context, userID string) (int, error)
}

// MessageRepository defines interactions for chat messages. Every mutation commits
// together with the chat's denormalized fields and bumps the chat's Seq.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, models.Chat, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	EditMessage(ctx context.Context, messageID string, editorID string, text string) (models.Message, models.Chat, error)
	DeleteMessage(ctx context.Context, messageID string, ownerID string) (models.Message, models.Chat, error)
	MarkRead(ctx context.Context, chatID string, readerID string) (models.ReadResult, error)
	ListMessages(ctx context.Context, chatID string) (models.Snapshot, error)
}

// Store bundles the three repositories behind one backend.
type Store interface {
	Users() UserRepository
	Chats() ChatRepository
	Messages() MessageRepository
}

// NextTimestamp returns a commit time strictly after the chat's previous message.
func NextTimestamp(now time.Time, last *time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if last != nil && !now.After(*last) {
		return last.Add(time.Microsecond)
	}
	return now
}
