package chats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chat-backend/internal/fanout"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

// Registry owns chat creation and per-participant chat state.
type Registry struct {
	chats  repositories.ChatRepository
	users  repositories.UserRepository
	events fanout.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewRegistry(chats repositories.ChatRepository, users repositories.UserRepository, events fanout.Publisher, logger *zap.Logger) *Registry {
	return &Registry{
		chats:  chats,
		users:  users,
		events: events,
		log:    logger.Named("chats"),
		now:    time.Now,
	}
}

// GetOrCreateChat returns the chat between a and b, creating it on first use.
func (r *Registry) GetOrCreateChat(ctx context.Context, a, b string) (models.Chat, error) {
	if a == "" || b == "" {
		return models.Chat{}, models.Invalid("friend_id", "must not be empty")
	}
	if a == b {
		return models.Chat{}, models.Invalid("friend_id", "cannot start a chat with yourself")
	}
	users, err := r.users.GetUsers(ctx, []string{a, b})
	if err != nil {
		return models.Chat{}, err
	}
	if len(users) < 2 {
		return models.Chat{}, models.ErrNotFound
	}

	chat, created, err := r.chats.CreateChatIfAbsent(ctx, models.NewChat(a, b, r.now().UTC()))
	if err != nil {
		return models.Chat{}, err
	}
	if created {
		r.log.Info("chat created", zap.String("chat_id", chat.ID))
	}
	return chat, nil
}

// GetChat returns the chat if callerUID participates in it.
func (r *Registry) GetChat(ctx context.Context, callerUID, chatID string) (models.Chat, error) {
	chat, err := r.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.IsParticipant(callerUID) {
		return models.Chat{}, models.ErrNotParticipant
	}
	return chat, nil
}

// ListChats returns uid's chat list, most recently active first.
func (r *Registry) ListChats(ctx context.Context, uid string) ([]models.ChatSummary, error) {
	chats, err := r.chats.ListChats(ctx, uid)
	if err != nil {
		return nil, err
	}
	friendIDs := make([]string, 0, len(chats))
	for _, chat := range chats {
		friendIDs = append(friendIDs, chat.Other(uid))
	}
	friends, err := r.users.GetUsers(ctx, friendIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(friends))
	for _, u := range friends {
		names[u.ID] = u.Username
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := chat.SummaryFor(uid)
		summary.FriendUsername = names[summary.FriendID]
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// SetBlocked blocks or unblocks targetUID; the caller must be the other participant.
func (r *Registry) SetBlocked(ctx context.Context, callerUID, chatID, targetUID string, blocked bool) (models.Chat, error) {
	chat, err := r.GetChat(ctx, callerUID, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if targetUID == callerUID {
		return models.Chat{}, models.Invalid("user_id", "cannot block yourself")
	}
	if !chat.IsParticipant(targetUID) {
		return models.Chat{}, models.ErrNotParticipant
	}

	updated, err := r.chats.SetBlocked(ctx, chatID, targetUID, blocked)
	if err != nil {
		return models.Chat{}, err
	}
	r.log.Info("chat block changed", zap.String("chat_id", chatID), zap.String("target", targetUID), zap.Bool("blocked", blocked))
	r.publishChat(updated)
	return updated, nil
}

// SetMuted toggles notifications for the caller only.
func (r *Registry) SetMuted(ctx context.Context, callerUID, chatID string, muted bool) (models.Chat, error) {
	if _, err := r.GetChat(ctx, callerUID, chatID); err != nil {
		return models.Chat{}, err
	}
	updated, err := r.chats.SetMuted(ctx, chatID, callerUID, muted)
	if err != nil {
		return models.Chat{}, err
	}
	r.publishChat(updated)
	return updated, nil
}

// IncrementUnread adds one to uid's counter in the chat.
func (r *Registry) IncrementUnread(ctx context.Context, chatID, uid string) (int, error) {
	unread, err := r.chats.IncrementUnread(ctx, chatID, uid)
	if err != nil {
		return 0, err
	}
	r.PublishUnread(ctx, uid)
	return unread, nil
}

// ResetUnread zeroes the caller's counter when they open the chat.
func (r *Registry) ResetUnread(ctx context.Context, callerUID, chatID string) error {
	if _, err := r.GetChat(ctx, callerUID, chatID); err != nil {
		return err
	}
	had, err := r.chats.ResetUnread(ctx, chatID, callerUID)
	if err != nil {
		return err
	}
	if had {
		r.PublishUnread(ctx, callerUID)
	}
	return nil
}

// UnreadChats counts uid's chats with unread messages.
func (r *Registry) UnreadChats(ctx context.Context, uid string) (int, error) {
	return r.chats.CountUnreadChats(ctx, uid)
}

// PublishUnread recomputes uid's unread summary and emits it, stamped with the time
// before the count was read.
func (r *Registry) PublishUnread(ctx context.Context, uid string) {
	at := r.now().UTC()
	count, err := r.chats.CountUnreadChats(ctx, uid)
	if err != nil {
		r.log.Warn("unread summary failed", zap.String("uid", uid), zap.Error(err))
		return
	}
	r.events.Publish(models.Event{Type: models.EventUnread, UserID: uid, UnreadChats: &count, At: at})
}

func (r *Registry) publishChat(chat models.Chat) {
	c := chat.Clone()
	r.events.Publish(models.Event{
		Type:   models.EventChatUpdated,
		ChatID: chat.ID,
		Seq:    chat.Seq,
		Chat:   &c,
		At:     r.now().UTC(),
	})
}
