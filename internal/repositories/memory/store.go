// Package memory is a single-process Store used by tests and the memory driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

type userRecord struct {
	user         models.User
	passwordHash string
}

// Store keeps every table behind one mutex so each operation is atomic.
type Store struct {
	mu       sync.Mutex
	users    map[string]*userRecord
	chats    map[string]*models.Chat
	messages map[string][]models.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    map[string]*userRecord{},
		chats:    map[string]*models.Chat{},
		messages: map[string][]models.Message{},
	}
}

func (s *Store) Users() repositories.UserRepository       { return (*userRepo)(s) }
func (s *Store) Chats() repositories.ChatRepository       { return (*chatRepo)(s) }
func (s *Store) Messages() repositories.MessageRepository { return (*messageRepo)(s) }

type userRepo Store

func (r *userRepo) usernameTaken(username, exceptID string) bool {
	for id, rec := range r.users {
		if id != exceptID && strings.EqualFold(rec.user.Username, username) {
			return true
		}
	}
	return false
}

func (r *userRepo) emailTaken(email, exceptID string) bool {
	if email == "" {
		return false
	}
	for id, rec := range r.users {
		if id != exceptID && strings.EqualFold(rec.user.Email, email) {
			return true
		}
	}
	return false
}

func (r *userRepo) CreateUser(_ context.Context, user models.User, passwordHash string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return models.User{}, models.ErrConflict
	}
	if r.usernameTaken(user.Username, "") {
		return models.User{}, models.ErrUsernameTaken
	}
	if r.emailTaken(user.Email, "") {
		return models.User{}, models.ErrEmailInUse
	}
	r.users[user.ID] = &userRecord{user: user, passwordHash: passwordHash}
	return user, nil
}

func (r *userRepo) GetUser(_ context.Context, userID string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[userID]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return rec.user, nil
}

func (r *userRepo) GetUsers(_ context.Context, userIDs []string) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(userIDs))
	for _, id := range userIDs {
		if rec, ok := r.users[id]; ok {
			out = append(out, rec.user)
		}
	}
	return out, nil
}

func (r *userRepo) GetCredentials(_ context.Context, username string) (models.User, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.users {
		if strings.EqualFold(rec.user.Username, username) {
			return rec.user, rec.passwordHash, nil
		}
	}
	return models.User{}, "", models.ErrNotFound
}

func (r *userRepo) UpdateProfile(_ context.Context, userID string, field models.ProfileField, value string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[userID]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	switch field {
	case models.FieldUsername:
		if r.usernameTaken(value, userID) {
			return models.User{}, models.ErrUsernameTaken
		}
		rec.user.Username = value
	case models.FieldEmail:
		if r.emailTaken(value, userID) {
			return models.User{}, models.ErrEmailInUse
		}
		rec.user.Email = value
		rec.user.EmailVerified = false
	case models.FieldPhone:
		rec.user.Phone = value
	case models.FieldBirthday:
		rec.user.Birthday = value
	case models.FieldProfileImageURL:
		rec.user.ProfileImageURL = value
	default:
		return models.User{}, models.Invalid(string(field), "unknown field")
	}
	return rec.user, nil
}

func (r *userRepo) SetPresence(_ context.Context, userID string, online bool, at time.Time) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.users[userID]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	rec.user.Online = online
	if !online {
		seen := at
		rec.user.LastSeen = &seen
	}
	return rec.user, nil
}

func (r *userRepo) SearchByPrefix(_ context.Context, prefix string, limit int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix = strings.ToLower(prefix)
	out := []models.User{}
	for _, rec := range r.users {
		if strings.HasPrefix(strings.ToLower(rec.user.Username), prefix) {
			out = append(out, rec.user)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type chatRepo Store

func (r *chatRepo) CreateChatIfAbsent(_ context.Context, chat models.Chat) (models.Chat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.chats[chat.ID]; ok {
		return existing.Clone(), false, nil
	}
	stored := chat.Clone()
	r.chats[chat.ID] = &stored
	return stored.Clone(), true, nil
}

func (r *chatRepo) GetChat(_ context.Context, chatID string) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return models.Chat{}, models.ErrNotFound
	}
	return chat.Clone(), nil
}

func (r *chatRepo) ListChats(_ context.Context, userID string) ([]models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Chat{}
	for _, chat := range r.chats {
		if chat.IsParticipant(userID) {
			out = append(out, chat.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageTime, out[j].LastMessageTime
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *chatRepo) member(chatID, userID string) (*models.Chat, error) {
	chat, ok := r.chats[chatID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !chat.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}
	return chat, nil
}

func (r *chatRepo) SetBlocked(_ context.Context, chatID string, userID string, blocked bool) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, err := r.member(chatID, userID)
	if err != nil {
		return models.Chat{}, err
	}
	chat.BlockedUsers[userID] = blocked
	chat.Seq++
	return chat.Clone(), nil
}

func (r *chatRepo) SetMuted(_ context.Context, chatID string, userID string, muted bool) (models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, err := r.member(chatID, userID)
	if err != nil {
		return models.Chat{}, err
	}
	chat.MutedBy[userID] = muted
	chat.Seq++
	return chat.Clone(), nil
}

func (r *chatRepo) IncrementUnread(_ context.Context, chatID string, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, err := r.member(chatID, userID)
	if err != nil {
		return 0, models.ErrNotFound
	}
	chat.UnreadCount[userID]++
	return chat.UnreadCount[userID], nil
}

func (r *chatRepo) ResetUnread(_ context.Context, chatID string, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, err := r.member(chatID, userID)
	if err != nil {
		return false, models.ErrNotFound
	}
	had := chat.UnreadCount[userID] > 0
	chat.UnreadCount[userID] = 0
	return had, nil
}

func (r *chatRepo) CountUnreadChats(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, chat := range r.chats {
		if chat.IsParticipant(userID) && chat.UnreadCount[userID] > 0 {
			count++
		}
	}
	return count, nil
}

type messageRepo Store

func (r *messageRepo) AppendMessage(_ context.Context, msg models.Message) (models.Message, models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[msg.ChatID]
	if !ok {
		return models.Message{}, models.Chat{}, models.ErrNotFound
	}
	if !chat.IsParticipant(msg.OwnerID) {
		return models.Message{}, models.Chat{}, models.ErrNotParticipant
	}
	if chat.BlockedUsers[msg.OwnerID] {
		return models.Message{}, models.Chat{}, models.ErrBlocked
	}

	msg.Timestamp = repositories.NextTimestamp(msg.Timestamp, chat.LastMessageTime)
	r.messages[msg.ChatID] = append(r.messages[msg.ChatID], msg)

	ts := msg.Timestamp
	chat.LastMessageTime = &ts
	chat.LastMessagePreview = models.PreviewOf(msg)
	chat.UnreadCount[chat.Other(msg.OwnerID)]++
	chat.Seq++
	return msg, chat.Clone(), nil
}

func (r *messageRepo) find(messageID string) (int, *models.Message) {
	for _, msgs := range r.messages {
		for i := range msgs {
			if msgs[i].ID == messageID {
				return i, &msgs[i]
			}
		}
	}
	return -1, nil
}

func (r *messageRepo) GetMessage(_ context.Context, messageID string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, msg := r.find(messageID)
	if msg == nil {
		return models.Message{}, models.ErrNotFound
	}
	return *msg, nil
}

func (r *messageRepo) EditMessage(_ context.Context, messageID string, editorID string, text string) (models.Message, models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, msg := r.find(messageID)
	if msg == nil {
		return models.Message{}, models.Chat{}, models.ErrNotFound
	}
	if msg.OwnerID != editorID {
		return models.Message{}, models.Chat{}, models.ErrNotOwner
	}
	msg.Text = text
	msg.IsEdited = true

	chat := r.chats[msg.ChatID]
	if chat.LastMessageTime != nil && msg.Timestamp.Equal(*chat.LastMessageTime) {
		chat.LastMessagePreview = models.PreviewOf(*msg)
	}
	chat.Seq++
	return *msg, chat.Clone(), nil
}

func (r *messageRepo) DeleteMessage(_ context.Context, messageID string, ownerID string) (models.Message, models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, msg := r.find(messageID)
	if msg == nil {
		return models.Message{}, models.Chat{}, models.ErrNotFound
	}
	if msg.OwnerID != ownerID {
		return models.Message{}, models.Chat{}, models.ErrNotOwner
	}
	deleted := *msg
	msgs := r.messages[deleted.ChatID]
	r.messages[deleted.ChatID] = append(msgs[:idx:idx], msgs[idx+1:]...)

	chat := r.chats[deleted.ChatID]
	chat.Seq++
	return deleted, chat.Clone(), nil
}

func (r *messageRepo) MarkRead(_ context.Context, chatID string, readerID string) (models.ReadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return models.ReadResult{}, models.ErrNotFound
	}
	if !chat.IsParticipant(readerID) {
		return models.ReadResult{}, models.ErrNotParticipant
	}
	ids := []string{}
	msgs := r.messages[chatID]
	for i := range msgs {
		if msgs[i].OwnerID != readerID && !msgs[i].Read {
			msgs[i].Read = true
			ids = append(ids, msgs[i].ID)
		}
	}
	cleared := chat.UnreadCount[readerID] > 0
	chat.UnreadCount[readerID] = 0
	if len(ids) > 0 || cleared {
		chat.Seq++
	}
	return models.ReadResult{MessageIDs: ids, Chat: chat.Clone(), UnreadCleared: cleared}, nil
}

func (r *messageRepo) ListMessages(_ context.Context, chatID string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	if !ok {
		return models.Snapshot{}, models.ErrNotFound
	}
	msgs := make([]models.Message, len(r.messages[chatID]))
	copy(msgs, r.messages[chatID])
	return models.Snapshot{ChatID: chatID, Seq: chat.Seq, Messages: msgs}, nil
}
