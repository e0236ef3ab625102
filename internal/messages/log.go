package messages

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-backend/internal/fanout"
	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
)

// UnreadPublisher emits a user's unread summary after a counter changed.
type UnreadPublisher interface {
	PublishUnread(ctx context.Context, uid string)
}

// Log is the per-chat message log.
type Log struct {
	messages    repositories.MessageRepository
	chats       repositories.ChatRepository
	users       repositories.UserRepository
	events      fanout.Publisher
	unread      UnreadPublisher
	maxFileSize int64
	log         *zap.Logger
	now         func() time.Time
}

func NewLog(store repositories.Store, events fanout.Publisher, unread UnreadPublisher, maxFileSize int64, logger *zap.Logger) *Log {
	return &Log{
		messages:    store.Messages(),
		chats:       store.Chats(),
		users:       store.Users(),
		events:      events,
		unread:      unread,
		maxFileSize: maxFileSize,
		log:         logger.Named("messages"),
		now:         time.Now,
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, models.ErrBlocked):
		return "blocked"
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNotParticipant), errors.Is(err, models.ErrNotOwner):
		return "rejected"
	}
	return "error"
}

// Append validates the payload and commits a new message.
func (l *Log) Append(ctx context.Context, chatID, senderUID string, p models.Payload) (msg models.Message, err error) {
	defer func() { observability.IncMessageOp("append", outcome(err)) }()

	if err := models.ValidatePayload(p, l.maxFileSize); err != nil {
		return models.Message{}, err
	}
	chat, err := l.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	if !chat.IsParticipant(senderUID) {
		return models.Message{}, models.ErrNotParticipant
	}

	msg = models.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		ChatID:        chatID,
		OwnerID:       senderUID,
		Timestamp:     l.now(),
		Text:          p.Text,
		Kind:          p.Kind(),
		File:          p.File,
		IsForwarded:   p.IsForwarded,
		ForwardedFrom: p.ForwardedFrom,
	}
	if p.Contact != nil {
		contact, err := l.users.GetUser(ctx, p.Contact.UserID)
		if errors.Is(err, models.ErrNotFound) {
			return models.Message{}, models.Invalid("contact_user_id", "unknown user")
		}
		if err != nil {
			return models.Message{}, err
		}
		msg.Contact = &models.ContactShare{UserID: contact.ID, Username: contact.Username}
	}
	if p.ReplyToMessageID != "" {
		ref, err := l.replyRef(ctx, chatID, p.ReplyToMessageID)
		if err != nil {
			return models.Message{}, err
		}
		msg.ReplyTo = ref
	}

	stored, chat, err := l.messages.AppendMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}

	l.publish(models.EventMessageAppended, chat, func(ev *models.Event) {
		ev.UserID = senderUID
		ev.Message = &stored
		ev.MessageID = stored.ID
	})
	l.unread.PublishUnread(ctx, chat.Other(senderUID))
	return stored, nil
}

func (l *Log) replyRef(ctx context.Context, chatID, messageID string) (*models.ReplyRef, error) {
	target, err := l.messages.GetMessage(ctx, messageID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && target.ChatID != chatID) {
		return nil, models.Invalid("reply_to_message_id", "no such message in this chat")
	}
	if err != nil {
		return nil, err
	}
	ref := &models.ReplyRef{MessageID: target.ID, Text: target.Text}
	if target.File != nil {
		ref.FileType = target.File.Type
	}
	owner, err := l.users.GetUser(ctx, target.OwnerID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	ref.OwnerName = owner.Username
	return ref, nil
}

// Edit replaces the text of the caller's own message.
func (l *Log) Edit(ctx context.Context, callerUID, messageID, text string) (msg models.Message, err error) {
	defer func() { observability.IncMessageOp("edit", outcome(err)) }()

	if err := models.ValidateEditText(text); err != nil {
		return models.Message{}, err
	}
	msg, chat, err := l.messages.EditMessage(ctx, messageID, callerUID, text)
	if err != nil {
		return models.Message{}, err
	}
	l.publish(models.EventMessageEdited, chat, func(ev *models.Event) {
		ev.UserID = callerUID
		ev.Message = &msg
		ev.MessageID = msg.ID
	})
	return msg, nil
}

// Delete removes the caller's own message and returns what was deleted.
func (l *Log) Delete(ctx context.Context, callerUID, messageID string) (msg models.Message, err error) {
	defer func() { observability.IncMessageOp("delete", outcome(err)) }()

	msg, chat, err := l.messages.DeleteMessage(ctx, messageID, callerUID)
	if err != nil {
		return models.Message{}, err
	}
	l.publish(models.EventMessageDeleted, chat, func(ev *models.Event) {
		ev.UserID = callerUID
		ev.MessageID = msg.ID
	})
	return msg, nil
}

// MarkRead flags the other participant's messages as read and clears the reader's counter.
// It returns how many messages changed.
func (l *Log) MarkRead(ctx context.Context, chatID, readerUID string) (n int, err error) {
	defer func() { observability.IncMessageOp("read", outcome(err)) }()

	res, err := l.messages.MarkRead(ctx, chatID, readerUID)
	if err != nil {
		return 0, err
	}
	if len(res.MessageIDs) > 0 || res.UnreadCleared {
		l.publish(models.EventMessagesRead, res.Chat, func(ev *models.Event) {
			ev.UserID = readerUID
			ev.ReaderID = readerUID
			ev.MessageIDs = res.MessageIDs
		})
	}
	if res.UnreadCleared {
		l.unread.PublishUnread(ctx, readerUID)
	}
	return len(res.MessageIDs), nil
}

// List returns the chat's messages in commit order.
func (l *Log) List(ctx context.Context, callerUID, chatID string) (models.Snapshot, error) {
	if err := l.authorize(ctx, callerUID, chatID); err != nil {
		return models.Snapshot{}, err
	}
	return l.messages.ListMessages(ctx, chatID)
}

// Get returns one message of a chat the caller participates in.
func (l *Log) Get(ctx context.Context, callerUID, messageID string) (models.Message, error) {
	msg, err := l.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if err := l.authorize(ctx, callerUID, msg.ChatID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SnapshotFor returns the loader a chat subscription starts from.
func (l *Log) SnapshotFor(callerUID, chatID string) fanout.SnapshotFunc {
	return func(ctx context.Context) (models.Snapshot, error) {
		return l.List(ctx, callerUID, chatID)
	}
}

func (l *Log) authorize(ctx context.Context, callerUID, chatID string) error {
	chat, err := l.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsParticipant(callerUID) {
		return models.ErrNotParticipant
	}
	return nil
}

func (l *Log) publish(t models.EventType, chat models.Chat, fill func(ev *models.Event)) {
	c := chat.Clone()
	ev := models.Event{
		Type:   t,
		ChatID: chat.ID,
		Seq:    chat.Seq,
		Chat:   &c,
		At:     l.now().UTC(),
	}
	fill(&ev)
	l.events.Publish(ev)
}
