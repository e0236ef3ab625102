package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

const messageColumns = `id, chat_id, owner_id, created_at, text, kind, file_url, file_type, file_name, file_size, duration_ms,
        contact_user_id, contact_username, is_forwarded, forwarded_from, is_edited,
        reply_to_message_id, reply_to_text, reply_to_owner_name, reply_to_file_type, read`

type messageRow struct {
	ID               string    `db:"id"`
	ChatID           string    `db:"chat_id"`
	OwnerID          string    `db:"owner_id"`
	CreatedAt        time.Time `db:"created_at"`
	Text             string    `db:"text"`
	Kind             string    `db:"kind"`
	FileURL          string    `db:"file_url"`
	FileType         string    `db:"file_type"`
	FileName         string    `db:"file_name"`
	FileSize         int64     `db:"file_size"`
	DurationMs       *int64    `db:"duration_ms"`
	ContactUserID    string    `db:"contact_user_id"`
	ContactUsername  string    `db:"contact_username"`
	IsForwarded      bool      `db:"is_forwarded"`
	ForwardedFrom    string    `db:"forwarded_from"`
	IsEdited         bool      `db:"is_edited"`
	ReplyToMessageID string    `db:"reply_to_message_id"`
	ReplyToText      string    `db:"reply_to_text"`
	ReplyToOwnerName string    `db:"reply_to_owner_name"`
	ReplyToFileType  string    `db:"reply_to_file_type"`
	Read             bool      `db:"read"`
}

func rowFromMessage(m models.Message) messageRow {
	row := messageRow{
		ID:            m.ID,
		ChatID:        m.ChatID,
		OwnerID:       m.OwnerID,
		CreatedAt:     m.Timestamp,
		Text:          m.Text,
		Kind:          string(m.Kind),
		IsForwarded:   m.IsForwarded,
		ForwardedFrom: m.ForwardedFrom,
		IsEdited:      m.IsEdited,
		Read:          m.Read,
	}
	if m.File != nil {
		row.FileURL = m.File.URL
		row.FileType = string(m.File.Type)
		row.FileName = m.File.Name
		row.FileSize = m.File.Size
		row.DurationMs = m.File.DurationMs
	}
	if m.Contact != nil {
		row.ContactUserID = m.Contact.UserID
		row.ContactUsername = m.Contact.Username
	}
	if m.ReplyTo != nil {
		row.ReplyToMessageID = m.ReplyTo.MessageID
		row.ReplyToText = m.ReplyTo.Text
		row.ReplyToOwnerName = m.ReplyTo.OwnerName
		row.ReplyToFileType = string(m.ReplyTo.FileType)
	}
	return row
}

func (row messageRow) toModel() models.Message {
	m := models.Message{
		ID:            row.ID,
		ChatID:        row.ChatID,
		OwnerID:       row.OwnerID,
		Timestamp:     row.CreatedAt.UTC(),
		Text:          row.Text,
		Kind:          models.MessageKind(row.Kind),
		IsForwarded:   row.IsForwarded,
		ForwardedFrom: row.ForwardedFrom,
		IsEdited:      row.IsEdited,
		Read:          row.Read,
	}
	switch m.Kind {
	case models.KindFile:
		m.File = &models.FileAttachment{
			URL:        row.FileURL,
			Type:       models.FileType(row.FileType),
			Name:       row.FileName,
			Size:       row.FileSize,
			DurationMs: row.DurationMs,
		}
	case models.KindContact:
		m.Contact = &models.ContactShare{UserID: row.ContactUserID, Username: row.ContactUsername}
	}
	if row.ReplyToMessageID != "" {
		m.ReplyTo = &models.ReplyRef{
			MessageID: row.ReplyToMessageID,
			Text:      row.ReplyToText,
			OwnerName: row.ReplyToOwnerName,
			FileType:  models.FileType(row.ReplyToFileType),
		}
	}
	return m
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a message and updates the chat summary, the recipient's
// unread counter and the chat seq in one transaction.
func (r *MessageRepo) AppendMessage(ctx context.Context, msg models.Message) (models.Message, models.Chat, error) {
	var chat models.Chat
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		locked, err := loadChat(ctx, tx, msg.ChatID, true)
		if err != nil {
			return err
		}
		if !locked.IsParticipant(msg.OwnerID) {
			return models.ErrNotParticipant
		}
		if locked.BlockedUsers[msg.OwnerID] {
			return models.ErrBlocked
		}

		msg.Timestamp = NextTimestamp(msg.Timestamp, locked.LastMessageTime)
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO messages (`+messageColumns+`) VALUES (
            :id, :chat_id, :owner_id, :created_at, :text, :kind, :file_url, :file_type, :file_name, :file_size, :duration_ms,
            :contact_user_id, :contact_username, :is_forwarded, :forwarded_from, :is_edited,
            :reply_to_message_id, :reply_to_text, :reply_to_owner_name, :reply_to_file_type, :read)`, rowFromMessage(msg)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE chats SET last_message_time=$2, last_message_preview=$3, seq = seq + 1 WHERE id=$1`,
			msg.ChatID, msg.Timestamp, models.PreviewOf(msg)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE chat_members SET unread = unread + 1 WHERE chat_id=$1 AND user_id=$2`,
			msg.ChatID, locked.Other(msg.OwnerID)); err != nil {
			return err
		}
		chat, err = loadChat(ctx, tx, msg.ChatID, false)
		return err
	})
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	return msg, chat, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.ErrNotFound
	}
	if err != nil {
		return models.Message{}, classify(err)
	}
	return row.toModel(), nil
}

// lockOwnedMessage locks the owning chat first, then the message, so every writer
// acquires row locks in the same order.
func lockOwnedMessage(ctx context.Context, tx *sqlx.Tx, messageID, ownerID string) (models.Message, models.Chat, error) {
	var chatID string
	if err := tx.GetContext(ctx, &chatID, `SELECT chat_id FROM messages WHERE id=$1`, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, models.Chat{}, models.ErrNotFound
		}
		return models.Message{}, models.Chat{}, err
	}
	chat, err := loadChat(ctx, tx, chatID, true)
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	var row messageRow
	if err := tx.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1 FOR UPDATE`, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, models.Chat{}, models.ErrNotFound
		}
		return models.Message{}, models.Chat{}, err
	}
	msg := row.toModel()
	if msg.OwnerID != ownerID {
		return models.Message{}, models.Chat{}, models.ErrNotOwner
	}
	return msg, chat, nil
}

// EditMessage replaces the text of an owned message and refreshes the preview when it is the latest.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID string, editorID string, text string) (models.Message, models.Chat, error) {
	var (
		msg  models.Message
		chat models.Chat
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		msg, chat, err = lockOwnedMessage(ctx, tx, messageID, editorID)
		if err != nil {
			return err
		}
		msg.Text = text
		msg.IsEdited = true
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET text=$2, is_edited=TRUE WHERE id=$1`, messageID, text); err != nil {
			return err
		}
		if chat.LastMessageTime != nil && msg.Timestamp.Equal(*chat.LastMessageTime) {
			if _, err := tx.ExecContext(ctx, `UPDATE chats SET last_message_preview=$2 WHERE id=$1`, chat.ID, models.PreviewOf(msg)); err != nil {
				return err
			}
		}
		if err := bumpSeq(ctx, tx, chat.ID); err != nil {
			return err
		}
		chat, err = loadChat(ctx, tx, chat.ID, false)
		return err
	})
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	return msg, chat, nil
}

// DeleteMessage hard-deletes an owned message. The chat preview is left as is.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID string, ownerID string) (models.Message, models.Chat, error) {
	var (
		msg  models.Message
		chat models.Chat
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		msg, chat, err = lockOwnedMessage(ctx, tx, messageID, ownerID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID); err != nil {
			return err
		}
		if err := bumpSeq(ctx, tx, chat.ID); err != nil {
			return err
		}
		chat, err = loadChat(ctx, tx, chat.ID, false)
		return err
	})
	if err != nil {
		return models.Message{}, models.Chat{}, err
	}
	return msg, chat, nil
}

// MarkRead flags every message not owned by the reader as read and clears the reader's counter.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID string, readerID string) (models.ReadResult, error) {
	var result models.ReadResult
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		chat, err := loadChat(ctx, tx, chatID, true)
		if err != nil {
			return err
		}
		if !chat.IsParticipant(readerID) {
			return models.ErrNotParticipant
		}
		ids := []string{}
		if err := tx.SelectContext(ctx, &ids, `UPDATE messages SET read=TRUE
            WHERE chat_id=$1 AND owner_id<>$2 AND read=FALSE
            RETURNING id`, chatID, readerID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE chat_members SET unread=0 WHERE chat_id=$1 AND user_id=$2 AND unread > 0`, chatID, readerID)
		if err != nil {
			return err
		}
		cleared, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if len(ids) > 0 || cleared > 0 {
			if err := bumpSeq(ctx, tx, chatID); err != nil {
				return err
			}
			if chat, err = loadChat(ctx, tx, chatID, false); err != nil {
				return err
			}
		}
		result = models.ReadResult{MessageIDs: ids, Chat: chat, UnreadCleared: cleared > 0}
		return nil
	})
	return result, err
}

// ListMessages returns all messages in commit order together with the chat seq they reflect.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID string) (models.Snapshot, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return models.Snapshot{}, classify(err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT seq FROM chats WHERE id=$1`, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Snapshot{}, models.ErrNotFound
		}
		return models.Snapshot{}, classify(err)
	}
	var rows []messageRow
	if err := tx.SelectContext(ctx, &rows, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at ASC, id ASC`, chatID); err != nil {
		return models.Snapshot{}, classify(err)
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return models.Snapshot{ChatID: chatID, Seq: seq, Messages: msgs}, nil
}
