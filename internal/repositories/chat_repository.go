package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

const chatColumns = `id, user1_id, user2_id, last_message_time, last_message_preview, seq, created_at`

type chatRow struct {
	ID                 string     `db:"id"`
	User1ID            string     `db:"user1_id"`
	User2ID            string     `db:"user2_id"`
	LastMessageTime    *time.Time `db:"last_message_time"`
	LastMessagePreview string     `db:"last_message_preview"`
	Seq                int64      `db:"seq"`
	CreatedAt          time.Time  `db:"created_at"`
}

type memberRow struct {
	ChatID  string `db:"chat_id"`
	UserID  string `db:"user_id"`
	Blocked bool   `db:"blocked"`
	Muted   bool   `db:"muted"`
	Unread  int    `db:"unread"`
}

func (row chatRow) toModel(members []memberRow) models.Chat {
	chat := models.Chat{
		ID:                 row.ID,
		User1ID:            row.User1ID,
		User2ID:            row.User2ID,
		BlockedUsers:       map[string]bool{},
		MutedBy:            map[string]bool{},
		UnreadCount:        map[string]int{},
		LastMessageTime:    row.LastMessageTime,
		LastMessagePreview: row.LastMessagePreview,
		Seq:                row.Seq,
		CreatedAt:          row.CreatedAt,
	}
	for _, m := range members {
		if m.ChatID != row.ID {
			continue
		}
		chat.BlockedUsers[m.UserID] = m.Blocked
		chat.MutedBy[m.UserID] = m.Muted
		chat.UnreadCount[m.UserID] = m.Unread
	}
	return chat
}

// loadChat reads a chat and its per-member state; lock takes a row lock for the transaction.
func loadChat(ctx context.Context, q queryer, chatID string, lock bool) (models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	var row chatRow
	if err := sqlx.GetContext(ctx, q, &row, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Chat{}, models.ErrNotFound
		}
		return models.Chat{}, err
	}
	var members []memberRow
	if err := sqlx.SelectContext(ctx, q, &members, `SELECT chat_id, user_id, blocked, muted, unread FROM chat_members WHERE chat_id=$1`, chatID); err != nil {
		return models.Chat{}, err
	}
	return row.toModel(members), nil
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChatIfAbsent performs a single conditional insert keyed by the canonical chat id.
func (r *ChatRepo) CreateChatIfAbsent(ctx context.Context, chat models.Chat) (models.Chat, bool, error) {
	var (
		stored  models.Chat
		created bool
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO chats (id, user1_id, user2_id, created_at) VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO NOTHING`, chat.ID, chat.User1ID, chat.User2ID, chat.CreatedAt)
		if err != nil {
			return err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = count == 1
		if created {
			if _, err := tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2), ($1, $3)`,
				chat.ID, chat.User1ID, chat.User2ID); err != nil {
				return err
			}
		}
		stored, err = loadChat(ctx, tx, chat.ID, false)
		return err
	})
	if err != nil {
		return models.Chat{}, false, err
	}
	return stored, created, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	chat, err := loadChat(ctx, r.db, chatID, false)
	return chat, classify(err)
}

// ListChats returns the user's chats, most recently active first.
func (r *ChatRepo) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	var rows []chatRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+chatColumns+` FROM chats
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY last_message_time DESC NULLS LAST, created_at DESC`, userID)
	if err != nil {
		return nil, classify(err)
	}
	if len(rows) == 0 {
		return []models.Chat{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	query, args, err := sqlx.In(`SELECT chat_id, user_id, blocked, muted, unread FROM chat_members WHERE chat_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var members []memberRow
	if err := r.db.SelectContext(ctx, &members, r.db.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}

	result := make([]models.Chat, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel(members))
	}
	return result, nil
}

// SetBlocked stores whether userID is blocked by the other participant.
func (r *ChatRepo) SetBlocked(ctx context.Context, chatID string, userID string, blocked bool) (models.Chat, error) {
	return r.updateMember(ctx, chatID, `UPDATE chat_members SET blocked=$3 WHERE chat_id=$1 AND user_id=$2`, userID, blocked)
}

// SetMuted stores the participant's notification mute flag.
func (r *ChatRepo) SetMuted(ctx context.Context, chatID string, userID string, muted bool) (models.Chat, error) {
	return r.updateMember(ctx, chatID, `UPDATE chat_members SET muted=$3 WHERE chat_id=$1 AND user_id=$2`, userID, muted)
}

func (r *ChatRepo) updateMember(ctx context.Context, chatID, query, userID string, value bool) (models.Chat, error) {
	var chat models.Chat
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := loadChat(ctx, tx, chatID, true); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, chatID, userID, value)
		if err != nil {
			return err
		}
		if count, err := res.RowsAffected(); err != nil {
			return err
		} else if count == 0 {
			return models.ErrNotParticipant
		}
		if err := bumpSeq(ctx, tx, chatID); err != nil {
			return err
		}
		chat, err = loadChat(ctx, tx, chatID, false)
		return err
	})
	return chat, err
}

// IncrementUnread atomically adds one to the participant's counter.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID string, userID string) (int, error) {
	var unread int
	err := r.db.GetContext(ctx, &unread, `UPDATE chat_members SET unread = unread + 1 WHERE chat_id=$1 AND user_id=$2 RETURNING unread`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	return unread, classify(err)
}

// ResetUnread zeroes the participant's counter.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID string, userID string) (bool, error) {
	var previous int
	err := r.db.GetContext(ctx, &previous, `WITH prev AS (
            SELECT unread FROM chat_members WHERE chat_id=$1 AND user_id=$2 FOR UPDATE
        )
        UPDATE chat_members m SET unread = 0 FROM prev
        WHERE m.chat_id=$1 AND m.user_id=$2
        RETURNING prev.unread`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, models.ErrNotFound
	}
	if err != nil {
		return false, classify(err)
	}
	return previous > 0, nil
}

// CountUnreadChats counts the user's chats with a non-zero unread counter.
func (r *ChatRepo) CountUnreadChats(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_members WHERE user_id=$1 AND unread > 0`, userID)
	return count, classify(err)
}
