package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/models"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func chatRows(seq int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user1_id", "user2_id", "last_message_time", "last_message_preview", "seq", "created_at"}).
		AddRow("alice_bob", "alice", "bob", nil, "", seq, created)
}

func memberRows(aliceBlocked bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"chat_id", "user_id", "blocked", "muted", "unread"}).
		AddRow("alice_bob", "alice", aliceBlocked, false, 0).
		AddRow("alice_bob", "bob", false, false, 0)
}

func TestCreateChatIfAbsentInsertsMembersOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chats .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("alice_bob", "alice", "bob", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO chat_members`).
		WithArgs("alice_bob", "alice", "bob").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT .* FROM chats WHERE id=\$1$`).WithArgs("alice_bob").WillReturnRows(chatRows(0))
	mock.ExpectQuery(`FROM chat_members WHERE chat_id=\$1`).WithArgs("alice_bob").WillReturnRows(memberRows(false))
	mock.ExpectCommit()

	chat, ok, err := repo.CreateChatIfAbsent(context.Background(), models.NewChat("bob", "alice", created))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice_bob", chat.ID)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, chat.UnreadCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateChatIfAbsentReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chats`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM chats WHERE id=\$1$`).WithArgs("alice_bob").WillReturnRows(chatRows(4))
	mock.ExpectQuery(`FROM chat_members`).WithArgs("alice_bob").WillReturnRows(memberRows(false))
	mock.ExpectCommit()

	chat, ok, err := repo.CreateChatIfAbsent(context.Background(), models.NewChat("alice", "bob", created))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(4), chat.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateChatRetriesSerializationFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)
	txBackoff = 0

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chats`).WillReturnError(&pq.Error{Code: pqSerializationFailure})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chats`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM chats`).WillReturnRows(chatRows(1))
	mock.ExpectQuery(`FROM chat_members`).WillReturnRows(memberRows(false))
	mock.ExpectCommit()

	_, _, err := repo.CreateChatIfAbsent(context.Background(), models.NewChat("alice", "bob", created))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUnreadIsSingleStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectQuery(`UPDATE chat_members SET unread = unread \+ 1 WHERE chat_id=\$1 AND user_id=\$2 RETURNING unread`).
		WithArgs("alice_bob", "bob").
		WillReturnRows(sqlmock.NewRows([]string{"unread"}).AddRow(3))

	unread, err := repo.IncrementUnread(context.Background(), "alice_bob", "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, unread)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsBlockedSender(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM chats WHERE id=\$1 FOR UPDATE`).WithArgs("alice_bob").WillReturnRows(chatRows(2))
	mock.ExpectQuery(`FROM chat_members`).WithArgs("alice_bob").WillReturnRows(memberRows(true))
	mock.ExpectRollback()

	_, _, err := repo.AppendMessage(context.Background(), models.Message{ID: "m1", ChatID: "alice_bob", OwnerID: "alice", Timestamp: created, Text: "hi", Kind: models.KindText})
	assert.ErrorIs(t, err, models.ErrBlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsOutsider(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(chatRows(2))
	mock.ExpectQuery(`FROM chat_members`).WillReturnRows(memberRows(false))
	mock.ExpectRollback()

	_, _, err := repo.AppendMessage(context.Background(), models.Message{ID: "m1", ChatID: "alice_bob", OwnerID: "mallory", Timestamp: created, Text: "hi"})
	assert.ErrorIs(t, err, models.ErrNotParticipant)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserMapsUniqueViolations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "users_username_lower_idx"})
	_, err := repo.CreateUser(context.Background(), models.User{ID: "u1", Username: "alice", CreatedAt: created}, "hash")
	assert.ErrorIs(t, err, models.ErrUsernameTaken)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "users_email_lower_idx"})
	_, err = repo.CreateUser(context.Background(), models.User{ID: "u2", Username: "bob", Email: "a@b.io", CreatedAt: created}, "hash")
	assert.ErrorIs(t, err, models.ErrEmailInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyMarksConnectionErrorsRetryable(t *testing.T) {
	err := classify(&pq.Error{Code: "08006"})
	assert.ErrorIs(t, err, models.ErrRetryable)
	assert.Nil(t, classify(nil))
}

func TestNextTimestampIsStrictlyIncreasing(t *testing.T) {
	last := created.Add(time.Second)
	got := NextTimestamp(created, &last)
	assert.Equal(t, last.Add(time.Microsecond), got)

	got = NextTimestamp(created.Add(time.Minute+1500*time.Nanosecond), &last)
	assert.Equal(t, created.Add(time.Minute+time.Microsecond), got)

	assert.Equal(t, created, NextTimestamp(created, nil))
}
