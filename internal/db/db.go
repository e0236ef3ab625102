package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, opts Options, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        username TEXT NOT NULL,
        username_lower TEXT NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        email_lower TEXT NULL,
        phone TEXT NOT NULL DEFAULT '',
        birthday TEXT NOT NULL DEFAULT '',
        profile_image_url TEXT NOT NULL DEFAULT '',
        password_hash TEXT NOT NULL,
        email_verified BOOLEAN NOT NULL DEFAULT FALSE,
        online BOOLEAN NOT NULL DEFAULT FALSE,
        last_seen TIMESTAMPTZ NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (username_lower);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (email_lower);`,
	`CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY,
        user1_id TEXT NOT NULL,
        user2_id TEXT NOT NULL,
        last_message_time TIMESTAMPTZ NULL,
        last_message_preview TEXT NOT NULL DEFAULT '',
        seq BIGINT NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK (user1_id < user2_id)
    );`,
	`CREATE INDEX IF NOT EXISTS chats_user1_idx ON chats (user1_id);`,
	`CREATE INDEX IF NOT EXISTS chats_user2_idx ON chats (user2_id);`,
	`CREATE TABLE IF NOT EXISTS chat_members (
        chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id TEXT NOT NULL,
        blocked BOOLEAN NOT NULL DEFAULT FALSE,
        muted BOOLEAN NOT NULL DEFAULT FALSE,
        unread INT NOT NULL DEFAULT 0 CHECK (unread >= 0),
        PRIMARY KEY (chat_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS chat_members_user_idx ON chat_members (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        owner_id TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        text TEXT NOT NULL DEFAULT '',
        kind TEXT NOT NULL DEFAULT 'text',
        file_url TEXT NOT NULL DEFAULT '',
        file_type TEXT NOT NULL DEFAULT '',
        file_name TEXT NOT NULL DEFAULT '',
        file_size BIGINT NOT NULL DEFAULT 0,
        duration_ms BIGINT NULL,
        contact_user_id TEXT NOT NULL DEFAULT '',
        contact_username TEXT NOT NULL DEFAULT '',
        is_forwarded BOOLEAN NOT NULL DEFAULT FALSE,
        forwarded_from TEXT NOT NULL DEFAULT '',
        is_edited BOOLEAN NOT NULL DEFAULT FALSE,
        reply_to_message_id TEXT NOT NULL DEFAULT '',
        reply_to_text TEXT NOT NULL DEFAULT '',
        reply_to_owner_name TEXT NOT NULL DEFAULT '',
        reply_to_file_type TEXT NOT NULL DEFAULT '',
        read BOOLEAN NOT NULL DEFAULT FALSE
    );`,
	`CREATE INDEX IF NOT EXISTS messages_chat_order_idx ON messages (chat_id, created_at, id);`,
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
