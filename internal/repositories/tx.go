package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

const maxTxAttempts = 4

var txBackoff = 20 * time.Millisecond

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// withTx runs fn in a transaction, retrying serialization failures and deadlocks.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(txBackoff * time.Duration(attempt)):
			}
		}
		err = runTx(ctx, db, fn)
		if !isSerializationFailure(err) {
			return classify(err)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrConflict, err)
}

func runTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func bumpSeq(ctx context.Context, q queryer, chatID string) error {
	_, err := q.ExecContext(ctx, `UPDATE chats SET seq = seq + 1 WHERE id=$1`, chatID)
	return err
}
