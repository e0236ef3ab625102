package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

const userColumns = `id, username, email, phone, birthday, profile_image_url, email_verified, online, last_seen, created_at`

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts the user; the unique indexes reserve username and email atomically.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	var created models.User
	err := r.db.GetContext(ctx, &created, `INSERT INTO users (id, username, username_lower, email, email_lower, password_hash, email_verified, created_at)
        VALUES ($1, $2, lower($2), $3, NULLIF(lower($3), ''), $4, $5, $6)
        RETURNING `+userColumns,
		user.ID, user.Username, user.Email, passwordHash, user.EmailVerified, user.CreatedAt)
	if err != nil {
		return models.User{}, classify(err)
	}
	return created, nil
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return user, classify(err)
}

// GetUsers fetches the users that exist among ids.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return users, nil
}

type credentialRow struct {
	models.User
	PasswordHash string `db:"password_hash"`
}

// GetCredentials returns the user and stored password hash for a username.
func (r *UserRepo) GetCredentials(ctx context.Context, username string) (models.User, string, error) {
	var row credentialRow
	err := r.db.GetContext(ctx, &row, `SELECT `+userColumns+`, password_hash FROM users WHERE username_lower=lower($1)`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, "", models.ErrNotFound
	}
	if err != nil {
		return models.User{}, "", classify(err)
	}
	return row.User, row.PasswordHash, nil
}

// UpdateProfile writes one whitelisted profile column.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID string, field models.ProfileField, value string) (models.User, error) {
	column, ok := field.Column()
	if !ok {
		return models.User{}, models.Invalid(string(field), "unknown field")
	}

	var query string
	switch field {
	case models.FieldUsername:
		query = `UPDATE users SET username=$2, username_lower=lower($2) WHERE id=$1 RETURNING ` + userColumns
	case models.FieldEmail:
		query = `UPDATE users SET email=$2, email_lower=NULLIF(lower($2), ''), email_verified=FALSE WHERE id=$1 RETURNING ` + userColumns
	default:
		query = fmt.Sprintf(`UPDATE users SET %s=$2 WHERE id=$1 RETURNING %s`, column, userColumns)
	}

	var user models.User
	err := r.db.GetContext(ctx, &user, query, userID, value)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return user, classify(err)
}

// SetPresence flips the online flag; going offline stamps last_seen.
func (r *UserRepo) SetPresence(ctx context.Context, userID string, online bool, at time.Time) (models.User, error) {
	var (
		user models.User
		err  error
	)
	if online {
		err = r.db.GetContext(ctx, &user, `UPDATE users SET online=TRUE WHERE id=$1 RETURNING `+userColumns, userID)
	} else {
		err = r.db.GetContext(ctx, &user, `UPDATE users SET online=FALSE, last_seen=$2 WHERE id=$1 RETURNING `+userColumns, userID, at)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	return user, classify(err)
}

// SearchByPrefix lists users whose username starts with prefix.
func (r *UserRepo) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(prefix)) + "%"
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE username_lower LIKE $1 ORDER BY username_lower LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, classify(err)
	}
	return users, nil
}
