package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chat-backend/internal/auth"
	"chat-backend/internal/fanout"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// Session is the result of a successful login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// Service owns users, credentials, profiles and presence.
type Service struct {
	users  repositories.UserRepository
	tokens *auth.Tokens
	events fanout.Publisher
	log    *zap.Logger
	now    func() time.Time

	// HashCost is the bcrypt cost for new credentials.
	HashCost int
}

func NewService(users repositories.UserRepository, tokens *auth.Tokens, events fanout.Publisher, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		events:   events,
		log:      logger.Named("identity"),
		now:      time.Now,
		HashCost: bcrypt.DefaultCost,
	}
}

// Register creates an account. Username and email uniqueness is decided by the store's insert.
func (s *Service) Register(ctx context.Context, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := models.ValidateUsername(username); err != nil {
		return models.User{}, err
	}
	if email != "" {
		if err := models.ValidateEmail(email); err != nil {
			return models.User{}, err
		}
	}
	if err := models.CheckPassword(password); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}, string(hash))
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("user registered", zap.String("uid", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login verifies the password and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, hash, err := s.users.GetCredentials(ctx, strings.TrimSpace(username))
	if errors.Is(err, models.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// SetPresence records the online flag; going offline stamps lastSeen.
// The published presence is re-read after the write and stamped before that read,
// so a later stamp never carries an older state.
func (s *Service) SetPresence(ctx context.Context, uid string, online bool) (models.User, error) {
	if _, err := s.users.SetPresence(ctx, uid, online, s.now().UTC()); err != nil {
		return models.User{}, err
	}
	at := s.now().UTC()
	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return models.User{}, err
	}
	presence := user.PresenceOf()
	s.events.Publish(models.Event{
		Type:     models.EventPresence,
		UserID:   uid,
		Presence: &presence,
		At:       at,
	})
	return user, nil
}

// Presence returns the current presence of uid.
func (s *Service) Presence(ctx context.Context, uid string) (models.Presence, error) {
	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return models.Presence{}, err
	}
	return user.PresenceOf(), nil
}

func (s *Service) GetProfile(ctx context.Context, uid string) (models.User, error) {
	return s.users.GetUser(ctx, uid)
}

// UpdateProfile changes one field of the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, callerUID, uid string, field models.ProfileField, value string) (models.User, error) {
	if callerUID == "" || callerUID != uid {
		return models.User{}, models.ErrForbidden
	}
	value = strings.TrimSpace(value)
	if err := models.ValidateProfileValue(field, value); err != nil {
		return models.User{}, err
	}
	user, err := s.users.UpdateProfile(ctx, uid, field, value)
	if err != nil {
		return models.User{}, err
	}
	s.log.Info("profile updated", zap.String("uid", uid), zap.String("field", string(field)))
	return user, nil
}

// SearchUsers finds users by case-insensitive username prefix.
func (s *Service) SearchUsers(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, models.Invalid("prefix", "must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.users.SearchByPrefix(ctx, prefix, limit)
}
