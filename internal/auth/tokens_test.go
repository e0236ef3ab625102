package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	token, expires, err := tokens.Issue(models.User{ID: "u1", Username: "alice", EmailVerified: true})
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	id, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Username: "alice", EmailVerified: true}, id)
}

func TestVerifyRejectsForeignSecretAndExpiry(t *testing.T) {
	token, _, err := NewTokens("other", time.Hour).Issue(models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = NewTokens("secret", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokens("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.Issue(models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = NewTokens("secret", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
