package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-backend/internal/auth"
	"chat-backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, tokens *auth.Tokens, limiter *RateLimiter) *gin.Engine {
	t.Helper()
	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(tokens)}
	if limiter != nil {
		handlers = append(handlers, limiter.Handler())
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	r.GET("/me", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	token, _, err := tokens.Issue(models.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)
	r := newRouter(t, tokens, nil)

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer header", header: "Bearer " + token, status: http.StatusOK, body: "u1"},
		{name: "query token", query: "?token=" + token, status: http.StatusOK, body: "u1"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestRateLimiterPerUser(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	alice, _, _ := tokens.Issue(models.User{ID: "u1"})
	bob, _, _ := tokens.Issue(models.User{ID: "u2"})
	r := newRouter(t, tokens, NewRateLimiter(0.001, 2, zap.NewNop()))

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call(alice))
	assert.Equal(t, http.StatusOK, call(alice))
	assert.Equal(t, http.StatusTooManyRequests, call(alice))
	assert.Equal(t, http.StatusOK, call(bob))
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	l := NewRateLimiter(1, 1, zap.NewNop())
	l.limiter("u1")
	l.evict(time.Now().Add(time.Second))

	_, ok := l.visitors.Load("u1")
	assert.False(t, ok)
}
