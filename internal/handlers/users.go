package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-backend/internal/identity"
	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
)

// UserHandler serves accounts, profiles and presence.
type UserHandler struct {
	identity *identity.Service
	log      *zap.Logger
}

func NewUserHandler(svc *identity.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{identity: svc, log: logger.Named("handlers.users")}
}

// Register creates an account.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.identity.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login exchanges credentials for a bearer token.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.identity.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *UserHandler) Me(c *gin.Context) {
	h.profile(c, middleware.UserID(c))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	h.profile(c, c.Param("uid"))
}

func (h *UserHandler) profile(c *gin.Context, uid string) {
	user, err := h.identity.GetProfile(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if uid != middleware.UserID(c) {
		user.Email = ""
		user.Phone = ""
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe changes one profile field of the caller.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Field string `json:"field" binding:"required"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	uid := middleware.UserID(c)
	user, err := h.identity.UpdateProfile(c.Request.Context(), uid, uid, profileField(req.Field), req.Value)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func profileField(name string) models.ProfileField {
	if name == "profileImageUrl" {
		return models.FieldProfileImageURL
	}
	return models.ProfileField(name)
}

// Search looks users up by username prefix.
func (h *UserHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.identity.SearchUsers(c.Request.Context(), c.Query("prefix"), limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	type result struct {
		UserID   string `json:"uid"`
		Username string `json:"username"`
		ImageURL string `json:"profile_image_url,omitempty"`
	}
	results := make([]result, 0, len(users))
	for _, u := range users {
		results = append(results, result{UserID: u.ID, Username: u.Username, ImageURL: u.ProfileImageURL})
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}

// SetPresence records the caller going online or offline.
func (h *UserHandler) SetPresence(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.identity.SetPresence(c.Request.Context(), middleware.UserID(c), *req.Online)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user.PresenceOf())
}
