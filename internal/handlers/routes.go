package handlers

import (
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers mounted on the public API.
type Routes struct {
	Users *UserHandler
	Chats *ChatHandler
	Media *MediaHandler
}

// Register mounts the API. protected carries auth and rate limiting.
func (r Routes) Register(router gin.IRouter, protected ...gin.HandlerFunc) {
	authGroup := router.Group("/auth")
	authGroup.POST("/register", r.Users.Register)
	authGroup.POST("/login", r.Users.Login)

	api := router.Group("/", protected...)
	api.GET("/users", r.Users.Search)
	api.GET("/users/me", r.Users.Me)
	api.PATCH("/users/me", r.Users.UpdateMe)
	api.GET("/users/:uid", r.Users.GetUser)
	api.POST("/presence", r.Users.SetPresence)

	api.GET("/chats", r.Chats.ListChats)
	api.POST("/chats/start", r.Chats.StartChat)
	api.GET("/chats/:chat_id", r.Chats.GetChat)
	api.PUT("/chats/:chat_id/block", r.Chats.Block)
	api.PUT("/chats/:chat_id/mute", r.Chats.Mute)
	api.POST("/chats/:chat_id/open", r.Chats.Open)
	api.POST("/chats/:chat_id/read", r.Chats.MarkRead)
	api.POST("/chats/:chat_id/unread", r.Chats.MarkUnread)
	api.GET("/chats/:chat_id/messages", r.Chats.GetChatMessages)
	api.POST("/chats/:chat_id/messages", r.Chats.PostChatMessage)
	api.PATCH("/chats/:chat_id/messages/:message_id", r.Chats.EditMessage)
	api.DELETE("/chats/:chat_id/messages/:message_id", r.Chats.DeleteMessage)

	if r.Media != nil {
		api.POST("/media", r.Media.Upload)
	}
}
