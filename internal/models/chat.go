package models

import (
	"sort"
	"strings"
	"time"
)

// Chat represents a private chat between exactly two users.
type Chat struct {
	ID                 string          `json:"chat_id"`
	User1ID            string          `json:"user1"`
	User2ID            string          `json:"user2"`
	BlockedUsers       map[string]bool `json:"blocked_users"`
	MutedBy            map[string]bool `json:"muted_by"`
	UnreadCount        map[string]int  `json:"unread_count"`
	LastMessageTime    *time.Time      `json:"last_message_time,omitempty"`
	LastMessagePreview string          `json:"last_message_preview"`
	Seq                int64           `json:"seq"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ChatSummary is the per-user chat list entry.
type ChatSummary struct {
	ChatID             string     `json:"chat_id"`
	FriendID           string     `json:"friend_id"`
	FriendUsername     string     `json:"friend_username,omitempty"`
	LastMessageTime    *time.Time `json:"last_message_time,omitempty"`
	LastMessagePreview string     `json:"last_message_preview"`
	Unread             int        `json:"unread"`
	Muted              bool       `json:"muted"`
}

// CanonicalChatID derives the chat id for an unordered pair of users.
func CanonicalChatID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1]
}

// NewChat builds the initial state of the chat between a and b.
func NewChat(a, b string, now time.Time) Chat {
	pair := []string{a, b}
	sort.Strings(pair)
	return Chat{
		ID:           strings.Join(pair, "_"),
		User1ID:      pair[0],
		User2ID:      pair[1],
		BlockedUsers: map[string]bool{pair[0]: false, pair[1]: false},
		MutedBy:      map[string]bool{pair[0]: false, pair[1]: false},
		UnreadCount:  map[string]int{pair[0]: 0, pair[1]: 0},
		CreatedAt:    now,
	}
}

// IsParticipant reports whether uid is one of the two chat members.
func (c Chat) IsParticipant(uid string) bool {
	return uid != "" && (c.User1ID == uid || c.User2ID == uid)
}

// Other returns the participant that is not uid.
func (c Chat) Other(uid string) string {
	if c.User1ID == uid {
		return c.User2ID
	}
	return c.User1ID
}

// SummaryFor renders the chat as seen by uid.
func (c Chat) SummaryFor(uid string) ChatSummary {
	return ChatSummary{
		ChatID:             c.ID,
		FriendID:           c.Other(uid),
		LastMessageTime:    c.LastMessageTime,
		LastMessagePreview: c.LastMessagePreview,
		Unread:             c.UnreadCount[uid],
		Muted:              c.MutedBy[uid],
	}
}

// Clone returns a deep copy so callers never share the maps.
func (c Chat) Clone() Chat {
	out := c
	out.BlockedUsers = copyBools(c.BlockedUsers)
	out.MutedBy = copyBools(c.MutedBy)
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	if c.LastMessageTime != nil {
		t := *c.LastMessageTime
		out.LastMessageTime = &t
	}
	return out
}

func copyBools(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
