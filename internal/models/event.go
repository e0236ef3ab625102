package models

import "time"

// EventType names a committed change delivered to subscribers.
type EventType string

const (
	EventSnapshot        EventType = "snapshot"
	EventMessageAppended EventType = "message.appended"
	EventMessageEdited   EventType = "message.edited"
	EventMessageDeleted  EventType = "message.deleted"
	EventMessagesRead    EventType = "message.read"
	EventChatUpdated     EventType = "chat.updated"
	EventPresence        EventType = "presence.changed"
	EventUnread          EventType = "unread.changed"
)

// Event is broadcast to subscribers. Chat-scoped events carry the chat's commit Seq.
type Event struct {
	Type        EventType `json:"type"`
	ChatID      string    `json:"chat_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Seq         int64     `json:"seq,omitempty"`
	Message     *Message  `json:"message,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	MessageIDs  []string  `json:"message_ids,omitempty"`
	ReaderID    string    `json:"reader_id,omitempty"`
	Chat        *Chat     `json:"chat,omitempty"`
	Presence    *Presence `json:"presence,omitempty"`
	UnreadChats *int      `json:"unread_chats,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	At          time.Time `json:"at"`
}

// ChatScoped reports whether the event is ordered by a chat's Seq.
func (e Event) ChatScoped() bool {
	switch e.Type {
	case EventMessageAppended, EventMessageEdited, EventMessageDeleted, EventMessagesRead, EventChatUpdated:
		return true
	}
	return false
}
