package ws

import (
	"time"

	"chat-backend/internal/observability"
)

type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) lifecycle() observability.WSLifecycle {
	return observability.WSLifecycle{
		Kind:        i.Kind,
		ResourceID:  i.ResourceID,
		ConnID:      i.ConnID,
		UserID:      i.UserID,
		DeviceID:    i.DeviceID,
		IP:          i.IP,
		ConnectedAt: i.ConnectedAt,
	}
}

func (i ConnInfo) routingKey() string {
	switch i.Kind {
	case kindPresence:
		return "ws_events.presence"
	case kindUnread:
		return "ws_events.unread"
	}
	return "ws_events.chats"
}
