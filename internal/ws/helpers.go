package ws

import "github.com/google/uuid"

// newConnID returns a time-ordered id so lifecycle events sort by connect time.
func newConnID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
