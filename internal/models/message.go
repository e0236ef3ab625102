package models

import "time"

// MessageKind identifies which payload variant a message carries.
type MessageKind string

const (
	KindText    MessageKind = "text"
	KindFile    MessageKind = "file"
	KindContact MessageKind = "contact"
)

// FileType classifies file attachments.
type FileType string

const (
	FileImage    FileType = "image"
	FileVideo    FileType = "video"
	FileDocument FileType = "document"
	FileVoice    FileType = "voice"
)

// Valid reports whether t is a known attachment type.
func (t FileType) Valid() bool {
	switch t {
	case FileImage, FileVideo, FileDocument, FileVoice:
		return true
	}
	return false
}

// FileAttachment references media already uploaded to the media store.
type FileAttachment struct {
	URL        string   `json:"file_url"`
	Type       FileType `json:"file_type"`
	Name       string   `json:"file_name"`
	Size       int64    `json:"file_size"`
	DurationMs *int64   `json:"duration_ms,omitempty"`
}

// ContactShare is a shared user card.
type ContactShare struct {
	UserID   string `json:"contact_user_id"`
	Username string `json:"contact_username"`
}

// ReplyRef is the denormalized quote of the message being replied to.
type ReplyRef struct {
	MessageID string   `json:"reply_to_message_id"`
	Text      string   `json:"reply_to_text"`
	OwnerName string   `json:"reply_to_owner_name"`
	FileType  FileType `json:"reply_to_file_type,omitempty"`
}

// Message represents one entry of a chat's message log.
type Message struct {
	ID            string          `json:"id"`
	ChatID        string          `json:"chat_id"`
	OwnerID       string          `json:"owner_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Text          string          `json:"text"`
	Kind          MessageKind     `json:"kind"`
	File          *FileAttachment `json:"file,omitempty"`
	Contact       *ContactShare   `json:"contact,omitempty"`
	IsForwarded   bool            `json:"is_forwarded"`
	ForwardedFrom string          `json:"forwarded_from,omitempty"`
	IsEdited      bool            `json:"is_edited"`
	ReplyTo       *ReplyRef       `json:"reply_to,omitempty"`
	Read          bool            `json:"read"`
}

// Payload is the client-supplied content of an append.
type Payload struct {
	Text             string          `json:"text"`
	File             *FileAttachment `json:"file,omitempty"`
	Contact          *ContactShare   `json:"contact,omitempty"`
	IsForwarded      bool            `json:"is_forwarded"`
	ForwardedFrom    string          `json:"forwarded_from,omitempty"`
	ReplyToMessageID string          `json:"reply_to_message_id,omitempty"`
}

// Kind reports the variant selected by the payload.
func (p Payload) Kind() MessageKind {
	switch {
	case p.File != nil:
		return KindFile
	case p.Contact != nil:
		return KindContact
	default:
		return KindText
	}
}

// ReadResult describes the effect of a read receipt.
type ReadResult struct {
	MessageIDs    []string
	Chat          Chat
	UnreadCleared bool
}

// Snapshot is a restartable, ordered view of a chat's log.
type Snapshot struct {
	ChatID   string    `json:"chat_id"`
	Seq      int64     `json:"seq"`
	Messages []Message `json:"messages"`
}
