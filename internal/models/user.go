package models

import "time"

// User is the identity record owned by the Identity & Session Store.
type User struct {
	ID              string     `db:"id" json:"uid"`
	Username        string     `db:"username" json:"username"`
	Email           string     `db:"email" json:"email,omitempty"`
	Phone           string     `db:"phone" json:"phone,omitempty"`
	Birthday        string     `db:"birthday" json:"birthday,omitempty"`
	ProfileImageURL string     `db:"profile_image_url" json:"profile_image_url,omitempty"`
	EmailVerified   bool       `db:"email_verified" json:"email_verified"`
	Online          bool       `db:"online" json:"online"`
	LastSeen        *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Presence is the public online/last-seen view of a user.
type Presence struct {
	UserID   string     `json:"uid"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// PresenceOf extracts the presence fields of u.
func (u User) PresenceOf() Presence {
	return Presence{UserID: u.ID, Online: u.Online, LastSeen: u.LastSeen}
}

// ProfileField names a mutable profile attribute.
type ProfileField string

const (
	FieldUsername        ProfileField = "username"
	FieldEmail           ProfileField = "email"
	FieldPhone           ProfileField = "phone"
	FieldBirthday        ProfileField = "birthday"
	FieldProfileImageURL ProfileField = "profile_image_url"
)

// Column returns the users table column backing the field.
func (f ProfileField) Column() (string, bool) {
	switch f {
	case FieldUsername, FieldEmail, FieldPhone, FieldBirthday, FieldProfileImageURL:
		return string(f), true
	}
	return "", false
}
