package models

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTextRunes       = 4096
	DefaultMaxFileSize = 100 << 20
	MinPasswordLength  = 6
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,20}$`)

// ValidateUsername enforces the 3-20 character handle format.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return Invalid("username", "must be 3-20 letters, digits, '_' or '.'")
	}
	return nil
}

// ValidateEmail performs a shallow address check; verification is the auth provider's job.
func ValidateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") || len(email) > 254 {
		return Invalid("email", "malformed address")
	}
	return nil
}

// CheckPassword rejects credentials that are too short or single-class.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrWeakPassword
	}
	return nil
}

// ValidateProfileValue checks a single profile field update.
func ValidateProfileValue(field ProfileField, value string) error {
	switch field {
	case FieldUsername:
		return ValidateUsername(value)
	case FieldEmail:
		if value == "" {
			return nil
		}
		return ValidateEmail(value)
	case FieldPhone:
		if value == "" {
			return nil
		}
		digits := strings.TrimPrefix(value, "+")
		if len(digits) < 5 || len(digits) > 15 || strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
			return Invalid("phone", "expected 5-15 digits with optional leading '+'")
		}
	case FieldBirthday:
		if value == "" {
			return nil
		}
		d, err := time.Parse("2006-01-02", value)
		if err != nil {
			return Invalid("birthday", "expected YYYY-MM-DD")
		}
		if d.After(time.Now()) {
			return Invalid("birthday", "in the future")
		}
	case FieldProfileImageURL:
		if value == "" {
			return nil
		}
		return validateHTTPURL("profile_image_url", value)
	default:
		return Invalid(string(field), "unknown field")
	}
	return nil
}

// ValidatePayload checks the shape of an append request. maxFileSize <= 0 uses the default.
func ValidatePayload(p Payload, maxFileSize int64) error {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if p.File != nil && p.Contact != nil {
		return Invalid("payload", "exactly one of file or contact may be set")
	}
	if utf8.RuneCountInString(p.Text) > MaxTextRunes {
		return Invalid("text", "too long")
	}
	if p.IsForwarded && strings.TrimSpace(p.ForwardedFrom) == "" {
		return Invalid("forwarded_from", "required for forwarded messages")
	}
	switch p.Kind() {
	case KindText:
		if strings.TrimSpace(p.Text) == "" {
			return Invalid("text", "must not be empty")
		}
	case KindFile:
		f := p.File
		if !f.Type.Valid() {
			return Invalid("file_type", "must be image, video, document or voice")
		}
		if err := validateHTTPURL("file_url", f.URL); err != nil {
			return err
		}
		if f.Size <= 0 || f.Size > maxFileSize {
			return Invalid("file_size", "out of range")
		}
		if strings.TrimSpace(f.Name) == "" {
			return Invalid("file_name", "must not be empty")
		}
		if f.DurationMs != nil && *f.DurationMs < 0 {
			return Invalid("duration", "must not be negative")
		}
	case KindContact:
		if p.Contact.UserID == "" {
			return Invalid("contact_user_id", "must not be empty")
		}
	}
	return nil
}

// ValidateEditText checks replacement text for an edit.
func ValidateEditText(text string) error {
	if strings.TrimSpace(text) == "" {
		return Invalid("text", "must not be empty")
	}
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return Invalid("text", "too long")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Invalid(field, "must be an http(s) URL")
	}
	return nil
}
