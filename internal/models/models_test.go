package models

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalChatIDIsSymmetric(t *testing.T) {
	assert.Equal(t, "u1_u2", CanonicalChatID("u1", "u2"))
	assert.Equal(t, CanonicalChatID("u1", "u2"), CanonicalChatID("u2", "u1"))

	chat := NewChat("u2", "u1", fixedNow)
	assert.Equal(t, "u1_u2", chat.ID)
	assert.Equal(t, "u1", chat.User1ID)
	assert.Equal(t, "u2", chat.User2ID)
	assert.Equal(t, "u1", chat.Other("u2"))
	assert.True(t, chat.IsParticipant("u2"))
	assert.False(t, chat.IsParticipant("u3"))
	assert.False(t, chat.IsParticipant(""))
}

func TestPreviewTruncatesLongText(t *testing.T) {
	text := strings.Repeat("a", 60)
	preview := PreviewText(text)

	assert.Equal(t, strings.Repeat("a", 47)+"...", preview)
	assert.LessOrEqual(t, utf8.RuneCountInString(preview), PreviewMaxRunes)
}

func TestPreviewKeepsShortTextAndCountsRunes(t *testing.T) {
	assert.Equal(t, "hi", PreviewText("hi"))

	fifty := strings.Repeat("é", 50)
	assert.Equal(t, fifty, PreviewText(fifty))

	long := strings.Repeat("ж", 51)
	assert.Equal(t, 50, utf8.RuneCountInString(PreviewText(long)))
}

func TestPreviewOfVariants(t *testing.T) {
	assert.Equal(t, "[voice]", PreviewOf(Message{Kind: KindFile, File: &FileAttachment{Type: FileVoice}}))
	assert.Equal(t, "caption", PreviewOf(Message{Kind: KindFile, Text: "caption", File: &FileAttachment{Type: FileImage}}))
	assert.Equal(t, "[contact] bob", PreviewOf(Message{Kind: KindContact, Contact: &ContactShare{UserID: "u2", Username: "bob"}}))
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		field   string
	}{
		{name: "empty text", payload: Payload{Text: "  "}, field: "text"},
		{name: "too long", payload: Payload{Text: strings.Repeat("x", MaxTextRunes+1)}, field: "text"},
		{name: "file and contact", payload: Payload{File: &FileAttachment{}, Contact: &ContactShare{}}, field: "payload"},
		{name: "bad file type", payload: Payload{File: &FileAttachment{URL: "https://cdn/x", Type: "gif", Name: "x", Size: 1}}, field: "file_type"},
		{name: "bad url", payload: Payload{File: &FileAttachment{URL: "ftp://cdn/x", Type: FileImage, Name: "x", Size: 1}}, field: "file_url"},
		{name: "oversized", payload: Payload{File: &FileAttachment{URL: "https://cdn/x", Type: FileImage, Name: "x", Size: DefaultMaxFileSize + 1}}, field: "file_size"},
		{name: "forward without origin", payload: Payload{Text: "hi", IsForwarded: true}, field: "forwarded_from"},
		{name: "contact without id", payload: Payload{Contact: &ContactShare{}}, field: "contact_user_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayload(tc.payload, 0)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	require.NoError(t, ValidatePayload(Payload{Text: "hi"}, 0))
	require.NoError(t, ValidatePayload(Payload{File: &FileAttachment{URL: "https://cdn/x.ogg", Type: FileVoice, Name: "x.ogg", Size: 10}}, 0))
}

func TestCheckPassword(t *testing.T) {
	assert.ErrorIs(t, CheckPassword("abc1"), ErrWeakPassword)
	assert.ErrorIs(t, CheckPassword("abcdefgh"), ErrWeakPassword)
	assert.ErrorIs(t, CheckPassword("12345678"), ErrWeakPassword)
	assert.NoError(t, CheckPassword("abc123"))
}

func TestValidateProfileValue(t *testing.T) {
	assert.NoError(t, ValidateProfileValue(FieldUsername, "alice_01"))
	assert.ErrorIs(t, ValidateProfileValue(FieldUsername, "al"), ErrValidation)
	assert.ErrorIs(t, ValidateProfileValue(FieldUsername, strings.Repeat("a", 21)), ErrValidation)
	assert.ErrorIs(t, ValidateProfileValue(FieldBirthday, "31/12/1990"), ErrValidation)
	assert.NoError(t, ValidateProfileValue(FieldBirthday, "1990-12-31"))
	assert.ErrorIs(t, ValidateProfileValue(FieldPhone, "12ab"), ErrValidation)
	assert.NoError(t, ValidateProfileValue(FieldPhone, "+4915112345678"))
	assert.ErrorIs(t, ValidateProfileValue(FieldProfileImageURL, "not a url"), ErrValidation)
	assert.ErrorIs(t, ValidateProfileValue("password", "x"), ErrValidation)
}
