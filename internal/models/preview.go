package models

import "strings"

const (
	PreviewMaxRunes  = 50
	previewKeepRunes = 47
	previewEllipsis  = "..."
)

// PreviewText truncates text to the chat-list preview length.
func PreviewText(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= PreviewMaxRunes {
		return text
	}
	return string(runes[:previewKeepRunes]) + previewEllipsis
}

// PreviewOf renders the denormalized preview stored on the chat.
func PreviewOf(m Message) string {
	switch m.Kind {
	case KindFile:
		if strings.TrimSpace(m.Text) != "" {
			return PreviewText(m.Text)
		}
		if m.File != nil {
			return "[" + string(m.File.Type) + "]"
		}
		return "[file]"
	case KindContact:
		if m.Contact != nil {
			return PreviewText("[contact] " + m.Contact.Username)
		}
		return "[contact]"
	default:
		return PreviewText(m.Text)
	}
}
