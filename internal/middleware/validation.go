package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxContentLength bounds a chat message.
const MaxContentLength = 100000

// ValidateMessageContent validates message content. Whitespace-only input
// is left to the conversation store, which treats it as a no-op.
func ValidateMessageContent(content string) error {
	if len(content) > MaxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateTabID validates a browser tab id.
func ValidateTabID(id string) error {
	if id == "" {
		return errors.New("tab ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tab ID exceeds maximum length")
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return errors.New("tab ID must be printable ASCII")
		}
	}
	return nil
}

// ValidateSessionID validates a conversation session id.
func ValidateSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session ID cannot be empty")
	}
	if len(id) > 256 {
		return errors.New("session ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("session ID must be valid UTF-8")
	}
	return nil
}

// ValidateURL validates a page URL reported by the extension.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url cannot be empty")
	}
	if len(raw) > 8192 {
		return errors.New("url exceeds maximum length")
	}
	return nil
}
