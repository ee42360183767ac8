// internal/sanitize/sanitize.go
package sanitize

import (
	"errors"
	"strings"
	"unicode"
)

// Limits applied to client-supplied text.
const (
	MinNameLen  = 2
	MaxNameLen  = 20
	MaxChatLen  = 200
	RoomCodeLen = 4
)

var (
	ErrInvalidName = errors.New("invalid display name")
	ErrInvalidCode = errors.New("invalid room code")
)

// stripUnsafe removes markup-significant and control characters. Everything
// else (letters, digits, punctuation, spaces) passes through untouched.
func stripUnsafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<', '>', '&', '"', '\'', '`':
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate cuts s to at most max runes without splitting a rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Name normalizes a display name: strip unsafe characters, trim surrounding
// whitespace, cap at MaxNameLen runes. Fails if fewer than MinNameLen runes
// survive.
func Name(raw string) (string, error) {
	name := strings.TrimSpace(stripUnsafe(raw))
	name = truncate(name, MaxNameLen)
	name = strings.TrimSpace(name)
	if len([]rune(name)) < MinNameLen {
		return "", ErrInvalidName
	}
	return name, nil
}

// ChatText normalizes a chat message the same way but never errors; an
// empty result means the message should be dropped.
func ChatText(raw string) string {
	text := strings.TrimSpace(stripUnsafe(raw))
	return truncate(text, MaxChatLen)
}

// RoomCode uppercases a client-supplied room code and validates its shape:
// exactly RoomCodeLen case-insensitive alphanumeric characters.
func RoomCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != RoomCodeLen {
		return "", ErrInvalidCode
	}
	for _, ch := range code {
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}
