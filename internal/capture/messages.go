package capture

import (
	"fmt"
	"strings"
)

// ErrorMessages maps recognizer error kinds to user-facing text. Kinds vary
// across host platforms, so the table is configuration rather than an enum.
type ErrorMessages struct {
	table    map[string]string
	template string
}

// NewErrorMessages builds a table. template formats unmapped kinds and must
// contain one %s; an empty template uses "Speech recognition error: %s".
func NewErrorMessages(table map[string]string, template string) *ErrorMessages {
	t := make(map[string]string, len(table))
	for k, v := range table {
		t[strings.ToLower(strings.TrimSpace(k))] = v
	}
	if template == "" || !strings.Contains(template, "%s") {
		template = "Speech recognition error: %s"
	}
	return &ErrorMessages{table: t, template: template}
}

// DefaultErrorMessages covers the kinds browsers report most often.
func DefaultErrorMessages() *ErrorMessages {
	return NewErrorMessages(map[string]string{
		"not-allowed": "Microphone access denied. Please allow microphone access and try again.",
		"no-speech":   "No speech detected. Please speak clearly and try again.",
		"network":     "Network error. Please check your internet connection.",
	}, "")
}

// Message returns the text for kind.
func (m *ErrorMessages) Message(kind string) string {
	if msg, ok := m.table[strings.ToLower(strings.TrimSpace(kind))]; ok {
		return msg
	}
	return fmt.Sprintf(m.template, kind)
}
