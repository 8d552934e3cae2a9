package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewChatID(t *testing.T) {
	a := NewChatID()
	b := NewChatID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, idAlphabet, string(r))
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "plain text", text: "Explain entropy", want: "Explain entropy"},
		{name: "image only", text: "", want: "Image"},
		{name: "exactly forty", text: strings.Repeat("x", 40), want: strings.Repeat("x", 40)},
		{name: "truncated", text: strings.Repeat("x", 41), want: strings.Repeat("x", 40)},
		{name: "multibyte runes", text: strings.Repeat("é", 50), want: strings.Repeat("é", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.text))
		})
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 15, 14, 30, 0, 0, time.Local)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{name: "seconds ago", at: now.Add(-30 * time.Second), want: "just now"},
		{name: "minutes ago", at: now.Add(-5 * time.Minute), want: "5m ago"},
		{name: "earlier today", at: now.Add(-3 * time.Hour), want: "11:30 AM"},
		{name: "another day", at: now.AddDate(0, 0, -3), want: "Jun 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRelativeTime(tt.at, now))
		})
	}
}
