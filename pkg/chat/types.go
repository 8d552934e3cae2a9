package chat

import (
	"fmt"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is the title of a chat before its first message, and after a clear.
const DefaultTitle = "New Chat"

// ImagePlaceholder is the message content used when a send carries an image
// but no text.
const ImagePlaceholder = "Please analyze this image."

const titleMaxLen = 40

// Message is a single conversation turn. Messages are append-only and never
// mutated once stored.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is one conversation: an ordered, append-only message sequence plus
// bookkeeping timestamps.
type Chat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewChatID generates a chat ID from the current time in base36 plus a short
// random suffix. Collisions are not re-checked; at this scale the probability
// is negligible.
func NewChatID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + gonanoid.MustGenerate(idAlphabet, 5)
}

// DeriveTitle produces a chat title from the text of its first message.
// Image-only messages title the chat "Image".
func DeriveTitle(text string) string {
	if text == "" {
		text = "Image"
	}
	runes := []rune(text)
	if len(runes) > titleMaxLen {
		return string(runes[:titleMaxLen])
	}
	return text
}

// FormatRelativeTime renders a timestamp the way the history list shows it:
// recent times relative, today's as clock time, older as a short date.
func FormatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case t.Year() == now.Year() && t.YearDay() == now.YearDay():
		return t.Format("3:04 PM")
	default:
		return t.Format("Jan 2")
	}
}
