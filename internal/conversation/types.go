// ABOUTME: Conversation and Message value types returned by the Store
// ABOUTME: Includes title derivation from the first user-authored message

package conversation

import (
	"time"
	"unicode/utf8"
)

// DefaultTitle is shown until the first user message derives a real title.
const DefaultTitle = "New Conversation"

// maxTitleLength is the number of characters kept from the first user message.
const maxTitleLength = 50

// titleEllipsis marks a title that was cut at maxTitleLength.
const titleEllipsis = "..."

// Message is a single entry in a conversation. ConversationID is a
// back-reference only; messages are owned by their conversation.
type Message struct {
	ID             string
	Text           string
	IsFromUser     bool
	ConversationID string
	Timestamp      time.Time
}

// Conversation is a snapshot of one user's thread with the assistant.
// Values returned by the Store are copies and never change underneath the caller.
type Conversation struct {
	ID                 string
	UserName           string
	Title              string
	Messages           []Message
	CreatedAt          time.Time
	LastMessageAt      time.Time
	PreviousResponseID string // empty until the first successful remote reply
}

// LatestMessage returns the most recent message by timestamp. When two
// messages share a timestamp the later-appended one wins.
func (c Conversation) LatestMessage() (Message, bool) {
	return latestMessage(c.Messages)
}

// latestMessage scans from the end so equal timestamps resolve to the last append.
func latestMessage(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	best := len(msgs) - 1
	for i := len(msgs) - 2; i >= 0; i-- {
		if msgs[i].Timestamp.After(msgs[best].Timestamp) {
			best = i
		}
	}
	return msgs[best], true
}

// latestUserMessage returns the most recently appended user-authored message.
func latestUserMessage(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsFromUser {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// DeriveTitle builds a display title from message text: the text itself when
// it fits, otherwise its first 50 characters followed by "...".
func DeriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= maxTitleLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTitleLength]) + titleEllipsis
}
