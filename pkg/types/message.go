// Package types defines the message value passed between all pipeline stages.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a message for routing purposes.
type Kind string

const (
	// KindUser is a chat line typed by a user. Routed to broadcast and analytics.
	KindUser Kind = "user"
	// KindSystem is a server-generated notice (joins, departures, evictions).
	// Routed to broadcast only.
	KindSystem Kind = "system"
	// KindCommand is a slash-prefixed bot command. Routed to analytics only;
	// the bot's reply re-enters the pipeline as KindStatistics.
	KindCommand Kind = "command"
	// KindStatistics is a bot reply or periodic report. Routed to broadcast only.
	KindStatistics Kind = "statistics"
)

// IsValid reports whether k is one of the four routable kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindUser, KindSystem, KindCommand, KindStatistics:
		return true
	}
	return false
}

// Message is an immutable value created at the point of ingestion and passed
// by value through every queue stage. No stage mutates it.
type Message struct {
	ID        string
	Kind      Kind
	Sender    string
	Text      string
	CreatedAt time.Time
}

// NewMessage creates a message with a server-generated ID and timestamp.
// The ID is always assigned here so no producer can forge one.
func NewMessage(kind Kind, sender, text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// String renders the message for logs.
func (m Message) String() string {
	return fmt.Sprintf("[%s] %s: %s", m.Kind, m.Sender, m.Text)
}
