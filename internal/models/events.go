package models

import "time"

type EventKind string

const (
	EventMessages   EventKind = "messages"
	EventTyping     EventKind = "typing"
	EventPresence   EventKind = "presence"
	EventReceipt    EventKind = "receipt"
	EventConnection EventKind = "connection"
)

// Event is the tagged union flowing from the transport to the facade and on
// to subscribers. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventMessages
	ConversationID string
	Messages       []Message

	// EventTyping
	UserID       string
	TypingActive bool

	// EventPresence
	Roster []PresenceEntry

	// EventReceipt
	MessageID string
	ReadAt    time.Time

	// EventConnection
	State ConnectionState
	Err   error
}
