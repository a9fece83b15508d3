package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAuthFailed           = errors.New("authentication failed")
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrSendFailed           = errors.New("send failed")
	ErrFetchFailed          = errors.New("fetch failed")
)

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// Attachment describes a file carried by a message. Upload mechanics live
// elsewhere; only the descriptor travels with the message.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is a single chat message, optimistic or server-confirmed.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	Content        string              `json:"content"`
	Timestamp      time.Time           `json:"timestamp"`
	Kind           MessageKind         `json:"kind"`
	ReplyToID      string              `json:"replyToId,omitempty"`
	Attachments    []Attachment        `json:"attachments,omitempty"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
	Edited         bool                `json:"edited,omitempty"`
}

// OptimisticIDPrefix marks locally generated ids so they can never collide
// with server-assigned ones.
const OptimisticIDPrefix = "tmp-"

func NewOptimisticID() string {
	return OptimisticIDPrefix + uuid.NewString()
}

func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticIDPrefix)
}

// Fingerprint identifies a message by sender, content and a one-minute time
// bucket. It matches a local optimistic message to the server copy that
// eventually comes back for it.
type Fingerprint struct {
	SenderID string
	Content  string
	Bucket   int64
}

func (m Message) Fingerprint() Fingerprint {
	return Fingerprint{
		SenderID: m.SenderID,
		Content:  m.Content,
		Bucket:   m.Timestamp.Unix() / 60,
	}
}

type ConversationKind string

const (
	ConversationKindPublic  ConversationKind = "public"
	ConversationKindPrivate ConversationKind = "private"
	ConversationKindDirect  ConversationKind = "direct"
)

// Conversation is a channel or a direct thread between two users.
type Conversation struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Kind      ConversationKind `json:"kind"`
	MemberIDs []string         `json:"memberIds,omitempty"`
}

// DirectConversationID builds the deterministic id for a DM between two
// users, independent of argument order.
func DirectConversationID(u1, u2 string) string {
	ids := []string{u1, u2}
	sort.Strings(ids)
	return fmt.Sprintf("dm_%s_%s", ids[0], ids[1])
}

func IsDirectConversation(conversationID string) bool {
	return strings.HasPrefix(conversationID, "dm_")
}

// DirectPeer returns the other participant of a DM conversation id.
func DirectPeer(conversationID, selfID string) string {
	parts := strings.Split(strings.TrimPrefix(conversationID, "dm_"), "_")
	if len(parts) != 2 {
		return ""
	}
	if parts[0] == selfID {
		return parts[1]
	}
	return parts[0]
}

// TypingStatus is ephemeral typing state; it is never persisted and goes
// stale on its own if no stop signal arrives.
type TypingStatus struct {
	ConversationID string
	UserID         string
	LastSignalAt   time.Time
}

type PresenceEntry struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// DeliveryState tracks the monotonic sent/delivered/read lattice for one
// message.
type DeliveryState struct {
	Sent          bool
	Delivered     bool
	Read          bool
	ReadAt        time.Time
	LastUpdatedAt time.Time
}

// PollingContext is the single target the polling loop fetches. Exactly one
// of RecipientID or ChannelID is set.
type PollingContext struct {
	RecipientID string
	ChannelID   string
}

func (p PollingContext) IsZero() bool {
	return p.RecipientID == "" && p.ChannelID == ""
}

// ConversationID returns the conversation the context resolves to for a
// given local identity.
func (p PollingContext) ConversationID(selfID string) string {
	if p.ChannelID != "" {
		return p.ChannelID
	}
	return DirectConversationID(selfID, p.RecipientID)
}

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateAuthFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateAuthFailed:
		return "auth_failed"
	}
	return "unknown"
}
