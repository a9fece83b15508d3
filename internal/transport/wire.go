package transport

import (
	"encoding/json"
	"time"

	"molva/internal/models"
)

// Event names on the duplex channel.
const (
	evMessageReceive    = "message:receive"
	evMessagePrivate    = "message:private"
	evChannelMessage    = "channel:message"
	evTypingStart       = "typing:start"
	evTypingStop        = "typing:stop"
	evChannelTyping     = "channel:typing"
	evChannelTypingStop = "channel:typing:stop"
	evUsersOnline       = "users:online"
	evMessageRead       = "message:read"
	evRegister          = "users:register"
)

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newWireEvent(event string, payload any) (wireEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return wireEvent{}, err
	}
	return wireEvent{Event: event, Data: data}, nil
}

type wireRegister struct {
	UserID string `json:"userId"`
}

type wireMessages struct {
	ConversationID string           `json:"conversationId"`
	Messages       []models.Message `json:"messages"`
}

type wireSend struct {
	RecipientID string              `json:"recipientId,omitempty"`
	ChannelID   string              `json:"channelId,omitempty"`
	Content     string              `json:"content"`
	Kind        models.MessageKind  `json:"kind"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyToID   string              `json:"replyTo,omitempty"`
}

type wireTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type wireReceipt struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// decodeEvent maps a wire event to the tagged model event. A false second
// return means the event carries nothing for this client.
func decodeEvent(ev wireEvent) (models.Event, bool, error) {
	switch ev.Event {
	case evMessageReceive:
		var p wireMessages
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return models.Event{}, false, err
		}
		return models.Event{
			Kind:           models.EventMessages,
			ConversationID: p.ConversationID,
			Messages:       p.Messages,
		}, true, nil

	case evTypingStart, evChannelTyping, evTypingStop, evChannelTypingStop:
		var p wireTyping
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return models.Event{}, false, err
		}
		active := ev.Event == evTypingStart || ev.Event == evChannelTyping
		return models.Event{
			Kind:           models.EventTyping,
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			TypingActive:   active,
		}, true, nil

	case evUsersOnline:
		var roster []models.PresenceEntry
		if err := json.Unmarshal(ev.Data, &roster); err != nil {
			return models.Event{}, false, err
		}
		return models.Event{Kind: models.EventPresence, Roster: roster}, true, nil

	case evMessageRead:
		var p wireReceipt
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return models.Event{}, false, err
		}
		return models.Event{
			Kind:      models.EventReceipt,
			MessageID: p.MessageID,
			UserID:    p.UserID,
			ReadAt:    p.ReadAt,
		}, true, nil
	}

	return models.Event{}, false, nil
}
