package history

import (
	"encoding/binary"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"molva/internal/models"
)

type dbAttachment struct {
	Name     string `msgpack:"name"`
	URL      string `msgpack:"url"`
	MimeType string `msgpack:"mimeType"`
	Size     int64  `msgpack:"size"`
}

type dbMessage struct {
	ID             string              `msgpack:"id"`
	ConversationID string              `msgpack:"conversationId"`
	SenderID       string              `msgpack:"senderId"`
	Content        string              `msgpack:"content"`
	Timestamp      int64               `msgpack:"timestamp"` // Unix nanoseconds
	Kind           string              `msgpack:"kind"`
	ReplyToID      string              `msgpack:"replyToId,omitempty"`
	Attachments    []dbAttachment      `msgpack:"attachments,omitempty"`
	Reactions      map[string][]string `msgpack:"reactions,omitempty"`
	Edited         bool                `msgpack:"edited,omitempty"`
}

// Key orders records by timestamp first so a bucket scan yields the
// conversation in chronological order; the id suffix keeps keys unique when
// timestamps collide.
func (m *dbMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.Timestamp))
	return append(key, m.ID...)
}

func (m *dbMessage) MarshalBinary() ([]byte, error) {
	type alias dbMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *dbMessage) UnmarshalBinary(data []byte) error {
	type alias dbMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func toDB(msg models.Message) *dbMessage {
	atts := make([]dbAttachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		atts = append(atts, dbAttachment(a))
	}
	return &dbMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Timestamp:      msg.Timestamp.UnixNano(),
		Kind:           string(msg.Kind),
		ReplyToID:      msg.ReplyToID,
		Attachments:    atts,
		Reactions:      msg.Reactions,
		Edited:         msg.Edited,
	}
}

func (m *dbMessage) toModel() models.Message {
	var atts []models.Attachment
	for _, a := range m.Attachments {
		atts = append(atts, models.Attachment(a))
	}
	return models.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Timestamp:      time.Unix(0, m.Timestamp),
		Kind:           models.MessageKind(m.Kind),
		ReplyToID:      m.ReplyToID,
		Attachments:    atts,
		Reactions:      m.Reactions,
		Edited:         m.Edited,
	}
}
