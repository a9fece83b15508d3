package history

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"molva/internal/models"
)

// Cache is a local, per-conversation store of server-confirmed messages so a
// conversation renders instantly on open while the network fetch is still in
// flight. It is a read cache: optimistic messages are never written, so it
// can never turn into an offline send queue.
type Cache struct {
	db *bbolt.DB
}

func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores confirmed messages under their conversation bucket. Optimistic
// entries are skipped.
func (c *Cache) Put(conversationID string, msgs []models.Message) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(conversationID))
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if msg.IsOptimistic() {
				continue
			}
			rec := toDB(msg)
			data, err := rec.MarshalBinary()
			if err != nil {
				return err
			}
			if err := b.Put(rec.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns up to limit most recent cached messages for a conversation,
// in chronological order. A missing bucket is just an empty history.
func (c *Cache) Load(conversationID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}

		cur := b.Cursor()
		for k, v := cur.Last(); k != nil && len(msgs) < limit; k, v = cur.Prev() {
			var rec dbMessage
			if err := rec.UnmarshalBinary(v); err != nil {
				return err
			}
			msgs = append(msgs, rec.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cursor walked newest-first; flip to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
