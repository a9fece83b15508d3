package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"molva/internal/models"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "history_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	c, err := Open(filepath.Join(tmpDir, "history.db"))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_PutLoad(t *testing.T) {
	c := openTestCache(t)
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	msgs := []models.Message{
		{ID: "m-2", ConversationID: "c1", SenderID: "u1", Content: "second", Timestamp: base.Add(time.Second), Kind: models.MessageKindText},
		{ID: "m-1", ConversationID: "c1", SenderID: "u2", Content: "first", Timestamp: base, Kind: models.MessageKindText,
			Attachments: []models.Attachment{{Name: "a.png", URL: "/f/a.png", MimeType: "image/png", Size: 42}}},
	}
	if err := c.Put("c1", msgs); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Load("c1", 100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "m-1" || got[1].ID != "m-2" {
		t.Errorf("wrong chronological order: %s, %s", got[0].ID, got[1].ID)
	}
	if len(got[0].Attachments) != 1 || got[0].Attachments[0].MimeType != "image/png" {
		t.Errorf("attachment lost: %+v", got[0].Attachments)
	}
}

func TestCache_SkipsOptimistic(t *testing.T) {
	c := openTestCache(t)

	err := c.Put("c1", []models.Message{
		{ID: models.NewOptimisticID(), ConversationID: "c1", Content: "pending", Timestamp: time.Now()},
		{ID: "m-1", ConversationID: "c1", Content: "confirmed", Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Load("c1", 100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-1" {
		t.Errorf("optimistic message must not be cached: %+v", got)
	}
}

func TestCache_LoadLimit(t *testing.T) {
	c := openTestCache(t)
	base := time.Now()

	var msgs []models.Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, models.Message{
			ID:        string(rune('a' + i)),
			Content:   "m",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	if err := c.Put("c1", msgs); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Load("c1", 3)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	// Most recent 3, oldest first
	if got[0].ID != "h" || got[2].ID != "j" {
		t.Errorf("wrong window: %s..%s", got[0].ID, got[2].ID)
	}
}

func TestCache_UnknownConversation(t *testing.T) {
	c := openTestCache(t)
	got, err := c.Load("nope", 10)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty history, got %d", len(got))
	}
}
