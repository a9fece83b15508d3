package store

import (
	"testing"
	"time"

	"molva/internal/models"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func msg(id, conv, sender, content string, at time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Content:        content,
		Timestamp:      at,
		Kind:           models.MessageKindText,
	}
}

func TestStore_MergeDedup(t *testing.T) {
	s := New()

	incoming := []models.Message{
		msg("m-1", "c1", "u1", "hello", base),
		msg("m-2", "c1", "u2", "hi", base.Add(time.Second)),
	}

	r := s.MergeIncoming("c1", incoming)
	if len(r.Added) != 2 {
		t.Fatalf("expected 2 added, got %d", len(r.Added))
	}

	// Second poll returns the identical page
	r = s.MergeIncoming("c1", incoming)
	if !r.Empty() {
		t.Errorf("re-merge should be a no-op, got %+v", r)
	}

	got := s.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "m-1" || got[1].ID != "m-2" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestStore_FingerprintReconciliation(t *testing.T) {
	s := New()

	// User sends "Hello" at 12:00:05, optimistic entry appears instantly
	opt := msg(models.NewOptimisticID(), "c1", "u1", "Hello", base.Add(5*time.Second))
	s.AppendOptimistic(opt)

	if got := s.Messages("c1"); len(got) != 1 {
		t.Fatalf("expected optimistic entry visible, got %d messages", len(got))
	}

	// Next poll returns the server copy at 12:00:07
	r := s.MergeIncoming("c1", []models.Message{
		msg("m-77", "c1", "u1", "Hello", base.Add(7*time.Second)),
	})

	if len(r.Added) != 0 {
		t.Errorf("server copy should replace, not append: %+v", r.Added)
	}
	if r.Replaced[opt.ID] != "m-77" {
		t.Errorf("expected %s replaced by m-77, got %v", opt.ID, r.Replaced)
	}

	got := s.Messages("c1")
	if len(got) != 1 {
		t.Fatalf("expected exactly one message after reconciliation, got %d", len(got))
	}
	if got[0].ID != "m-77" {
		t.Errorf("expected server id m-77, got %s", got[0].ID)
	}
}

func TestStore_FingerprintMinuteBoundary(t *testing.T) {
	s := New()

	// Optimistic at 12:00:59, server copy lands in the next bucket
	opt := msg(models.NewOptimisticID(), "c1", "u1", "edge", base.Add(59*time.Second))
	s.AppendOptimistic(opt)

	s.MergeIncoming("c1", []models.Message{
		msg("m-5", "c1", "u1", "edge", base.Add(61*time.Second)),
	})

	got := s.Messages("c1")
	if len(got) != 1 || got[0].ID != "m-5" {
		t.Errorf("expected single reconciled m-5, got %+v", got)
	}
}

func TestStore_NoFalseReconciliation(t *testing.T) {
	s := New()

	opt := msg(models.NewOptimisticID(), "c1", "u1", "hello", base)
	s.AppendOptimistic(opt)

	// Different sender, same content: must not be matched
	s.MergeIncoming("c1", []models.Message{
		msg("m-9", "c1", "u2", "hello", base.Add(time.Second)),
	})

	got := s.Messages("c1")
	if len(got) != 2 {
		t.Fatalf("expected 2 messages (no false match), got %d", len(got))
	}
}

func TestStore_SortedByTimestamp(t *testing.T) {
	s := New()

	s.MergeIncoming("c1", []models.Message{
		msg("m-3", "c1", "u1", "third", base.Add(3*time.Second)),
		msg("m-1", "c1", "u1", "first", base.Add(time.Second)),
		msg("m-2", "c1", "u1", "second", base.Add(2*time.Second)),
	})

	got := s.Messages("c1")
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("sequence not sorted at %d: %v after %v", i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestStore_MarkSeenSkipsRefetch(t *testing.T) {
	s := New()

	m := msg("m-1", "c1", "u1", "old history", base)
	s.MergeIncoming("c1", []models.Message{m})

	// Context switch away and back: seen set is rebuilt from known messages
	s.ResetSeen("c1")
	s.MarkSeen("c1", "m-1")

	r := s.MergeIncoming("c1", []models.Message{m})
	if !r.Empty() {
		t.Errorf("refetched history should not re-merge, got %+v", r)
	}
}

func TestStore_ExpireOptimistic(t *testing.T) {
	s := New()

	opt := msg(models.NewOptimisticID(), "c1", "u1", "lost", base)
	s.AppendOptimistic(opt)

	now := base.Add(2 * time.Minute)

	stale := s.ExpireOptimistic(now, 90*time.Second)
	if len(stale) != 1 || stale[0].ID != opt.ID {
		t.Fatalf("expected the stale optimistic entry, got %+v", stale)
	}

	// Reported only once
	if stale := s.ExpireOptimistic(now, 90*time.Second); len(stale) != 0 {
		t.Errorf("expected no repeat report, got %+v", stale)
	}

	// Entry stays visible (degraded path, no auto-retry)
	if got := s.Messages("c1"); len(got) != 1 {
		t.Errorf("stale optimistic entry should remain in place")
	}
}

func TestStore_ExpireSkipsReconciled(t *testing.T) {
	s := New()

	opt := msg(models.NewOptimisticID(), "c1", "u1", "hi", base)
	s.AppendOptimistic(opt)
	s.MergeIncoming("c1", []models.Message{msg("m-1", "c1", "u1", "hi", base.Add(time.Second))})

	if stale := s.ExpireOptimistic(base.Add(5*time.Minute), 90*time.Second); len(stale) != 0 {
		t.Errorf("reconciled message reported as stale: %+v", stale)
	}
}
