package models

import (
	"testing"
	"time"
)

func TestDirectConversationID(t *testing.T) {
	if DirectConversationID("bob", "alice") != DirectConversationID("alice", "bob") {
		t.Error("DM id must not depend on argument order")
	}
	if got := DirectConversationID("alice", "bob"); got != "dm_alice_bob" {
		t.Errorf("unexpected DM id: %s", got)
	}
}

func TestDirectPeer(t *testing.T) {
	id := DirectConversationID("alice", "bob")
	if got := DirectPeer(id, "alice"); got != "bob" {
		t.Errorf("expected bob, got %s", got)
	}
	if got := DirectPeer(id, "bob"); got != "alice" {
		t.Errorf("expected alice, got %s", got)
	}
}

func TestOptimisticID(t *testing.T) {
	m := Message{ID: NewOptimisticID()}
	if !m.IsOptimistic() {
		t.Error("generated id not recognized as optimistic")
	}
	if (Message{ID: "m-77"}).IsOptimistic() {
		t.Error("server id misclassified as optimistic")
	}
}

func TestFingerprintBucketing(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)

	a := Message{SenderID: "u1", Content: "hi", Timestamp: base}
	b := Message{SenderID: "u1", Content: "hi", Timestamp: base.Add(30 * time.Second)}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("messages 30s apart in the same minute must share a fingerprint")
	}

	c := Message{SenderID: "u1", Content: "hi", Timestamp: base.Add(2 * time.Minute)}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("messages minutes apart must not share a fingerprint")
	}

	d := Message{SenderID: "u2", Content: "hi", Timestamp: base}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("different senders must not share a fingerprint")
	}
}

func TestPollingContext(t *testing.T) {
	if !(PollingContext{}).IsZero() {
		t.Error("empty context should be zero")
	}
	p := PollingContext{RecipientID: "bob"}
	if got := p.ConversationID("alice"); got != "dm_alice_bob" {
		t.Errorf("unexpected conversation id: %s", got)
	}
	ch := PollingContext{ChannelID: "general"}
	if got := ch.ConversationID("alice"); got != "general" {
		t.Errorf("unexpected channel conversation id: %s", got)
	}
}
