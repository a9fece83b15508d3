package store

import (
	"sort"
	"sync"
	"time"

	"molva/internal/models"
)

// Store holds the ordered message sequence for every conversation and is the
// only place optimistic and server-confirmed messages get merged. Within a
// conversation ids are unique and messages are kept sorted by timestamp.
type Store struct {
	mu sync.RWMutex

	// conversationID -> sorted message sequence
	messages map[string][]models.Message

	// conversationID -> server ids already merged, so a re-poll returning
	// the same page is a no-op
	seen map[string]map[string]struct{}

	// optimistic ids already reported as unconfirmed, to log them once
	reported map[string]struct{}
}

func New() *Store {
	return &Store{
		messages: make(map[string][]models.Message),
		seen:     make(map[string]map[string]struct{}),
		reported: make(map[string]struct{}),
	}
}

// MergeResult reports what MergeIncoming actually changed.
type MergeResult struct {
	Added []models.Message
	// optimistic id -> server id for entries reconciled by fingerprint
	Replaced map[string]string
}

func (r MergeResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Replaced) == 0
}

// AppendOptimistic inserts a locally created message immediately, before any
// server confirmation, keeping the sequence sorted.
func (s *Store) AppendOptimistic(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := append(s.messages[msg.ConversationID], msg)
	sortMessages(seq)
	s.messages[msg.ConversationID] = seq
}

// MergeIncoming folds server messages into a conversation. Already-seen ids
// are skipped, messages matching an optimistic entry by fingerprint replace
// it, everything else is appended. The call is idempotent.
func (s *Store) MergeIncoming(conversationID string, incoming []models.Message) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.seen[conversationID]
	if seen == nil {
		seen = make(map[string]struct{})
		s.seen[conversationID] = seen
	}

	seq := s.messages[conversationID]
	result := MergeResult{Replaced: make(map[string]string)}

	for _, msg := range incoming {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		if containsID(seq, msg.ID) {
			seen[msg.ID] = struct{}{}
			continue
		}

		if i := matchOptimistic(seq, msg); i >= 0 {
			result.Replaced[seq[i].ID] = msg.ID
			delete(s.reported, seq[i].ID)
			seq[i] = msg
		} else {
			seq = append(seq, msg)
			result.Added = append(result.Added, msg)
		}
		seen[msg.ID] = struct{}{}
	}

	sortMessages(seq)
	s.messages[conversationID] = seq

	return result
}

// MarkSeen records server ids as already merged without touching the
// sequence. Used when a conversation is selected and its known history
// should not be re-merged by the next full refetch.
func (s *Store) MarkSeen(conversationID string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.seen[conversationID]
	if seen == nil {
		seen = make(map[string]struct{})
		s.seen[conversationID] = seen
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
}

// ResetSeen drops the seen-id set for a conversation. Called on polling
// context switches.
func (s *Store) ResetSeen(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, conversationID)
}

// Messages returns a copy of the conversation's sequence.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.messages[conversationID]
	out := make([]models.Message, len(seq))
	copy(out, seq)
	return out
}

// ExpireOptimistic returns optimistic entries older than window that never
// got reconciled with a server copy. Each entry is returned once; they stay
// in the sequence (degraded path, no automatic retry).
func (s *Store) ExpireOptimistic(now time.Time, window time.Duration) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []models.Message
	for _, seq := range s.messages {
		for _, msg := range seq {
			if !msg.IsOptimistic() {
				continue
			}
			if now.Sub(msg.Timestamp) < window {
				continue
			}
			if _, ok := s.reported[msg.ID]; ok {
				continue
			}
			s.reported[msg.ID] = struct{}{}
			stale = append(stale, msg)
		}
	}
	return stale
}

func sortMessages(seq []models.Message) {
	sort.SliceStable(seq, func(i, j int) bool {
		if seq[i].Timestamp.Equal(seq[j].Timestamp) {
			return seq[i].ID < seq[j].ID
		}
		return seq[i].Timestamp.Before(seq[j].Timestamp)
	})
}

func containsID(seq []models.Message, id string) bool {
	for _, m := range seq {
		if m.ID == id {
			return true
		}
	}
	return false
}

// matchOptimistic finds an optimistic entry whose fingerprint matches the
// incoming server message, checking the adjacent time bucket as well so a
// send right before a minute boundary still reconciles.
func matchOptimistic(seq []models.Message, incoming models.Message) int {
	fp := incoming.Fingerprint()
	for i, m := range seq {
		if !m.IsOptimistic() {
			continue
		}
		mfp := m.Fingerprint()
		if mfp.SenderID != fp.SenderID || mfp.Content != fp.Content {
			continue
		}
		if diff := mfp.Bucket - fp.Bucket; diff >= -1 && diff <= 1 {
			return i
		}
	}
	return -1
}
