package presence

import (
	"sort"
	"sync"
	"time"

	"molva/internal/models"
)

// DefaultStaleAfter is how long a typing signal stays valid without a
// follow-up. Expiry is evaluated at read time, so a missed stop signal can
// never leave a stale indicator displayed forever.
const DefaultStaleAfter = 5 * time.Second

// Tracker maintains the online roster and per-user typing state. Roster data
// only arrives in push mode; under polling the tracker simply stays empty.
type Tracker struct {
	mu sync.RWMutex

	online map[string]bool

	// conversationID -> userID -> last typing signal
	typing map[string]map[string]time.Time

	staleAfter time.Duration
}

func NewTracker() *Tracker {
	return &Tracker{
		online:     make(map[string]bool),
		typing:     make(map[string]map[string]time.Time),
		staleAfter: DefaultStaleAfter,
	}
}

// UpdateRoster replaces the online/offline roster wholesale.
func (t *Tracker) UpdateRoster(entries []models.PresenceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.online = make(map[string]bool, len(entries))
	for _, e := range entries {
		t.online[e.UserID] = e.Online
	}
}

func (t *Tracker) Online(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[userID]
}

func (t *Tracker) Roster() []models.PresenceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]models.PresenceEntry, 0, len(t.online))
	for id, on := range t.online {
		entries = append(entries, models.PresenceEntry{UserID: id, Online: on})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// OnTypingSignal upserts typing state on start and removes it on stop.
func (t *Tracker) OnTypingSignal(conversationID, userID string, active bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.typing[conversationID]
	if !active {
		delete(users, userID)
		return
	}
	if users == nil {
		users = make(map[string]time.Time)
		t.typing[conversationID] = users
	}
	users[userID] = at
}

// ActiveTypers returns users whose last typing signal is within the
// staleness window from now.
func (t *Tracker) ActiveTypers(conversationID string, now time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, at := range t.typing[conversationID] {
		if now.Sub(at) <= t.staleAfter {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
