package delivery

import (
	"time"

	"github.com/c-pro/geche"

	"molva/internal/models"
)

// Tracker maintains per-message delivery state. Transitions follow the
// monotonic lattice sent -> delivered -> read: a flag never goes back to
// false and the read timestamp never moves earlier. Regressive calls are
// silent no-ops since they just reflect out-of-order network delivery.
type Tracker struct {
	states *geche.Locker[string, *models.DeliveryState]
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		states: geche.NewLocker[string, *models.DeliveryState](
			geche.NewMapCache[string, *models.DeliveryState](),
		),
		now: time.Now,
	}
}

func (t *Tracker) MarkSent(messageID string) {
	tx := t.states.Lock()
	defer tx.Unlock()

	st := t.get(tx, messageID)
	if st.Sent {
		return
	}
	st.Sent = true
	st.LastUpdatedAt = t.now()
	tx.Set(messageID, st)
}

func (t *Tracker) MarkDelivered(messageID string) {
	tx := t.states.Lock()
	defer tx.Unlock()

	st := t.get(tx, messageID)
	if st.Delivered {
		return
	}
	st.Sent = true
	st.Delivered = true
	st.LastUpdatedAt = t.now()
	tx.Set(messageID, st)
}

func (t *Tracker) MarkRead(messageID string, at time.Time) {
	tx := t.states.Lock()
	defer tx.Unlock()

	st := t.get(tx, messageID)
	if st.Read && !at.After(st.ReadAt) {
		return
	}
	st.Sent = true
	st.Delivered = true
	st.Read = true
	if at.After(st.ReadAt) {
		st.ReadAt = at
	}
	st.LastUpdatedAt = t.now()
	tx.Set(messageID, st)
}

// Rename rebinds the state tracked under an optimistic id to the confirmed
// server id once the two are reconciled.
func (t *Tracker) Rename(oldID, newID string) {
	tx := t.states.Lock()
	defer tx.Unlock()

	st, err := tx.Get(oldID)
	if err != nil {
		return
	}
	if existing, err := tx.Get(newID); err == nil {
		// Merge: receipts for the server id may have arrived first
		st.Sent = st.Sent || existing.Sent
		st.Delivered = st.Delivered || existing.Delivered
		st.Read = st.Read || existing.Read
		if existing.ReadAt.After(st.ReadAt) {
			st.ReadAt = existing.ReadAt
		}
	}
	tx.Set(newID, st)
	_ = tx.Del(oldID)
}

func (t *Tracker) StatusFor(messageID string) models.DeliveryState {
	tx := t.states.RLock()
	defer tx.Unlock()

	st, err := tx.Get(messageID)
	if err != nil {
		return models.DeliveryState{}
	}
	return *st
}

func (t *Tracker) get(tx *geche.Tx[string, *models.DeliveryState], messageID string) *models.DeliveryState {
	st, err := tx.Get(messageID)
	if err != nil {
		st = &models.DeliveryState{}
	}
	return st
}
