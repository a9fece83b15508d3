package delivery

import (
	"testing"
	"time"
)

func TestTracker_Lattice(t *testing.T) {
	tr := NewTracker()

	tr.MarkSent("m-1")
	st := tr.StatusFor("m-1")
	if !st.Sent || st.Delivered || st.Read {
		t.Errorf("after MarkSent: %+v", st)
	}

	tr.MarkDelivered("m-1")
	st = tr.StatusFor("m-1")
	if !st.Sent || !st.Delivered || st.Read {
		t.Errorf("after MarkDelivered: %+v", st)
	}

	tr.MarkRead("m-1", time.Now())
	st = tr.StatusFor("m-1")
	if !st.Sent || !st.Delivered || !st.Read {
		t.Errorf("after MarkRead: %+v", st)
	}
}

func TestTracker_NoRegression(t *testing.T) {
	tr := NewTracker()
	readAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Read receipt arrives before the delivered ack
	tr.MarkRead("m-1", readAt)
	tr.MarkDelivered("m-1")

	st := tr.StatusFor("m-1")
	if !st.Read {
		t.Error("read flag regressed after late MarkDelivered")
	}
	if !st.ReadAt.Equal(readAt) {
		t.Errorf("read timestamp changed: %v", st.ReadAt)
	}
}

func TestTracker_ReadTimestampMonotonic(t *testing.T) {
	tr := NewTracker()
	t1 := time.Date(2026, 3, 14, 12, 0, 10, 0, time.UTC)
	t2 := t1.Add(-5 * time.Second)

	tr.MarkRead("m-1", t1)
	tr.MarkRead("m-1", t2)

	if st := tr.StatusFor("m-1"); !st.ReadAt.Equal(t1) {
		t.Errorf("expected read timestamp %v kept, got %v", t1, st.ReadAt)
	}
}

func TestTracker_DeliveredImpliesSent(t *testing.T) {
	tr := NewTracker()

	tr.MarkDelivered("m-1")
	if st := tr.StatusFor("m-1"); !st.Sent {
		t.Error("delivered message must count as sent")
	}
}

func TestTracker_Rename(t *testing.T) {
	tr := NewTracker()

	tr.MarkSent("tmp-1")
	// Receipt for the server id raced ahead of reconciliation
	tr.MarkRead("m-9", time.Now())

	tr.Rename("tmp-1", "m-9")

	st := tr.StatusFor("m-9")
	if !st.Sent || !st.Read {
		t.Errorf("merged state lost flags: %+v", st)
	}
	if st := tr.StatusFor("tmp-1"); st.Sent {
		t.Error("old id should be gone after rename")
	}
}

func TestTracker_UnknownMessage(t *testing.T) {
	tr := NewTracker()
	if st := tr.StatusFor("nope"); st.Sent || st.Delivered || st.Read {
		t.Errorf("unknown message should have zero state, got %+v", st)
	}
}
