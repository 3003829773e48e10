package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/history"
	"github.com/vlad23451/syrup/internal/store"
)

type recordingController struct {
	mu       sync.Mutex
	incoming []history.Message
	deleted  []gateway.DeletedEvent
	edited   []gateway.EditedEvent
	pinned   []gateway.PinEvent
	unpinned []gateway.PinEvent
	reads    []gateway.ReadEvent
}

func (r *recordingController) ApplyIncoming(m history.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming = append(r.incoming, m)
}

func (r *recordingController) ApplyDeleted(ev gateway.DeletedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ev)
}

func (r *recordingController) ApplyEdited(ev gateway.EditedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edited = append(r.edited, ev)
}

func (r *recordingController) ApplyPinned(ev gateway.PinEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pinned = append(r.pinned, ev)
}

func (r *recordingController) ApplyUnpinned(ev gateway.PinEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unpinned = append(r.unpinned, ev)
}

func (r *recordingController) ApplyRead(ev gateway.ReadEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, ev)
}

func (r *recordingController) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.incoming), len(r.deleted), len(r.reads)
}

func testEngine(t *testing.T) (*bus.Bus, *recordingController, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	ctrl := &recordingController{}
	e := New(b, ctrl, db, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	// Let the subscription register before publishing.
	time.Sleep(10 * time.Millisecond)
	return b, ctrl, db
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInboundMessageCachedAndApplied(t *testing.T) {
	b, ctrl, db := testEngine(t)

	b.Publish(bus.KindGatewayMessage, history.Message{
		ID: 100, ChatID: 5, SenderID: 7, Text: "hello there", Timestamp: 1000, Read: history.Unread,
	})
	waitFor(t, "apply", func() bool { in, _, _ := ctrl.counts(); return in == 1 })

	msgs, err := db.ListMessages(5, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != 100 {
		t.Fatalf("cached = %+v, want message 100", msgs)
	}

	chat, err := db.GetChat(5)
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil {
		t.Fatal("chat row not created")
	}
	if chat.LastMessagePreview != "hello there" || chat.CompanionID != 7 {
		t.Errorf("chat = %+v, want preview and companion mapping", chat)
	}
	if chat.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", chat.UnreadCount)
	}
}

func TestOptimisticMessagesNotCached(t *testing.T) {
	b, ctrl, db := testEngine(t)

	b.Publish(bus.KindGatewayMessage, history.Message{
		ClientID: "c1", ChatID: 5, SenderID: 10, Text: "pending", Timestamp: 1000, FromMe: true,
	})
	waitFor(t, "apply", func() bool { in, _, _ := ctrl.counts(); return in == 1 })

	msgs, err := db.ListMessages(5, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("cached = %d rows, want 0 (no server id yet)", len(msgs))
	}
}

func TestDeleteEventPrunesCache(t *testing.T) {
	b, ctrl, db := testEngine(t)

	if err := db.UpsertMessage(&store.Message{ChatID: 5, MsgID: 100, Body: "bye", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.KindGatewayDeleted, gateway.DeletedEvent{ChatID: 5, MessageIDs: []int64{100}})
	waitFor(t, "apply", func() bool { _, del, _ := ctrl.counts(); return del == 1 })

	msgs, err := db.ListMessages(5, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("cached = %d rows after delete, want 0", len(msgs))
	}
}

func TestPinEventsRouted(t *testing.T) {
	b, ctrl, db := testEngine(t)

	if err := db.UpsertMessage(&store.Message{ChatID: 5, MsgID: 100, Body: "pin", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.KindGatewayPinned, gateway.PinEvent{ChatID: 5, MessageID: 100})
	waitFor(t, "pin", func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return len(ctrl.pinned) == 1
	})

	ids, err := db.ListPins(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 100 {
		t.Errorf("pins = %v, want [100]", ids)
	}

	b.Publish(bus.KindGatewayUnpinned, gateway.PinEvent{ChatID: 5, MessageID: 100})
	waitFor(t, "unpin", func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return len(ctrl.unpinned) == 1
	})
	ids, _ = db.ListPins(5)
	if len(ids) != 0 {
		t.Errorf("pins after unpin = %v, want empty", ids)
	}
}

func TestReadEventRouted(t *testing.T) {
	b, ctrl, _ := testEngine(t)
	b.Publish(bus.KindGatewayRead, gateway.ReadEvent{ChatID: 5, UserID: 7, Until: 1000})
	waitFor(t, "read", func() bool { _, _, reads := ctrl.counts(); return reads == 1 })
}
