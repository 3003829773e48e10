package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/store"
)

type fakeGateway struct {
	result gateway.SendResult
	err    error
	calls  int
}

func (g *fakeGateway) SendText(_ context.Context, clientID string, senderID, chatID int64, text string, attachmentIDs []int64) (gateway.SendResult, error) {
	g.calls++
	return g.result, g.err
}

func testDispatcher(t *testing.T, gw *fakeGateway) (*Dispatcher, *store.DB, *bus.Bus) {
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
	return New(db, gw, b, 10, nil), db, b
}

func TestDispatchAccepted(t *testing.T) {
	gw := &fakeGateway{result: gateway.SendResult{Accepted: true, MessageID: 1001}}
	d, db, b := testDispatcher(t, gw)
	events, unsub := b.Subscribe("message.", 4)
	defer unsub()

	e := &store.OutboxEntry{ClientMsgID: "c1", ChatID: 42, Body: "hi"}
	if err := d.Queue(e); err != nil {
		t.Fatal(err)
	}
	res, err := d.Dispatch(context.Background(), e)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted || res.MessageID != 1001 {
		t.Errorf("result = %+v", res)
	}

	select {
	case evt := <-events:
		if evt.Kind != bus.KindSendAck {
			t.Errorf("kind = %s, want send_ack", evt.Kind)
		}
		ack := evt.Payload.(Ack)
		if ack.MessageID != 1001 || ack.ClientID != "c1" {
			t.Errorf("ack = %+v", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("no ack event")
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestDispatchRejected(t *testing.T) {
	gw := &fakeGateway{result: gateway.SendResult{Accepted: false, Reason: "blocked"}}
	d, db, b := testDispatcher(t, gw)
	events, unsub := b.Subscribe("message.", 4)
	defer unsub()

	e := &store.OutboxEntry{ClientMsgID: "c1", ChatID: 42, Body: "hi"}
	if err := d.Queue(e); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), e); err != nil {
		t.Fatalf("rejection must not be a transport error: %v", err)
	}

	select {
	case evt := <-events:
		f := evt.Payload.(Failure)
		if f.Transport || f.Reason != "blocked" {
			t.Errorf("failure = %+v, want non-transport blocked", f)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}

	failed, _ := db.FailedOutbox()
	if len(failed) != 1 || failed[0].ErrorMessage != "blocked" {
		t.Errorf("failed = %+v", failed)
	}
}

func TestDispatchTransportError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("socket closed")}
	d, db, _ := testDispatcher(t, gw)

	e := &store.OutboxEntry{ClientMsgID: "c1", ChatID: 42, Body: "hi"}
	if err := d.Queue(e); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), e); err == nil {
		t.Fatal("expected transport error")
	}
	if gw.calls != 1 {
		t.Errorf("calls = %d, want exactly one attempt", gw.calls)
	}

	failed, _ := db.FailedOutbox()
	if len(failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(failed))
	}
}

func TestRecoverInterrupted(t *testing.T) {
	gw := &fakeGateway{}
	d, db, _ := testDispatcher(t, gw)

	if err := d.Queue(&store.OutboxEntry{ClientMsgID: "c1", ChatID: 1, Body: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := d.Queue(&store.OutboxEntry{ClientMsgID: "c2", ChatID: 1, Body: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending("c2"); err != nil {
		t.Fatal(err)
	}

	n, err := d.RecoverInterrupted()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("recovered = %d, want 2", n)
	}
	if gw.calls != 0 {
		t.Error("recovery must not re-dispatch")
	}
	failed, _ := d.Failed()
	if len(failed) != 2 {
		t.Errorf("failed = %d, want 2", len(failed))
	}
}
