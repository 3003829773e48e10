package history

import "testing"

func testStore() *Store {
	return New(nil, 3, nil)
}

func page(msgs ...Message) []Message { return msgs }

func TestSetInitialOrdersChronologically(t *testing.T) {
	s := testStore()
	s.Reset(1)
	// History service returns newest first.
	s.SetInitial(page(
		Message{ID: 3, ChatID: 1, Timestamp: 300},
		Message{ID: 2, ChatID: 1, Timestamp: 200},
		Message{ID: 1, ChatID: 1, Timestamp: 100},
	))

	items := s.Items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	for i, want := range []int64{1, 2, 3} {
		if items[i].ID != want {
			t.Errorf("items[%d].ID = %d, want %d", i, items[i].ID, want)
		}
	}
	if !s.HasMore() {
		t.Error("full page should set hasMore")
	}
}

func TestShortPageExhaustsHistory(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(Message{ID: 1, ChatID: 1, Timestamp: 100}))
	if s.HasMore() {
		t.Error("page shorter than limit must clear hasMore")
	}
	if _, ok := s.BeginLoadMore(); ok {
		t.Error("BeginLoadMore must refuse when history is exhausted")
	}
}

func TestLoadMoreCursor(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(
		Message{ID: 6, Timestamp: 600},
		Message{ID: 5, Timestamp: 500},
		Message{ID: 4, Timestamp: 400},
	))

	skip, ok := s.BeginLoadMore()
	if !ok {
		t.Fatal("BeginLoadMore refused with more history available")
	}
	if skip != 3 {
		t.Errorf("skip = %d, want 3", skip)
	}

	// A second concurrent load-more must be refused.
	if _, ok := s.BeginLoadMore(); ok {
		t.Error("concurrent BeginLoadMore must be refused")
	}

	s.AppendOlder(page(
		Message{ID: 3, Timestamp: 300},
		Message{ID: 2, Timestamp: 200},
	))
	items := s.Items()
	if items[0].ID != 2 || items[len(items)-1].ID != 6 {
		t.Errorf("order after AppendOlder wrong: %v", ids(items))
	}
	if s.HasMore() {
		t.Error("short older page must clear hasMore")
	}
}

func TestBeginInitialLoadGuard(t *testing.T) {
	s := testStore()
	s.Reset(1)
	if !s.BeginInitialLoad() {
		t.Fatal("first BeginInitialLoad refused")
	}
	if s.BeginInitialLoad() {
		t.Error("second BeginInitialLoad must be refused while in flight")
	}
	s.AbortInitialLoad()
	if !s.BeginInitialLoad() {
		t.Error("BeginInitialLoad refused after abort")
	}
}

func TestAppendIncomingReplacesPlaceholderByClientID(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.AppendIncoming(Message{ClientID: "c1", ChatID: 1, SenderID: 10, Text: "hi", Timestamp: 100, FromMe: true})

	replaced := s.AppendIncoming(Message{ID: 42, ClientID: "c1", ChatID: 1, SenderID: 10, Text: "hi", Timestamp: 150, FromMe: true})
	if !replaced {
		t.Error("placeholder with matching client id not replaced")
	}
	items := s.Items()
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1 (replace, not duplicate)", len(items))
	}
	if items[0].ID != 42 {
		t.Errorf("surviving message ID = %d, want 42", items[0].ID)
	}
}

func TestAppendIncomingReplacesPlaceholderByCorrelation(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.AppendIncoming(Message{ChatID: 1, SenderID: 10, Text: "hello", Timestamp: 100_000, FromMe: true})

	// Same sender and text, within the approximate-time window.
	replaced := s.AppendIncoming(Message{ID: 7, ChatID: 1, SenderID: 10, Text: "hello", Timestamp: 130_000, FromMe: true})
	if !replaced {
		t.Error("placeholder not replaced by sender+text+time correlation")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestAppendIncomingNoFalseCorrelation(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.AppendIncoming(Message{ChatID: 1, SenderID: 10, Text: "hello", Timestamp: 100_000, FromMe: true})

	// Different text: must append, not replace.
	replaced := s.AppendIncoming(Message{ID: 8, ChatID: 1, SenderID: 10, Text: "other", Timestamp: 101_000, FromMe: true})
	if replaced {
		t.Error("unrelated message replaced a placeholder")
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}

	// Same text but far outside the window: must append.
	s2 := testStore()
	s2.Reset(1)
	s2.AppendIncoming(Message{ChatID: 1, SenderID: 10, Text: "hello", Timestamp: 100_000, FromMe: true})
	if s2.AppendIncoming(Message{ID: 9, ChatID: 1, SenderID: 10, Text: "hello", Timestamp: 100_000 + 10*60*1000, FromMe: true}) {
		t.Error("message outside match window replaced a placeholder")
	}
}

func TestRemoveAndEdit(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(
		Message{ID: 3, ChatID: 1, Timestamp: 300},
		Message{ID: 2, ChatID: 1, Timestamp: 200},
		Message{ID: 1, ChatID: 1, Timestamp: 100},
	))

	if !s.RemoveByID(2) {
		t.Error("RemoveByID(2) = false, want true")
	}
	if s.RemoveByID(2) {
		t.Error("second RemoveByID(2) = true, want false")
	}

	removed, ok := s.RemoveAt(0)
	if !ok || removed.ID != 1 {
		t.Errorf("RemoveAt(0) = %v %v, want message 1", removed, ok)
	}
	if _, ok := s.RemoveAt(5); ok {
		t.Error("RemoveAt out of range must fail")
	}

	if !s.EditByID(3, "edited") {
		t.Error("EditByID(3) = false, want true")
	}
	items := s.Items()
	if len(items) != 1 || items[0].Text != "edited" {
		t.Errorf("items = %v, want single edited message", items)
	}
}

func TestUnreadDerivation(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(
		Message{ID: 4, Timestamp: 400, FromMe: true, Read: Unread},
		Message{ID: 3, Timestamp: 300, FromMe: false, Read: Read},
		Message{ID: 2, Timestamp: 200, FromMe: false}, // unknown counts as unread
		Message{ID: 1, Timestamp: 100, FromMe: false, Read: Unread},
	))

	if got := s.UnreadCount(); got != 2 {
		t.Errorf("UnreadCount = %d, want 2", got)
	}
	last, ok := s.LastUnreadIncoming()
	if !ok || last.ID != 2 {
		t.Errorf("LastUnreadIncoming = %v %v, want message 2", last, ok)
	}

	if changed := s.MarkReadUntil(200, false); changed != 2 {
		t.Errorf("MarkReadUntil changed %d, want 2", changed)
	}
	if got := s.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount after mark = %d, want 0", got)
	}
	if _, ok := s.LastUnreadIncoming(); ok {
		t.Error("LastUnreadIncoming should report none after mark")
	}
}

func TestPinnedSubset(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(
		Message{ID: 2, ChatID: 1, Timestamp: 200},
		Message{ID: 1, ChatID: 1, Timestamp: 100},
	))

	if !s.MarkPinned(1, true) {
		t.Error("MarkPinned(1) = false, want true")
	}
	// Pinning twice must not duplicate.
	s.MarkPinned(1, true)
	if got := len(s.Pinned()); got != 1 {
		t.Errorf("pinned len = %d, want 1", got)
	}

	if s.MarkPinned(99, true) {
		t.Error("MarkPinned on unknown id = true, want false")
	}

	s.MarkPinned(1, false)
	if got := len(s.Pinned()); got != 0 {
		t.Errorf("pinned len after unpin = %d, want 0", got)
	}

	// Removing a pinned message drops it from the subset.
	s.MarkPinned(2, true)
	s.RemoveByID(2)
	if got := len(s.Pinned()); got != 0 {
		t.Errorf("pinned len after remove = %d, want 0", got)
	}
}

func TestIDsAtSkipsPlaceholders(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(
		Message{ID: 2, Timestamp: 200},
		Message{ID: 1, Timestamp: 100},
	))
	s.AppendIncoming(Message{ClientID: "c1", SenderID: 5, Text: "pending", Timestamp: 300, FromMe: true})

	ids := s.IDsAt([]int{0, 2, 7})
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("IDsAt = %v, want [1] (placeholder and out-of-range skipped)", ids)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := testStore()
	s.Reset(1)
	s.SetInitial(page(
		Message{ID: 3, Timestamp: 300},
		Message{ID: 2, Timestamp: 200},
		Message{ID: 1, Timestamp: 100},
	))
	s.MarkPinned(1, true)

	s.Reset(2)
	if s.Len() != 0 || len(s.Pinned()) != 0 || s.HasMore() || s.ChatID() != 2 {
		t.Error("Reset did not clear store state")
	}
}

func ids(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
