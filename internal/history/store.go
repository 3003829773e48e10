package history

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// approxMatchWindow bounds the timestamp distance between an optimistic
// placeholder and the inbound event that confirms it.
const approxMatchWindow = 2 * time.Minute

// Store owns the ordered message list for the currently active chat, the
// pagination cursor and the pinned subset. All mutation goes through its
// operations; nothing else writes message state. Confirmed mutations are
// written through to the cache.
type Store struct {
	mu     sync.RWMutex
	logger *zap.Logger
	cache  Cache

	chatID      int64
	items       []Message // chronological, oldest first
	pinned      []Message
	hasMore     bool
	loading     bool
	loadingMore bool
	fetched     int // skip cursor for the next backward page
	pageSize    int
}

// New creates a history store. cache may be nil for in-memory operation.
func New(cache Cache, pageSize int, logger *zap.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:   logger,
		cache:    cache,
		pageSize: pageSize,
	}
}

// Reset discards all state and binds the store to a new chat. chatID may be
// 0 when history is addressed by companion or login (degraded mode).
func (s *Store) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
	s.items = nil
	s.pinned = nil
	s.hasMore = false
	s.loading = false
	s.loadingMore = false
	s.fetched = 0
}

// Bind updates the chat id without discarding loaded state. Used when a
// degraded session learns its chat id after history was already loaded.
func (s *Store) Bind(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chatID
}

// ChatID returns the chat the store is currently bound to.
func (s *Store) ChatID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

// PageSize returns the configured history page size.
func (s *Store) PageSize() int { return s.pageSize }

// BeginInitialLoad marks the store loading. Returns false if a load is
// already in flight.
func (s *Store) BeginInitialLoad() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

// SetInitial installs the first page. Pages arrive newest-first from the
// history service and are stored chronologically.
func (s *Store) SetInitial(page []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = chronological(page)
	s.hasMore = len(page) >= s.pageSize
	s.fetched = len(page)
	s.loading = false
	s.writeThrough(page)
}

// AbortInitialLoad clears the loading flag after a failed fetch.
func (s *Store) AbortInitialLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
}

// BeginLoadMore marks a backward page fetch in flight. Returns false and
// the caller must not fetch when there is nothing more to load or a fetch
// is already running. The returned skip is the cursor for the next page.
func (s *Store) BeginLoadMore() (skip int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasMore || s.loadingMore || s.loading {
		return 0, false
	}
	s.loadingMore = true
	return s.fetched, true
}

// AppendOlder prepends an older page fetched via BeginLoadMore.
func (s *Store) AppendOlder(page []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(chronological(page), s.items...)
	s.fetched += len(page)
	s.hasMore = len(page) >= s.pageSize
	s.loadingMore = false
	s.writeThrough(page)
}

// AbortLoadMore clears the loading-more flag after a failed fetch.
func (s *Store) AbortLoadMore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadingMore = false
}

// Loading reports whether the initial page fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// HasMore reports whether older pages remain.
func (s *Store) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// AppendIncoming applies an inbound message event. If an optimistic
// placeholder correlates with it (client id, or same sender and text within
// the match window) the placeholder is replaced; the confirmed entry takes
// its position from arrival order, not from the placeholder. Returns true
// if a placeholder was replaced.
func (s *Store) AppendIncoming(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, existing := range s.items {
		if existing.Confirmed() {
			continue
		}
		if s.correlates(existing, m) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			replaced = true
			break
		}
	}
	s.items = append(s.items, m)

	if s.cache != nil && m.Confirmed() {
		if err := s.cache.UpsertMessage(cacheRow(m)); err != nil {
			s.logger.Warn("cache upsert failed", zap.Int64("msg_id", m.ID), zap.Error(err))
		}
	}
	return replaced
}

func (s *Store) correlates(placeholder, confirmed Message) bool {
	if placeholder.ClientID != "" && placeholder.ClientID == confirmed.ClientID {
		return true
	}
	if placeholder.SenderID != confirmed.SenderID || placeholder.Text != confirmed.Text {
		return false
	}
	delta := confirmed.Timestamp - placeholder.Timestamp
	if delta < 0 {
		delta = -delta
	}
	return delta <= approxMatchWindow.Milliseconds()
}

// RemoveByID removes a confirmed message. Returns true if found.
func (s *Store) RemoveByID(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.items {
		if m.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.removePinnedLocked(id)
			if s.cache != nil {
				if err := s.cache.DeleteMessage(m.ChatID, id); err != nil {
					s.logger.Warn("cache delete failed", zap.Int64("msg_id", id), zap.Error(err))
				}
			}
			return true
		}
	}
	return false
}

// RemoveAt removes the message at a positional index. Returns the removed
// message and true if the index was valid.
func (s *Store) RemoveAt(index int) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return Message{}, false
	}
	m := s.items[index]
	s.items = append(s.items[:index], s.items[index+1:]...)
	s.removePinnedLocked(m.ID)
	if s.cache != nil && m.Confirmed() {
		if err := s.cache.DeleteMessage(m.ChatID, m.ID); err != nil {
			s.logger.Warn("cache delete failed", zap.Int64("msg_id", m.ID), zap.Error(err))
		}
	}
	return m, true
}

// EditByID rewrites a message's text. Applied only on confirmed edits.
func (s *Store) EditByID(id int64, newText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Text = newText
			for j := range s.pinned {
				if s.pinned[j].ID == id {
					s.pinned[j].Text = newText
				}
			}
			if s.cache != nil {
				if err := s.cache.UpdateMessageBody(s.items[i].ChatID, id, newText); err != nil {
					s.logger.Warn("cache edit failed", zap.Int64("msg_id", id), zap.Error(err))
				}
			}
			return true
		}
	}
	return false
}

// MarkReadUntil flips messages on one side of the conversation to read, up
// to and including untilTs. Returns how many flags changed.
func (s *Store) MarkReadUntil(untilTs int64, fromMe bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for i := range s.items {
		m := &s.items[i]
		if m.FromMe == fromMe && m.Timestamp <= untilTs && m.Read != Read {
			m.Read = Read
			changed++
		}
	}
	if changed > 0 && s.cache != nil && s.chatID != 0 {
		if err := s.cache.MarkMessagesRead(s.chatID, untilTs, fromMe); err != nil {
			s.logger.Warn("cache mark read failed", zap.Int64("chat_id", s.chatID), zap.Error(err))
		}
	}
	return changed
}

// LastUnreadIncoming returns the chronologically last incoming message that
// is not known to be read.
func (s *Store) LastUnreadIncoming() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		m := s.items[i]
		if !m.FromMe && m.Read != Read {
			return m, true
		}
	}
	return Message{}, false
}

// UnreadCount derives the number of incoming messages not known to be read.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.items {
		if !m.FromMe && m.Read != Read {
			count++
		}
	}
	return count
}

// SetPinnedList installs the pinned subset fetched for the active chat.
func (s *Store) SetPinnedList(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = append([]Message(nil), msgs...)
}

// MarkPinned updates pin state for a confirmed message, maintaining the
// pinned subset and the item flag.
func (s *Store) MarkPinned(id int64, pinned bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *Message
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Pinned = pinned
			target = &s.items[i]
			break
		}
	}
	if pinned {
		already := false
		for _, p := range s.pinned {
			if p.ID == id {
				already = true
				break
			}
		}
		if !already && target != nil {
			s.pinned = append(s.pinned, *target)
		}
	} else {
		s.removePinnedLocked(id)
	}
	if target == nil {
		return false
	}
	if s.cache != nil {
		if err := s.cache.SetPinned(target.ChatID, id, pinned); err != nil {
			s.logger.Warn("cache pin update failed", zap.Int64("msg_id", id), zap.Error(err))
		}
	}
	return true
}

func (s *Store) removePinnedLocked(id int64) {
	for i, p := range s.pinned {
		if p.ID == id {
			s.pinned = append(s.pinned[:i], s.pinned[i+1:]...)
			return
		}
	}
}

// Pinned returns the pinned subset in order.
func (s *Store) Pinned() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.pinned...)
}

// Items returns a snapshot of the message list.
func (s *Store) Items() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.items...)
}

// Len returns the number of messages held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// At returns the message at a positional index.
func (s *Store) At(index int) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.items) {
		return Message{}, false
	}
	return s.items[index], true
}

// IDsAt maps positional indices to confirmed message ids. Out-of-range
// indices and optimistic placeholders are skipped.
func (s *Store) IDsAt(indices []int) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.items) {
			continue
		}
		if m := s.items[idx]; m.Confirmed() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func (s *Store) writeThrough(page []Message) {
	if s.cache == nil {
		return
	}
	for _, m := range page {
		if !m.Confirmed() {
			continue
		}
		if err := s.cache.UpsertMessage(cacheRow(m)); err != nil {
			s.logger.Warn("cache upsert failed", zap.Int64("msg_id", m.ID), zap.Error(err))
			return
		}
	}
}

// chronological sorts a page oldest-first without mutating the input.
func chronological(page []Message) []Message {
	out := append([]Message(nil), page...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
