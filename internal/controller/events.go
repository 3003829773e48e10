package controller

import (
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/history"
)

// ApplyIncoming applies an inbound message event to the active chat. Events
// for other chats are ignored here; the sync engine keeps the cache for
// those. Placement follows arrival order: a replaced optimistic placeholder
// does not keep its position.
func (c *Controller) ApplyIncoming(m history.Message) {
	c.mu.Lock()
	if c.chatID == 0 && m.ChatID != 0 && c.handle.Kind == HandleCompanion &&
		!m.FromMe && m.SenderID == c.handle.CompanionID {
		// First contact in a degraded session reveals the chat id.
		c.learnChatID(m.ChatID)
	}
	active := c.chatID != 0 && m.ChatID == c.chatID
	c.mu.Unlock()
	if !active {
		return
	}

	replaced := c.hist.AppendIncoming(m)
	if replaced {
		// The replacement removed an item mid-list; positional selection is
		// no longer valid.
		c.mu.Lock()
		c.invalidateSelectionLocked()
		c.mu.Unlock()
	}
	if !m.FromMe {
		// The chat is open, so the new message is immediately visible.
		c.SyncRead()
	}
	c.recomputeUnread(m.ChatID)
}

// ApplyDeleted removes confirmed-deleted messages from the active chat.
func (c *Controller) ApplyDeleted(ev gateway.DeletedEvent) {
	c.mu.Lock()
	active := c.chatID != 0 && ev.ChatID == c.chatID
	c.mu.Unlock()
	if !active {
		return
	}

	removed := false
	for _, id := range ev.MessageIDs {
		if c.hist.RemoveByID(id) {
			removed = true
		}
	}
	if removed {
		c.mu.Lock()
		c.invalidateSelectionLocked()
		c.mu.Unlock()
		c.recomputeUnread(ev.ChatID)
	}
}

// ApplyEdited rewrites a message's text after server confirmation. Indices
// are unaffected, so the selection survives.
func (c *Controller) ApplyEdited(ev gateway.EditedEvent) {
	c.mu.Lock()
	active := c.chatID != 0 && ev.ChatID == c.chatID
	c.mu.Unlock()
	if !active {
		return
	}
	c.hist.EditByID(ev.MessageID, ev.Text)
}

// ApplyPinned marks a message pinned after server confirmation.
func (c *Controller) ApplyPinned(ev gateway.PinEvent) {
	c.applyPin(ev, true)
}

// ApplyUnpinned removes a pin after server confirmation.
func (c *Controller) ApplyUnpinned(ev gateway.PinEvent) {
	c.applyPin(ev, false)
}

func (c *Controller) applyPin(ev gateway.PinEvent, pinned bool) {
	c.mu.Lock()
	active := c.chatID != 0 && ev.ChatID == c.chatID
	c.mu.Unlock()
	if !active {
		return
	}
	c.hist.MarkPinned(ev.MessageID, pinned)
}

// ApplyRead applies a read receipt observed on the stream. A receipt from
// the companion marks our outgoing messages read; one from the user's own
// other device marks incoming messages read and advances the local
// watermark so this device does not re-acknowledge the same boundary.
func (c *Controller) ApplyRead(ev gateway.ReadEvent) {
	c.mu.Lock()
	active := c.chatID != 0 && ev.ChatID == c.chatID
	own := ev.UserID == c.userID
	c.mu.Unlock()
	if !active {
		return
	}

	if own {
		if err := c.marks.AdvanceWatermark(ev.ChatID, ev.Until); err == nil {
			c.hist.MarkReadUntil(ev.Until, false)
			c.recomputeUnread(ev.ChatID)
		}
		return
	}
	c.hist.MarkReadUntil(ev.Until, true)
}
