package controller

import "go.uber.org/zap"

// SyncRead derives the read-until watermark from the loaded message set and
// dispatches at most one mark-as-read per distinct watermark per chat.
// Invoked whenever the active chat's message set changes; repeated calls
// with unchanged state are no-ops.
func (c *Controller) SyncRead() {
	c.mu.Lock()
	chatID := c.chatID
	c.mu.Unlock()
	if chatID == 0 {
		// Degraded addressing: there is no chat to acknowledge against.
		return
	}

	last, ok := c.hist.LastUnreadIncoming()
	if !ok {
		return
	}
	until := last.Timestamp
	if until == 0 {
		// Legacy event without a timestamp; ask the view layer.
		if c.clock != nil {
			if ts, okc := c.clock.VisibleUntil(); okc {
				until = ts
			}
		}
		if until == 0 {
			// Never guess a watermark.
			c.logger.Debug("read sync aborted", zap.Int64("chat_id", chatID), zap.Error(errNoWatermarkData))
			return
		}
	}

	sent, err := c.marks.Watermark(chatID)
	if err != nil {
		c.logger.Warn("watermark lookup failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	if until <= sent {
		// Already acknowledged this boundary (or one past it).
		return
	}

	if err := c.gw.SendMarkRead(chatID, c.userID, until); err != nil {
		// The write itself failed; the watermark must not advance, or the
		// boundary would never be re-sent.
		c.fail(DispatchFailure, "mark_read", err)
		return
	}
	// Optimistic: the watermark is a dedup guard, not a delivery guarantee.
	if err := c.marks.AdvanceWatermark(chatID, until); err != nil {
		c.logger.Warn("watermark advance failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	c.hist.MarkReadUntil(until, false)
	c.recomputeUnread(chatID)
	c.logger.Debug("read watermark dispatched",
		zap.Int64("chat_id", chatID),
		zap.Int64("until", until))
}

func (c *Controller) recomputeUnread(chatID int64) {
	if c.db == nil || chatID == 0 {
		return
	}
	if _, err := c.db.RecomputeUnread(chatID); err != nil {
		c.logger.Warn("unread recompute failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
