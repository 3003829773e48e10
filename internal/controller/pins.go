package controller

// Pin requests a pin for a confirmed message in the resolved chat. Requires
// a resolved chat id; without one the call is a logged no-op. The pinned
// subset updates when the confirming event arrives, never optimistically.
func (c *Controller) Pin(messageID int64) {
	c.mu.Lock()
	chatID := c.chatID
	c.mu.Unlock()
	if chatID == 0 {
		c.fail(PreconditionUnmet, "pin", errNoResolvedChat)
		return
	}
	if err := c.gw.SendPin(chatID, messageID); err != nil {
		c.fail(DispatchFailure, "pin", err)
	}
}

// Unpin removes a pin. Same chat-id precondition as Pin.
func (c *Controller) Unpin(messageID int64) {
	c.mu.Lock()
	chatID := c.chatID
	c.mu.Unlock()
	if chatID == 0 {
		c.fail(PreconditionUnmet, "unpin", errNoResolvedChat)
		return
	}
	if err := c.gw.SendUnpin(chatID, messageID); err != nil {
		c.fail(DispatchFailure, "unpin", err)
	}
}

// Edit requests a text rewrite for a confirmed message. The list updates on
// the confirming event.
func (c *Controller) Edit(messageID int64, newText string) {
	c.mu.Lock()
	selected := c.sessionKey != ""
	c.mu.Unlock()
	if !selected {
		c.fail(PreconditionUnmet, "edit", errNoChatSelected)
		return
	}
	if err := c.gw.SendEdit(messageID, newText); err != nil {
		c.fail(DispatchFailure, "edit", err)
	}
}

// Delete requests removal of a single confirmed message.
func (c *Controller) Delete(messageID int64) {
	c.mu.Lock()
	selected := c.sessionKey != ""
	c.mu.Unlock()
	if !selected {
		c.fail(PreconditionUnmet, "delete", errNoChatSelected)
		return
	}
	if err := c.gw.SendDelete(messageID); err != nil {
		c.fail(DispatchFailure, "delete", err)
	}
}
