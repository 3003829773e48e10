package controller

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/history"
	"github.com/vlad23451/syrup/internal/store"
)

// SendState is the send pipeline's phase. One send is in flight per session
// at most; Failed persists until the next manual attempt.
type SendState int

const (
	SendIdle SendState = iota
	SendResolving
	SendSending
	SendFailed
)

func (s SendState) String() string {
	switch s {
	case SendIdle:
		return "idle"
	case SendResolving:
		return "resolving"
	case SendSending:
		return "sending"
	case SendFailed:
		return "failed"
	}
	return "unknown"
}

// SendStatus returns the pipeline's current state.
func (c *Controller) SendStatus() SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendState
}

// SetReplyContext records the message the next send replies to. Cleared
// when a send is accepted, kept on failure so a manual retry keeps it.
func (c *Controller) SetReplyContext(messageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replyTo = messageID
}

// ReplyContext returns the pending reply target, 0 when none.
func (c *Controller) ReplyContext() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// Send runs the pipeline: Idle -> Resolving -> Sending -> Sent or Failed.
// Empty payloads and missing preconditions are silent no-ops; nothing is
// queued when resolution fails. Attachments without a successful upload are
// filtered out; a text-only or attachment-only send is valid.
func (c *Controller) Send(ctx context.Context, text string, attachments []history.Attachment) {
	trimmed := strings.TrimSpace(text)
	attIDs := eligibleIDs(attachments)
	if trimmed == "" && len(attIDs) == 0 {
		c.logger.Debug("empty send ignored")
		return
	}

	c.mu.Lock()
	if c.sessionKey == "" {
		c.mu.Unlock()
		c.fail(PreconditionUnmet, "send", errNoChatSelected)
		return
	}
	if c.userID == 0 {
		c.mu.Unlock()
		c.fail(PreconditionUnmet, "send", errMissingSender)
		return
	}
	if c.sendState == SendResolving || c.sendState == SendSending {
		c.mu.Unlock()
		c.fail(PreconditionUnmet, "send", errSendInFlight)
		return
	}
	c.sendState = SendResolving
	key := c.sessionKey
	h := c.handle
	c.mu.Unlock()

	go c.dispatchSend(ctx, key, h, trimmed, attIDs)
}

func (c *Controller) dispatchSend(ctx context.Context, key string, h ChatHandle, text string, attIDs []int64) {
	chatID, err := c.resolver.Resolve(ctx, h)
	if err == nil && chatID == 0 {
		err = errUnresolvedJoin
	}
	if err != nil {
		c.mu.Lock()
		if c.sessionKey == key {
			c.sendState = SendFailed
		}
		c.mu.Unlock()
		c.fail(ResolutionFailure, "send", err)
		return
	}

	clientID := uuid.NewString()
	entry := &store.OutboxEntry{
		ClientMsgID:   clientID,
		ChatID:        chatID,
		Body:          text,
		AttachmentIDs: attIDs,
	}
	if err := c.dispatcher.Queue(entry); err != nil {
		c.logger.Warn("outbox queue failed", zap.String("client_msg_id", clientID), zap.Error(err))
	}

	c.mu.Lock()
	current := c.sessionKey == key
	if current {
		c.sendState = SendSending
		c.learnFromSendLocked(chatID)
	}
	c.mu.Unlock()
	if current {
		// Optimistic placeholder; replaced by the confirming stream event.
		c.hist.AppendIncoming(history.Message{
			ClientID:      clientID,
			ChatID:        chatID,
			SenderID:      c.userID,
			Text:          text,
			AttachmentIDs: attIDs,
			Timestamp:     time.Now().UnixMilli(),
			FromMe:        true,
		})
	}

	res, err := c.dispatcher.Dispatch(ctx, entry)

	c.mu.Lock()
	current = c.sessionKey == key
	if err != nil || !res.Accepted {
		if current {
			c.sendState = SendFailed
		}
		c.mu.Unlock()
		if err == nil {
			err = errRejected(res.Reason)
		}
		c.fail(DispatchFailure, "send", err)
		return
	}
	if current {
		c.sendState = SendIdle
		c.replyTo = 0
	}
	c.mu.Unlock()
}

// learnFromSendLocked binds the resolved chat id when the session started
// in companion addressing. Caller holds c.mu.
func (c *Controller) learnFromSendLocked(chatID int64) {
	if c.chatID == 0 && chatID != 0 {
		c.learnChatID(chatID)
	}
}

func eligibleIDs(attachments []history.Attachment) []int64 {
	var ids []int64
	for _, a := range attachments {
		if a.Eligible() {
			ids = append(ids, a.FileID)
		}
	}
	return ids
}

type rejectedError string

func (e rejectedError) Error() string { return "send rejected: " + string(e) }

func errRejected(reason string) error {
	if reason == "" {
		reason = "unspecified"
	}
	return rejectedError(reason)
}
