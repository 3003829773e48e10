package controller

import (
	"errors"

	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/bus"
)

// FailureKind classifies chat operation failures. No failure escapes an
// async operation: each is caught at the operation boundary, logged, and
// published as a chat.error event.
type FailureKind string

const (
	// ResolutionFailure: join or history fetch failed. The session degrades
	// to companion or login addressed history and continues.
	ResolutionFailure FailureKind = "resolution"
	// DispatchFailure: the transport rejected a send/delete/edit/pin. No
	// automatic retry.
	DispatchFailure FailureKind = "dispatch"
	// PreconditionUnmet: no chat resolved, empty payload, missing sender.
	// The operation is a silent no-op from the caller's perspective.
	PreconditionUnmet FailureKind = "precondition"
)

// ChatError is the bus payload for operation failures.
type ChatError struct {
	Kind       FailureKind
	Op         string
	SessionKey string
	Err        error
}

var (
	errNoChatSelected  = errors.New("no chat selected")
	errNoResolvedChat  = errors.New("no resolved chat id")
	errMissingSender   = errors.New("missing sender id")
	errSendInFlight    = errors.New("send already in flight")
	errEmptyHandle     = errors.New("empty chat handle")
	errUnresolvedJoin  = errors.New("chat id could not be resolved")
	errNoWatermarkData = errors.New("no usable watermark timestamp")
)

func (c *Controller) fail(kind FailureKind, op string, err error) {
	c.mu.Lock()
	key := c.sessionKey
	c.mu.Unlock()
	c.logger.Warn("chat operation failed",
		zap.String("kind", string(kind)),
		zap.String("op", op),
		zap.String("session_key", key),
		zap.Error(err))
	if c.bus != nil {
		c.bus.Publish(bus.KindChatError, ChatError{Kind: kind, Op: op, SessionKey: key, Err: err})
	}
}
