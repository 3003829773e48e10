package outbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/store"
)

// Gateway is the slice of the socket client the dispatcher needs.
type Gateway interface {
	SendText(ctx context.Context, clientID string, senderID, chatID int64, text string, attachmentIDs []int64) (gateway.SendResult, error)
}

// Ack is the bus payload published when a send is accepted.
type Ack struct {
	ClientID  string
	ChatID    int64
	MessageID int64
}

// Failure is the bus payload published when a send fails. Transport marks
// socket-level failures; otherwise the server rejected the message.
type Failure struct {
	ClientID  string
	ChatID    int64
	Reason    string
	Transport bool
}

// Dispatcher owns the outbox lifecycle: queued, sending, then sent or
// failed. Each entry gets exactly one delivery attempt; a failed entry is
// only retried by an explicit user action, never automatically.
type Dispatcher struct {
	db     *store.DB
	gw     Gateway
	bus    *bus.Bus
	logger *zap.Logger
	userID int64
}

// New creates a dispatcher.
func New(db *store.DB, gw Gateway, b *bus.Bus, userID int64, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		db:     db,
		gw:     gw,
		bus:    b,
		logger: logger.Named("outbox"),
		userID: userID,
	}
}

// Queue persists an entry before dispatch so a crash between queueing and
// the socket write cannot lose the message silently.
func (d *Dispatcher) Queue(e *store.OutboxEntry) error {
	return d.db.QueueOutbox(e)
}

// Dispatch performs the single delivery attempt for a queued entry and
// reconciles the outbox row with the outcome. The result is also published
// on the bus so the controller can reconcile its placeholder.
func (d *Dispatcher) Dispatch(ctx context.Context, e *store.OutboxEntry) (gateway.SendResult, error) {
	if err := d.db.MarkOutboxSending(e.ClientMsgID); err != nil {
		d.logger.Warn("mark sending failed", zap.String("client_msg_id", e.ClientMsgID), zap.Error(err))
	}

	res, err := d.gw.SendText(ctx, e.ClientMsgID, d.userID, e.ChatID, e.Body, e.AttachmentIDs)
	if err != nil {
		d.recordFailure(e, err.Error(), true)
		return res, err
	}
	if !res.Accepted {
		d.recordFailure(e, res.Reason, false)
		return res, nil
	}

	if err := d.db.MarkOutboxSent(e.ClientMsgID, res.MessageID); err != nil {
		d.logger.Warn("mark sent failed", zap.String("client_msg_id", e.ClientMsgID), zap.Error(err))
	}
	d.logger.Debug("message dispatched",
		zap.String("client_msg_id", e.ClientMsgID),
		zap.Int64("chat_id", e.ChatID),
		zap.Int64("message_id", res.MessageID))
	d.bus.Publish(bus.KindSendAck, Ack{ClientID: e.ClientMsgID, ChatID: e.ChatID, MessageID: res.MessageID})
	return res, nil
}

func (d *Dispatcher) recordFailure(e *store.OutboxEntry, reason string, transport bool) {
	if err := d.db.MarkOutboxFailed(e.ClientMsgID, reason); err != nil {
		d.logger.Warn("mark failed failed", zap.String("client_msg_id", e.ClientMsgID), zap.Error(err))
	}
	d.logger.Warn("message dispatch failed",
		zap.String("client_msg_id", e.ClientMsgID),
		zap.Int64("chat_id", e.ChatID),
		zap.String("reason", reason),
		zap.Bool("transport", transport))
	d.bus.Publish(bus.KindSendFailed, Failure{ClientID: e.ClientMsgID, ChatID: e.ChatID, Reason: reason, Transport: transport})
}

// RecoverInterrupted marks entries a previous run left queued or sending as
// failed. Their fate is unknown, so they must not be re-dispatched blindly.
func (d *Dispatcher) RecoverInterrupted() (int, error) {
	entries, err := d.db.InterruptedOutbox()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := d.db.MarkOutboxFailed(e.ClientMsgID, "interrupted by restart"); err != nil {
			return 0, err
		}
	}
	if len(entries) > 0 {
		d.logger.Info("recovered interrupted outbox entries", zap.Int("count", len(entries)))
	}
	return len(entries), nil
}

// Failed lists entries available for manual retry.
func (d *Dispatcher) Failed() ([]store.OutboxEntry, error) {
	return d.db.FailedOutbox()
}
