package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/history"
	"github.com/vlad23451/syrup/internal/status"
	"github.com/vlad23451/syrup/internal/store"
)

const (
	eventBuffer   = 256
	previewLength = 80
)

// Controller is the slice of the session controller the engine drives.
type Controller interface {
	ApplyIncoming(history.Message)
	ApplyDeleted(gateway.DeletedEvent)
	ApplyEdited(gateway.EditedEvent)
	ApplyPinned(gateway.PinEvent)
	ApplyUnpinned(gateway.PinEvent)
	ApplyRead(gateway.ReadEvent)
}

// Engine routes inbound gateway events: every event updates the sqlite
// cache so chats the user is not looking at stay current, and the session
// controller applies it to the active chat's in-memory state.
type Engine struct {
	bus    *bus.Bus
	ctrl   Controller
	db     *store.DB
	logger *zap.Logger
}

// New creates an engine. db may be nil (no cache maintenance).
func New(b *bus.Bus, ctrl Controller, db *store.DB, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		bus:    b,
		ctrl:   ctrl,
		db:     db,
		logger: logger.Named("engine"),
	}
}

// Start subscribes to the gateway namespace and processes events until ctx
// is cancelled. Events are handled sequentially in arrival order.
func (e *Engine) Start(ctx context.Context) {
	events, unsub := e.bus.Subscribe("gateway.", eventBuffer)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				e.handle(evt)
			}
		}
	}()
}

func (e *Engine) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindGatewayMessage:
		m, ok := evt.Payload.(history.Message)
		if !ok {
			return
		}
		e.cacheMessage(m)
		e.ctrl.ApplyIncoming(m)
	case bus.KindGatewayDeleted:
		ev, ok := evt.Payload.(gateway.DeletedEvent)
		if !ok {
			return
		}
		if e.db != nil {
			for _, id := range ev.MessageIDs {
				if err := e.db.DeleteMessage(ev.ChatID, id); err != nil {
					e.logger.Warn("cache delete failed", zap.Int64("msg_id", id), zap.Error(err))
				}
			}
		}
		e.ctrl.ApplyDeleted(ev)
	case bus.KindGatewayEdited:
		ev, ok := evt.Payload.(gateway.EditedEvent)
		if !ok {
			return
		}
		if e.db != nil {
			if err := e.db.UpdateMessageBody(ev.ChatID, ev.MessageID, ev.Text); err != nil {
				e.logger.Warn("cache edit failed", zap.Int64("msg_id", ev.MessageID), zap.Error(err))
			}
		}
		e.ctrl.ApplyEdited(ev)
	case bus.KindGatewayPinned, bus.KindGatewayUnpinned:
		ev, ok := evt.Payload.(gateway.PinEvent)
		if !ok {
			return
		}
		pinned := evt.Kind == bus.KindGatewayPinned
		if e.db != nil {
			if err := e.db.SetPinned(ev.ChatID, ev.MessageID, pinned); err != nil {
				e.logger.Warn("cache pin update failed", zap.Int64("msg_id", ev.MessageID), zap.Error(err))
			}
		}
		if pinned {
			e.ctrl.ApplyPinned(ev)
		} else {
			e.ctrl.ApplyUnpinned(ev)
		}
	case bus.KindGatewayRead:
		ev, ok := evt.Payload.(gateway.ReadEvent)
		if !ok {
			return
		}
		e.ctrl.ApplyRead(ev)
	case bus.KindGatewayStatusChanged:
		if ch, ok := evt.Payload.(status.StatusChange); ok {
			e.logger.Info("gateway status changed",
				zap.String("from", string(ch.From)),
				zap.String("to", string(ch.To)))
		}
	}
}

// cacheMessage writes an inbound message through to sqlite and refreshes
// the chat row's preview and unread counter.
func (e *Engine) cacheMessage(m history.Message) {
	if e.db == nil || m.ID == 0 || m.ChatID == 0 {
		return
	}
	row := &store.Message{
		ChatID:        m.ChatID,
		MsgID:         m.ID,
		ClientID:      m.ClientID,
		SenderID:      m.SenderID,
		Body:          m.Text,
		AttachmentIDs: m.AttachmentIDs,
		FromMe:        m.FromMe,
		ReadState:     int(m.Read),
		Pinned:        m.Pinned,
		Timestamp:     m.Timestamp,
	}
	if err := e.db.UpsertMessage(row); err != nil {
		e.logger.Warn("cache upsert failed", zap.Int64("msg_id", m.ID), zap.Error(err))
		return
	}
	chat := &store.Chat{
		ChatID:             m.ChatID,
		LastMessageAt:      m.Timestamp,
		LastMessagePreview: preview(m.Text),
	}
	if !m.FromMe {
		chat.CompanionID = m.SenderID
	}
	if err := e.db.UpsertChat(chat); err != nil {
		e.logger.Warn("chat upsert failed", zap.Int64("chat_id", m.ChatID), zap.Error(err))
		return
	}
	if _, err := e.db.RecomputeUnread(m.ChatID); err != nil {
		e.logger.Warn("unread recompute failed", zap.Int64("chat_id", m.ChatID), zap.Error(err))
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}
