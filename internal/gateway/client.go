package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/status"
)

const (
	writeWait       = 10 * time.Second
	readWait        = 60 * time.Second
	heartbeatPeriod = 25 * time.Second
	ackTimeout      = 5 * time.Second

	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	// After this many consecutive failed dials the machine reports Degraded:
	// REST collaborators still work, sends do not.
	degradedAfter = 5
)

var (
	// ErrOffline is returned when an operation needs the socket and it is down.
	ErrOffline = errors.New("gateway: not connected")
	// ErrAckTimeout is returned when the server does not ack in time.
	ErrAckTimeout = errors.New("gateway: ack timeout")
)

// SendResult is the server's verdict on a message_send. A transport failure
// is reported as an error instead; Accepted=false means the server actively
// rejected the send.
type SendResult struct {
	Accepted  bool
	MessageID int64
	Reason    string
}

// Client maintains the websocket connection to the chat gateway. Inbound
// events are published on the bus under the "gateway." namespace; request
// acks are matched back to callers by correlation id.
type Client struct {
	url     string
	userID  int64
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient creates a gateway client. Run must be called to connect.
func NewClient(url string, userID int64, token string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:     url,
		userID:  userID,
		token:   token,
		bus:     b,
		machine: machine,
		logger:  logger.Named("gateway"),
		pending: make(map[string]chan Envelope),
		closed:  make(chan struct{}),
	}
}

// Run connects and serves the socket until ctx is cancelled or Close is
// called, redialing with capped exponential backoff in between.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectBase
	failures := 0
	for {
		c.transition(status.Connecting)
		served, err := c.connectAndServe(ctx)
		if ctx.Err() != nil || c.isClosed() {
			c.transition(status.Closed)
			return
		}
		if served {
			// The dial succeeded and we held a session; start backoff over.
			failures = 0
			backoff = reconnectBase
		}
		failures++
		c.logger.Warn("connection lost",
			zap.Error(err),
			zap.Int("consecutive_failures", failures),
			zap.Duration("retry_in", backoff))
		c.transition(status.Reconnecting)
		if failures >= degradedAfter {
			c.transition(status.Degraded)
		}

		select {
		case <-ctx.Done():
			c.transition(status.Closed)
			return
		case <-c.closed:
			c.transition(status.Closed)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) (served bool, err error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialCtx, cancel := context.WithTimeout(ctx, writeWait)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, header)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.transition(status.Online)
	c.logger.Info("connected", zap.String("url", c.url))

	done := make(chan struct{})
	go c.heartbeatLoop(done)

	err = c.readPump(conn)

	close(done)
	c.connMu.Lock()
	c.conn = nil
	c.connMu.Unlock()
	_ = conn.Close()
	c.failPending()
	return true, err
}

func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) heartbeatLoop(done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(Envelope{Op: opHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Op {
	case opHeartbeatAck:
		// Read deadline already refreshed by the pump.
	case opChatJoinAck, opMessageAck:
		c.deliver(env)
	case opError:
		if env.CID != "" {
			c.deliver(env)
			return
		}
		var e errorData
		_ = json.Unmarshal(env.Data, &e)
		c.logger.Warn("server error event", zap.String("message", e.Message))
	case opMessageNew:
		var w wireMessage
		if err := json.Unmarshal(env.Data, &w); err != nil {
			c.logger.Warn("bad message_new payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.KindGatewayMessage, w.toMessage(c.userID))
	case opMessageDeleted:
		var d struct {
			ChatID     int64   `json:"chat_id"`
			MessageIDs []int64 `json:"message_ids"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warn("bad message_deleted payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.KindGatewayDeleted, DeletedEvent{ChatID: d.ChatID, MessageIDs: d.MessageIDs})
	case opMessageEdited:
		var d struct {
			ChatID    int64  `json:"chat_id"`
			MessageID int64  `json:"message_id"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warn("bad message_edited payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.KindGatewayEdited, EditedEvent{ChatID: d.ChatID, MessageID: d.MessageID, Text: d.Text})
	case opMessagePinned, opMessageUnpinned:
		var d pinData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warn("bad pin payload", zap.Error(err))
			return
		}
		kind := bus.KindGatewayPinned
		if env.Op == opMessageUnpinned {
			kind = bus.KindGatewayUnpinned
		}
		c.bus.Publish(kind, PinEvent{ChatID: d.ChatID, MessageID: d.MessageID})
	case opMessageReadDone:
		var d markReadData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warn("bad read payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.KindGatewayRead, ReadEvent{ChatID: d.ChatID, UserID: d.UserID, Until: d.Until})
	default:
		c.logger.Debug("unknown op", zap.String("op", env.Op))
	}
}

// JoinChat resolves a companion to a chat id, creating the chat server-side
// when none exists yet.
func (c *Client) JoinChat(ctx context.Context, companionID int64) (int64, error) {
	env, err := c.request(ctx, opChatJoin, joinChatData{CompanionID: companionID})
	if err != nil {
		return 0, err
	}
	if env.Op == opError {
		var e errorData
		_ = json.Unmarshal(env.Data, &e)
		return 0, fmt.Errorf("gateway: chat_join rejected: %s", e.Message)
	}
	var ack joinChatAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		return 0, fmt.Errorf("gateway: bad chat_join ack: %w", err)
	}
	if ack.ChatID == 0 {
		return 0, errors.New("gateway: chat_join ack without chat id")
	}
	return ack.ChatID, nil
}

// SendText submits a message and waits for the server verdict. The caller
// supplies the client id used to correlate the confirming stream event with
// its optimistic placeholder.
func (c *Client) SendText(ctx context.Context, clientID string, senderID, chatID int64, text string, attachmentIDs []int64) (SendResult, error) {
	env, err := c.request(ctx, opMessageSend, sendMessageData{
		ClientID:      clientID,
		SenderID:      senderID,
		ChatID:        chatID,
		Text:          text,
		AttachmentIDs: attachmentIDs,
	})
	if err != nil {
		return SendResult{}, err
	}
	if env.Op == opError {
		var e errorData
		_ = json.Unmarshal(env.Data, &e)
		return SendResult{Reason: e.Message}, nil
	}
	var ack messageAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		return SendResult{}, fmt.Errorf("gateway: bad message ack: %w", err)
	}
	return SendResult{Accepted: ack.Accepted, MessageID: ack.MessageID, Reason: ack.Reason}, nil
}

// SendMarkRead reports the read watermark for a chat. Fire and forget.
func (c *Client) SendMarkRead(chatID, userID, untilTs int64) error {
	return c.write(Envelope{Op: opMessageRead, Data: marshalData(markReadData{ChatID: chatID, UserID: userID, Until: untilTs})})
}

// SendDelete deletes one or more messages in a single wire operation.
func (c *Client) SendDelete(messageIDs ...int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return c.write(Envelope{Op: opMessageDelete, Data: marshalData(deleteData{MessageIDs: messageIDs})})
}

// SendEdit rewrites a message's text.
func (c *Client) SendEdit(messageID int64, text string) error {
	return c.write(Envelope{Op: opMessageEdit, Data: marshalData(editData{MessageID: messageID, Text: text})})
}

// SendPin pins a message for all chat participants.
func (c *Client) SendPin(chatID, messageID int64) error {
	return c.write(Envelope{Op: opMessagePin, Data: marshalData(pinData{ChatID: chatID, MessageID: messageID, Scope: PinScopeAll})})
}

// SendUnpin removes a pin.
func (c *Client) SendUnpin(chatID, messageID int64) error {
	return c.write(Envelope{Op: opMessageUnpin, Data: marshalData(pinData{ChatID: chatID, MessageID: messageID})})
}

func (c *Client) request(ctx context.Context, op string, data any) (Envelope, error) {
	cid := uuid.NewString()
	ch := make(chan Envelope, 1)
	c.pendingMu.Lock()
	c.pending[cid] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, cid)
		c.pendingMu.Unlock()
	}()

	if err := c.write(Envelope{Op: op, CID: cid, Data: marshalData(data)}); err != nil {
		return Envelope{}, err
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case env, ok := <-ch:
		if !ok {
			return Envelope{}, ErrOffline
		}
		return env, nil
	case <-timer.C:
		return Envelope{}, ErrAckTimeout
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *Client) deliver(env Envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.CID]
	if ok {
		delete(c.pending, env.CID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("ack for unknown cid", zap.String("op", env.Op), zap.String("cid", env.CID))
		return
	}
	ch <- env
}

// failPending wakes every in-flight request after a disconnect.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for cid, ch := range c.pending {
		close(ch)
		delete(c.pending, cid)
	}
	c.pendingMu.Unlock()
}

func (c *Client) write(env Envelope) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrOffline
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

// Online reports whether the socket is currently up.
func (c *Client) Online() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// Close shuts the client down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		}
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// transition moves the status machine, tolerating no-op or invalid moves
// (the machine enforces the graph; duplicates during redial are expected).
func (c *Client) transition(to status.State) {
	if c.machine == nil {
		return
	}
	if c.machine.Current() == to {
		return
	}
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("status transition skipped", zap.Error(err))
	}
}
