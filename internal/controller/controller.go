package controller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/history"
	"github.com/vlad23451/syrup/internal/store"
)

// Gateway is the transport surface the controller depends on.
type Gateway interface {
	JoinGateway
	SendMarkRead(chatID, userID, untilTs int64) error
	SendDelete(messageIDs ...int64) error
	SendEdit(messageID int64, text string) error
	SendPin(chatID, messageID int64) error
	SendUnpin(chatID, messageID int64) error
}

// HistoryAPI is the REST history collaborator.
type HistoryAPI interface {
	MessagesByChat(ctx context.Context, chatID int64, skip, limit int) ([]history.Message, error)
	MessagesByCompanion(ctx context.Context, companionID int64, skip, limit int) ([]history.Message, error)
	MessagesByLogin(ctx context.Context, login string, skip, limit int) ([]history.Message, error)
	PinnedMessages(ctx context.Context, chatID int64) ([]history.Message, error)
}

// Dispatcher is the outbox surface used by the send pipeline.
type Dispatcher interface {
	Queue(*store.OutboxEntry) error
	Dispatch(ctx context.Context, e *store.OutboxEntry) (gateway.SendResult, error)
}

// VisibleClock supplies the last-unread visible timestamp when messages
// carry none. Optional view-layer collaborator.
type VisibleClock interface {
	VisibleUntil() (int64, bool)
}

// ForwardPicker receives the message ids of a bulk forward and owns the
// target selection and cross-chat copy.
type ForwardPicker interface {
	ForwardMessages(messageIDs []int64)
}

// watermarkStore is satisfied by *store.DB; an in-memory fallback is used
// when no database is configured.
type watermarkStore interface {
	Watermark(chatID int64) (int64, error)
	AdvanceWatermark(chatID, untilTs int64) error
}

type memWatermarks struct {
	mu sync.Mutex
	m  map[int64]int64
}

func (w *memWatermarks) Watermark(chatID int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m[chatID], nil
}

func (w *memWatermarks) AdvanceWatermark(chatID, untilTs int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if untilTs > w.m[chatID] {
		w.m[chatID] = untilTs
	}
	return nil
}

// Config carries the controller's collaborators. UserID is explicit; it is
// never read from ambient state.
type Config struct {
	UserID     int64
	Gateway    Gateway
	History    HistoryAPI
	Dispatcher Dispatcher
	Store      *history.Store
	DB         *store.DB
	Bus        *bus.Bus
	Clock      VisibleClock
	Logger     *zap.Logger
}

// Controller binds the single active conversation to the transport and
// coordinates composite actions over it. All state mutation is serialized
// through its mutex; async completions re-check the session key they were
// issued for and discard themselves when the selection moved on.
type Controller struct {
	userID     int64
	gw         Gateway
	api        HistoryAPI
	dispatcher Dispatcher
	hist       *history.Store
	db         *store.DB
	marks      watermarkStore
	resolver   *resolver
	bus        *bus.Bus
	clock      VisibleClock
	logger     *zap.Logger

	mu         sync.Mutex
	handle     ChatHandle
	sessionKey string
	chatID     int64 // 0 while unresolved or in degraded addressing
	selection  map[int]struct{}
	sendState  SendState
	replyTo    int64
}

// New creates a controller. cfg.DB may be nil; watermarks then live in
// memory only.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("controller")

	var marks watermarkStore
	var index CompanionIndex
	if cfg.DB != nil {
		marks = cfg.DB
		index = cfg.DB
	} else {
		marks = &memWatermarks{m: make(map[int64]int64)}
	}

	return &Controller{
		userID:     cfg.UserID,
		gw:         cfg.Gateway,
		api:        cfg.History,
		dispatcher: cfg.Dispatcher,
		hist:       cfg.Store,
		db:         cfg.DB,
		marks:      marks,
		resolver:   newResolver(cfg.Gateway, index, logger),
		bus:        cfg.Bus,
		clock:      cfg.Clock,
		logger:     logger,
		selection:  make(map[int]struct{}),
		sendState:  SendIdle,
	}
}

// SessionKey returns the active session key, empty when nothing is selected.
func (c *Controller) SessionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}

// ChatID returns the resolved chat id, 0 in degraded addressing mode.
func (c *Controller) ChatID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// SelectChat switches the active conversation. A handle whose session key
// equals the current one is a no-op: no join, no history fetch. Otherwise
// all per-chat state is reset and exactly one resolve, one initial history
// load and one pinned load run for the new session.
func (c *Controller) SelectChat(ctx context.Context, h ChatHandle) {
	key := h.SessionKey()
	if key == "" {
		c.fail(PreconditionUnmet, "select_chat", errEmptyHandle)
		return
	}

	c.mu.Lock()
	if key == c.sessionKey {
		c.mu.Unlock()
		return
	}
	c.handle = h
	c.sessionKey = key
	c.chatID = 0
	if h.Kind == HandleChat {
		c.chatID = h.ChatID
	}
	c.selection = make(map[int]struct{})
	c.sendState = SendIdle
	c.replyTo = 0
	chatID := c.chatID
	c.mu.Unlock()

	c.hist.Reset(chatID)
	go c.loadSession(ctx, h, key)
}

// loadSession resolves the handle and performs the initial history and
// pinned loads. Every step re-checks the session key before touching state.
func (c *Controller) loadSession(ctx context.Context, h ChatHandle, key string) {
	chatID, err := c.resolver.Resolve(ctx, h)
	if err != nil {
		// Degrade to companion/login addressed history; the companion id
		// stays the de-facto session key.
		c.fail(ResolutionFailure, "resolve", err)
		chatID = 0
	}

	c.mu.Lock()
	if c.sessionKey != key {
		c.mu.Unlock()
		return
	}
	c.chatID = chatID
	c.mu.Unlock()

	if chatID != 0 {
		c.hist.Bind(chatID)
		c.persistMapping(h, chatID)
	}

	if !c.hist.BeginInitialLoad() {
		return
	}
	page, err := c.fetchPage(ctx, h, chatID, 0)
	if c.stale(key) {
		return
	}
	if err != nil {
		c.hist.AbortInitialLoad()
		c.fail(ResolutionFailure, "load_initial", err)
		return
	}
	c.hist.SetInitial(page)

	if chatID != 0 {
		pinned, err := c.api.PinnedMessages(ctx, chatID)
		if c.stale(key) {
			return
		}
		if err != nil {
			c.fail(ResolutionFailure, "load_pinned", err)
		} else {
			c.hist.SetPinnedList(pinned)
		}
	}

	c.SyncRead()
}

// LoadMore fetches one older page. Refused while another load is running or
// when history is exhausted.
func (c *Controller) LoadMore(ctx context.Context) {
	c.mu.Lock()
	key := c.sessionKey
	h := c.handle
	chatID := c.chatID
	c.mu.Unlock()
	if key == "" {
		return
	}
	skip, ok := c.hist.BeginLoadMore()
	if !ok {
		return
	}

	go func() {
		page, err := c.fetchPage(ctx, h, chatID, skip)
		if c.stale(key) {
			return
		}
		if err != nil {
			c.hist.AbortLoadMore()
			c.fail(ResolutionFailure, "load_more", err)
			return
		}
		c.hist.AppendOlder(page)
	}()
}

// fetchPage picks the addressing mode: confirmed chat id when available,
// otherwise companion id, otherwise login.
func (c *Controller) fetchPage(ctx context.Context, h ChatHandle, chatID int64, skip int) ([]history.Message, error) {
	limit := c.hist.PageSize()
	if chatID != 0 {
		return c.api.MessagesByChat(ctx, chatID, skip, limit)
	}
	switch h.Kind {
	case HandleCompanion:
		return c.api.MessagesByCompanion(ctx, h.CompanionID, skip, limit)
	case HandleLogin:
		return c.api.MessagesByLogin(ctx, h.Login, skip, limit)
	}
	return nil, errUnresolvedJoin
}

// stale reports whether the session moved on since key was captured.
func (c *Controller) stale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey != key
}

// persistMapping records the companion-to-chat mapping so later sessions
// resolve from the local index without a join.
func (c *Controller) persistMapping(h ChatHandle, chatID int64) {
	if c.db == nil || h.Kind != HandleCompanion {
		return
	}
	err := c.db.UpsertChat(&store.Chat{
		ChatID:         chatID,
		CompanionID:    h.CompanionID,
		CompanionLogin: h.Login,
	})
	if err != nil {
		c.logger.Warn("persist chat mapping failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("companion_id", h.CompanionID),
			zap.Error(err))
	}
}

// learnChatID installs a chat id discovered from an inbound event while the
// session was in degraded addressing mode. Caller holds c.mu.
func (c *Controller) learnChatID(chatID int64) {
	c.chatID = chatID
	c.resolver.Memoize(c.sessionKey, chatID)
	c.hist.Bind(chatID)
	c.logger.Info("chat id learned from stream",
		zap.String("session_key", c.sessionKey),
		zap.Int64("chat_id", chatID))
}
