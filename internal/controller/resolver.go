package controller

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// resolver normalizes chat handles to confirmed chat ids. Resolution is
// memoized per session key, so a handle joins its chat at most once per
// daemon lifetime; concurrent resolves of the same key share one join.
type resolver struct {
	gw     JoinGateway
	index  CompanionIndex
	logger *zap.Logger

	mu       sync.Mutex
	byKey    map[string]int64
	inflight map[string]*flight
}

type flight struct {
	done chan struct{}
	id   int64
	err  error
}

// JoinGateway is the resolver's slice of the transport.
type JoinGateway interface {
	JoinChat(ctx context.Context, companionID int64) (int64, error)
}

// CompanionIndex looks up a locally known companion-to-chat mapping, saving
// a join round-trip. May be nil.
type CompanionIndex interface {
	ChatByCompanion(companionID int64) (int64, error)
}

func newResolver(gw JoinGateway, index CompanionIndex, logger *zap.Logger) *resolver {
	return &resolver{
		gw:       gw,
		index:    index,
		logger:   logger,
		byKey:    make(map[string]int64),
		inflight: make(map[string]*flight),
	}
}

// Resolve returns the confirmed chat id for a handle. A zero id with nil
// error means the handle cannot be resolved to a chat (login addressing);
// an error means the join was attempted and rejected. Either way the caller
// degrades to companion/login addressed history, never retries here.
func (r *resolver) Resolve(ctx context.Context, h ChatHandle) (int64, error) {
	if h.Kind == HandleChat {
		return h.ChatID, nil
	}
	key := h.SessionKey()
	if key == "" {
		return 0, errEmptyHandle
	}

	r.mu.Lock()
	if id, ok := r.byKey[key]; ok {
		r.mu.Unlock()
		return id, nil
	}
	if fl, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-fl.done:
			return fl.id, fl.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	fl := &flight{done: make(chan struct{})}
	r.inflight[key] = fl
	r.mu.Unlock()

	fl.id, fl.err = r.resolveSlow(ctx, h)

	r.mu.Lock()
	delete(r.inflight, key)
	if fl.err == nil && fl.id != 0 {
		r.byKey[key] = fl.id
	}
	r.mu.Unlock()
	close(fl.done)
	return fl.id, fl.err
}

func (r *resolver) resolveSlow(ctx context.Context, h ChatHandle) (int64, error) {
	switch h.Kind {
	case HandleCompanion:
		if r.index != nil {
			if id, err := r.index.ChatByCompanion(h.CompanionID); err == nil && id != 0 {
				r.logger.Debug("chat resolved from local index",
					zap.Int64("companion_id", h.CompanionID),
					zap.Int64("chat_id", id))
				return id, nil
			}
		}
		return r.gw.JoinChat(ctx, h.CompanionID)
	case HandleLogin:
		// No numeric identity to join with. The chat id may still be
		// learned later from the first inbound event.
		return 0, nil
	}
	return 0, errEmptyHandle
}

// Memoize records a chat id learned outside the join path, e.g. from the
// first inbound message of a login-addressed session.
func (r *resolver) Memoize(key string, chatID int64) {
	if key == "" || chatID == 0 {
		return
	}
	r.mu.Lock()
	r.byKey[key] = chatID
	r.mu.Unlock()
}
