package daemon

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/bus"
	"github.com/vlad23451/syrup/internal/config"
	"github.com/vlad23451/syrup/internal/controller"
	"github.com/vlad23451/syrup/internal/engine"
	"github.com/vlad23451/syrup/internal/gateway"
	"github.com/vlad23451/syrup/internal/history"
	"github.com/vlad23451/syrup/internal/lock"
	"github.com/vlad23451/syrup/internal/logging"
	"github.com/vlad23451/syrup/internal/outbox"
	"github.com/vlad23451/syrup/internal/rest"
	"github.com/vlad23451/syrup/internal/session"
	"github.com/vlad23451/syrup/internal/status"
	"github.com/vlad23451/syrup/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideGateway,
			provideRESTClient,
			provideHistoryStore,
			provideDispatcher,
			provideController,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.GatewayURL == "" {
		return nil, errors.New("gateway_url is not configured")
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("api_base_url is not configured")
	}
	if cfg.UserID == 0 {
		return nil, errors.New("user_id is not configured")
	}
	logger.Info("config loaded",
		zap.String("gateway_url", cfg.GatewayURL),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.Int64("user_id", cfg.UserID),
		zap.Int("page_size", cfg.PageSize))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGateway(cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *gateway.Client {
	return gateway.NewClient(cfg.GatewayURL, cfg.UserID, cfg.AuthToken, b, machine, logger)
}

func provideRESTClient(cfg *config.Config, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.APIBaseURL, cfg.AuthToken, cfg.UserID, logger)
}

func provideHistoryStore(cfg *config.Config, db *store.DB, logger *zap.Logger) *history.Store {
	return history.New(db, cfg.PageSize, logger)
}

func provideDispatcher(db *store.DB, gw *gateway.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Dispatcher {
	return outbox.New(db, gw, b, cfg.UserID, logger)
}

func provideController(cfg *config.Config, gw *gateway.Client, api *rest.Client, disp *outbox.Dispatcher, hist *history.Store, db *store.DB, b *bus.Bus, logger *zap.Logger) *controller.Controller {
	return controller.New(controller.Config{
		UserID:     cfg.UserID,
		Gateway:    gw,
		History:    api,
		Dispatcher: disp,
		Store:      hist,
		DB:         db,
		Bus:        b,
		Logger:     logger,
	})
}

func provideEngine(b *bus.Bus, ctrl *controller.Controller, db *store.DB, logger *zap.Logger) *engine.Engine {
	return engine.New(b, ctrl, db, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, gw *gateway.Client, eng *engine.Engine, disp *outbox.Dispatcher, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Sends interrupted by the previous run must not be replayed.
			if _, err := disp.RecoverInterrupted(); err != nil {
				logger.Warn("outbox recovery failed", zap.Error(err))
			}

			// Route inbound gateway events into cache and controller.
			eng.Start(ctx)

			// Connect the socket; redials are handled internally.
			go gw.Run(ctx)

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			gw.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
