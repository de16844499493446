package daemon

import (
	"context"
	"time"

	"github.com/dmaran/parley/internal/api"
	"github.com/dmaran/parley/internal/bus"
	"github.com/dmaran/parley/internal/config"
	"github.com/dmaran/parley/internal/dedup"
	"github.com/dmaran/parley/internal/engine"
	"github.com/dmaran/parley/internal/inbox"
	"github.com/dmaran/parley/internal/lock"
	"github.com/dmaran/parley/internal/logging"
	"github.com/dmaran/parley/internal/pending"
	"github.com/dmaran/parley/internal/presence"
	"github.com/dmaran/parley/internal/rest"
	"github.com/dmaran/parley/internal/session"
	"github.com/dmaran/parley/internal/status"
	"github.com/dmaran/parley/internal/timeline"
	"github.com/dmaran/parley/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ConfigPath  string // optional override for testing; empty = session default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideSessionConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideWindow,
			provideTimeline,
			provideIndex,
			providePipeline,
			provideTracker,
			provideTransport,
			provideBackend,
			provideEngine,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideSessionConfig(p Params) (*config.Session, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.SessionConfigPath(p.SessionName)
	}
	return config.LoadSession(path)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideWindow(cfg *config.Session) *dedup.Window {
	return dedup.NewWindow(time.Duration(cfg.DedupWindowMS) * time.Millisecond)
}

func provideTimeline() *timeline.Store {
	return timeline.New()
}

func provideIndex(cfg *config.Session) *inbox.Index {
	return inbox.New(cfg.UserID)
}

func providePipeline(b *bus.Bus, cfg *config.Session) *pending.Pipeline {
	return pending.New(b, cfg.UserID, cfg.Username)
}

func provideTracker(b *bus.Bus, cfg *config.Session) *presence.Tracker {
	return presence.New(b, time.Duration(cfg.TypingIdleMS)*time.Millisecond)
}

func provideTransport(cfg *config.Session, b *bus.Bus, logger *zap.Logger) *transport.Client {
	return transport.NewClient(cfg.SocketURL, cfg.Token, b, logger)
}

func provideBackend(cfg *config.Session) *rest.Client {
	return rest.New(cfg.ServerURL, cfg.Token)
}

func provideEngine(
	cfg *config.Session,
	b *bus.Bus,
	logger *zap.Logger,
	socket *transport.Client,
	backend *rest.Client,
	machine *status.Machine,
	window *dedup.Window,
	store *timeline.Store,
	index *inbox.Index,
	pipeline *pending.Pipeline,
	tracker *presence.Tracker,
) *engine.Engine {
	return engine.New(engine.Params{
		Bus:      b,
		Logger:   logger,
		Socket:   socket,
		Backend:  backend,
		Machine:  machine,
		Window:   window,
		Store:    store,
		Index:    index,
		Pipeline: pipeline,
		Tracker:  tracker,
		Self:     engine.Identity{UserID: cfg.UserID, Username: cfg.Username},
		PageSize: cfg.PageSize,
	})
}

func provideServer(
	cfg *config.Session,
	eng *engine.Engine,
	b *bus.Bus,
	machine *status.Machine,
	tracker *presence.Tracker,
	logger *zap.Logger,
) *api.Server {
	return api.New(cfg.ListenAddr, eng, b, machine, tracker, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *api.Server,
	lk *lock.Lock,
	socket *transport.Client,
	eng *engine.Engine,
	tracker *presence.Tracker,
	machine *status.Machine,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine must be consuming transport.* events before the
			// socket starts dialing.
			eng.Start(context.Background())

			_ = machine.Transition(status.Connecting)
			socket.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping api server", zap.Error(err))
			}
			socket.Stop()
			eng.Stop()
			tracker.Stop()
			_ = machine.Transition(status.Disconnected)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
