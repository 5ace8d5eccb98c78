package daemon

import (
	"context"

	"github.com/lfelipe/studyhall/internal/api"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/lfelipe/studyhall/internal/identity"
	"github.com/lfelipe/studyhall/internal/lock"
	"github.com/lfelipe/studyhall/internal/logging"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/outbox"
	"github.com/lfelipe/studyhall/internal/remote"
	"github.com/lfelipe/studyhall/internal/session"
	"github.com/lfelipe/studyhall/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ServerURL   string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideMonitor,
			provideLock,
			provideStore,
			provideIdentity,
			provideRemote,
			provideGroups,
			provideMessages,
			provideLeaderboard,
			provideProgress,
			provideRetryer,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
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

func provideMonitor(m *status.Machine, b *bus.Bus) *status.Monitor {
	return status.NewMonitor(m, b)
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

func provideStore(p Params, logger *zap.Logger) (*mirror.Store, error) {
	dbPath := session.MirrorDBPath(p.SessionName)
	store, err := mirror.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := store.Migrate()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("mirror initialized", zap.String("path", dbPath))
	return store, nil
}

func provideIdentity(p Params, b *bus.Bus, logger *zap.Logger) *identity.Manager {
	return identity.NewManager(session.TokenPath(p.SessionName), b, logger)
}

func provideRemote(p Params, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *remote.Client {
	return remote.NewClient(p.ServerURL, ident.Token, b, logger)
}

func provideGroups(client *remote.Client, store *mirror.Store, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *feed.Groups {
	return feed.NewGroups(client, store, ident, b, logger)
}

func provideMessages(client *remote.Client, store *mirror.Store, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *feed.Messages {
	return feed.NewMessages(client, store, ident, b, logger)
}

func provideLeaderboard(client *remote.Client, store *mirror.Store, b *bus.Bus, logger *zap.Logger) *feed.Leaderboard {
	return feed.NewLeaderboard(client, store, b, logger)
}

func provideProgress(client *remote.Client, store *mirror.Store, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *feed.ProgressFeed {
	return feed.NewProgress(client, store, ident, b, logger)
}

func provideRetryer(store *mirror.Store, client *remote.Client, b *bus.Bus, logger *zap.Logger) *outbox.Retryer {
	return outbox.NewRetryer(store, client, b, logger)
}

func provideHandler(
	p Params,
	machine *status.Machine,
	ident *identity.Manager,
	client *remote.Client,
	store *mirror.Store,
	b *bus.Bus,
	logger *zap.Logger,
	groups *feed.Groups,
	messages *feed.Messages,
	leaderboard *feed.Leaderboard,
	progress *feed.ProgressFeed,
) *api.Handler {
	return api.NewHandler(p.SessionName, machine, ident, client, store, b, logger,
		groups, messages, leaderboard, progress)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	ident *identity.Manager,
	monitor *status.Monitor,
	machine *status.Machine,
	groups *feed.Groups,
	leaderboard *feed.Leaderboard,
	retryer *outbox.Retryer,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			monitor.Start(context.Background())

			if err := ident.Load(); err != nil {
				logger.Warn("failed to load stored credentials", zap.Error(err))
			}
			if _, ok := ident.Current(); ok {
				_ = machine.Transition(status.Connecting)
			} else {
				logger.Info("no credentials found, sign-in required")
				_ = machine.Transition(status.SignedOut)
			}

			// Membership list and leaderboard bind eagerly; messages and
			// progress bind on first selection.
			groups.Start(context.Background())
			leaderboard.Start(context.Background())
			retryer.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			retryer.Stop()
			groups.Stop()
			leaderboard.Stop()
			monitor.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
