package app

import (
	"context"
	"time"

	"github.com/triplinked/chatsync/internal/auth"
	"github.com/triplinked/chatsync/internal/bus"
	"github.com/triplinked/chatsync/internal/config"
	"github.com/triplinked/chatsync/internal/lock"
	"github.com/triplinked/chatsync/internal/logging"
	"github.com/triplinked/chatsync/internal/membership"
	"github.com/triplinked/chatsync/internal/outbox"
	"github.com/triplinked/chatsync/internal/platform"
	"github.com/triplinked/chatsync/internal/roster"
	"github.com/triplinked/chatsync/internal/session"
	"github.com/triplinked/chatsync/internal/store"
	intsync "github.com/triplinked/chatsync/internal/sync"
	"github.com/triplinked/chatsync/internal/tui"
	"github.com/triplinked/chatsync/internal/tui/model"
	"github.com/triplinked/chatsync/internal/unread"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// credentials bundles the raw bearer token with the identity decoded from it.
type credentials struct {
	token    string
	identity *auth.Identity
}

// Module returns the fx module composing the sync engine and its TUI host.
func Module(p Params) fx.Option {
	return fx.Module("chatsync",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideCredentials,
			provideIdentity,
			provideStore,
			provideClient,
			provideGuard,
			provideTracker,
			provideReconciler,
			provideEngine,
			provideManager,
			provideSummaryPoller,
			providePipeline,
			provideRosterManager,
			provideViewModel,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
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

func provideCredentials(cfg *config.Config, logger *zap.Logger) (*credentials, error) {
	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		tokenPath = session.TokenPath()
	}
	token, err := auth.LoadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	id, err := auth.FromToken(token)
	if err != nil {
		return nil, err
	}
	if id.Expired(time.Now()) {
		logger.Warn("auth token is expired, platform requests will likely fail",
			zap.String("user_id", id.UserID))
	}
	logger.Info("authenticated", zap.String("user_id", id.UserID))
	return &credentials{token: token, identity: id}, nil
}

func provideIdentity(c *credentials) *auth.Identity {
	return c.identity
}

func provideStore(logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open()
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.Uint("schema_version", result.Version))
	return db, nil
}

func provideClient(cfg *config.Config, c *credentials, logger *zap.Logger) *platform.Client {
	return platform.NewClient(cfg.APIBaseURL, c.token, logger)
}

func provideGuard(b *bus.Bus, logger *zap.Logger) *membership.Guard {
	return membership.NewGuard(b, logger)
}

func provideTracker(b *bus.Bus) *unread.Tracker {
	return unread.NewTracker(b)
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger)
}

func provideEngine(db *store.DB, rec *intsync.Reconciler, b *bus.Bus, id *auth.Identity, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, rec, b, id.UserID, logger)
}

func provideManager(client *platform.Client, engine *intsync.Engine, guard *membership.Guard, tracker *unread.Tracker, cfg *config.Config, logger *zap.Logger) *intsync.Manager {
	return intsync.NewManager(client, engine, guard, tracker, cfg.PollInterval(), logger)
}

func provideSummaryPoller(client *platform.Client, tracker *unread.Tracker, cfg *config.Config, logger *zap.Logger) *intsync.SummaryPoller {
	return intsync.NewSummaryPoller(client, tracker, cfg.PollInterval(), logger)
}

func providePipeline(db *store.DB, client *platform.Client, rec *intsync.Reconciler, guard *membership.Guard, b *bus.Bus, id *auth.Identity, logger *zap.Logger) *outbox.Pipeline {
	return outbox.NewPipeline(db, client, rec, guard, b, id.UserID, logger)
}

func provideRosterManager(client *platform.Client, guard *membership.Guard, b *bus.Bus, id *auth.Identity, logger *zap.Logger) *roster.Manager {
	return roster.NewManager(client, guard, b, id.UserID, logger)
}

func provideViewModel(db *store.DB, client *platform.Client, tracker *unread.Tracker, guard *membership.Guard, manager *intsync.Manager, pipeline *outbox.Pipeline, rosters *roster.Manager, b *bus.Bus, id *auth.Identity, logger *zap.Logger) *model.ViewModel {
	return model.NewViewModel(model.Deps{
		DB:       db,
		API:      client,
		Tracker:  tracker,
		Guard:    guard,
		Manager:  manager,
		Pipeline: pipeline,
		Rosters:  rosters,
		Bus:      b,
		SelfID:   id.UserID,
		SelfName: id.Name,
		Logger:   logger,
	})
}

func provideApp(vm *model.ViewModel, p Params, logger *zap.Logger) *tui.App {
	return tui.NewApp(vm, p.SessionName, logger)
}

func registerLifecycle(lc fx.Lifecycle, summary *intsync.SummaryPoller, manager *intsync.Manager, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			summary.Start(context.Background())
			return nil
		},
		OnStop: func(_ context.Context) error {
			summary.Stop()
			manager.CloseAll()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("stopped")
			return nil
		},
	})
}
