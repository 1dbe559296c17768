package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/loopdesk/wabridge/internal/bridge"
	"github.com/loopdesk/wabridge/internal/config"
	"github.com/loopdesk/wabridge/internal/dedup"
	"github.com/loopdesk/wabridge/internal/desk"
	"github.com/loopdesk/wabridge/internal/handlers"
	"github.com/loopdesk/wabridge/internal/logger"
	"github.com/loopdesk/wabridge/internal/provider"
	"github.com/loopdesk/wabridge/internal/retry"
	"github.com/loopdesk/wabridge/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideRetryExecutor,
			provideDedupStore,
			provideProviderClient,
			provideDeskClient,
			provideChannelResolver,
			provideContactResolver,
			provideMediaPoller,
			provideDispatcher,
			bridge.NewOrchestrator,
			provideWebhookHandler,
			provideMessageHandler,
			provideHealthHandler,
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRetryExecutor(log *slog.Logger, cfg config.Config) *retry.Executor {
	return retry.NewExecutor(log, retry.Options{
		MaxAttempts: cfg.Retry.Attempts(),
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
	})
}

func provideDedupStore(lc fx.Lifecycle, cfg config.Config) *dedup.Store {
	store := dedup.NewStore(cfg.Dedup.TTL(), cfg.Dedup.SweepInterval())
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { store.Close(); return nil }})
	return store
}

func provideProviderClient(log *slog.Logger, cfg config.Config, exec *retry.Executor) *provider.Client {
	return provider.NewClient(log, cfg.Provider, exec)
}

func provideDeskClient(log *slog.Logger, cfg config.Config, exec *retry.Executor) *desk.Client {
	return desk.NewClient(log, cfg.Desk, exec)
}

func provideChannelResolver(log *slog.Logger, cfg config.Config, client *desk.Client) *bridge.ChannelResolver {
	return bridge.NewChannelResolver(log, client, cfg.Cache.ChannelTTL())
}

func provideContactResolver(log *slog.Logger, cfg config.Config, client *provider.Client) *bridge.ContactResolver {
	return bridge.NewContactResolver(log, client, cfg.Cache.ContactTTL(), cfg.Contact.CountryCode())
}

func provideMediaPoller(log *slog.Logger, cfg config.Config, client *provider.Client, exec *retry.Executor) *bridge.MediaPoller {
	return bridge.NewMediaPoller(log, client, exec, cfg.Media.Attempts(), cfg.Media.PollDelay())
}

func provideDispatcher(log *slog.Logger, client *desk.Client, exec *retry.Executor) *bridge.Dispatcher {
	return bridge.NewDispatcher(log, client, exec)
}

func provideWebhookHandler(log *slog.Logger, orch *bridge.Orchestrator) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, orch)
}

func provideMessageHandler(log *slog.Logger, client *provider.Client, channels *bridge.ChannelResolver) *handlers.MessageHandler {
	return handlers.NewMessageHandler(log, client, channels)
}

func provideHealthHandler(store *dedup.Store, exec *retry.Executor, channels *bridge.ChannelResolver, contacts *bridge.ContactResolver) *handlers.HealthHandler {
	return handlers.NewHealthHandler(store, exec, channels, contacts)
}

func provideServer(log *slog.Logger, cfg config.Config, webhook *handlers.WebhookHandler, message *handlers.MessageHandler, health *handlers.HealthHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, webhook, message, health)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					log.Error("server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
