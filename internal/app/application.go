package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"classlink/internal/api"
	"classlink/internal/auth"
	"classlink/internal/config"
	"classlink/internal/feed"
	"classlink/internal/session"
	"classlink/internal/store"
	ws "classlink/internal/websocket"
	"classlink/pkg/database"
)

const shutdownTimeout = 10 * time.Second

// Application owns every long-lived component and enforces their
// startup and shutdown order. The change feed must exist before the
// store (writes publish to it) and the store before everything that
// reads or writes sessions.
type Application struct {
	Config     *config.Config
	Logger     *zap.Logger
	Feed       *feed.Feed
	Store      *store.Manager
	Sessions   *session.Manager
	Auth       *auth.Service
	Registry   *ws.Registry
	WSHandler  *ws.Handler
	APIServer  *api.Server
	serverDone chan error
}

// NewApplication builds the full dependency graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := NewLogger(cfg.Env)
	if err != nil {
		return nil, err
	}

	changeFeed := feed.NewFeed(logger)

	dbConfig := database.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path

	storeMgr, err := store.NewManager(dbConfig, changeFeed, logger)
	if err != nil {
		changeFeed.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	sessionMgr := session.NewManager(storeMgr, logger)
	authSvc := auth.NewService(storeMgr, logger)
	registry := ws.NewRegistry()

	wsHandler := ws.NewHandler(storeMgr, changeFeed, registry, ws.Config{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
		PollInterval: cfg.Sync.PollInterval,
	}, logger)

	apiServer := api.NewServer(&api.Config{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		CookieSecret: cfg.Auth.CookieSecret,
	}, storeMgr, sessionMgr, authSvc, wsHandler, registry, logger)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		Feed:      changeFeed,
		Store:     storeMgr,
		Sessions:  sessionMgr,
		Auth:      authSvc,
		Registry:  registry,
		WSHandler: wsHandler,
		APIServer: apiServer,
	}, nil
}

// Start launches the HTTP server and waits briefly for an immediate
// bind failure before reporting success.
func (a *Application) Start() error {
	a.Logger.Info("starting application",
		zap.String("env", a.Config.Env),
		zap.String("addr", a.APIServer.Addr()),
		zap.String("database", a.Config.Database.Path))

	a.serverDone = make(chan error, 1)
	go func() {
		a.serverDone <- a.APIServer.Start()
	}()

	select {
	case err := <-a.serverDone:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return fmt.Errorf("server stopped unexpectedly")
	case <-time.After(250 * time.Millisecond):
		a.Logger.Info("application started")
		return nil
	}
}

// Wait blocks until the HTTP server exits.
func (a *Application) Wait() error {
	if a.serverDone == nil {
		return fmt.Errorf("application not started")
	}
	return <-a.serverDone
}

// Stop tears components down in reverse dependency order: stop taking
// traffic first, then the feed so student clients unblock, then the
// store.
func (a *Application) Stop() error {
	a.Logger.Info("stopping application")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error

	if err := a.APIServer.Stop(ctx); err != nil {
		a.Logger.Warn("HTTP server shutdown error", zap.Error(err))
		firstErr = err
	}

	a.Registry.CloseAll()
	a.Feed.Close()

	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("store shutdown error", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	a.Logger.Info("application stopped")
	_ = a.Logger.Sync()
	return firstErr
}
