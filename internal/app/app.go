package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/dmchat/internal/auth"
	"github.com/vovakirdan/dmchat/internal/config"
	"github.com/vovakirdan/dmchat/internal/core"
	applog "github.com/vovakirdan/dmchat/internal/log"
	"github.com/vovakirdan/dmchat/internal/store"
	"github.com/vovakirdan/dmchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/dmchat/internal/transport/http"
)

// App wires together the user store, the chat hub and the HTTP transport.
type App struct {
	server *stdhttp.Server
	cfg    *config.Config
	hub    *core.Hub
	store  store.Store
	log    *zerolog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	hub := core.NewHub(applog.Component(logger, "hub"))
	server := transporthttp.NewServer(hub, authService, st, cfg, applog.Component(logger, "http"))

	return &App{
		server: server,
		cfg:    cfg,
		hub:    hub,
		store:  st,
		log:    logger,
	}, nil
}

// Hub returns the chat hub serving this application.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Addr returns the bound listen address once Run has started listening.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	// Shutdown does not track hijacked websocket connections; canceling the
	// base context ends their read and write loops.
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()
	a.server.BaseContext = func(net.Listener) context.Context { return connCtx }

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		cancelConns()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
