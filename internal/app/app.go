package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmelnik/chatrelay/internal/auth"
	"github.com/vmelnik/chatrelay/internal/config"
	"github.com/vmelnik/chatrelay/internal/core"
	"github.com/vmelnik/chatrelay/internal/service/channels"
	"github.com/vmelnik/chatrelay/internal/service/messages"
	"github.com/vmelnik/chatrelay/internal/store"
	"github.com/vmelnik/chatrelay/internal/store/sqlite"
	transporthttp "github.com/vmelnik/chatrelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	stop            chan struct{}
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	// The realtime handshake reuses the same token validation as the REST
	// middleware.
	verifier := core.VerifierFunc(func(token string) (core.Identity, bool) {
		claims, err := authService.ValidateToken(token)
		if err != nil {
			return core.Identity{}, false
		}
		return core.Identity{UserID: claims.UserID, Name: claims.Name}, true
	})

	coord := core.NewCoordinator(st, verifier, cfg.StoreTimeout, logger)
	channelService := channels.New(st, coord.Events(), logger)
	messageService := messages.New(st, coord.Events(), logger)

	stop := make(chan struct{})
	server := transporthttp.NewServer(transporthttp.Deps{
		Config:      cfg,
		Coordinator: coord,
		Auth:        authService,
		Channels:    channelService,
		Messages:    messageService,
		Log:         logger,
	}, stop)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		stop:            stop,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store and stops router background work.
func (a *App) cleanup() {
	close(a.stop)
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
