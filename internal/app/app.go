// Package app wires configuration, storage, authentication and the two
// transports into a single runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/streamchat-server/internal/auth"
	"github.com/vovakirdan/streamchat-server/internal/chat"
	"github.com/vovakirdan/streamchat-server/internal/config"
	"github.com/vovakirdan/streamchat-server/internal/store"
	"github.com/vovakirdan/streamchat-server/internal/store/sqlite"
	"github.com/vovakirdan/streamchat-server/internal/transport/http"
	"github.com/vovakirdan/streamchat-server/internal/transport/tcp"
)

// App holds the assembled service components.
type App struct {
	cfg        config.Config
	log        *zerolog.Logger
	registry   *chat.Registry
	store      store.UserStore
	tcpServer  *tcp.Server
	httpServer *stdhttp.Server
}

// New builds the service from configuration. The returned App owns the
// backing store and closes it when Run returns.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := chat.NewRegistry(logger)

	authenticator, userStore, err := buildAuthenticator(cfg, logger)
	if err != nil {
		return nil, err
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	return &App{
		cfg:        cfg,
		log:        logger,
		registry:   registry,
		store:      userStore,
		tcpServer:  tcp.NewServer(cfg.TCPAddr, registry, authenticator, logger),
		httpServer: http.NewServer(registry, authenticator, jwtConfig, cfg, logger),
	}, nil
}

func buildAuthenticator(cfg config.Config, logger *zerolog.Logger) (chat.Authenticator, store.UserStore, error) {
	switch cfg.AuthBackend {
	case config.BackendMemory:
		logger.Info().Msg("using in-memory auth backend")
		return auth.NewMemory(auth.DefaultUsers()...), nil, nil
	case config.BackendSQLite:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		svc := auth.NewService(st)
		if err := svc.EnsureSeedUsers(context.Background(), auth.DefaultUsers()); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("seed users: %w", err)
		}
		logger.Info().Str("path", cfg.DatabasePath).Msg("using sqlite auth backend")
		return svc, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown auth backend %q", cfg.AuthBackend)
	}
}

// Run starts both listeners and blocks until ctx is cancelled or a
// listener fails. Active sessions are told goodbye and both servers are
// drained before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// WebSocket handlers derive their lifetime from the request context,
	// which in turn derives from BaseContext. Cancelling runCtx reaches
	// every in-flight websocket session.
	a.httpServer.BaseContext = func(net.Listener) context.Context { return runCtx }

	tcpErr := make(chan error, 1)
	go func() {
		tcpErr <- a.tcpServer.Run(runCtx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		err := a.httpServer.ListenAndServe()
		if errors.Is(err, stdhttp.ErrServerClosed) {
			err = nil
		}
		httpErr <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down")
	case err := <-tcpErr:
		tcpErr = nil
		if err != nil {
			runErr = fmt.Errorf("tcp server: %w", err)
		}
	case err := <-httpErr:
		httpErr = nil
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown incomplete, forcing close")
		a.httpServer.Close()
	}

	if err := drain(tcpErr, a.cfg.ShutdownTimeout); err != nil && runErr == nil {
		runErr = fmt.Errorf("tcp server: %w", err)
	}
	if err := drain(httpErr, a.cfg.ShutdownTimeout); err != nil && runErr == nil {
		runErr = fmt.Errorf("http server: %w", err)
	}

	return runErr
}

// drain waits for a server goroutine to report its exit status. A nil
// channel means the result was already consumed.
func drain(ch chan error, timeout time.Duration) error {
	if ch == nil {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return errors.New("timed out waiting for server to stop")
	}
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing store")
		}
	}
}
