// Package server wires the chat server together: configuration, the
// credential store, the TCP chat listener and the optional WebSocket gateway
// and health endpoint. It also handles graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/chat"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/health"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"github.com/dmitrijs2005/gophchat/internal/server/ws"
)

// component is anything the app runs until the context is cancelled.
type component struct {
	name string
	run  func(ctx context.Context) error
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	chat       *chat.Server
	components []component
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, rm, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	logger.Info(ctx, "credential store ready", "dialect", rm.Dialect())

	credentials := services.NewCredentialService(db, rm)

	registry := chat.NewRegistry()
	broadcaster := chat.NewBroadcaster(registry, logger, chat.WithSenderExcluded(c.ExcludeSender))

	opts := []chat.Option{
		chat.WithWriteTimeout(c.WriteTimeout),
		chat.WithOutboxSize(c.OutboxSize),
		chat.WithMaxFrameSize(c.MaxFrameSize),
	}
	if c.TokenValidityDuration > 0 {
		secret := c.SecretKey
		if secret == "" {
			if secret, err = common.MakeRandHexString(32); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("generate secret key: %w", err)
			}
			logger.Warn(ctx, "no secret key configured, session tokens will not survive a restart")
		}
		opts = append(opts, chat.WithTokenIssuer(auth.NewTokenIssuer(secret, c.TokenValidityDuration)))
	}
	chatServer := chat.NewServer(c.EndpointAddr, registry, broadcaster, credentials, logger, opts...)

	app := &App{config: c, logger: logger, db: db, chat: chatServer}
	app.components = append(app.components, component{"chat", chatServer.Run})

	if c.WebSocketAddr != "" {
		g := ws.NewGateway(c.WebSocketAddr, chatServer, c.MaxFrameSize, logger)
		app.components = append(app.components, component{"websocket", g.Run})
	}
	if c.HealthAddr != "" {
		h := health.NewServer(c.HealthAddr, logger)
		app.components = append(app.components, component{"health", h.Run})
	}

	return app, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-sigs:
			app.logger.Info(ctx, "received signal, shutting down", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()

	return func() { signal.Stop(sigs) }
}

// Run starts every component and blocks until ctx is cancelled, a signal
// arrives or a component fails. The first component error is returned after
// all components have stopped.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	stopSignals := app.initSignalHandler(ctx, cancelFunc)
	defer stopSignals()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)

	for _, c := range app.components {
		wg.Add(1)
		go func(c component) {
			defer wg.Done()
			if err := c.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error(ctx, "component failed", "component", c.name, "error", err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", c.name, err)
				}
				errMu.Unlock()
				cancelFunc()
			}
		}(c)
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "closing database", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
	return firstErr
}
