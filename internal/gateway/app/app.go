// Package app wires the IMAP gateway's components together: configuration,
// the upstream API client, the per-connection session engine, the listening
// acceptor, and the optional health server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edimap/ecoledirecte-imap/common/version"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/acceptor"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/config"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/health"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/session"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/upstream"
)

// App is the running gateway: one upstream HTTP client shared by every
// session, one acceptor binding the IMAP listen socket, and an optional
// health/status HTTP surface.
type App struct {
	config   config.Config
	upstream *upstream.Client
	engine   *session.Engine
	acceptor *acceptor.Acceptor
	health   *health.Server
}

// New builds the application from cfg but does not start listening.
func New(cfg config.Config) (*App, error) {
	slog.Info("ecoledirecte-imap starting",
		"version", version.Version,
		"commit", version.GitCommit,
	)

	client, err := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamAPIVersion, cfg.UpstreamTimeout, cfg.UpstreamMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upstream client: %w", err)
	}

	engine := session.New(client, cfg.ReadBufferSize)

	accept := acceptor.New(cfg.ListenAddr, engine.Serve, cfg.MaxConnsPerMinute)

	var healthServer *health.Server
	if cfg.HealthAddr != "" {
		healthServer = health.New(cfg.HealthAddr, accept)
		slog.Info("health server configured", "addr", cfg.HealthAddr)
	}

	return &App{
		config:   cfg,
		upstream: client,
		engine:   engine,
		acceptor: accept,
		health:   healthServer,
	}, nil
}

// Run binds the IMAP listen socket and blocks until SIGINT/SIGTERM or a
// fatal accept error.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("ecoledirecte-imap is running", "addr", a.config.ListenAddr)
	return a.acceptor.Run(ctx)
}

// Stop closes the listening socket and the health server.
func (a *App) Stop() {
	slog.Info("stopping acceptor")
	a.acceptor.Stop()

	if a.health != nil {
		slog.Info("stopping health server")
		a.health.Stop()
	}
}
