package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/desertthunder/harmonymaker/internal/auth"
	"github.com/desertthunder/harmonymaker/internal/repositories"
	"github.com/desertthunder/harmonymaker/internal/server"
	"github.com/desertthunder/harmonymaker/internal/services"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/desertthunder/harmonymaker/internal/web"
	"github.com/urfave/cli/v3"
)

// Serve wires every dependency and runs the HTTP server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = int(port)
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := r.app(ctx, db)
	if err != nil {
		return err
	}

	var ready chan string
	if cmd.Bool("open") {
		ready = make(chan string, 1)
		go func() {
			select {
			case addr := <-ready:
				url := "http://" + browserAddr(addr)
				if err := shared.OpenBrowser(url); err != nil {
					r.logger.Warn("failed to open browser", "url", url, "error", err)
				}
			case <-ctx.Done():
			}
		}()
	}

	return server.Serve(ctx, r.config.Server.Addr(), app.Handler(), r.logger, ready)
}

// app builds the web application on db.
//
// Storage bucket setup and the ML health check only warn on failure so the server can start while they are down.
func (r *Runner) app(ctx context.Context, db *sql.DB) (*web.App, error) {
	cfg := r.config

	store, err := r.newStorage(cfg.Storage, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure storage: %w", err)
	}
	if created, err := store.Setup(ctx); err != nil {
		r.logger.Warn("storage setup failed", "error", err)
	} else if len(created) > 0 {
		r.logger.Info("created buckets", "buckets", created)
	}

	transformer := r.transformer()
	if err := transformer.Health(ctx); err != nil {
		r.logger.Warn("ML service is not reachable", "url", cfg.Transform.URL, "error", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	if err != nil {
		return nil, err
	}

	authService := auth.NewService(repositories.NewUserRepository(db), tokens, r.logger)

	pipeline := r.pipeline(db, store, transformer)

	opts := web.AppOpts{
		Auth:        authService,
		Pipeline:    pipeline,
		FrontendURL: cfg.Credentials.Google.FrontendURL,
		PublicDir:   cfg.Server.PublicDir,
		Checks: map[string]web.HealthCheck{
			"database":  db.PingContext,
			"transform": transformer.Health,
		},
		Server: cfg.Server,
		Secure: strings.HasPrefix(cfg.Credentials.Google.RedirectURI, "https://"),
		Logger: r.logger,
	}

	if cfg.Credentials.Google.Enabled() {
		google, err := services.NewGoogleService(cfg.Credentials.Google)
		if err != nil {
			return nil, err
		}
		opts.Google = google
		r.logger.Info("google sign-in enabled")
	}

	return web.NewApp(opts), nil
}

// browserAddr replaces an unspecified listen host with localhost.
func browserAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
