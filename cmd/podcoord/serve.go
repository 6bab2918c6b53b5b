package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/config"
	"github.com/example/podcoord/internal/engine"
	httptransport "github.com/example/podcoord/internal/http"
	"github.com/example/podcoord/internal/logging"
	"github.com/example/podcoord/internal/notify"
	"github.com/example/podcoord/internal/persistence"
	"github.com/example/podcoord/internal/persistence/memory"
	"github.com/example/podcoord/internal/persistence/sqlite"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, os.Stdout)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", logging.Err(err))
		return err
	}
	defer closeStore(store, logger)

	server := &http.Server{
		Addr:              cfg.Listen.Addr(),
		Handler:           newHandler(cfg, store, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", logging.Err(err))
		}
	}()

	logger.Info("podcoord API listening", "addr", server.Addr, "storage", cfg.Storage.Driver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", logging.Err(err))
		return err
	}
	return nil
}

// newHandler wires storage, the engine and notifications into the router.
func newHandler(cfg config.Config, store persistence.Store, logger *slog.Logger) http.Handler {
	idGenerator := uuid.NewString
	now := time.Now

	pods := newPodRepositoryAdapter(store)
	accounts := newAccountDirectoryAdapter(store)
	links := newShareLinkRepositoryAdapter(store)
	bookings := newBookingRepositoryAdapter(store)

	engineClient := engine.NewClient(cfg.Engine.BaseURL, cfg.Engine.Timeout, logger)
	var poller *engine.Poller
	if cfg.Engine.PollAttempts > 0 {
		poller = engine.NewPoller(engineClient, cfg.Engine.PollAttempts, cfg.Engine.PollInterval)
	}
	hunts := engine.New(engineClient, poller)

	notifier := newNotifier(cfg, logger)

	podService := application.NewPodServiceWithLogger(pods, accounts, hunts, idGenerator, now, logger)
	linkService := application.NewLinkServiceWithLogger(accounts, links, bookings, hunts, notifier, idGenerator, now, application.LinkServiceConfig{
		ShareLinkTTL: cfg.Links.ShareLinkTTL,
		SlotCacheTTL: cfg.Links.SlotCacheTTL,
	}, logger)
	bookingService := application.NewBookingServiceWithLogger(bookings, links, accounts, notifier, idGenerator, now, cfg.Links.ShareLinkTTL, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Pods:      httptransport.NewPodHandler(podService, cfg.PublicBaseURL, logger),
		Links:     httptransport.NewLinkHandler(linkService, cfg.PublicBaseURL, logger),
		Bookings:  httptransport.NewBookingHandler(bookingService, cfg.PublicBaseURL, logger),
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		Limiter:   httptransport.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Logger:    logger,
	})
}

func newNotifier(cfg config.Config, logger *slog.Logger) application.Notifier {
	if !cfg.SMTP.Enabled() {
		return notify.NewLogNotifier(logger)
	}
	server := notify.SMTPServer{
		HostPort: cfg.SMTP.Addr,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		Hello:    cfg.SMTP.Hello,
	}
	if cfg.SMTP.TLS {
		server.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return notify.NewSMTPMailer(server, cfg.SMTP.From, cfg.PublicBaseURL, logger)
}

func openStore(ctx context.Context, cfg config.Config) (persistence.Store, error) {
	var store persistence.Store
	switch cfg.Storage.Driver {
	case "sqlite":
		storage, err := sqlite.Open(sqlite.DefaultConfig(cfg.Storage.SQLiteDSN))
		if err != nil {
			return nil, err
		}
		store = storage
	default:
		store = memory.New()
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

func closeStore(store persistence.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("failed to close storage", logging.Err(err))
	}
}
