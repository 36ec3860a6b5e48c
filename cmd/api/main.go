package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"letters/api/internal/app"
	"letters/api/internal/config"
	"letters/api/internal/docsync"
	"letters/api/internal/gdocs"
	"letters/api/internal/lock"
	"letters/api/internal/logging"
	"letters/api/internal/memdocs"
	"letters/api/internal/oauth"
	"letters/api/internal/session"
	"letters/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	ctx := context.Background()

	deps := app.Dependencies{Logger: logger}

	var pgStore *store.PostgresStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "database connection failed", err)
		}
		defer db.Close()
		applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
		if err != nil {
			fatal(logger, "migrations failed", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "versions", applied)
		}
		pgStore = store.NewPostgresStore(db)
	}

	var redisStore *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		redisStore, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis connection failed", err)
		}
		defer redisStore.Close()
	}

	// Credentials prefer Redis for its key expiry; drafts prefer Postgres
	// because they never expire.
	memStore := session.NewMemoryStore()
	switch {
	case redisStore != nil:
		deps.Credentials = redisStore
		logger.Info("session credentials in redis")
	case pgStore != nil:
		deps.Credentials = pgStore
		logger.Info("session credentials in postgres")
	default:
		deps.Credentials = memStore
		logger.Warn("session credentials in memory; sessions end on restart")
	}
	switch {
	case pgStore != nil:
		deps.Drafts = pgStore
	case redisStore != nil:
		deps.Drafts = redisStore
	default:
		deps.Drafts = memStore
	}

	if redisStore != nil {
		deps.Saves = lock.NewRedis(redisStore.Client(), cfg.SaveLockTTL)
	} else {
		deps.Saves = lock.NewMemory()
	}

	provider, login, err := newProvider(cfg)
	if err != nil {
		fatal(logger, "document provider unavailable", err)
	}
	deps.Provider = provider
	deps.Login = login
	logger.Info("document provider ready", "provider", cfg.Provider)

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigins, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("letters API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newProvider(cfg config.Config) (docsync.Provider, oauth.Provider, error) {
	switch cfg.Provider {
	case config.ProviderMemory:
		return memdocs.New(), oauth.Local{RedirectURL: cfg.GoogleRedirectURL}, nil
	case config.ProviderGoogle:
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, nil, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
		}
		login := oauth.NewGoogle(oauth.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		return gdocs.New(login.OAuth2Config(), gdocs.Endpoints{}), login, nil
	default:
		return nil, nil, errors.New("unknown LETTERS_PROVIDER " + cfg.Provider)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
