// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/chat"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/config"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/database"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/handler"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/logger"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/news"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/payment"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/remote"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/repository"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/service"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/session"
	"github.com/Shivanand-hulikatti/cielo-abierto/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx := context.Background()

	// ── 1. Local key-value store ──────────────────────────────────────────
	kv, closeKV, err := openKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("local store: %w", err)
	}
	defer closeKV()
	zlog.Info("local store ready", zap.String("kind", cfg.Local.Store))

	// ── 2. Backend selection ──────────────────────────────────────────────
	var (
		tables remote.TableClient
		auth   session.Authenticator
	)
	if cfg.RemoteEnabled() {
		pool, err := database.NewPool(ctx, database.DefaultConfig(cfg.Remote.DatabaseURL), zlog)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if cfg.Remote.AutoMigrate {
			if err := database.Migrate(ctx, pool, true, zlog); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		backend := repository.New(pool, repository.Options{
			JWTSecret:  cfg.Remote.JWTSecret,
			SessionTTL: cfg.Remote.SessionTTL,
			Logger:     zlog,
		})
		tables = backend
		auth = session.NewRemoteAuth(backend, cfg.Remote.SiteURL, cfg.Auth.Timeout, zlog)
		zlog.Info("✓ Connected to PostgreSQL, remote mode")
	} else {
		auth = session.NewLocalAuth(kv,
			session.WithAuthLatency(localstore.Latency(cfg.Local.Latency)),
			session.WithAuthLogger(zlog),
		)
		zlog.Info("no database configured, local mode")
	}

	st, err := store.Open(tables, kv, store.Options{
		Logger:  zlog,
		Latency: localstore.Latency(cfg.Local.Latency),
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	sessions := session.NewManager(auth, zlog)
	defer sessions.Close()
	restoreCtx, cancel := context.WithTimeout(ctx, cfg.Auth.Timeout)
	state := sessions.Restore(restoreCtx)
	cancel()
	zlog.Info("session restored", zap.String("status", string(state.Status)))

	// ── 3. Services ───────────────────────────────────────────────────────
	gateway := payment.NewSandboxGateway(payment.SandboxConfig{})
	assistant := chat.NewAssistant(st, generator(ctx, cfg.Chat, zlog), chat.WithLogger(zlog))

	h := handler.New(handler.Deps{
		Store:          st,
		Session:        sessions,
		Reservations:   service.NewReservations(st, sessions, gateway, zlog),
		Admin:          service.NewAdmin(st, sessions, zlog),
		Tickets:        service.NewTickets(st, sessions, nil),
		Chat:           assistant,
		News:           news.NewFeed(localstore.Latency(cfg.Local.Latency), nil),
		Logger:         zlog,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("✓ Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		zlog.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	zlog.Info("server stopped")
	return nil
}

func openKV(ctx context.Context, cfg *config.Config) (localstore.KV, func(), error) {
	noop := func() {}
	switch cfg.Local.Store {
	case config.StoreFile:
		f, err := localstore.NewFile(cfg.Local.Dir)
		return f, noop, err
	case config.StoreRedis:
		rc := localstore.DefaultRedisConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			rc.Prefix = cfg.Redis.Prefix
		}
		r, err := localstore.NewRedis(ctx, rc)
		if err != nil {
			return nil, noop, err
		}
		return r, closer(r), nil
	default:
		return localstore.NewMemory(), noop, nil
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// generator returns the Gemini client, or nil for the canned assistant.
func generator(ctx context.Context, cfg config.ChatConfig, zlog *zap.Logger) chat.Generator {
	if !chat.KeyConfigured(cfg.APIKey) {
		zlog.Info("no Gemini API key, assistant runs in simulation mode")
		return nil
	}
	g, err := chat.NewGemini(ctx, chat.GeminiConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		zlog.Warn("Gemini unavailable, assistant runs in simulation mode", zap.Error(err))
		return nil
	}
	return g
}
