package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/wheel-bot/internal/analysis"
	"github.com/xaenox/wheel-bot/internal/bot"
	"github.com/xaenox/wheel-bot/internal/chart"
	"github.com/xaenox/wheel-bot/internal/metrics"
	"github.com/xaenox/wheel-bot/internal/storage"
	"github.com/xaenox/wheel-bot/internal/wheel"
	"github.com/xaenox/wheel-bot/pkg/config"
	applog "github.com/xaenox/wheel-bot/pkg/logger"
)

const configPath = "config.yaml"

func main() {
	// Used until the configured logger exists
	bootstrap, _ := zap.NewProduction()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}

	logger, err := applog.New(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		bootstrap.Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	charts, err := chart.NewRenderer(cfg.Charts.Dir, cfg.Charts.FontPath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize chart renderer", zap.Error(err))
	}

	chain, err := analysis.FromConfig(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to initialize analysis", zap.Error(err))
	}

	sessionStore, closeSessions, err := newSessionStore(ctx, cfg.Sessions, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer closeSessions()

	service := wheel.NewService(store, charts, charts.WithStyle(chart.StyleLegacy), chain, logger)
	sessions := wheel.NewSessions(sessionStore, logger)

	b, err := bot.New(cfg.Telegram.Token, service, sessions, store, cfg.Telegram, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Start(gctx)
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, logger)
		})
	}

	logger.Info("Bot started")
	if err := g.Wait(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}

func newSessionStore(ctx context.Context, cfg config.SessionsConfig, logger *zap.Logger) (wheel.SessionStore, func(), error) {
	if cfg.Backend != "redis" {
		logger.Info("Using in-memory sessions", zap.Duration("ttl", cfg.TTL))
		return wheel.NewMemorySessionStore(cfg.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("Using redis sessions", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.TTL))
	return wheel.NewRedisSessionStore(client, cfg.TTL), func() { client.Close() }, nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
