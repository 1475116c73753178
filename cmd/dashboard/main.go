package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/internal/dashboard"
	"github.com/xaenox/wheel-bot/internal/storage"
	"github.com/xaenox/wheel-bot/pkg/config"
	applog "github.com/xaenox/wheel-bot/pkg/logger"
)

const configPath = "config.yaml"

func main() {
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

	if cfg.Log.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	srv := dashboard.NewServer(store, cfg.Dashboard.Port, cfg.Dashboard.AllowOrigins, logger)
	if err := srv.Run(ctx, fmt.Sprintf(":%d", cfg.Dashboard.Port)); err != nil {
		logger.Fatal("Dashboard error", zap.Error(err))
	}
}
