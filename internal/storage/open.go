package storage

import (
	"go.uber.org/zap"

	"github.com/xaenox/wheel-bot/pkg/config"
)

// Open picks the store named by cfg.Driver. SQL stores apply the schema
// while opening.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (Storage, error) {
	if cfg.Driver == "memory" {
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	}

	logger.Info("Using SQL storage", zap.String("driver", cfg.Driver))
	return NewSQLStorage(DatabaseConfig{
		Driver:   cfg.Driver,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Path:     cfg.Path,
	}, logger)
}
