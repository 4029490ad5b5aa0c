package storage

import (
	"errors"
	"log/slog"
	"time"

	"walletbot/internal/application"
	"walletbot/internal/infrastructure/mysql"
	"walletbot/internal/infrastructure/sqlite"
)

type Config struct {
	// DSN selects the shared mysql journal; empty falls back to SQLitePath.
	DSN        string
	SQLitePath string
	RedisAddr  string
	CacheTTL   time.Duration
}

// Open selects the journal backend from configuration.
func Open(cfg Config) (application.Journal, error) {
	if cfg.DSN != "" {
		base, err := mysql.NewRepository(cfg.DSN)
		if err != nil {
			return nil, err
		}
		cached, err := mysql.NewCachedRepository(base, mysql.CacheConfig{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL})
		if err != nil {
			_ = base.Close()
			return nil, err
		}
		slog.Info("journal opened", "backend", "mysql", "cache", cfg.RedisAddr != "")
		return cached, nil
	}
	if cfg.SQLitePath == "" {
		return nil, errors.New("journal requires DB_DSN or SQLITE_PATH")
	}
	repo, err := sqlite.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	slog.Info("journal opened", "backend", "sqlite", "path", cfg.SQLitePath)
	return repo, nil
}
