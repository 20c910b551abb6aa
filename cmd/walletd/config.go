package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config for walletd. Defaults are provided via struct tags.
type Config struct {
	Listen        string        `env:"WALLETD_LISTEN,default=127.0.0.1:50051"`
	TokenSecret   string        `env:"WALLETD_TOKEN_SECRET"`
	BlockInterval time.Duration `env:"WALLETD_BLOCK_INTERVAL,default=10s"`
	SeedTxs       int           `env:"WALLETD_SEED_TXS,default=3"`
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
	LogFormat     string        `env:"LOG_FORMAT,default=text"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BlockInterval < 0 {
		return fmt.Errorf("block interval must not be negative, got %s", c.BlockInterval)
	}
	if c.SeedTxs < 0 {
		return fmt.Errorf("seed txs must not be negative, got %d", c.SeedTxs)
	}
	return nil
}

func (c Config) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return l
}
