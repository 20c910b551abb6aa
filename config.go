package walletwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// DefaultAddr is where the wallet daemon listens by default.
const DefaultAddr = "127.0.0.1:50051"

// Config holds everything a watch run can be configured with. Defaults are
// provided via struct tags.
type Config struct {
	Addr           string        `env:"WALLET_ADDR,default=127.0.0.1:50051"`
	Token          string        `env:"WALLET_TOKEN"`
	ConnectTimeout time.Duration `env:"WATCH_CONNECT_TIMEOUT,default=5s"`
	Deadline       time.Duration `env:"WATCH_DEADLINE,default=5s"`
	Hold           time.Duration `env:"WATCH_HOLD,default=5s"`
	Grace          time.Duration `env:"WATCH_GRACE,default=2s"`
	Probe          bool          `env:"WATCH_PROBE,default=false"`

	RedisAddr   string `env:"REDIS_ADDR"`
	RelayPrefix string `env:"RELAY_PREFIX,default=walletwatch:conf:"`
	MetricsAddr string `env:"METRICS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// NewConfigFromEnv loads a Config from the environment. Values that do not
// parse are errors rather than zero values.
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot bound a run. A watch always has
// a deadline; the hold and grace period may be zero.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.Deadline <= 0 {
		errs = append(errs, fmt.Errorf("deadline must be positive, got %s", c.Deadline))
	}
	if c.Hold < 0 {
		errs = append(errs, fmt.Errorf("hold must not be negative, got %s", c.Hold))
	}
	if c.Grace < 0 {
		errs = append(errs, fmt.Errorf("grace period must not be negative, got %s", c.Grace))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Options translates the config into watcher options.
func (c Config) Options() []Option {
	return []Option{
		WithToken(c.Token),
		WithConnectTimeout(c.ConnectTimeout),
		WithDeadline(c.Deadline),
		WithHold(c.Hold),
		WithGracePeriod(c.Grace),
		WithPostHoldProbe(c.Probe),
	}
}
