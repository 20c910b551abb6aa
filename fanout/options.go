package fanout

import (
	"log/slog"
	"time"
)

// DefaultGracePeriod is how long Run waits after the deadline before it
// reports consumers that have not yet acknowledged cancellation.
const DefaultGracePeriod = 2 * time.Second

// Observer is notified as consumers start and finish. Calls arrive from the
// consumer goroutines and must be safe for concurrent use.
type Observer interface {
	Started(key string)
	Finished(key string, o Outcome)
}

// Option customizes a Run.
type Option func(*config)

type config struct {
	log      *slog.Logger
	grace    time.Duration
	observer Observer
}

func defaultConfig() config {
	return config{
		log:   slog.New(slog.DiscardHandler),
		grace: DefaultGracePeriod,
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithGracePeriod sets how long after the deadline Run waits before logging
// the keys of consumers that are still running. Run keeps waiting for them
// afterwards; the grace period only affects reporting.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}
