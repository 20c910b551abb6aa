package walletwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/ggoodman/walletwatch/auth"
	"github.com/ggoodman/walletwatch/fanout"
	"github.com/ggoodman/walletwatch/sink"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/ggoodman/walletwatch/walletrpc"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultDeadline       = 5 * time.Second
	DefaultHold           = 5 * time.Second
)

// Conn is a wallet connection owned by a run. Close releases it.
type Conn interface {
	wallet.Client
	Close() error
}

// DialFunc opens a Conn to addr. ctx bounds connection establishment only.
type DialFunc func(ctx context.Context, addr string) (Conn, error)

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithToken authenticates every RPC with a bearer token. An empty token
// disables authentication.
func WithToken(tok string) Option {
	return func(w *Watcher) {
		w.token = tok
	}
}

// WithConnectTimeout bounds connection establishment.
func WithConnectTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.connectTimeout = d
		}
	}
}

// WithDeadline sets the single deadline shared by every stream of a run. A
// value <= 0 leaves streams bounded only by the run context.
func WithDeadline(d time.Duration) Option {
	return func(w *Watcher) {
		w.deadline = d
	}
}

// WithHold sets how long the connection is kept open after the fan-out
// finishes. The hold is not cancellable. Zero disables it.
func WithHold(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.hold = d
		}
	}
}

// WithGracePeriod sets how long after the deadline the watcher waits before
// logging streams that have not yet stopped.
func WithGracePeriod(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.grace = d
		}
	}
}

// WithSink sets where consumed events go. Several calls are combined.
func WithSink(s sink.Sink) Option {
	return func(w *Watcher) {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
}

// WithObserver attaches a fan-out observer, such as a metrics collector.
func WithObserver(o fanout.Observer) Option {
	return func(w *Watcher) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithPostHoldProbe makes the run issue one WalletBalance call after the hold
// and record whether the connection was still usable.
func WithPostHoldProbe(enabled bool) Option {
	return func(w *Watcher) {
		w.probe = enabled
	}
}

// WithDialer replaces how the connection is opened.
func WithDialer(d DialFunc) Option {
	return func(w *Watcher) {
		if d != nil {
			w.dial = d
		}
	}
}

// WithSleep replaces the function used for the hold.
func WithSleep(sleep func(time.Duration)) Option {
	return func(w *Watcher) {
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

func (w *Watcher) defaultDial(ctx context.Context, addr string) (Conn, error) {
	opts := []walletrpc.Option{walletrpc.WithLogger(w.log)}
	if w.token != "" {
		opts = append(opts, walletrpc.WithCredentials(auth.BearerToken(w.token)))
	}
	return walletrpc.Dial(ctx, addr, opts...)
}
