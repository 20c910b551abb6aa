// Package redis provides a relay.Relay on top of Redis PUBLISH/SUBSCRIBE.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ggoodman/walletwatch/relay"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Relay implements relay.Relay with Redis pub/sub channels. Topics are
// prefixed with KeyPrefix on the wire.
type Relay struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool

	mu      sync.Mutex
	streams map[*stream]struct{}
	closed  bool
}

// Config contains configuration options for the Redis relay.
type Config struct {
	// Client is the Redis client to use. If nil, a client for Addr is created
	// and closed together with the relay.
	Client redis.UniversalClient
	// Addr is used when Client is nil.
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix is prepended to every channel name.
	KeyPrefix string `env:"RELAY_PREFIX,default=walletwatch:conf:"`
}

// NewFromEnv builds a relay from REDIS_ADDR and RELAY_PREFIX.
func NewFromEnv() (*Relay, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode redis relay config: %w", err)
	}
	return New(cfg), nil
}

// New creates a relay.
func New(cfg Config) *Relay {
	r := &Relay{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		streams:   make(map[*stream]struct{}),
	}
	if r.client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		r.client = redis.NewClient(&redis.Options{Addr: addr})
		r.ownClient = true
	}
	return r
}

// Ping checks that the server is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish implements relay.Relay.Publish.
func (r *Relay) Publish(ctx context.Context, topic string, data []byte) error {
	if r.isClosed() {
		return relay.ErrClosed
	}
	channel := r.keyPrefix + topic
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements relay.Relay.Subscribe. It waits for the server to
// confirm the subscription before returning.
func (r *Relay) Subscribe(ctx context.Context, topic string) (relay.Stream, error) {
	if r.isClosed() {
		return nil, relay.ErrClosed
	}
	channel := r.keyPrefix + topic
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	s := &stream{relay: r, ps: ps, done: make(chan struct{})}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ps.Close()
		return nil, relay.ErrClosed
	}
	r.streams[s] = struct{}{}
	r.mu.Unlock()
	return s, nil
}

// Close ends every stream and, if the relay created its own client, closes it.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	streams := r.streams
	r.streams = nil
	r.mu.Unlock()

	for s := range streams {
		_ = s.shutdown()
	}
	if r.ownClient {
		return r.client.Close()
	}
	return nil
}

func (r *Relay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type stream struct {
	relay *Relay
	ps    *redis.PubSub

	once sync.Once
	done chan struct{}
	err  error
}

func (s *stream) Next(ctx context.Context) (relay.Message, error) {
	select {
	case <-s.done:
		return relay.Message{}, relay.ErrClosed
	default:
	}

	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		select {
		case <-s.done:
			return relay.Message{}, relay.ErrClosed
		default:
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return relay.Message{}, ctxErr
		}
		if errors.Is(err, redis.ErrClosed) {
			return relay.Message{}, relay.ErrClosed
		}
		return relay.Message{}, fmt.Errorf("failed to receive: %w", err)
	}
	return relay.Message{
		Topic: strings.TrimPrefix(msg.Channel, s.relay.keyPrefix),
		Data:  []byte(msg.Payload),
	}, nil
}

func (s *stream) Close() error {
	s.relay.mu.Lock()
	delete(s.relay.streams, s)
	s.relay.mu.Unlock()
	return s.shutdown()
}

func (s *stream) shutdown() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}

var (
	_ relay.Relay  = (*Relay)(nil)
	_ relay.Stream = (*stream)(nil)
)
