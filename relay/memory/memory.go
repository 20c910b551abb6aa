// Package memory provides an in-process relay.Relay. It is suitable for
// single-process deployments and tests.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/walletwatch/relay"
)

// DefaultBuffer is the number of undelivered messages a subscriber can hold.
// Messages published to a full subscriber are dropped for that subscriber.
const DefaultBuffer = 128

// Relay implements relay.Relay with channels.
type Relay struct {
	mu     sync.Mutex
	topics map[string]map[*subscription]struct{}
	closed bool
	buffer int
}

// New creates an empty relay.
func New() *Relay {
	return &Relay{
		topics: make(map[string]map[*subscription]struct{}),
		buffer: DefaultBuffer,
	}
}

type subscription struct {
	relay  *Relay
	topic  string
	ch     chan relay.Message
	done   chan struct{}
	closed atomic.Bool
}

// Publish implements relay.Relay.Publish.
func (r *Relay) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := relay.Message{Topic: topic, Data: append([]byte(nil), data...)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return relay.ErrClosed
	}
	for sub := range r.topics[topic] {
		select {
		case sub.ch <- msg:
		default:
			// Subscriber is full; drop for this subscriber only.
		}
	}
	return nil
}

// Subscribe implements relay.Relay.Subscribe.
func (r *Relay) Subscribe(ctx context.Context, topic string) (relay.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, relay.ErrClosed
	}
	sub := &subscription{
		relay: r,
		topic: topic,
		ch:    make(chan relay.Message, r.buffer),
		done:  make(chan struct{}),
	}
	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		r.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// Close implements relay.Relay.Close.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for _, subs := range r.topics {
		for sub := range subs {
			sub.shutdown()
		}
	}
	r.topics = nil
	return nil
}

func (s *subscription) Next(ctx context.Context) (relay.Message, error) {
	// Drain what was delivered before a close.
	select {
	case msg := <-s.ch:
		return msg, nil
	default:
	}
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return relay.Message{}, relay.ErrClosed
	case <-ctx.Done():
		return relay.Message{}, ctx.Err()
	}
}

func (s *subscription) Close() error {
	s.relay.mu.Lock()
	if subs, ok := s.relay.topics[s.topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.relay.topics, s.topic)
		}
	}
	s.relay.mu.Unlock()
	s.shutdown()
	return nil
}

func (s *subscription) shutdown() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
}

var (
	_ relay.Relay  = (*Relay)(nil)
	_ relay.Stream = (*subscription)(nil)
)
