// Package relay forwards confidence events to other processes over a
// publish/subscribe bus. Delivery is fire-and-forget: subscribers only see
// messages published after they subscribed, and nothing is stored.
package relay

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed Relay or Stream.
var ErrClosed = errors.New("relay: closed")

// Relay publishes messages to topics and subscribes to them.
type Relay interface {
	// Publish sends data to every current subscriber of topic.
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe starts receiving messages published to topic. The
	// subscription is active when Subscribe returns.
	Subscribe(ctx context.Context, topic string) (Stream, error)

	// Close releases the relay and ends every open Stream.
	Close() error
}

// Stream delivers messages of one subscription in publish order.
type Stream interface {
	// Next blocks until a message arrives or ctx is cancelled. It returns
	// ErrClosed once the stream or its relay has been closed.
	Next(ctx context.Context) (Message, error)

	Close() error
}

// Message is one published payload.
type Message struct {
	Topic string `json:"topic"`
	Data  []byte `json:"data"`
}
