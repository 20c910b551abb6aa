// Package relaytest holds a conformance suite for relay.Relay
// implementations.
package relaytest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/walletwatch/relay"
)

// Factory creates a fresh relay for one test. Topics should be unique per
// call when the backend is shared between tests.
type Factory func(t *testing.T) relay.Relay

// RunRelayTests runs the complete relay test suite against the provided factory.
func RunRelayTests(t *testing.T, factory Factory) {
	t.Run("PublishAndReceive", func(t *testing.T) {
		testPublishAndReceive(t, factory)
	})
	t.Run("OrderWithinTopic", func(t *testing.T) {
		testOrderWithinTopic(t, factory)
	})
	t.Run("MultipleSubscribers", func(t *testing.T) {
		testMultipleSubscribers(t, factory)
	})
	t.Run("TopicIsolation", func(t *testing.T) {
		testTopicIsolation(t, factory)
	})
	t.Run("NoHistory", func(t *testing.T) {
		testNoHistory(t, factory)
	})
	t.Run("NextHonoursContext", func(t *testing.T) {
		testNextHonoursContext(t, factory)
	})
	t.Run("StreamClose", func(t *testing.T) {
		testStreamClose(t, factory)
	})
	t.Run("RelayClose", func(t *testing.T) {
		testRelayClose(t, factory)
	})
}

func topic(t *testing.T, name string) string {
	return fmt.Sprintf("%s:%s:%d", t.Name(), name, time.Now().UnixNano())
}

func subscribe(t *testing.T, r relay.Relay, topic string) relay.Stream {
	t.Helper()
	s, err := r.Subscribe(t.Context(), topic)
	if err != nil {
		t.Fatalf("Failed to subscribe to %s: %v", topic, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func next(t *testing.T, s relay.Stream) relay.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	msg, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Failed to receive message: %v", err)
	}
	return msg
}

func expectNothing(t *testing.T, s relay.Stream) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	if msg, err := s.Next(ctx); err == nil {
		t.Fatalf("Expected no message, got %q on %s", msg.Data, msg.Topic)
	}
}

func testPublishAndReceive(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	tp := topic(t, "a")
	s := subscribe(t, r, tp)
	if err := r.Publish(t.Context(), tp, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	msg := next(t, s)
	if msg.Topic != tp || string(msg.Data) != `{"n":1}` {
		t.Fatalf("Unexpected message: %+v", msg)
	}
}

func testOrderWithinTopic(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	tp := topic(t, "a")
	s := subscribe(t, r, tp)
	for i := 0; i < 10; i++ {
		if err := r.Publish(t.Context(), tp, []byte(fmt.Sprint(i))); err != nil {
			t.Fatalf("Failed to publish %d: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		if got := string(next(t, s).Data); got != fmt.Sprint(i) {
			t.Fatalf("Expected message %d, got %s", i, got)
		}
	}
}

func testMultipleSubscribers(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	tp := topic(t, "a")
	s1 := subscribe(t, r, tp)
	s2 := subscribe(t, r, tp)
	if err := r.Publish(t.Context(), tp, []byte("x")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if string(next(t, s1).Data) != "x" || string(next(t, s2).Data) != "x" {
		t.Fatal("Both subscribers should receive the message")
	}
}

func testTopicIsolation(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	a, b := topic(t, "a"), topic(t, "b")
	sa := subscribe(t, r, a)
	sb := subscribe(t, r, b)
	if err := r.Publish(t.Context(), a, []byte("for-a")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	if string(next(t, sa).Data) != "for-a" {
		t.Fatal("Subscriber of a missed its message")
	}
	expectNothing(t, sb)
}

func testNoHistory(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	tp := topic(t, "a")
	if err := r.Publish(t.Context(), tp, []byte("early")); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	s := subscribe(t, r, tp)
	expectNothing(t, s)
}

func testNextHonoursContext(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	s := subscribe(t, r, topic(t, "a"))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func testStreamClose(t *testing.T, factory Factory) {
	r := factory(t)
	defer r.Close()

	tp := topic(t, "a")
	s, err := r.Subscribe(t.Context(), tp)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close stream: %v", err)
	}
	if _, err := s.Next(t.Context()); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("Expected ErrClosed after Close, got %v", err)
	}
	if err := r.Publish(t.Context(), tp, []byte("x")); err != nil {
		t.Fatalf("Publishing without subscribers should succeed: %v", err)
	}
}

func testRelayClose(t *testing.T, factory Factory) {
	r := factory(t)

	s, err := r.Subscribe(t.Context(), topic(t, "a"))
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Failed to close relay: %v", err)
	}
	if _, err := s.Next(t.Context()); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("Expected ErrClosed from stream after relay close, got %v", err)
	}
	if err := r.Publish(t.Context(), "anything", nil); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("Expected ErrClosed from Publish after close, got %v", err)
	}
	if _, err := r.Subscribe(t.Context(), "anything"); !errors.Is(err, relay.ErrClosed) {
		t.Fatalf("Expected ErrClosed from Subscribe after close, got %v", err)
	}
}
