// Package observable provides values and keyed maps whose changes can be
// followed through streams.
//
// Every stream starts with the current value and afterwards receives a value
// only when it actually changes (replacing a value with an equal one emits
// nothing). Streams are unbounded queues: producers never block on slow
// observers. Observers that call Close are purged lazily on the next mutation.
package observable

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Stream.Next after the observer closed the stream.
var ErrClosed = errors.New("observable: stream closed")

// Stream is one observer's view of an observable value.
type Stream[T any] struct {
	mu       sync.Mutex
	queue    []T
	ready    chan struct{}
	finished bool
	detached bool
}

func newStream[T any]() *Stream[T] {
	return &Stream[T]{ready: make(chan struct{}, 1)}
}

// Next blocks until a value is available. It returns io.EOF once the owning
// observable has been closed and all queued values were consumed.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.detached {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.finished {
			s.mu.Unlock()
			return zero, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the observer. Pending values are dropped.
func (s *Stream[T]) Close() error {
	s.mu.Lock()
	s.detached = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *Stream[T]) push(v T) bool {
	s.mu.Lock()
	if s.detached || s.finished {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Stream[T]) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *Stream[T]) isDetached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *Stream[T]) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// cell is the unlocked core shared by Value and Map.
type cell[T comparable] struct {
	value     T
	observers []*Stream[T]
}

func (c *cell[T]) observe() *Stream[T] {
	s := newStream[T]()
	s.push(c.value)
	c.observers = append(c.observers, s)
	return s
}

func (c *cell[T]) replace(v T) T {
	old := c.value
	c.value = v
	if old == v {
		c.purge()
		return old
	}
	live := c.observers[:0]
	for _, s := range c.observers {
		if s.push(v) {
			live = append(live, s)
		}
	}
	clear(c.observers[len(live):])
	c.observers = live
	return old
}

// purge drops detached observers and reports how many remain.
func (c *cell[T]) purge() int {
	live := c.observers[:0]
	for _, s := range c.observers {
		if !s.isDetached() {
			live = append(live, s)
		}
	}
	clear(c.observers[len(live):])
	c.observers = live
	return len(live)
}

func (c *cell[T]) close() {
	for _, s := range c.observers {
		s.finish()
	}
	c.observers = nil
}

// Value is a single observable value.
type Value[T comparable] struct {
	mu     sync.Mutex
	c      cell[T]
	closed bool
}

// NewValue returns a Value holding v.
func NewValue[T comparable](v T) *Value[T] {
	return &Value[T]{c: cell[T]{value: v}}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.c.value
}

// Observe returns a stream whose first item is the current value. Observing a
// closed Value yields a stream that ends after that first item.
func (v *Value[T]) Observe() *Stream[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		s := newStream[T]()
		s.push(v.c.value)
		s.finish()
		return s
	}
	return v.c.observe()
}

// Replace stores nv and returns the previous value. Observers are notified
// only when nv differs from the previous value.
func (v *Value[T]) Replace(nv T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.c.replace(nv)
}

// Observers reports the number of attached observers after purging detached ones.
func (v *Value[T]) Observers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.c.purge()
}

// Close ends every attached stream.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.c.close()
}
