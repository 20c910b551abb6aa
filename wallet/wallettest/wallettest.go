// Package wallettest provides a scripted wallet.Client for tests.
package wallettest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/walletwatch/wallet"
)

// Step is one scripted action of a confidence stream. Exactly one of its
// fields is meaningful, checked in the order Event, Err, Delay.
type Step struct {
	Event *wallet.ConfEvent
	Err   error
	Delay time.Duration
}

// Event delivers ev.
func Event(ev wallet.ConfEvent) Step { return Step{Event: &ev} }

// Fail ends the stream with err.
func Fail(err error) Step { return Step{Err: err} }

// Sleep pauses the stream for d, or until it is cancelled.
func Sleep(d time.Duration) Step { return Step{Delay: d} }

// Script describes a stream. After the last step the stream either ends with
// io.EOF or, when Hold is set, stays open until cancelled.
type Script struct {
	Steps []Step
	Hold  bool
	// OpenErr makes RegisterConfidenceNtfn itself fail.
	OpenErr error
}

// Client is a scripted wallet.Client. The zero value has no UTXOs and every
// stream ends immediately.
type Client struct {
	Balance  wallet.Balance
	Address  wallet.AddressInfo
	UTXOs    []wallet.UTXO
	ListErr  error
	ProbeErr error
	Scripts  map[wallet.TxID]Script

	mu     sync.Mutex
	opened map[wallet.TxID]int

	active   atomic.Int32
	peak     atomic.Int32
	closes   atomic.Int32
	closedAt atomic.Int64
	closed   atomic.Bool
}

var _ wallet.Client = (*Client)(nil)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("wallettest: client closed")

func (c *Client) WalletBalance(ctx context.Context) (wallet.Balance, error) {
	if c.closed.Load() {
		return wallet.Balance{}, ErrClosed
	}
	if c.ProbeErr != nil {
		return wallet.Balance{}, c.ProbeErr
	}
	return c.Balance, ctx.Err()
}

func (c *Client) NewAddress(ctx context.Context) (wallet.AddressInfo, error) {
	if c.closed.Load() {
		return wallet.AddressInfo{}, ErrClosed
	}
	return c.Address, ctx.Err()
}

func (c *Client) ListUnspent(ctx context.Context) ([]wallet.UTXO, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	return append([]wallet.UTXO(nil), c.UTXOs...), ctx.Err()
}

func (c *Client) RegisterConfidenceNtfn(ctx context.Context, txid wallet.TxID) (wallet.ConfStream, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	script := c.Scripts[txid]
	if script.OpenErr != nil {
		return nil, script.OpenErr
	}

	c.mu.Lock()
	if c.opened == nil {
		c.opened = make(map[wallet.TxID]int)
	}
	c.opened[txid]++
	c.mu.Unlock()

	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	return &stream{ctx: sctx, cancel: cancel, script: script, owner: c}, nil
}

// Close marks the client released and records when.
func (c *Client) Close() error {
	c.closes.Add(1)
	c.closedAt.CompareAndSwap(0, time.Now().UnixNano())
	c.closed.Store(true)
	return nil
}

// Closes returns how many times Close was called.
func (c *Client) Closes() int { return int(c.closes.Load()) }

// ClosedAt returns the time of the first Close, or the zero time.
func (c *Client) ClosedAt() time.Time {
	if ns := c.closedAt.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// Opened returns how many streams were opened for txid.
func (c *Client) Opened(txid wallet.TxID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened[txid]
}

// Active returns the number of streams not yet closed.
func (c *Client) Active() int { return int(c.active.Load()) }

// PeakActive returns the highest number of simultaneously open streams.
func (c *Client) PeakActive() int { return int(c.peak.Load()) }

type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	script Script
	owner  *Client

	pos       int
	closeOnce sync.Once
}

func (s *stream) Recv() (wallet.ConfEvent, error) {
	for s.pos < len(s.script.Steps) {
		if err := s.ctx.Err(); err != nil {
			return wallet.ConfEvent{}, err
		}
		step := s.script.Steps[s.pos]
		s.pos++
		switch {
		case step.Event != nil:
			return *step.Event, nil
		case step.Err != nil:
			s.pos = len(s.script.Steps)
			s.script.Hold = false
			return wallet.ConfEvent{}, step.Err
		default:
			t := time.NewTimer(step.Delay)
			select {
			case <-t.C:
			case <-s.ctx.Done():
				t.Stop()
				return wallet.ConfEvent{}, s.ctx.Err()
			}
		}
	}
	if s.script.Hold {
		<-s.ctx.Done()
		return wallet.ConfEvent{}, s.ctx.Err()
	}
	return wallet.ConfEvent{}, io.EOF
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.owner.active.Add(-1)
	})
	return nil
}
