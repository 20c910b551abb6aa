// Package sink defines where consumed confidence events go.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ggoodman/walletwatch/relay"
	"github.com/ggoodman/walletwatch/wallet"
)

// Sink receives every event a stream consumer reads. HandleEvent is called
// concurrently from many consumers, but sequentially for one UTXO.
type Sink interface {
	HandleEvent(ctx context.Context, utxo wallet.UTXO, ev wallet.ConfEvent) error
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, utxo wallet.UTXO, ev wallet.ConfEvent) error

func (f Func) HandleEvent(ctx context.Context, utxo wallet.UTXO, ev wallet.ConfEvent) error {
	return f(ctx, utxo, ev)
}

// Discard drops every event.
var Discard Sink = Func(func(context.Context, wallet.UTXO, wallet.ConfEvent) error { return nil })

// Log writes one record per event.
type Log struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (l Log) HandleEvent(ctx context.Context, utxo wallet.UTXO, ev wallet.ConfEvent) error {
	attrs := []slog.Attr{
		slog.String("outpoint", utxo.OutPoint.String()),
		slog.String("confidence", ev.ConfidenceType.String()),
		slog.Uint64("confirmations", uint64(ev.NumConfirmations)),
	}
	if ev.BlockTime != nil {
		attrs = append(attrs, slog.Uint64("block_height", uint64(ev.BlockTime.BlockHeight)))
	}
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.LogAttrs(ctx, l.Level, "confidence event", attrs...)
	return nil
}

// Multi fans an event out to several sinks. Every sink is called even when an
// earlier one fails; the errors are joined.
type Multi []Sink

func (m Multi) HandleEvent(ctx context.Context, utxo wallet.UTXO, ev wallet.ConfEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.HandleEvent(ctx, utxo, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Relay publishes each event as JSON to the topic named by the UTXO's
// outpoint.
type Relay struct {
	Relay relay.Relay
}

// Payload is the JSON document published by Relay.
type Payload struct {
	OutPoint wallet.OutPoint  `json:"outpoint"`
	Value    uint64           `json:"value"`
	Event    wallet.ConfEvent `json:"event"`
}

// Topic returns the relay topic for outpoint.
func Topic(op wallet.OutPoint) string { return op.String() }

func (r Relay) HandleEvent(ctx context.Context, utxo wallet.UTXO, ev wallet.ConfEvent) error {
	data, err := json.Marshal(Payload{OutPoint: utxo.OutPoint, Value: utxo.Value, Event: ev})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.Relay.Publish(ctx, Topic(utxo.OutPoint), data); err != nil {
		return fmt.Errorf("failed to relay event for %s: %w", utxo.OutPoint, err)
	}
	return nil
}
