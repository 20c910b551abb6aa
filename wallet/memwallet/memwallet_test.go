package memwallet

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ggoodman/walletwatch/wallet"
)

func recv(t *testing.T, s wallet.ConfStream) wallet.ConfEvent {
	t.Helper()
	type result struct {
		ev  wallet.ConfEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := s.Recv()
		ch <- result{ev, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("recv: %v", r.err)
		}
		return r.ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for confidence event")
		return wallet.ConfEvent{}
	}
}

func TestWallet_ConfirmationsCount(t *testing.T) {
	w := New(WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	defer w.Close()

	id, err := w.AddTransaction(Output{Value: 50_000}, Output{Value: 7_000})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s, err := w.ObserveConfidence(t.Context(), id)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer s.Close()

	ev := recv(t, s)
	if ev.ConfidenceType != wallet.ConfidenceUnconfirmed || ev.BlockTime != nil || len(ev.RawTx) == 0 {
		t.Fatalf("initial event = %+v", ev)
	}

	for want := uint32(1); want <= 3; want++ {
		if _, err := w.MineBlock(); err != nil {
			t.Fatalf("mine: %v", err)
		}
		ev = recv(t, s)
		if ev.ConfidenceType != wallet.ConfidenceConfirmed || ev.NumConfirmations != want {
			t.Fatalf("after %d blocks: %+v", want, ev)
		}
		if ev.BlockTime == nil || ev.BlockTime.BlockHeight != 1 || ev.BlockTime.ConfirmationTime != 1700000000 {
			t.Fatalf("block time = %+v", ev.BlockTime)
		}
	}
}

func TestWallet_UnknownTxIsMissing(t *testing.T) {
	w := New()
	defer w.Close()

	s, _ := w.ObserveConfidence(t.Context(), wallet.TxID{1})
	defer s.Close()
	if ev := recv(t, s); ev.ConfidenceType != wallet.ConfidenceMissing {
		t.Fatalf("got %+v", ev)
	}
}

func TestWallet_CloseEndsStreams(t *testing.T) {
	w := New()
	id, _ := w.AddTransaction(Output{Value: 1})
	s, _ := w.ObserveConfidence(t.Context(), id)
	recv(t, s)

	w.Close()
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after close, got %v", err)
	}
	if _, err := w.Balance(t.Context()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWallet_StreamHonoursContext(t *testing.T) {
	w := New()
	defer w.Close()
	id, _ := w.AddTransaction(Output{Value: 1})

	ctx, cancel := context.WithCancel(t.Context())
	s, _ := w.ObserveConfidence(ctx, id)
	recv(t, s)
	cancel()
	if _, err := s.Recv(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWallet_BalanceAndUnspent(t *testing.T) {
	w := New()
	defer w.Close()

	a, _ := w.AddTransaction(Output{Value: 100}, Output{Value: 200})
	w.MineBlock()
	w.AddTransaction(Output{Value: 40})

	b, err := w.Balance(t.Context())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Confirmed != 300 || b.TrustedPending != 40 || b.Total() != 340 {
		t.Fatalf("balance = %+v", b)
	}

	utxos, err := w.ListUnspent(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utxos) != 3 {
		t.Fatalf("got %d utxos", len(utxos))
	}
	var seen int
	for _, u := range utxos {
		if u.TxID == a {
			seen++
		}
	}
	if seen != 2 {
		t.Fatalf("expected both outputs of %s, saw %d", a, seen)
	}
}

func TestWallet_RevealNextAddress(t *testing.T) {
	w := New()
	defer w.Close()

	first, _ := w.RevealNextAddress(t.Context())
	second, _ := w.RevealNextAddress(t.Context())
	if first.DerivationPath != "m/86'/1'/0'/0/0" || second.DerivationPath != "m/86'/1'/0'/0/1" {
		t.Fatalf("paths = %q, %q", first.DerivationPath, second.DerivationPath)
	}
	if first.Address == second.Address {
		t.Fatal("addresses should differ")
	}
}

func TestWallet_ObserversTrackOpenStreams(t *testing.T) {
	w := New()
	defer w.Close()
	id, _ := w.AddTransaction(Output{Value: 1})

	a, _ := w.ObserveConfidence(t.Context(), id)
	b, _ := w.ObserveConfidence(t.Context(), id)
	if n := w.Observers(id); n != 2 {
		t.Fatalf("observers = %d, want 2", n)
	}
	a.Close()
	if n := w.Observers(id); n != 1 {
		t.Fatalf("observers after close = %d, want 1", n)
	}
	b.Close()
	if n := w.Observers(id); n != 0 {
		t.Fatalf("observers after both closed = %d, want 0", n)
	}
	if n := w.Observers(wallet.TxID{0xff}); n != 0 {
		t.Fatalf("observers of unknown tx = %d", n)
	}
}
