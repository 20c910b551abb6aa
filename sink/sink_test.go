package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ggoodman/walletwatch/relay/memory"
	"github.com/ggoodman/walletwatch/wallet"
)

var utxo = wallet.UTXO{OutPoint: wallet.OutPoint{TxID: wallet.TxID{0xab}, Vout: 1}, Value: 4200}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	s := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Level: slog.LevelInfo}

	ev := wallet.ConfEvent{
		ConfidenceType:   wallet.ConfidenceConfirmed,
		NumConfirmations: 3,
		BlockTime:        &wallet.ConfirmationBlockTime{BlockHeight: 101},
	}
	if err := s.HandleEvent(t.Context(), utxo, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"outpoint=" + utxo.OutPoint.String(), "confidence=CONFIRMED", "confirmations=3", "block_height=101"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
}

func TestMulti_CallsEverySinkAndJoinsErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	var calls int
	count := func(err error) Sink {
		return Func(func(context.Context, wallet.UTXO, wallet.ConfEvent) error {
			calls++
			return err
		})
	}
	err := Multi{count(errA), count(nil), count(errB)}.HandleEvent(t.Context(), utxo, wallet.ConfEvent{})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestRelay_PublishesJSONToOutpointTopic(t *testing.T) {
	r := memory.New()
	defer r.Close()

	sub, err := r.Subscribe(t.Context(), Topic(utxo.OutPoint))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ev := wallet.ConfEvent{ConfidenceType: wallet.ConfidenceUnconfirmed, RawTx: []byte{1, 2}}
	if err := (Relay{Relay: r}).HandleEvent(t.Context(), utxo, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	msg, err := sub.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	var p Payload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.OutPoint != utxo.OutPoint || p.Value != 4200 || p.Event.ConfidenceType != wallet.ConfidenceUnconfirmed {
		t.Fatalf("payload = %+v", p)
	}
}

func TestRelay_ClosedRelayFails(t *testing.T) {
	r := memory.New()
	r.Close()
	if err := (Relay{Relay: r}).HandleEvent(t.Context(), utxo, wallet.ConfEvent{}); err == nil {
		t.Fatal("expected error from closed relay")
	}
}
