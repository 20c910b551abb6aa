package walletrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ggoodman/walletwatch/wallet"
	"github.com/ggoodman/walletwatch/wallet/memwallet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, svc wallet.Service) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewServer(svc).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "passthrough:///bufnet", WithDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_UnaryCalls(t *testing.T) {
	w := memwallet.New()
	defer w.Close()
	id, _ := w.AddTransaction(memwallet.Output{Value: 1000, ScriptPubKey: []byte{0x51, 0x20}}, memwallet.Output{Value: 2000})
	w.MineBlock()
	w.AddTransaction(memwallet.Output{Value: 5})

	c := dial(t, startServer(t, w))

	b, err := c.WalletBalance(t.Context())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Confirmed != 3000 || b.TrustedPending != 5 {
		t.Fatalf("balance = %+v", b)
	}

	addr, err := c.NewAddress(t.Context())
	if err != nil || addr.DerivationPath != "m/86'/1'/0'/0/0" {
		t.Fatalf("new address = %+v, %v", addr, err)
	}

	utxos, err := c.ListUnspent(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utxos) != 3 {
		t.Fatalf("got %d utxos", len(utxos))
	}
	var found bool
	for _, u := range utxos {
		if u.OutPoint == (wallet.OutPoint{TxID: id, Vout: 0}) {
			found = true
			if u.Value != 1000 || len(u.ScriptPubKey) != 2 {
				t.Fatalf("utxo did not survive the wire: %+v", u)
			}
		}
	}
	if !found {
		t.Fatalf("outpoint %s:0 missing from %v", id, utxos)
	}
}

func TestClient_EmptyListIsValid(t *testing.T) {
	w := memwallet.New()
	defer w.Close()
	c := dial(t, startServer(t, w))

	utxos, err := c.ListUnspent(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected none, got %v", utxos)
	}
}

func TestClient_ConfidenceStream(t *testing.T) {
	w := memwallet.New()
	id, _ := w.AddTransaction(memwallet.Output{Value: 1})
	c := dial(t, startServer(t, w))

	s, err := c.RegisterConfidenceNtfn(t.Context(), id)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer s.Close()

	ev, err := s.Recv()
	if err != nil || ev.ConfidenceType != wallet.ConfidenceUnconfirmed {
		t.Fatalf("first = %+v, %v", ev, err)
	}

	w.MineBlock()
	ev, err = s.Recv()
	if err != nil || ev.ConfidenceType != wallet.ConfidenceConfirmed || ev.NumConfirmations != 1 || ev.BlockTime == nil {
		t.Fatalf("second = %+v, %v", ev, err)
	}

	w.Close()
	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF once the wallet closes, got %v", err)
	}
}

func TestClient_StreamCancellationIsContextError(t *testing.T) {
	w := memwallet.New()
	defer w.Close()
	c := dial(t, startServer(t, w))

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	s, err := c.RegisterConfidenceNtfn(ctx, wallet.TxID{9})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ev, err := s.Recv(); err != nil || ev.ConfidenceType != wallet.ConfidenceMissing {
		t.Fatalf("first = %+v, %v", ev, err)
	}
	if _, err := s.Recv(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	s2, _ := c.RegisterConfidenceNtfn(t.Context(), wallet.TxID{9})
	s2.Recv()
	s2.Close()
	if _, err := s2.Recv(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled after Close, got %v", err)
	}
}

func TestClient_CancelledStreamDetachesOnServer(t *testing.T) {
	w := memwallet.New()
	defer w.Close()
	c := dial(t, startServer(t, w))
	id, _ := w.AddTransaction(memwallet.Output{Value: 1})

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	s, err := c.RegisterConfidenceNtfn(ctx, id)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Recv()
	if n := w.Observers(id); n != 1 {
		t.Fatalf("observers while streaming = %d, want 1", n)
	}
	if _, err := s.Recv(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for w.Observers(id) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("server still holds %d observers", w.Observers(id))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_ServerErrorsKeepStatus(t *testing.T) {
	w := memwallet.New()
	c := dial(t, startServer(t, w))
	w.Close()

	_, err := c.ListUnspent(t.Context())
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestDial_FailsWhenNothingListens(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	lis.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "passthrough:///bufnet", WithDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the connect deadline to surface, got %v", err)
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	w := memwallet.New()
	defer w.Close()
	c := dial(t, startServer(t, w))

	if c.Closed() {
		t.Fatal("fresh client reports closed")
	}
	first := c.Close()
	second := c.Close()
	if !c.Closed() {
		t.Fatal("client should report closed")
	}
	if first != second {
		t.Fatalf("close results differ: %v vs %v", first, second)
	}
	if _, err := c.WalletBalance(t.Context()); err == nil {
		t.Fatal("calls after close should fail")
	}
}
