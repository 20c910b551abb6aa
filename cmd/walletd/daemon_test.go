package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/walletwatch/auth"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/ggoodman/walletwatch/walletrpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func startDaemon(t *testing.T, cfg Config) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d, err := newDaemon(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return lis.Addr().String()
}

func dial(t *testing.T, addr string, opts ...walletrpc.Option) *walletrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	c, err := walletrpc.Dial(ctx, addr, opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDaemon_SeedsAndMines(t *testing.T) {
	addr := startDaemon(t, Config{SeedTxs: 2, BlockInterval: 20 * time.Millisecond})
	c := dial(t, addr)

	utxos, err := c.ListUnspent(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utxos) < 2 {
		t.Fatalf("expected seeded outputs, got %d", len(utxos))
	}

	s, err := c.RegisterConfidenceNtfn(t.Context(), utxos[0].TxID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer s.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := s.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if ev.ConfidenceType == wallet.ConfidenceConfirmed {
			return
		}
	}
	t.Fatal("transaction never confirmed")
}

func TestDaemon_RequiresTokenWhenConfigured(t *testing.T) {
	addr := startDaemon(t, Config{TokenSecret: "s3cret"})

	if _, err := dial(t, addr).WalletBalance(t.Context()); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	a, _ := newAuthenticator("s3cret")
	tok, _ := a.Issue("test", time.Minute)
	if _, err := dial(t, addr, walletrpc.WithCredentials(auth.BearerToken(tok))).WalletBalance(t.Context()); err != nil {
		t.Fatalf("authenticated call failed: %v", err)
	}
}

func TestTokenCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--token-secret", "s3cret", "--subject", "alice"})
	if err := cmd.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("token: %v", err)
	}

	a, _ := newAuthenticator("s3cret")
	ui, err := a.CheckAuthentication(t.Context(), strings.TrimSpace(out.String()))
	if err != nil || ui.UserID() != "alice" {
		t.Fatalf("issued token did not verify: %v", err)
	}
}

func TestLoadConfig_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("WALLETD_BLOCK_INTERVAL", "10")

	if cfg, err := loadConfig(); err == nil {
		t.Fatalf("expected error, got block interval %s", cfg.BlockInterval)
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--token-secret", "s3cret"})
	if err := cmd.ExecuteContext(t.Context()); err == nil || !strings.Contains(err.Error(), "decode config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BlockInterval != 10*time.Second || cfg.SeedTxs != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
