package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/ggoodman/walletwatch/auth"
	"github.com/ggoodman/walletwatch/wallet/memwallet"
	"github.com/ggoodman/walletwatch/walletrpc"
	"google.golang.org/grpc"
)

type daemon struct {
	cfg    Config
	log    *slog.Logger
	wallet *memwallet.Wallet
	srv    *grpc.Server
}

func newDaemon(cfg Config, log *slog.Logger) (*daemon, error) {
	var opts []grpc.ServerOption
	if cfg.TokenSecret != "" {
		a, err := newAuthenticator(cfg.TokenSecret)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			grpc.UnaryInterceptor(auth.UnaryServerInterceptor(a)),
			grpc.StreamInterceptor(auth.StreamServerInterceptor(a)),
		)
	}

	w := memwallet.New(memwallet.WithLogger(log))
	for i := 0; i < cfg.SeedTxs; i++ {
		outs := make([]memwallet.Output, 1+rand.IntN(2))
		for j := range outs {
			outs[j] = memwallet.Output{Value: uint64(1_000 + rand.IntN(1_000_000))}
		}
		id, err := w.AddTransaction(outs...)
		if err != nil {
			return nil, err
		}
		log.Info("seeded transaction", slog.String("txid", id.String()), slog.Int("outputs", len(outs)))
	}

	srv := grpc.NewServer(opts...)
	walletrpc.NewServer(w, walletrpc.WithLogger(log)).Register(srv)
	return &daemon{cfg: cfg, log: log, wallet: w, srv: srv}, nil
}

// serve runs until ctx is done. Closing the wallet first ends every open
// confidence stream so the graceful stop does not wait on them.
func (d *daemon) serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- d.srv.Serve(lis) }()
	d.log.InfoContext(ctx, "wallet daemon listening",
		slog.String("addr", lis.Addr().String()),
		slog.Bool("auth", d.cfg.TokenSecret != ""),
	)

	var tick <-chan time.Time
	if d.cfg.BlockInterval > 0 {
		t := time.NewTicker(d.cfg.BlockInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-tick:
			h, err := d.wallet.MineBlock()
			if err != nil {
				d.log.WarnContext(ctx, "failed to mine block", slog.String("err", err.Error()))
				continue
			}
			d.log.InfoContext(ctx, "mined block", slog.Uint64("height", uint64(h)))
		case err := <-errCh:
			d.wallet.Close()
			if errors.Is(err, grpc.ErrServerStopped) {
				return nil
			}
			return err
		case <-ctx.Done():
			d.log.Info("shutting down")
			d.wallet.Close()
			d.srv.GracefulStop()
			return nil
		}
	}
}
