package walletrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/walletwatch/wallet"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client is a connection to a wallet daemon. It is safe for concurrent use;
// every method shares the one underlying connection.
type Client struct {
	conn *grpc.ClientConn
	log  *slog.Logger

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

var _ wallet.Client = (*Client)(nil)

// Dial connects to the wallet daemon at addr in plaintext and waits, bounded
// by ctx, until the connection is ready. No retries are attempted beyond what
// gRPC does while ctx is live.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	o := newOptions(opts)

	dopts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if o.creds != nil {
		dopts = append(dopts, grpc.WithPerRPCCredentials(o.creds))
	}
	if o.dialer != nil {
		dopts = append(dopts, grpc.WithContextDialer(o.dialer))
	}
	dopts = append(dopts, o.dialOptions...)

	conn, err := grpc.NewClient(addr, dopts...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", addr, err)
	}
	if err := waitReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	o.log.DebugContext(ctx, "wallet connection ready", slog.String("addr", addr))
	return &Client{conn: conn, log: o.log}, nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// Close releases the connection. Only the first call does any work; later
// calls return the same result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		c.closed.Store(true)
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

func (c *Client) WalletBalance(ctx context.Context) (wallet.Balance, error) {
	var out wallet.Balance
	if err := c.conn.Invoke(ctx, methodWalletBalance, &empty{}, &out); err != nil {
		return wallet.Balance{}, err
	}
	return out, nil
}

func (c *Client) NewAddress(ctx context.Context) (wallet.AddressInfo, error) {
	var out wallet.AddressInfo
	if err := c.conn.Invoke(ctx, methodNewAddress, &empty{}, &out); err != nil {
		return wallet.AddressInfo{}, err
	}
	return out, nil
}

func (c *Client) ListUnspent(ctx context.Context) ([]wallet.UTXO, error) {
	var out listUnspentResponse
	if err := c.conn.Invoke(ctx, methodListUnspent, &empty{}, &out); err != nil {
		return nil, err
	}
	return out.Utxos, nil
}

// RegisterConfidenceNtfn opens a confidence stream for txid. Closing the
// returned stream cancels it on the wire.
func (c *Client) RegisterConfidenceNtfn(ctx context.Context, txid wallet.TxID) (wallet.ConfStream, error) {
	sctx, cancel := context.WithCancel(ctx)
	cs, err := c.conn.NewStream(sctx, &serviceDesc.Streams[0], methodRegisterConfidenceNtfn)
	if err != nil {
		cancel()
		return nil, contextError(sctx, err)
	}
	if err := cs.SendMsg(&confRequest{TxID: txid}); err != nil {
		cancel()
		return nil, contextError(sctx, err)
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, contextError(sctx, err)
	}
	return &confStream{ctx: sctx, cancel: cancel, cs: cs}, nil
}

type confStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	cs     grpc.ClientStream
}

func (s *confStream) Recv() (wallet.ConfEvent, error) {
	var ev wallet.ConfEvent
	if err := s.cs.RecvMsg(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return wallet.ConfEvent{}, io.EOF
		}
		return wallet.ConfEvent{}, contextError(s.ctx, err)
	}
	return ev, nil
}

func (s *confStream) Close() error {
	s.cancel()
	return nil
}

// contextError maps a gRPC cancellation status back to the context error that
// caused it. Cancellation statuses sent by the server while ctx is still live
// are returned unchanged.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		switch status.Code(err) {
		case codes.Canceled, codes.DeadlineExceeded:
			return ctxErr
		}
	}
	return err
}
