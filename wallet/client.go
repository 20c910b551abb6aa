package wallet

import (
	"context"
)

// Client is the client-side view of a remote wallet. Implementations must be
// safe for concurrent use: the watcher issues one RegisterConfidenceNtfn call per
// UTXO from separate goroutines over a single Client.
type Client interface {
	WalletBalance(ctx context.Context) (Balance, error)
	NewAddress(ctx context.Context) (AddressInfo, error)
	ListUnspent(ctx context.Context) ([]UTXO, error)

	// RegisterConfidenceNtfn opens a server-streamed subscription to confidence
	// events for txid. The stream is bound to ctx: cancelling ctx tears it down.
	RegisterConfidenceNtfn(ctx context.Context, txid TxID) (ConfStream, error)
}

// ConfStream delivers confidence events in receipt order.
type ConfStream interface {
	// Recv blocks until the next event arrives. It returns io.EOF when the
	// remote end closes the stream, and the context error (context.Canceled or
	// context.DeadlineExceeded) when the stream was torn down by cancellation.
	Recv() (ConfEvent, error)

	// Close tears the subscription down. It is safe to call more than once and
	// after Recv has returned an error.
	Close() error
}

// Service is the server-side view of a wallet that transports expose.
type Service interface {
	Balance(ctx context.Context) (Balance, error)
	RevealNextAddress(ctx context.Context) (AddressInfo, error)
	ListUnspent(ctx context.Context) ([]UTXO, error)

	// ObserveConfidence returns a stream whose first event reflects the current
	// confidence of txid and whose later events are emitted only on change.
	ObserveConfidence(ctx context.Context, txid TxID) (ConfStream, error)
}
