// Package wallet defines the domain surface shared by the walletwatch client,
// the gRPC transport and the development wallet daemon.
//
// The package is deliberately transport-agnostic. A Client is the client-side
// view of a remote wallet: a handful of unary calls plus one server-streamed
// subscription (RegisterConfidenceNtfn). A Service is the server-side view that
// a transport adapts onto the wire.
//
// # Types
//
//	UTXO       -> an unspent output; the unit a confidence stream is opened for
//	OutPoint   -> txid:vout, the identifier of a UTXO
//	ConfEvent  -> one confidence notification for a transaction
//	Balance    -> wallet balance split by maturity / trust
//
// Transaction IDs are displayed byte-reversed, as bitcoin tooling does. ParseTxID
// and TxID.String are inverses of each other.
package wallet
