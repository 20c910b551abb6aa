package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTxID is returned when a transaction id cannot be decoded.
var ErrInvalidTxID = errors.New("invalid txid")

// TxID is a 32-byte transaction hash in internal byte order.
type TxID [32]byte

// ParseTxID decodes a display-order (byte-reversed) hex transaction id.
func ParseTxID(s string) (TxID, error) {
	var id TxID
	if len(s) != 64 {
		return id, fmt.Errorf("%w: expected 64 hex characters, got %d", ErrInvalidTxID, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidTxID, err)
	}
	for i := range b {
		id[i] = b[len(b)-1-i]
	}
	return id, nil
}

// String returns the display-order hex encoding.
func (id TxID) String() string {
	var rev [32]byte
	for i := range id {
		rev[i] = id[len(id)-1-i]
	}
	return hex.EncodeToString(rev[:])
}

// IsZero reports whether id is all zeroes.
func (id TxID) IsZero() bool { return id == TxID{} }

func (id TxID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TxID) UnmarshalText(b []byte) error {
	parsed, err := ParseTxID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// OutPoint identifies a single transaction output.
type OutPoint struct {
	TxID TxID   `json:"tx_id"`
	Vout uint32 `json:"vout"`
}

func (o OutPoint) String() string {
	return o.TxID.String() + ":" + strconv.FormatUint(uint64(o.Vout), 10)
}

// ParseOutPoint decodes the "txid:vout" form produced by OutPoint.String.
func ParseOutPoint(s string) (OutPoint, error) {
	txid, vout, ok := strings.Cut(s, ":")
	if !ok {
		return OutPoint{}, fmt.Errorf("invalid outpoint %q: missing vout", s)
	}
	id, err := ParseTxID(txid)
	if err != nil {
		return OutPoint{}, err
	}
	n, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return OutPoint{}, fmt.Errorf("invalid outpoint %q: %w", s, err)
	}
	return OutPoint{TxID: id, Vout: uint32(n)}, nil
}

// UTXO is an unspent transaction output owned by the wallet.
type UTXO struct {
	OutPoint
	// Value in satoshis.
	Value        uint64 `json:"value"`
	ScriptPubKey []byte `json:"script_pub_key,omitempty"`
}

// Key returns the outpoint string. It identifies the UTXO in fan-out runs.
func (u UTXO) Key() string { return u.OutPoint.String() }

// ConfidenceType classifies where a transaction sits relative to the chain.
type ConfidenceType int32

const (
	// ConfidenceMissing means the wallet does not know the transaction.
	ConfidenceMissing ConfidenceType = iota
	ConfidenceUnconfirmed
	ConfidenceConfirmed
)

func (c ConfidenceType) String() string {
	switch c {
	case ConfidenceMissing:
		return "MISSING"
	case ConfidenceUnconfirmed:
		return "UNCONFIRMED"
	case ConfidenceConfirmed:
		return "CONFIRMED"
	default:
		return "ConfidenceType(" + strconv.Itoa(int(c)) + ")"
	}
}

// ConfirmationBlockTime anchors a confirmed transaction to a block.
type ConfirmationBlockTime struct {
	BlockHash        []byte `json:"block_hash"`
	BlockHeight      uint32 `json:"block_height"`
	ConfirmationTime uint64 `json:"confirmation_time"`
}

// ConfEvent is a single confidence notification. The zero value is the
// notification for a transaction the wallet does not know about.
type ConfEvent struct {
	RawTx            []byte                 `json:"raw_tx,omitempty"`
	ConfidenceType   ConfidenceType         `json:"confidence_type"`
	NumConfirmations uint32                 `json:"num_confirmations"`
	BlockTime        *ConfirmationBlockTime `json:"confirmation_block_time,omitempty"`
}

// Balance is the wallet balance in satoshis.
type Balance struct {
	Immature         uint64 `json:"immature"`
	TrustedPending   uint64 `json:"trusted_pending"`
	UntrustedPending uint64 `json:"untrusted_pending"`
	Confirmed        uint64 `json:"confirmed"`
}

// Total sums every bucket.
func (b Balance) Total() uint64 {
	return b.Immature + b.TrustedPending + b.UntrustedPending + b.Confirmed
}

// AddressInfo is a freshly revealed receive address.
type AddressInfo struct {
	Address        string `json:"address"`
	DerivationPath string `json:"derivation_path"`
}
