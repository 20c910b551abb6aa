// Package memwallet is an in-memory regtest wallet. It backs the development
// daemon and end-to-end tests: transactions are added directly, blocks are
// mined on demand, and confidence changes are published to observers.
package memwallet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ggoodman/walletwatch/observable"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/google/uuid"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memwallet: closed")

// Output is one output of a transaction added to the wallet.
type Output struct {
	Value        uint64
	ScriptPubKey []byte
}

type tx struct {
	raw     []byte
	outputs []Output
	// height is the block the tx confirmed in, zero while unconfirmed.
	height uint32
}

type block struct {
	hash [32]byte
	time uint64
}

// confState is the comparable projection of a ConfEvent kept in the map.
type confState struct {
	confidence    wallet.ConfidenceType
	confirmations uint32
	height        uint32
	hash          [32]byte
	time          uint64
}

// Wallet is safe for concurrent use.
type Wallet struct {
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	txs       map[wallet.TxID]*tx
	mempool   []wallet.TxID
	blocks    []block
	nextIndex uint32
	closed    bool

	conf *observable.Map[wallet.TxID, confState]
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wallet) {
		if l != nil {
			w.log = l
		}
	}
}

// WithClock overrides the clock used to timestamp blocks.
func WithClock(now func() time.Time) Option {
	return func(w *Wallet) {
		if now != nil {
			w.now = now
		}
	}
}

// New returns an empty wallet at block height zero.
func New(opts ...Option) *Wallet {
	w := &Wallet{
		log:  slog.New(slog.DiscardHandler),
		now:  time.Now,
		txs:  make(map[wallet.TxID]*tx),
		conf: observable.NewMap[wallet.TxID, confState](),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ wallet.Service = (*Wallet)(nil)

// AddTransaction records an unconfirmed transaction paying outs to the wallet
// and returns its id.
func (w *Wallet) AddTransaction(outs ...Output) (wallet.TxID, error) {
	if len(outs) == 0 {
		return wallet.TxID{}, errors.New("memwallet: transaction has no outputs")
	}
	raw := encodeTx(outs)
	id := wallet.TxID(doubleSHA256(raw))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return wallet.TxID{}, ErrClosed
	}
	w.txs[id] = &tx{raw: raw, outputs: append([]Output(nil), outs...)}
	w.mempool = append(w.mempool, id)
	w.conf.Insert(id, confState{confidence: wallet.ConfidenceUnconfirmed})
	w.log.Debug("transaction added", slog.String("txid", id.String()), slog.Int("outputs", len(outs)))
	return id, nil
}

// MineBlock confirms every mempool transaction in a new block and bumps the
// confirmation count of everything confirmed earlier. It returns the new
// height.
func (w *Wallet) MineBlock() (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}

	height := uint32(len(w.blocks)) + 1
	h := sha256.New()
	if len(w.blocks) > 0 {
		prev := w.blocks[len(w.blocks)-1].hash
		h.Write(prev[:])
	}
	binary.Write(h, binary.LittleEndian, height)
	for _, id := range w.mempool {
		h.Write(id[:])
	}
	b := block{hash: sha256.Sum256(h.Sum(nil)), time: uint64(w.now().Unix())}
	w.blocks = append(w.blocks, b)

	for _, id := range w.mempool {
		w.txs[id].height = height
	}
	confirmed := len(w.mempool)
	w.mempool = nil

	for id, t := range w.txs {
		if t.height == 0 {
			continue
		}
		tb := w.blocks[t.height-1]
		w.conf.Insert(id, confState{
			confidence:    wallet.ConfidenceConfirmed,
			confirmations: height - t.height + 1,
			height:        t.height,
			hash:          tb.hash,
			time:          tb.time,
		})
	}
	w.log.Debug("block mined", slog.Uint64("height", uint64(height)), slog.Int("confirmed", confirmed))
	return height, nil
}

// Height returns the current chain height.
func (w *Wallet) Height() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uint32(len(w.blocks))
}

// Balance sums unconfirmed outputs as trusted pending and confirmed outputs as
// confirmed.
func (w *Wallet) Balance(context.Context) (wallet.Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return wallet.Balance{}, ErrClosed
	}
	var b wallet.Balance
	for _, t := range w.txs {
		for _, o := range t.outputs {
			if t.height == 0 {
				b.TrustedPending += o.Value
			} else {
				b.Confirmed += o.Value
			}
		}
	}
	return b, nil
}

// RevealNextAddress derives the next external address on the BIP86 regtest
// path. The address is a placeholder string, not a valid bech32m encoding.
func (w *Wallet) RevealNextAddress(context.Context) (wallet.AddressInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return wallet.AddressInfo{}, ErrClosed
	}
	i := w.nextIndex
	w.nextIndex++
	path := fmt.Sprintf("m/86'/1'/0'/0/%d", i)
	sum := sha256.Sum256([]byte(path))
	return wallet.AddressInfo{
		Address:        fmt.Sprintf("bcrt1p%x", sum[:]),
		DerivationPath: path,
	}, nil
}

// ListUnspent returns every output, ordered by outpoint.
func (w *Wallet) ListUnspent(context.Context) ([]wallet.UTXO, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	var out []wallet.UTXO
	for id, t := range w.txs {
		for vout, o := range t.outputs {
			out = append(out, wallet.UTXO{
				OutPoint:     wallet.OutPoint{TxID: id, Vout: uint32(vout)},
				Value:        o.Value,
				ScriptPubKey: o.ScriptPubKey,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].OutPoint, out[j].OutPoint
		if a.TxID != b.TxID {
			return a.TxID.String() < b.TxID.String()
		}
		return a.Vout < b.Vout
	})
	return out, nil
}

// ObserveConfidence streams the confidence of txid: the current state first,
// then every change. Unknown transactions are reported as missing. The
// stream ends with io.EOF when the wallet is closed.
func (w *Wallet) ObserveConfidence(ctx context.Context, txid wallet.TxID) (wallet.ConfStream, error) {
	return &confStream{ctx: ctx, w: w, s: w.conf.Observe(txid), id: txid}, nil
}

// Observers reports how many confidence streams for txid are still open.
func (w *Wallet) Observers(txid wallet.TxID) int {
	return w.conf.Observers(txid)
}

// Close ends every confidence stream and rejects further calls.
func (w *Wallet) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	w.conf.Close()
	return nil
}

func (w *Wallet) rawTx(id wallet.TxID) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.txs[id]; ok {
		return t.raw
	}
	return nil
}

type confStream struct {
	ctx context.Context
	w   *Wallet
	s   *observable.Stream[observable.Entry[confState]]
	id  wallet.TxID
}

func (c *confStream) Recv() (wallet.ConfEvent, error) {
	e, err := c.s.Next(c.ctx)
	if errors.Is(err, observable.ErrClosed) {
		return wallet.ConfEvent{}, io.EOF
	}
	if err != nil {
		return wallet.ConfEvent{}, err
	}
	if !e.Present {
		return wallet.ConfEvent{}, nil
	}
	ev := wallet.ConfEvent{
		ConfidenceType:   e.Value.confidence,
		NumConfirmations: e.Value.confirmations,
	}
	if e.Value.height > 0 {
		ev.BlockTime = &wallet.ConfirmationBlockTime{
			BlockHash:        append([]byte(nil), e.Value.hash[:]...),
			BlockHeight:      e.Value.height,
			ConfirmationTime: e.Value.time,
		}
	}
	ev.RawTx = c.w.rawTx(c.id)
	return ev, nil
}

func (c *confStream) Close() error { return c.s.Close() }

// encodeTx produces a unique serialization for a set of outputs. A random
// nonce keeps identical payments from colliding.
func encodeTx(outs []Output) []byte {
	nonce := uuid.New()
	buf := append([]byte(nil), nonce[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(outs)))
	for _, o := range outs {
		buf = binary.LittleEndian.AppendUint64(buf, o.Value)
		buf = binary.AppendUvarint(buf, uint64(len(o.ScriptPubKey)))
		buf = append(buf, o.ScriptPubKey...)
	}
	return buf
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
