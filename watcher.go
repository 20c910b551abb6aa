package walletwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/walletwatch/fanout"
	"github.com/ggoodman/walletwatch/internal/logctx"
	"github.com/ggoodman/walletwatch/sink"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/google/uuid"
)

// Watcher runs bounded confidence watches against one wallet daemon.
type Watcher struct {
	addr           string
	log            *slog.Logger
	token          string
	connectTimeout time.Duration
	deadline       time.Duration
	hold           time.Duration
	grace          time.Duration
	sinks          []sink.Sink
	observer       fanout.Observer
	probe          bool
	dial           DialFunc
	sleep          func(time.Duration)
}

// New creates a Watcher for the daemon at addr.
func New(addr string, opts ...Option) *Watcher {
	if addr == "" {
		addr = DefaultAddr
	}
	w := &Watcher{
		addr:           addr,
		log:            slog.New(slog.DiscardHandler),
		connectTimeout: DefaultConnectTimeout,
		deadline:       DefaultDeadline,
		hold:           DefaultHold,
		grace:          fanout.DefaultGracePeriod,
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.dial == nil {
		w.dial = w.defaultDial
	}
	return w
}

// Report describes a finished run.
type Report struct {
	RunID     string
	Resources []wallet.UTXO
	// Outcomes is keyed by outpoint; a resource listed twice keeps its last
	// outcome. Summary counts every stream that was started.
	Outcomes map[wallet.OutPoint]fanout.Outcome
	Summary  fanout.Summary
	// ConnectionUsable is set by the post-hold probe. It stays false when the
	// probe is disabled.
	ConnectionUsable bool
	Elapsed          time.Duration

	// ordered holds one outcome per entry of Resources.
	ordered []fanout.Outcome
}

// Run performs one watch: connect, list, fan out, hold, release. Only a
// *ConnectionError or a *ListError is returned as an error; individual stream
// failures are reported in the Report.
func (w *Watcher) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logctx.WithRunData(ctx, &logctx.RunData{RunID: runID, Addr: w.addr})

	dialCtx, cancel := context.WithTimeout(ctx, w.connectTimeout)
	conn, err := w.dial(dialCtx, w.addr)
	cancel()
	if err != nil {
		w.log.ErrorContext(ctx, "failed to connect to wallet", slog.String("err", err.Error()))
		return nil, &ConnectionError{Addr: w.addr, Err: err}
	}
	defer func() {
		w.log.InfoContext(ctx, "closing connection")
		if err := conn.Close(); err != nil {
			w.log.WarnContext(ctx, "failed to close connection", slog.String("err", err.Error()))
		}
	}()

	utxos, err := conn.ListUnspent(ctx)
	if err != nil {
		w.log.ErrorContext(ctx, "failed to list unspent outputs", slog.String("err", err.Error()))
		return nil, &ListError{Err: err}
	}
	w.log.InfoContext(ctx, "listed unspent outputs", slog.Int("count", len(utxos)))
	for _, u := range utxos {
		w.log.InfoContext(ctx, "unspent output",
			slog.String("outpoint", u.OutPoint.String()),
			slog.Uint64("value", u.Value),
		)
	}

	outs := w.runBounded(ctx, conn, utxos)

	if w.hold > 0 {
		w.log.InfoContext(ctx, "holding connection", slog.Duration("hold", w.hold))
		w.sleep(w.hold)
	}

	report := &Report{
		RunID:     runID,
		Resources: utxos,
		Outcomes:  outcomeMap(utxos, outs),
		Summary:   fanout.Summarize(outs),
		ordered:   outs,
	}
	if w.probe {
		if _, err := conn.WalletBalance(ctx); err != nil {
			w.log.WarnContext(ctx, "connection unusable after hold", slog.String("err", err.Error()))
		} else {
			report.ConnectionUsable = true
		}
	}
	report.Elapsed = time.Since(start)

	w.log.InfoContext(ctx, "watch finished",
		slog.Int("completed", report.Summary.Completed),
		slog.Int("failed", report.Summary.Failed),
		slog.Int("cancelled", report.Summary.Cancelled),
		slog.Int("events", report.Summary.Events),
	)
	return report, nil
}

// RunBounded opens one confidence stream per UTXO over client and consumes
// them concurrently until each ends or the shared deadline fires. It returns
// once every stream has finished. The client is used, never closed. A UTXO
// listed twice is keyed by its last outcome.
func (w *Watcher) RunBounded(ctx context.Context, client wallet.Client, utxos []wallet.UTXO) map[wallet.OutPoint]fanout.Outcome {
	return outcomeMap(utxos, w.runBounded(ctx, client, utxos))
}

// runBounded returns one outcome per entry of utxos, in order.
func (w *Watcher) runBounded(ctx context.Context, client wallet.Client, utxos []wallet.UTXO) []fanout.Outcome {
	outs := fanout.Run(ctx, utxos, w.deadline,
		func(ctx context.Context, u wallet.UTXO) (int, error) {
			return w.consume(ctx, client, u)
		},
		fanout.WithLogger(w.log),
		fanout.WithGracePeriod(w.grace),
		fanout.WithObserver(w.observer),
	)

	for i, u := range utxos {
		o := outs[i]
		ctx := logctx.WithResourceData(ctx, &logctx.ResourceData{OutPoint: u.OutPoint.String()})
		switch o.Status {
		case fanout.StatusFailed:
			o.Err = &StreamError{Resource: u.OutPoint, Err: o.Err}
			w.log.WarnContext(ctx, "confidence stream failed",
				slog.Int("events", o.Events),
				slog.String("err", o.Err.Error()),
			)
		case fanout.StatusCancelled:
			w.log.InfoContext(ctx, "confidence stream cancelled at deadline", slog.Int("events", o.Events))
		default:
			w.log.InfoContext(ctx, "confidence stream completed", slog.Int("events", o.Events))
		}
		outs[i] = o
	}
	return outs
}

func outcomeMap(utxos []wallet.UTXO, outs []fanout.Outcome) map[wallet.OutPoint]fanout.Outcome {
	m := make(map[wallet.OutPoint]fanout.Outcome, len(utxos))
	for i, u := range utxos {
		m[u.OutPoint] = outs[i]
	}
	return m
}

// consume reads one confidence stream to its end, handing every event to the
// sinks in receipt order.
func (w *Watcher) consume(ctx context.Context, client wallet.Client, u wallet.UTXO) (int, error) {
	ctx = logctx.WithResourceData(ctx, &logctx.ResourceData{OutPoint: u.OutPoint.String()})
	stream, err := client.RegisterConfidenceNtfn(ctx, u.TxID)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	var n int
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
		w.log.DebugContext(ctx, "confidence event",
			slog.String("confidence", ev.ConfidenceType.String()),
			slog.Uint64("confirmations", uint64(ev.NumConfirmations)),
		)
		for _, s := range w.sinks {
			if err := s.HandleEvent(ctx, u, ev); err != nil {
				w.log.WarnContext(ctx, "event sink failed", slog.String("err", err.Error()))
			}
		}
	}
}
