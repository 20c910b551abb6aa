// Package walletwatch watches the confidence of every unspent output of a
// remote wallet for a bounded amount of time.
//
// A run connects to the wallet daemon, lists its unspent outputs, and opens one
// confidence stream per output concurrently. All streams share one deadline:
// streams that end on their own before it complete, streams that fail are
// recorded without affecting their siblings, and streams still open when it
// fires are cancelled. After every stream has returned the watcher holds the
// connection open for a fixed period, then releases it exactly once.
//
// Example:
//
//	w := walletwatch.New("127.0.0.1:50051",
//	    walletwatch.WithDeadline(5*time.Second),
//	    walletwatch.WithHold(5*time.Second),
//	    walletwatch.WithSink(sink.Log{Logger: log}),
//	)
//	report, err := w.Run(ctx)
//	if err != nil {
//	    var connErr *walletwatch.ConnectionError
//	    if errors.As(err, &connErr) { /* daemon unreachable */ }
//	    return err
//	}
//	fmt.Println(report.Summary.Cancelled, "streams were still open at the deadline")
package walletwatch
