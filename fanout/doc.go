// Package fanout runs one consumer per input concurrently under a single shared
// deadline and records exactly one Outcome per input.
//
// Run guarantees that:
//
//   - every input gets its own goroutine; there is no ordering between them
//   - the deadline clock starts when Run is called and is shared by all
//   - when it fires, every consumer still running has its context cancelled
//   - Run returns only after every consumer has returned
//   - a consumer's error or panic is captured in its own Outcome and never
//     affects siblings or the return of Run
//
// Outcomes are classified as Completed (returned nil), Cancelled (returned a
// context error after the run context was done; the expected way for a
// long-lived subscription to end) or Failed (anything else).
//
// Example:
//
//	outcomes := fanout.Run(ctx, utxos, 5*time.Second,
//	    func(ctx context.Context, u wallet.UTXO) (int, error) {
//	        return consume(ctx, u)
//	    },
//	    fanout.WithLogger(log),
//	)
//	sum := fanout.Summarize(outcomes)
package fanout
