package walletwatch

import (
	"fmt"

	"github.com/ggoodman/walletwatch/wallet"
)

// ConnectionError reports that the wallet daemon could not be reached. It
// aborts the run.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to wallet at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ListError reports that listing unspent outputs failed. It aborts the run
// before any stream is opened.
type ListError struct {
	Err error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list unspent outputs: %v", e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// StreamError is the error recorded in the outcome of a failed stream. It
// never aborts the run.
type StreamError struct {
	Resource wallet.OutPoint
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("confidence stream for %s: %v", e.Resource, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
