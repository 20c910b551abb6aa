package fanout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the terminal classification of one consumer.
type Status uint8

const (
	// StatusCompleted means the consumer returned without error, typically
	// because the remote end closed its stream.
	StatusCompleted Status = iota
	// StatusFailed means the consumer returned an error of its own.
	StatusFailed
	// StatusCancelled means the consumer was still running when the deadline
	// fired (or the parent context ended) and stopped because of it.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Outcome records how a single consumer ended.
type Outcome struct {
	Status Status
	// Events is the number of events the consumer reported handling.
	Events int
	// Err is set only when Status is StatusFailed.
	Err     error
	Elapsed time.Duration
}

// PanicError wraps a value recovered from a panicking consumer.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("consumer panicked: %v", e.Value)
}

// classify turns a consumer's return into an Outcome. runCtx is the shared
// deadline context of the run.
func classify(runCtx context.Context, events int, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Status: StatusCompleted, Events: events}
	case runCtx.Err() != nil && isContextErr(err):
		return Outcome{Status: StatusCancelled, Events: events}
	default:
		return Outcome{Status: StatusFailed, Events: events, Err: err}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Summary aggregates a set of outcomes.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Events    int `json:"events"`
}

// Summarize counts outcomes by status and sums their events.
func Summarize[S ~[]Outcome](outcomes S) Summary {
	var s Summary
	for _, o := range outcomes {
		s.add(o)
	}
	return s
}

// SummarizeMap is Summarize for keyed outcomes.
func SummarizeMap[K comparable](outcomes map[K]Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.add(o)
	}
	return s
}

func (s *Summary) add(o Outcome) {
	s.Total++
	s.Events += o.Events
	switch o.Status {
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	case StatusCancelled:
		s.Cancelled++
	}
}
