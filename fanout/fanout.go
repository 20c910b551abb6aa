package fanout

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Keyed is implemented by inputs that can name themselves for logs and
// observers. Keys need not be unique, but unique keys make reports readable.
type Keyed interface {
	Key() string
}

// ConsumeFunc consumes one input until it finishes on its own or ctx is
// cancelled. It returns the number of events it handled.
type ConsumeFunc[R any] func(ctx context.Context, in R) (events int, err error)

// Run starts fn once per input, each in its own goroutine, and waits until all
// of them have returned. All consumers share one deadline of timeout, measured
// from the call to Run; a timeout <= 0 means the run is bounded only by ctx.
//
// The returned slice is aligned with inputs: outcomes[i] belongs to inputs[i].
// With no inputs Run returns immediately without starting anything.
func Run[R Keyed](ctx context.Context, inputs []R, timeout time.Duration, fn ConsumeFunc[R], opts ...Option) []Outcome {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	outcomes := make([]Outcome, len(inputs))
	if len(inputs) == 0 {
		return outcomes
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	running := newTracker(len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		key := in.Key()
		running.add(i, key)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer running.remove(i)
			outcomes[i] = runOne(runCtx, in, key, fn, &cfg)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		cfg.log.InfoContext(ctx, "fan-out deadline reached; cancelling running consumers",
			slog.Int("running", running.len()),
			slog.Duration("timeout", timeout),
		)
		grace := time.NewTimer(cfg.grace)
		select {
		case <-done:
		case <-grace.C:
			cfg.log.WarnContext(ctx, "consumers have not acknowledged cancellation; still waiting",
				slog.Duration("grace", cfg.grace),
				slog.Any("keys", running.keys()),
			)
			<-done
		}
		grace.Stop()
	}

	return outcomes
}

func runOne[R any](ctx context.Context, in R, key string, fn ConsumeFunc[R], cfg *config) (o Outcome) {
	start := time.Now()
	if cfg.observer != nil {
		cfg.observer.Started(key)
	}
	defer func() {
		if v := recover(); v != nil {
			cfg.log.ErrorContext(ctx, "consumer panicked", slog.String("key", key), slog.Any("panic", v))
			o = Outcome{Status: StatusFailed, Err: &PanicError{Value: v}}
		}
		o.Elapsed = time.Since(start)
		if cfg.observer != nil {
			cfg.observer.Finished(key, o)
		}
	}()

	events, err := fn(ctx, in)
	return classify(ctx, events, err)
}

// tracker keeps the keys of consumers that have not returned yet.
type tracker struct {
	mu      sync.Mutex
	byIndex map[int]string
}

func newTracker(n int) *tracker {
	return &tracker{byIndex: make(map[int]string, n)}
}

func (t *tracker) add(i int, key string) {
	t.mu.Lock()
	t.byIndex[i] = key
	t.mu.Unlock()
}

func (t *tracker) remove(i int) {
	t.mu.Lock()
	delete(t.byIndex, i)
	t.mu.Unlock()
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byIndex)
}

func (t *tracker) keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byIndex))
	for _, k := range t.byIndex {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
