package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/walletwatch/fanout"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

// value gathers reg and returns the value of the named counter or gauge whose
// labels include every pair in labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for i := 0; i+1 < len(labels); i += 2 {
				var ok bool
				for _, lp := range m.GetLabel() {
					if lp.GetName() == labels[i] && lp.GetValue() == labels[i+1] {
						ok = true
					}
				}
				if !ok {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

type key string

func (k key) Key() string { return string(k) }

func TestCollector_ObservesFanOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	fanout.Run(t.Context(), []key{"a", "b", "c"}, 50*time.Millisecond, func(ctx context.Context, k key) (int, error) {
		switch k {
		case "a":
			return 1, nil
		case "b":
			return 0, io.ErrUnexpectedEOF
		default:
			<-ctx.Done()
			return 0, ctx.Err()
		}
	}, fanout.WithObserver(c))

	if got := value(t, reg, "walletwatch_stream_started_total"); got != 3 {
		t.Fatalf("started = %v", got)
	}
	if got := value(t, reg, "walletwatch_stream_active"); got != 0 {
		t.Fatalf("active = %v", got)
	}
	for status, want := range map[string]float64{"completed": 1, "failed": 1, "cancelled": 1} {
		if got := value(t, reg, "walletwatch_stream_finished_total", "status", status); got != want {
			t.Fatalf("finished{%s} = %v", status, got)
		}
	}
}

func TestCollector_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	c.HandleEvent(t.Context(), wallet.UTXO{}, wallet.ConfEvent{ConfidenceType: wallet.ConfidenceConfirmed})
	c.HandleEvent(t.Context(), wallet.UTXO{}, wallet.ConfEvent{ConfidenceType: wallet.ConfidenceConfirmed})
	c.HandleEvent(t.Context(), wallet.UTXO{}, wallet.ConfEvent{})

	if got := value(t, reg, "walletwatch_events_total", "confidence", "CONFIRMED"); got != 2 {
		t.Fatalf("confirmed = %v", got)
	}
	if got := value(t, reg, "walletwatch_events_total", "confidence", "MISSING"); got != 1 {
		t.Fatalf("missing = %v", got)
	}
}

func TestCollector_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewCollector(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestServer_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := NewCollector(reg)
	c.Started("x")

	s := NewServer("127.0.0.1:0", reg, nil)
	addr, err := s.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "walletwatch_stream_active 1") {
		t.Fatalf("metrics body missing active gauge:\n%s", body)
	}
}
