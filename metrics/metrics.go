// Package metrics exports fan-out activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ggoodman/walletwatch/fanout"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletwatch"

// Collector observes fan-out runs and counts consumed events. It implements
// fanout.Observer and sink.Sink.
type Collector struct {
	active   prometheus.Gauge
	started  prometheus.Counter
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

// NewCollector creates a collector and registers it with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of confidence streams currently being consumed.",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "started_total",
			Help:      "Total number of confidence stream consumers started.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "finished_total",
			Help:      "Total number of confidence stream consumers finished, by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "duration_seconds",
			Help:      "Time each consumer spent on its stream, by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of confidence events consumed, by confidence type.",
		}, []string{"confidence"}),
	}
	for _, m := range []prometheus.Collector{c.active, c.started, c.finished, c.duration, c.events} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Started implements fanout.Observer.
func (c *Collector) Started(string) {
	c.started.Inc()
	c.active.Inc()
}

// Finished implements fanout.Observer.
func (c *Collector) Finished(_ string, o fanout.Outcome) {
	c.active.Dec()
	status := o.Status.String()
	c.finished.WithLabelValues(status).Inc()
	c.duration.WithLabelValues(status).Observe(o.Elapsed.Seconds())
}

// HandleEvent counts one consumed event.
func (c *Collector) HandleEvent(_ context.Context, _ wallet.UTXO, ev wallet.ConfEvent) error {
	c.events.WithLabelValues(ev.ConfidenceType.String()).Inc()
	return nil
}

var _ fanout.Observer = (*Collector)(nil)

// Server serves /metrics over HTTP.
type Server struct {
	log    *slog.Logger
	server *http.Server
}

// NewServer exposes the metrics gathered by g at addr.
func NewServer(addr string, g prometheus.Gatherer, log *slog.Logger) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK\n"))
	})
	return &Server{
		log: log,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens on the configured address and serves in the background. The
// returned address is the one actually bound.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, err
	}
	s.log.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", slog.String("err", err.Error()))
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
