package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/walletwatch"
	"github.com/ggoodman/walletwatch/metrics"
	"github.com/ggoodman/walletwatch/relay/redis"
	"github.com/ggoodman/walletwatch/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch every unspent output's confidence until the deadline",
		Long: `Lists the wallet's unspent outputs and opens one confidence stream per
output concurrently. Every stream shares one deadline; streams still open when
it fires are cancelled. The connection is then held open for --hold before it
is released.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := append(a.cfg.Options(),
				walletwatch.WithLogger(a.log),
				walletwatch.WithSink(sink.Log{Logger: a.log, Level: slog.LevelInfo}),
			)

			if a.cfg.MetricsAddr != "" {
				o, shutdown, err := startMetrics(a.cfg.MetricsAddr, a.log)
				if err != nil {
					return err
				}
				defer shutdown()
				opts = append(opts, o...)
			}

			if a.cfg.RedisAddr != "" {
				r := redis.New(redis.Config{Addr: a.cfg.RedisAddr, KeyPrefix: a.cfg.RelayPrefix})
				defer r.Close()
				if err := r.Ping(ctx); err != nil {
					return fmt.Errorf("relay: %w", err)
				}
				opts = append(opts, walletwatch.WithSink(sink.Relay{Relay: r}))
			}

			report, err := walletwatch.New(a.cfg.Addr, opts...).Run(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			out := cmd.OutOrStdout()
			for _, rec := range report.Records() {
				line := fmt.Sprintf("%s\t%s\tevents=%d", rec.OutPoint, rec.Status, rec.Events)
				if rec.Error != "" {
					line += "\terr=" + rec.Error
				}
				fmt.Fprintln(out, line)
			}
			s := report.Summary
			fmt.Fprintf(out, "total=%d completed=%d failed=%d cancelled=%d events=%d\n",
				s.Total, s.Completed, s.Failed, s.Cancelled, s.Events)
			return nil
		},
	}

	f := cmd.Flags()
	f.DurationVar(&a.cfg.Deadline, "deadline", a.cfg.Deadline, "deadline shared by every confidence stream")
	f.DurationVar(&a.cfg.Hold, "hold", a.cfg.Hold, "how long to keep the connection open after the streams end")
	f.DurationVar(&a.cfg.Grace, "grace", a.cfg.Grace, "wait after the deadline before reporting stuck streams")
	f.BoolVar(&a.cfg.Probe, "probe", a.cfg.Probe, "check the connection with a balance call after the hold")
	f.StringVar(&a.cfg.RedisAddr, "redis-addr", a.cfg.RedisAddr, "relay events to this Redis server")
	f.StringVar(&a.cfg.RelayPrefix, "relay-prefix", a.cfg.RelayPrefix, "Redis channel prefix for relayed events")
	f.StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "serve Prometheus metrics on this address")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func startMetrics(addr string, log *slog.Logger) ([]walletwatch.Option, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c, err := metrics.NewCollector(reg)
	if err != nil {
		return nil, nil, err
	}
	srv := metrics.NewServer(addr, reg, log)
	if _, err := srv.Start(); err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return []walletwatch.Option{walletwatch.WithObserver(c), walletwatch.WithSink(c)}, shutdown, nil
}
