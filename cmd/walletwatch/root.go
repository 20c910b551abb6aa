package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ggoodman/walletwatch"
	"github.com/ggoodman/walletwatch/auth"
	"github.com/ggoodman/walletwatch/internal/logctx"
	"github.com/ggoodman/walletwatch/walletrpc"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand.
type app struct {
	cfg walletwatch.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	// Environment first; flags registered below use it as their defaults.
	// A bad environment is reported when a command runs so --help still works.
	cfg, envErr := walletwatch.NewConfigFromEnv()
	if envErr != nil {
		cfg = walletwatch.Config{Addr: walletwatch.DefaultAddr, LogLevel: "info", LogFormat: "text"}
	}
	a.cfg = cfg

	cmd := &cobra.Command{
		Use:           "walletwatch",
		Short:         "Query a wallet daemon and watch the confidence of its unspent outputs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), a.cfg.LogFormat, a.cfg.Level())
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "wallet daemon address (host:port)")
	pf.StringVar(&a.cfg.Token, "token", a.cfg.Token, "bearer token sent with every call")
	pf.DurationVar(&a.cfg.ConnectTimeout, "connect-timeout", a.cfg.ConnectTimeout, "how long to wait for the connection")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug|info|warn|error")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "text|json")

	cmd.AddCommand(
		newWatchCmd(a),
		newWalletBalanceCmd(a),
		newNewAddressCmd(a),
		newListUnspentCmd(a),
		newNotifyConfidenceCmd(a),
		newFollowCmd(a),
	)
	return cmd
}

func newLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}

// dial opens a client for one-shot commands.
func (a *app) dial(ctx context.Context) (*walletrpc.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	opts := []walletrpc.Option{walletrpc.WithLogger(a.log)}
	if a.cfg.Token != "" {
		opts = append(opts, walletrpc.WithCredentials(auth.BearerToken(a.cfg.Token)))
	}
	c, err := walletrpc.Dial(ctx, a.cfg.Addr, opts...)
	if err != nil {
		return nil, &walletwatch.ConnectionError{Addr: a.cfg.Addr, Err: err}
	}
	return c, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
