package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ggoodman/walletwatch/auth"
	"github.com/ggoodman/walletwatch/internal/logctx"
	"github.com/spf13/cobra"
)

// tokenIssuer and tokenAudience are fixed so walletd can verify the tokens
// it issues.
const (
	tokenIssuer   = "walletd"
	tokenAudience = "walletrpc"
)

func newRootCmd() *cobra.Command {
	cfg, envErr := loadConfig()
	if envErr != nil {
		cfg = Config{Listen: "127.0.0.1:50051", LogLevel: "info", LogFormat: "text"}
	}
	var log *slog.Logger

	cmd := &cobra.Command{
		Use:           "walletd",
		Short:         "Serve an in-memory regtest wallet over gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			l, err := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.level())
			if err != nil {
				return err
			}
			log = l
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			lis, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
			}
			d, err := newDaemon(cfg, log)
			if err != nil {
				lis.Close()
				return err
			}
			return d.serve(cmd.Context(), lis)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "HS256 secret; when set every call needs a bearer token")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text|json")

	f := cmd.Flags()
	f.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to serve on")
	f.DurationVar(&cfg.BlockInterval, "block-interval", cfg.BlockInterval, "mine a block this often (0 disables)")
	f.IntVar(&cfg.SeedTxs, "seed-txs", cfg.SeedTxs, "number of demo transactions to start with")

	cmd.AddCommand(newTokenCmd(&cfg))
	return cmd
}

func newTokenCmd(cfg *Config) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for clients of this daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.TokenSecret == "" {
				return fmt.Errorf("token needs --token-secret or WALLETD_TOKEN_SECRET")
			}
			a, err := newAuthenticator(cfg.TokenSecret)
			if err != nil {
				return err
			}
			tok, err := a.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "walletwatch", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newAuthenticator(secret string) (*auth.HMACAuthenticator, error) {
	return auth.NewHMAC(auth.HMACConfig{
		Secret:   []byte(secret),
		Issuer:   tokenIssuer,
		Audience: tokenAudience,
	})
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
