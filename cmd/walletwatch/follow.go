package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/walletwatch/relay"
	"github.com/ggoodman/walletwatch/relay/redis"
	"github.com/ggoodman/walletwatch/sink"
	"github.com/ggoodman/walletwatch/wallet"
	"github.com/spf13/cobra"
)

func newFollowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "follow <txid:vout>",
		Short: "Print events another watch relays for one output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := wallet.ParseOutPoint(args[0])
			if err != nil {
				return err
			}
			if a.cfg.RedisAddr == "" {
				return errors.New("follow needs --redis-addr or REDIS_ADDR")
			}
			r := redis.New(redis.Config{Addr: a.cfg.RedisAddr, KeyPrefix: a.cfg.RelayPrefix})
			defer r.Close()

			s, err := r.Subscribe(cmd.Context(), sink.Topic(op))
			if err != nil {
				return err
			}
			defer s.Close()
			a.log.InfoContext(cmd.Context(), "following relayed events", "outpoint", op.String())

			for {
				msg, err := s.Next(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil || errors.Is(err, relay.ErrClosed) {
						return nil
					}
					return fmt.Errorf("relay: %w", err)
				}
				var p sink.Payload
				if err := json.Unmarshal(msg.Data, &p); err != nil {
					a.log.WarnContext(cmd.Context(), "skipping malformed relay message", "err", err.Error())
					continue
				}
				if err := printJSON(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.cfg.RedisAddr, "redis-addr", a.cfg.RedisAddr, "Redis server the watch relays to")
	f.StringVar(&a.cfg.RelayPrefix, "relay-prefix", a.cfg.RelayPrefix, "Redis channel prefix for relayed events")
	return cmd
}
