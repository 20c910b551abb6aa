package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/ggoodman/walletwatch/wallet"
	"github.com/spf13/cobra"
)

func newWalletBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet-balance",
		Short: "Print the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			b, err := c.WalletBalance(cmd.Context())
			if err != nil {
				return fmt.Errorf("wallet balance: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
}

func newNewAddressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new-address",
		Short: "Reveal the next receive address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			addr, err := c.NewAddress(cmd.Context())
			if err != nil {
				return fmt.Errorf("new address: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), addr)
		},
	}
}

func newListUnspentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-unspent",
		Short: "List unspent outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			utxos, err := c.ListUnspent(cmd.Context())
			if err != nil {
				return fmt.Errorf("list unspent: %w", err)
			}
			if utxos == nil {
				utxos = []wallet.UTXO{}
			}
			return printJSON(cmd.OutOrStdout(), utxos)
		},
	}
}

func newNotifyConfidenceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-confidence <txid>",
		Short: "Stream confidence events for one transaction until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txid, err := wallet.ParseTxID(args[0])
			if err != nil {
				return err
			}
			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := c.RegisterConfidenceNtfn(cmd.Context(), txid)
			if err != nil {
				return fmt.Errorf("register confidence notification: %w", err)
			}
			defer s.Close()

			for {
				ev, err := s.Recv()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return fmt.Errorf("confidence stream: %w", err)
				}
				if err := printJSON(cmd.OutOrStdout(), ev); err != nil {
					return err
				}
			}
		},
	}
}
