package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/verso-wallet/verso/internal/chain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the active account balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		result, err := wallet.Balance(cmd.Context())
		if err != nil {
			return err
		}

		out(cmd.OutOrStdout(), "Confirmed:   %s VRSC\n", chain.FormatNativeAmount(result.Balance.Confirmed))
		out(cmd.OutOrStdout(), "Unconfirmed: %s VRSC\n", chain.FormatNativeAmount(result.Balance.Unconfirmed))
		if result.Stale {
			out(cmd.OutOrStdout(), "(cached value from %s, network unreachable)\n", result.AsOf.Format("15:04:05"))
		}

		all, _ := cmd.Flags().GetBool("all")
		if !all {
			return nil
		}

		currencies, err := wallet.CurrencyBalances(cmd.Context())
		if err != nil {
			return err
		}
		names := make([]string, 0, len(currencies.Balances))
		for name := range currencies.Balances {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out(cmd.OutOrStdout(), "%-12s %s\n", name, chain.FormatAmount(currencies.Balances[name], chain.Decimals))
		}
		if currencies.Stale {
			out(cmd.OutOrStdout(), "(cached currency values from %s, network unreachable)\n", currencies.AsOf.Format("15:04:05"))
		}
		return nil
	},
}

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "List derived accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		accounts, err := wallet.Accounts()
		if err != nil {
			return err
		}
		for _, a := range accounts {
			if a.Name != "" {
				out(cmd.OutOrStdout(), "%3d  %s  %s\n", a.Index, a.Address, a.Name)
				continue
			}
			out(cmd.OutOrStdout(), "%3d  %s\n", a.Index, a.Address)
		}
		return nil
	},
}

var renameAccountCmd = &cobra.Command{
	Use:   "rename-account <index> <name>",
	Short: "Set the display label of an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		if err := wallet.RenameAccount(index, args[1]); err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Account %d is now %q.\n", index, args[1])
		return nil
	},
}

var addAccountCmd = &cobra.Command{
	Use:   "add-account <index>",
	Short: "Derive an additional account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		account, err := wallet.AddAccount(index)
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "%3d  %s\n", account.Index, account.Address)
		return nil
	},
}

var switchAccountCmd = &cobra.Command{
	Use:   "switch-account <index>",
	Short: "Change the active account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		if err := wallet.SwitchAccount(index); err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Active account is now %d.\n", index)
		return nil
	},
}

var feeCmd = &cobra.Command{
	Use:   "fee",
	Short: "Show the current fee rate estimate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rate, err := wallet.FeeRate(cmd.Context())
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "%s VRSC/kB\n", chain.FormatNativeAmount(rate))
		return nil
	},
}

var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Show the current block height",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		height, err := wallet.BlockHeight(cmd.Context())
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "%d\n", height)
		return nil
	},
}

var rawTxCmd = &cobra.Command{
	Use:   "rawtx <txid>",
	Short: "Fetch the raw hex of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := wallet.RawTransaction(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "%s\n", raw)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		details, err := wallet.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, d := range details {
			status := "unconfirmed"
			if d.Confirmations > 0 {
				status = "confirmed"
			}
			out(cmd.OutOrStdout(), "%s  %s\n", d.TxID, status)
		}
		return nil
	},
}

func parseIndex(s string) (uint32, error) {
	index, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, walleterr.Wrap(walleterr.ErrValidation, "invalid account index %q", s)
	}
	return uint32(index), nil
}

func init() {
	balanceCmd.Flags().Bool("all", false, "include non-native currency balances")
	historyCmd.Flags().Int("limit", 25, "maximum transactions to show")
	rootCmd.AddCommand(balanceCmd, addressesCmd, addAccountCmd, switchAccountCmd, renameAccountCmd, feeCmd, heightCmd, historyCmd, rawTxCmd)
}
