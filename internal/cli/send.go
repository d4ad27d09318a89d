package cli

import (
	"github.com/spf13/cobra"

	"github.com/verso-wallet/verso/internal/chain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send VRSC to an address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		to, _ := cmd.Flags().GetString("to")
		amount, _ := cmd.Flags().GetString("amount")
		if to == "" || amount == "" {
			return walleterr.Wrap(walleterr.ErrValidation, "--to and --amount are required")
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			preview, err := wallet.SimulateSend(cmd.Context(), to, amount)
			if err != nil {
				return err
			}
			out(cmd.OutOrStdout(), "Would broadcast %s\n", preview.TxID)
			out(cmd.OutOrStdout(), "Fee:    %s VRSC\n", chain.FormatNativeAmount(preview.Fee))
			out(cmd.OutOrStdout(), "Change: %s VRSC\n", chain.FormatNativeAmount(preview.Change))
			out(cmd.OutOrStdout(), "Size:   %d bytes\n", preview.Size)
			return nil
		}

		result, err := wallet.Send(cmd.Context(), to, amount)
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Broadcast %s (fee %s VRSC)\n", result.TxID, chain.FormatNativeAmount(result.Fee))
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between a reserve currency and its basket",
	Long: `Convert between currencies through the protocol's reserve mechanism.

A direct conversion moves between a basket currency and one of its
reserves. Converting between two reserves of the same basket requires
routing through it with --via.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		via, _ := cmd.Flags().GetString("via")
		amount, _ := cmd.Flags().GetString("amount")
		if from == "" || to == "" || amount == "" {
			return walleterr.Wrap(walleterr.ErrValidation, "--from, --to, and --amount are required")
		}

		result, err := wallet.Convert(cmd.Context(), from, to, via, amount)
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Broadcast %s (fee %s VRSC)\n", result.TxID, chain.FormatNativeAmount(result.Fee))
		return nil
	},
}

var sendCurrencyCmd = &cobra.Command{
	Use:   "sendcurrency",
	Short: "Send a non-native currency to an address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		currency, _ := cmd.Flags().GetString("currency")
		to, _ := cmd.Flags().GetString("to")
		amount, _ := cmd.Flags().GetString("amount")
		if currency == "" || to == "" || amount == "" {
			return walleterr.Wrap(walleterr.ErrValidation, "--currency, --to, and --amount are required")
		}

		result, err := wallet.SendCurrency(cmd.Context(), currency, to, amount)
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Broadcast %s (fee %s VRSC)\n", result.TxID, chain.FormatNativeAmount(result.Fee))
		return nil
	},
}

func init() {
	sendCmd.Flags().String("to", "", "recipient address")
	sendCmd.Flags().String("amount", "", "amount in VRSC")
	sendCmd.Flags().Bool("dry-run", false, "build and sign without broadcasting")

	convertCmd.Flags().String("from", "", "source currency")
	convertCmd.Flags().String("to", "", "destination currency")
	convertCmd.Flags().String("via", "", "basket currency to route through")
	convertCmd.Flags().String("amount", "", "amount in the source currency")

	sendCurrencyCmd.Flags().String("currency", "", "currency identity address")
	sendCurrencyCmd.Flags().String("to", "", "recipient address")
	sendCurrencyCmd.Flags().String("amount", "", "amount in the currency")

	rootCmd.AddCommand(sendCmd, convertCmd, sendCurrencyCmd)
}
