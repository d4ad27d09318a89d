package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/verso-wallet/verso/internal/identity"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "VerusID operations",
}

var identityVerifyCmd = &cobra.Command{
	Use:   "verify <login-uri>",
	Short: "Verify a VerusID login deep link",
	Long: `Verify the signature on a login deep link without approving anything.

The claimed identity is resolved on chain and the challenge signature
is checked against its authorized addresses.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		challenge, err := identity.ParseLoginURI(args[0])
		if err != nil {
			return err
		}
		if err := challenge.CheckTimestamp(time.Now()); err != nil {
			return err
		}

		if err := wallet.VerifyLoginChallenge(cmd.Context(), challenge); err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Signature for %s verified.\n", challenge.Identity)
		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityVerifyCmd)
	rootCmd.AddCommand(identityCmd)
}
