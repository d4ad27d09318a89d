package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verso-wallet/verso/internal/keychain"
	"github.com/verso-wallet/verso/internal/securemem"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new wallet",
	Long: `Create a new wallet with a freshly generated 24-word mnemonic.

The mnemonic is shown exactly once. Write it down and store it safely;
it is the only way to recover your funds.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := promptNewPassword()
		if err != nil {
			return err
		}
		defer securemem.Zero(password)

		mnemonic, address, err := wallet.Create(string(password))
		if err != nil {
			return err
		}

		outln(cmd.OutOrStdout(), "Wallet created.")
		outln(cmd.OutOrStdout())
		outln(cmd.OutOrStdout(), "Your recovery phrase (write it down, it will not be shown again):")
		outln(cmd.OutOrStdout())
		printMnemonic(cmd.OutOrStdout(), mnemonic)
		outln(cmd.OutOrStdout())
		out(cmd.OutOrStdout(), "Primary address: %s\n", address)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore a wallet from a recovery phrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out(os.Stderr, "Enter your recovery phrase: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		mnemonic, err := reader.ReadString('\n')
		if err != nil {
			return walleterr.Wrap(err, "reading recovery phrase")
		}
		defer securemem.Zero([]byte(mnemonic))

		if err := keychain.ValidateMnemonic(mnemonic); err != nil {
			printTypoHints(cmd.ErrOrStderr(), mnemonic)
			return err
		}

		password, err := promptNewPassword()
		if err != nil {
			return err
		}
		defer securemem.Zero(password)

		address, err := wallet.Import(mnemonic, string(password))
		if err != nil {
			return err
		}
		out(cmd.OutOrStdout(), "Wallet restored. Primary address: %s\n", address)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		defer securemem.Zero(password)

		if err := wallet.Unlock(string(password)); err != nil {
			return err
		}
		outln(cmd.OutOrStdout(), "Wallet unlocked.")
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the wallet and wipe key material from memory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wallet.Lock()
		outln(cmd.OutOrStdout(), "Wallet locked.")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the wallet vault",
	Long: `Delete the wallet vault from disk.

Without the recovery phrase the funds are unrecoverable. The command
asks for confirmation unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			out(os.Stderr, "Type 'delete my wallet' to confirm: ")
			reader := bufio.NewReader(cmd.InOrStdin())
			answer, err := reader.ReadString('\n')
			if err != nil {
				return walleterr.Wrap(err, "reading confirmation")
			}
			if strings.TrimSpace(answer) != "delete my wallet" {
				return walleterr.Wrap(walleterr.ErrValidation, "reset not confirmed")
			}
		}
		if err := wallet.Reset(); err != nil {
			return err
		}
		outln(cmd.OutOrStdout(), "Vault deleted.")
		return nil
	},
}

var revealMnemonicCmd = &cobra.Command{
	Use:   "reveal-mnemonic",
	Short: "Show the recovery phrase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		defer securemem.Zero(password)

		mnemonic, err := wallet.RevealMnemonic(string(password))
		if err != nil {
			return err
		}
		printMnemonic(cmd.OutOrStdout(), mnemonic)
		return nil
	},
}

var exportWIFCmd = &cobra.Command{
	Use:   "export-wif",
	Short: "Export the active account's private key in WIF",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		defer securemem.Zero(password)

		wif, err := wallet.ExportWIF(string(password))
		if err != nil {
			return err
		}
		outln(cmd.OutOrStdout(), wif)
		return nil
	},
}

// printMnemonic renders the phrase in numbered columns.
// printTypoHints lists words that are not in the recovery word list,
// with the closest spelling where one is near enough.
func printTypoHints(w io.Writer, mnemonic string) {
	for _, typo := range keychain.DetectTypos(mnemonic) {
		if typo.Suggestion == "" {
			out(w, "Word %d %q is not a recovery word.\n", typo.Index+1, typo.Word)
			continue
		}
		out(w, "Word %d %q is not a recovery word; did you mean %q?\n", typo.Index+1, typo.Word, typo.Suggestion)
	}
}

func printMnemonic(w io.Writer, mnemonic string) {
	words := strings.Fields(mnemonic)
	for i, word := range words {
		out(w, "%2d. %-12s", i+1, word)
		if (i+1)%4 == 0 {
			outln(w)
		}
	}
	if len(words)%4 != 0 {
		outln(w)
	}
}

func init() {
	resetCmd.Flags().Bool("force", false, "skip confirmation")
	rootCmd.AddCommand(createCmd, importCmd, unlockCmd, lockCmd, resetCmd, revealMnemonicCmd, exportWIFCmd)
}
