// Package cli implements the Verso command-line interface.
//
// This package uses global variables to manage CLI state, which is the
// standard pattern for Cobra-based CLI applications. The globals are
// initialized in PersistentPreRunE.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/verso-wallet/verso/internal/chain/electrum"
	"github.com/verso-wallet/verso/internal/chain/insight"
	"github.com/verso-wallet/verso/internal/chain/verusid"
	"github.com/verso-wallet/verso/internal/config"
	"github.com/verso-wallet/verso/internal/consent"
	"github.com/verso-wallet/verso/internal/keychain"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

var (
	// Global flags
	homeDir string
	network string
	verbose bool

	// Global state initialized in PersistentPreRunE
	cfg    *config.Config
	wallet *consent.Wallet
)

// localOrigin identifies the CLI itself to the consent layer. It is
// always trusted in addition to any configured origins.
const localOrigin = "verso-cli"

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "verso",
	Short: "A self-custodial Verus wallet CLI",
	Long: `Verso is a terminal-based self-custodial wallet for the Verus network.

It supports HD wallet creation with BIP39 mnemonics, native and
multi-currency balances, plain sends, reserve currency conversions,
and VerusID login verification.

Example:
  verso create
  verso balance
  verso send --to RRecipient... --amount 0.5`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(os.Stderr, err)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return walleterr.ExitCode(err)
}

// initGlobals loads configuration and wires the wallet.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	loaded, err := config.LoadOrDefaults(config.Path(home))
	if err != nil {
		return walleterr.Wrap(err, "loading configuration")
	}
	cfg = loaded
	cfg.Home = home

	config.ApplyEnvironment(cfg)
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if network != "" {
		cfg.Network = network
	}
	if verbose {
		cfg.Output.Verbose = true
	}

	wallet, err = buildWallet(cfg)
	return err
}

// buildWallet wires the network clients and consent layer from config.
func buildWallet(cfg *config.Config) (*consent.Wallet, error) {
	params := keychain.MainNetParams
	if cfg.Network == "testnet" {
		params = keychain.TestNetParams
	}

	chainClient, err := electrum.NewClient(&electrum.ClientOptions{
		Servers: cfg.Electrum.Servers,
		Timeout: time.Duration(cfg.Electrum.TimeoutSeconds) * time.Second,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	explorer, err := insight.NewClient(&insight.ClientOptions{
		BaseURL: cfg.Explorer.API,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}
	idClient, err := verusid.NewClient(&verusid.ClientOptions{
		RPCURL: cfg.VerusID.RPC,
	})
	if err != nil {
		return nil, err
	}

	trusted := append([]string{localOrigin}, cfg.Consent.TrustedOrigins...)
	return consent.NewWallet(consent.WalletOptions{
		Params:         params,
		VaultPath:      cfg.VaultPath(),
		LimiterPath:    cfg.LimiterPath(),
		LimiterKey:     []byte(cfg.Home),
		AutoLock:       time.Duration(cfg.Security.AutoLockSeconds) * time.Second,
		Chain:          chainClient,
		Explorer:       explorer,
		Identity:       idClient,
		TrustedOrigins: trusted,
		WebhookKey:     []byte(cfg.Home),
	}), nil
}

// out writes formatted text to w.
func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// outln writes a line to w.
func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// printError renders an error with its suggestion, if any.
func printError(w io.Writer, err error) {
	out(w, "Error: %s\n", err)
	var werr *walleterr.WalletError
	if walleterr.As(err, &werr) && werr.Suggestion != "" {
		out(w, "Hint: %s\n", werr.Suggestion)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "verso home directory (default ~/.verso)")
	rootCmd.PersistentFlags().StringVar(&network, "network", "", "network to use (mainnet or testnet)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
