// Package main is the entry point for the Verso CLI.
package main

import (
	"os"

	"github.com/verso-wallet/verso/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
