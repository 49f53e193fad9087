// Command seda-overlay is the oracle overlay node's CLI entrypoint: run
// the node, manage identities, and inspect/administer the chain contract
// through a narrow set of dev tools.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "seda-overlay",
	Short: "SEDA oracle overlay node",
	Long:  "Runs a SEDA oracle overlay node: commits and reveals data request results and manages staked identities.",
}

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(devtoolsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("seda-overlay: command failed")
		os.Exit(1)
	}
	os.Exit(0)
}
