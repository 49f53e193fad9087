// Config scaffolding subcommands: `init` writes a commented
// starter config under the network's home directory, `validate` loads an
// existing config and reports the first fatal problem it finds.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sedaoverlay/node/pkg/config"
)

// starterConfig is the JSONC scaffold `init` writes. Values the operator
// must fill in are left blank; everything else shows its default.
const starterConfig = `{
  "sedaChain": {
    // Set via SEDA_MNEMONIC or fill in here (file must not be world-readable).
    "mnemonic": "",
    // Leave blank to use the --network preset's RPC endpoint.
    "rpc": "",
    "chainId": "",
    "contract": "auto",
    "accountAmounts": 10,
    "identitiesAmount": 1
  },
  "node": {
    "maxConcurrentRequests": 20
  },
  "httpServer": {
    "port": 3000
  }
}
`

var initFlags *chainFlags

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file for the chosen network",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

var validateFlags *chainFlags

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the node's config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := validateFlags.load()
		if err != nil {
			return err
		}
		fmt.Printf("config ok: chainId=%s rpc=%s identities=%d subAccounts=%d\n",
			cfg.SedaChain.ChainID, cfg.SedaChain.RPC, cfg.SedaChain.IdentitiesAmount, cfg.SedaChain.AccountAmounts)
		return nil
	},
}

func init() {
	initFlags = addChainFlags(initCmd)
	validateFlags = addChainFlags(validateCmd)
}

func runInit() error {
	path := initFlags.configPath
	if path == "" {
		base := os.Getenv("SEDA_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("init: resolving home directory: %w", err)
			}
			base = home
		}
		path = filepath.Join(base, ".seda", initFlags.network, "config.jsonc")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("init: %s already exists, refusing to overwrite", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("init: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("init: writing %s: %w", path, err)
	}
	fmt.Printf("wrote %s for network %s\n", path, config.Network(initFlags.network))
	return nil
}
