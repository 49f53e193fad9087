package main

import (
	"fmt"

	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	bip39 "github.com/cosmos/go-bip39"
	"github.com/spf13/cobra"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/config"
	"github.com/sedaoverlay/node/pkg/identity"
)

// init seals the SDK's global bech32 prefix to "seda", since every
// address this CLI derives or parses is a SEDA chain account.
func init() {
	c := sdk.GetConfig()
	c.SetBech32PrefixForAccount("seda", "sedapub")
	c.Seal()
}

// chainFlags are the flags shared by every subcommand that talks to a
// configured node.
type chainFlags struct {
	configPath string
	network    string
	port       int
	mnemonic   string
}

func addChainFlags(cmd *cobra.Command) *chainFlags {
	f := &chainFlags{}
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to the node's JSONC config file")
	cmd.Flags().StringVar(&f.network, "network", "devnet", "network preset: devnet, testnet, mainnet, planet")
	cmd.Flags().IntVar(&f.port, "port", 0, "override httpServer.port")
	cmd.Flags().StringVar(&f.mnemonic, "mnemonic", "", "override sedaChain.mnemonic (prefer SEDA_MNEMONIC env)")
	return f
}

// load resolves this command's Config, applying any flag overrides on top
// of the file/env-derived values.
func (f *chainFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath, config.Network(f.network))
	if err != nil {
		return nil, err
	}
	if f.mnemonic != "" {
		cfg.SedaChain.Mnemonic = f.mnemonic
	}
	if f.port != 0 {
		cfg.HTTPServer.Port = f.port
	}
	return cfg, nil
}

// deriveSubAccountSigners derives n Cosmos sub-account signers from
// mnemonic along m/44'/118'/0'/0/i; index 0 is the funder.
func deriveSubAccountSigners(mnemonic string, n int) ([]*chainclient.Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("wire: invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("wire: deriving seed: %w", err)
	}

	signers := make([]*chainclient.Signer, 0, n)
	for i := 0; i < n; i++ {
		master, ch := hd.ComputeMastersFromSeed(seed)
		derived, err := hd.DerivePrivateKeyForPath(master, ch, identity.SubAccountDerivePath(i))
		if err != nil {
			return nil, fmt.Errorf("wire: deriving sub-account %d: %w", i, err)
		}
		priv := secp256k1.PrivKey{Key: derived}
		addr := sdk.AccAddress(priv.PubKey().Address()).String()
		signers = append(signers, chainclient.NewSigner(i, addr, derived))
	}
	return signers, nil
}

// subAccountAddresses extracts the bech32 addresses from signers, in
// index order, for pkg/identity.SubAccountFunder.
func subAccountAddresses(signers []*chainclient.Signer) []string {
	out := make([]string, len(signers))
	for i, s := range signers {
		out[i] = s.Address
	}
	return out
}
