// Operator dev tools, gated behind ENABLE_DEV_TOOLS=true:
// contract pause/unpause, allowlist management, ad-hoc fund transfers,
// executor listing, chain-config inspection, and local oracle-program
// execution. These bypass MainTask entirely and talk to the chain
// one-shot, like the identities subcommands.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/spf13/cobra"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
	"github.com/sedaoverlay/node/pkg/vmadapter"
	"github.com/sedaoverlay/node/pkg/wasmpool"
)

var devtoolsCmd = &cobra.Command{
	Use:   "devtools",
	Short: "Operator tools (requires ENABLE_DEV_TOOLS=true)",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("ENABLE_DEV_TOOLS") != "true" {
			return fmt.Errorf("devtools: set ENABLE_DEV_TOOLS=true to use operator tools")
		}
		return nil
	},
}

func init() {
	devtoolsCmd.AddCommand(
		newAdminExecCmd("pause", "Pause the contract", func() (string, interface{}) {
			return "pause", protocolcrypto.PauseMsg{}
		}),
		newAdminExecCmd("unpause", "Unpause the contract", func() (string, interface{}) {
			return "unpause", protocolcrypto.UnpauseMsg{}
		}),
		newAllowlistCmd("allowlist-add", "Add a public key to the allowlist", true),
		newAllowlistCmd("allowlist-remove", "Remove a public key from the allowlist", false),
		newSendCmd(),
		newExecutorsCmd(),
		newChainConfigCmd(),
		newExecuteOpCmd(),
	)
}

// newAdminExecCmd builds a no-argument admin subcommand submitting one of
// the contract's admin messages from the funder account.
func newAdminExecCmd(use, short string, build func() (string, interface{})) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	flags := addChainFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, chain, _, _, err := buildIdentitiesAndChain(flags)
		if err != nil {
			return err
		}
		kind, msg := build()
		return submitAdminMsg(cmd.Context(), chain, kind, msg, nil)
	}
	return cmd
}

func newAllowlistCmd(use, short string, add bool) *cobra.Command {
	cmd := &cobra.Command{Use: use + " <public_key>", Short: short, Args: cobra.ExactArgs(1)}
	flags := addChainFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, chain, _, _, err := buildIdentitiesAndChain(flags)
		if err != nil {
			return err
		}
		if add {
			return submitAdminMsg(cmd.Context(), chain, "add_to_allowlist", protocolcrypto.AddToAllowlistMsg{PublicKey: args[0]}, nil)
		}
		return submitAdminMsg(cmd.Context(), chain, "remove_from_allowlist", protocolcrypto.RemoveFromAllowlistMsg{PublicKey: args[0]}, nil)
	}
	return cmd
}

// newSendCmd transfers funds from the funder account to one or more
// addresses; more than one address makes it a multi-send.
func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <amount> <address>...",
		Short: "Send aseda from the funder account to one or more addresses",
		Args:  cobra.MinimumNArgs(2),
	}
	flags := addChainFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		amount, ok := new(big.Int).SetString(args[0], 10)
		if !ok {
			return fmt.Errorf("devtools send: %q is not a valid integer amount", args[0])
		}
		_, chain, _, _, err := buildIdentitiesAndChain(flags)
		if err != nil {
			return err
		}
		for _, addr := range args[1:] {
			if _, err := chainclient.AccAddressFromBech32(addr); err != nil {
				return fmt.Errorf("devtools send: invalid address %s: %w", addr, err)
			}
			if err := chain.SendFunds(cmd.Context(), 0, addr, amount); err != nil {
				return fmt.Errorf("devtools send: to %s: %w", addr, err)
			}
			fmt.Printf("sent %s aseda to %s\n", amount, addr)
		}
		return nil
	}
	return cmd
}

func newExecutorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executors",
		Short: "List the chain's registered executors and their stakes",
	}
	flags := addChainFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, chain, _, _, err := buildIdentitiesAndChain(flags)
		if err != nil {
			return err
		}
		stakers, err := chain.QueryStakers(cmd.Context())
		if err != nil {
			return fmt.Errorf("devtools executors: %w", err)
		}
		for _, s := range stakers {
			fmt.Printf("%s  staked=%s  pendingWithdrawal=%s\n", s.PublicKey, s.TokensStaked, s.TokensPendingWithdrawal)
		}
		fmt.Printf("%d executors\n", len(stakers))
		return nil
	}
	return cmd
}

func newChainConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain-config",
		Short: "Print the chain's DR and staking governance parameters",
	}
	flags := addChainFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, chain, _, _, err := buildIdentitiesAndChain(flags)
		if err != nil {
			return err
		}
		drCfg, err := chain.QueryDRConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("devtools chain-config: %w", err)
		}
		minimumStake, allowlistEnabled, err := chain.QueryStakingConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("devtools chain-config: %w", err)
		}
		fmt.Printf("commitTimeoutBlocks=%d revealTimeoutBlocks=%d backupDelayInBlocks=%d\n",
			drCfg.CommitTimeoutBlocks, drCfg.RevealTimeoutBlocks, drCfg.BackupDelayInBlocks)
		fmt.Printf("minimumStake=%s allowlistEnabled=%v\n", minimumStake, allowlistEnabled)
		return nil
	}
	return cmd
}

// newExecuteOpCmd runs an oracle program from a local file through the
// same wasmpool path the node uses, without touching the chain.
func newExecuteOpCmd() *cobra.Command {
	var gasLimit uint64
	cmd := &cobra.Command{
		Use:   "execute-op <wasm-file>",
		Short: "Execute a local oracle program for debugging",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 1_000_000_000, "execution gas limit")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		wasmBytes, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("devtools execute-op: reading %s: %w", args[0], err)
		}

		ctx := cmd.Context()
		pool := wasmpool.New(ctx, vmadapter.New(), wasmpool.DefaultConfig())
		defer pool.Close(context.Background())

		result, err := pool.Execute(ctx, wasmpool.CallData{
			DR:        &drtypes.DataRequest{ID: fmt.Sprintf("%x", protocolcrypto.Keccak256([]byte(args[0])))},
			WasmBytes: wasmBytes,
			Env:       map[string]string{"VM_MODE": "exec"},
			GasLimit:  gasLimit,
		})
		if err != nil {
			return fmt.Errorf("devtools execute-op: %w", err)
		}

		fmt.Printf("exitCode=%d gasUsed=%d\n", result.ExitCode, result.GasUsed)
		for _, line := range result.Stdout {
			fmt.Printf("stdout: %s\n", line)
		}
		for _, line := range result.Stderr {
			fmt.Printf("stderr: %s\n", line)
		}
		if len(result.Result) > 0 {
			fmt.Printf("result: %x\n", result.Result)
		}
		return nil
	}
	return cmd
}
