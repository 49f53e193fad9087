// Identity management subcommands: inspect an identity's chain status,
// or submit the stake/unstake/withdraw messages directly against the
// contract, outside of MainTask's normal dispatch queue since these are
// one-shot operator actions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/identity"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
)

// baseDenom is the chain's native token denomination, matching
// pkg/chainclient's internal fee/balance handling.
const baseDenom = "aseda"

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect or manage this node's staked identities",
}

var (
	identityIndex int
	identityMemo  string
)

var identitiesInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List every derived identity and its chain staking status",
}

var identitiesStakeCmd = &cobra.Command{
	Use:   "stake [amount]",
	Short: "Stake tokens for an identity",
	Args:  cobra.ExactArgs(1),
}

var identitiesUnstakeCmd = &cobra.Command{
	Use:   "unstake",
	Short: "Unstake all tokens for an identity",
}

var identitiesWithdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw an identity's pending rewards",
}

func init() {
	infoFlags := addChainFlags(identitiesInfoCmd)
	stakeFlags := addChainFlags(identitiesStakeCmd)
	unstakeFlags := addChainFlags(identitiesUnstakeCmd)
	withdrawFlags := addChainFlags(identitiesWithdrawCmd)

	for _, cmd := range []*cobra.Command{identitiesStakeCmd, identitiesUnstakeCmd, identitiesWithdrawCmd} {
		cmd.Flags().IntVarP(&identityIndex, "index", "i", 0, "identity index (m/44'/83696865'/0'/0/i)")
	}
	identitiesStakeCmd.Flags().StringVar(&identityMemo, "memo", "", "optional memo")

	identitiesInfoCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runIdentitiesInfo(cmd.Context(), infoFlags)
	}
	identitiesStakeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runIdentitiesStake(cmd.Context(), stakeFlags, args[0])
	}
	identitiesUnstakeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runIdentitiesUnstake(cmd.Context(), unstakeFlags)
	}
	identitiesWithdrawCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runIdentitiesWithdraw(cmd.Context(), withdrawFlags)
	}

	identitiesCmd.AddCommand(identitiesInfoCmd, identitiesStakeCmd, identitiesUnstakeCmd, identitiesWithdrawCmd)
}

func buildIdentitiesAndChain(f *chainFlags) (identities []*identity.Identity, chain *chainclient.Client, chainID, contract string, err error) {
	cfg, err := f.load()
	if err != nil {
		return nil, nil, "", "", err
	}
	identities, err = identity.DeriveIdentities(cfg.SedaChain.Mnemonic, cfg.SedaChain.IdentitiesAmount)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("deriving identities: %w", err)
	}
	signers, err := deriveSubAccountSigners(cfg.SedaChain.Mnemonic, cfg.SedaChain.AccountAmounts)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("deriving sub-account signers: %w", err)
	}
	chain, err = chainclient.New(chainClientConfig(cfg), signers)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("dialing chain: %w", err)
	}
	return identities, chain, cfg.SedaChain.ChainID, cfg.SedaChain.Contract, nil
}

func runIdentitiesInfo(ctx context.Context, f *chainFlags) error {
	identities, chain, _, _, err := buildIdentitiesAndChain(f)
	if err != nil {
		return err
	}
	minimumStake, _, err := chain.QueryStakingConfig(ctx)
	if err != nil {
		return fmt.Errorf("querying staking config: %w", err)
	}
	for _, id := range identities {
		staker, err := chain.QueryStaker(ctx, id.ID)
		if err != nil || staker == nil {
			fmt.Printf("identity %d  %s  not staked\n", id.Index, id.ID)
			continue
		}
		enabled := staker.TokensStaked.Cmp(minimumStake) >= 0
		fmt.Printf("identity %d  %s  staked=%s  pendingWithdrawal=%s  enabled=%v\n",
			id.Index, id.ID, staker.TokensStaked, staker.TokensPendingWithdrawal, enabled)
	}
	return nil
}

func runIdentitiesStake(ctx context.Context, f *chainFlags, amountArg string) error {
	amount, ok := new(big.Int).SetString(amountArg, 10)
	if !ok {
		return fmt.Errorf("identities stake: %q is not a valid integer amount", amountArg)
	}

	identities, chain, chainID, contract, err := buildIdentitiesAndChain(f)
	if err != nil {
		return err
	}
	id, err := identityAt(identities, identityIndex)
	if err != nil {
		return err
	}

	_, sequence, err := chain.QueryStakerAndSeq(ctx, id.ID)
	if err != nil {
		return fmt.Errorf("identities stake: querying sequence: %w", err)
	}

	var memoPtr *string
	var memoBytes []byte
	if identityMemo != "" {
		memoPtr = &identityMemo
		memoBytes = []byte(identityMemo)
	}

	hash := protocolcrypto.HashStake(memoBytes, chainID, contract, sequence)
	proof, err := protocolcrypto.Prove(id.PrivateKey, hash)
	if err != nil {
		return fmt.Errorf("identities stake: signing: %w", err)
	}

	msg := protocolcrypto.StakeMsg{PublicKey: id.ID, Proof: protocolcrypto.ToHex(proof), Memo: memoPtr}
	funds := sdk.NewCoins(sdk.NewCoin(baseDenom, sdkmath.NewIntFromBigInt(amount)))
	return submitAdminMsg(ctx, chain, "stake", msg, funds)
}

func runIdentitiesUnstake(ctx context.Context, f *chainFlags) error {
	identities, chain, chainID, contract, err := buildIdentitiesAndChain(f)
	if err != nil {
		return err
	}
	id, err := identityAt(identities, identityIndex)
	if err != nil {
		return err
	}

	staker, sequence, err := chain.QueryStakerAndSeq(ctx, id.ID)
	if err != nil || staker == nil {
		return fmt.Errorf("identities unstake: identity is not staked")
	}

	hash := protocolcrypto.HashUnstake(staker.TokensStaked, chainID, contract, sequence)
	proof, err := protocolcrypto.Prove(id.PrivateKey, hash)
	if err != nil {
		return fmt.Errorf("identities unstake: signing: %w", err)
	}

	msg := protocolcrypto.UnstakeMsg{PublicKey: id.ID, Proof: protocolcrypto.ToHex(proof)}
	return submitAdminMsg(ctx, chain, "unstake", msg, nil)
}

func runIdentitiesWithdraw(ctx context.Context, f *chainFlags) error {
	identities, chain, chainID, contract, err := buildIdentitiesAndChain(f)
	if err != nil {
		return err
	}
	id, err := identityAt(identities, identityIndex)
	if err != nil {
		return err
	}

	pending, err := chain.QueryPendingWithdrawal(ctx, id.ID)
	if err != nil {
		return fmt.Errorf("identities withdraw: querying pending withdrawal: %w", err)
	}
	_, sequence, err := chain.QueryStakerAndSeq(ctx, id.ID)
	if err != nil {
		return fmt.Errorf("identities withdraw: querying sequence: %w", err)
	}

	hash := protocolcrypto.HashWithdraw(pending, chainID, contract, sequence)
	proof, err := protocolcrypto.Prove(id.PrivateKey, hash)
	if err != nil {
		return fmt.Errorf("identities withdraw: signing: %w", err)
	}

	signerInfo, err := chain.GetSignerInfo(ctx, nil)
	if err != nil {
		return fmt.Errorf("identities withdraw: resolving funder address: %w", err)
	}
	msg := protocolcrypto.WithdrawMsg{PublicKey: id.ID, Proof: protocolcrypto.ToHex(proof), WithdrawAddress: signerInfo.Address}
	return submitAdminMsg(ctx, chain, "withdraw", msg, nil)
}

func identityAt(identities []*identity.Identity, index int) (*identity.Identity, error) {
	for _, id := range identities {
		if id.Index == index {
			return id, nil
		}
	}
	return nil, fmt.Errorf("identity index %d was not derived (sedaChain.identitiesAmount too small?)", index)
}

// marshalContractMsg wraps body in the {"<kind>": body} envelope the
// contract's ExecuteMsg enum expects, matching pkg/dispatcher's
// marshalEnvelope shape.
func marshalContractMsg(kind string, body interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{kind: body})
}

// submitAdminMsg marshals msg as the contract execute payload, waits for
// inclusion on the funder sub-account (index 0), and prints the resulting
// tx hash.
func submitAdminMsg(ctx context.Context, chain *chainclient.Client, kind string, msg interface{}, funds sdk.Coins) error {
	payload, err := marshalContractMsg(kind, msg)
	if err != nil {
		return fmt.Errorf("marshaling %s message: %w", kind, err)
	}
	signerInfo, err := chain.GetSignerInfo(ctx, nil)
	if err != nil {
		return fmt.Errorf("resolving funder signer: %w", err)
	}
	execMsg := chain.WrapContractExecute(signerInfo.Address, payload, funds)
	result, err := chain.WaitForTransaction(ctx, kind, []sdk.Msg{execMsg}, chainclient.PriorityHigh, 0, "auto", &funds)
	if err != nil {
		return fmt.Errorf("submitting transaction: %w", err)
	}
	fmt.Printf("tx %s included\n", result.TxHash)
	return nil
}
