package chainclient

import (
	"context"
	"fmt"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/cometbft/cometbft/libs/bytes"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/cosmos/cosmos-sdk/client"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	cryptocodec "github.com/cosmos/cosmos-sdk/crypto/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	txsigning "github.com/cosmos/cosmos-sdk/types/tx/signing"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
)

// Priority is the dispatcher's queueing priority: HIGH entries
// (reveal transactions) are moved to the front of their sub-account's
// queue ahead of LOW entries (everything else).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

// TxResult is the outcome of a transaction that reached on-chain
// inclusion, as reported by waitForTransaction.
type TxResult struct {
	TxHash string
	Height int64
	Code   uint32
	RawLog string
}

var globalTxConfig = newTxConfig()

func newTxConfig() client.TxConfig {
	registry := codectypes.NewInterfaceRegistry()
	cryptocodec.RegisterInterfaces(registry)
	sdk.RegisterInterfaces(registry)
	banktypes.RegisterInterfaces(registry)
	wasmtypes.RegisterInterfaces(registry)
	return authtx.NewTxConfig(newProtoCodec(registry), authtx.DefaultSignModes)
}

// buildAndSignTx assembles a single-signer transaction for msgs using
// signer's cached account number/sequence. Callers must hold the signer's
// broadcastMu.
func (c *Client) buildAndSignTx(ctx context.Context, msgs []sdk.Msg, signer *Signer, gasOption string) ([]byte, error) {
	if err := c.ensureAccountInfo(ctx, signer); err != nil {
		return nil, err
	}

	builder := globalTxConfig.NewTxBuilder()
	if err := builder.SetMsgs(msgs...); err != nil {
		return nil, fmt.Errorf("chainclient: setting messages: %w", err)
	}
	if c.cfg.MemoSuffix != "" {
		builder.SetMemo(c.cfg.MemoSuffix)
	}

	gasLimit, err := c.resolveGasLimit(ctx, msgs, signer, gasOption)
	if err != nil {
		return nil, fmt.Errorf("chainclient: estimating gas: %w", err)
	}
	builder.SetGasLimit(gasLimit)
	builder.SetFeeAmount(sdk.NewCoins(c.feeForGas(gasLimit)))

	signer.mu.Lock()
	accNum, seq := signer.accountNumber, signer.sequence
	signer.mu.Unlock()

	signerData := authsigning.SignerData{
		ChainID:       c.cfg.ChainID,
		AccountNumber: accNum,
		Sequence:      seq,
	}

	sigData := txsigning.SingleSignatureData{SignMode: txsigning.SignMode_SIGN_MODE_DIRECT, Signature: nil}
	sig := txsigning.SignatureV2{PubKey: signer.pubKey(), Data: &sigData, Sequence: seq}
	if err := builder.SetSignatures(sig); err != nil {
		return nil, fmt.Errorf("chainclient: setting unsigned signature slot: %w", err)
	}

	bytesToSign, err := authsigning.GetSignBytesAdapter(ctx, globalTxConfig.SignModeHandler(), txsigning.SignMode_SIGN_MODE_DIRECT, signerData, builder.GetTx())
	if err != nil {
		return nil, fmt.Errorf("chainclient: computing sign bytes: %w", err)
	}

	sigBytes, err := signer.privKey().Sign(bytesToSign)
	if err != nil {
		return nil, fmt.Errorf("chainclient: signing transaction: %w", err)
	}
	sigData.Signature = sigBytes
	if err := builder.SetSignatures(txsigning.SignatureV2{PubKey: signer.pubKey(), Data: &sigData, Sequence: seq}); err != nil {
		return nil, fmt.Errorf("chainclient: attaching signature: %w", err)
	}

	return globalTxConfig.TxEncoder()(builder.GetTx())
}

// QueueMessage signs and asynchronously broadcasts msgs from signerIndex,
// returning the broadcast tx hash without waiting for inclusion. priority
// is informational here; pkg/dispatcher enforces per-account queueing
// order.
func (c *Client) QueueMessage(ctx context.Context, kind string, msgs []sdk.Msg, priority Priority, signerIndex int, gasOption string) (string, error) {
	signer, err := c.signerAt(signerIndex)
	if err != nil {
		return "", err
	}

	// Sign-and-broadcast is one critical section per sub-account: a second
	// broadcast reading the cached sequence before the first advances it
	// would produce two transactions with the same sequence.
	signer.broadcastMu.Lock()
	defer signer.broadcastMu.Unlock()

	txBytes, err := c.buildAndSignTx(ctx, msgs, signer, gasOption)
	if err != nil {
		return "", err
	}

	res, err := c.rpc.BroadcastTxSync(ctx, txBytes)
	if err != nil {
		return "", classifyAndReturn("", err, c, signer)
	}
	if res.Code != 0 {
		berr := classifyBroadcastError(res.Hash.String(), fmt.Errorf("%s", res.Log))
		if berr.Kind == KindSequenceMismatch {
			c.invalidateSequence(signer)
		}
		return res.Hash.String(), berr
	}

	c.advanceSequence(signer)
	return res.Hash.String(), nil
}

// WaitForTransaction signs, broadcasts, and blocks until msgs are
// included on-chain or the poll deadline of
// (maxRetries+1)*sleepBetweenFailedTx*4 passes. attachedAmount, when
// non-nil, funds the message with a Coins amount (used for `stake`).
func (c *Client) WaitForTransaction(ctx context.Context, kind string, msgs []sdk.Msg, priority Priority, signerIndex int, gasOption string, attachedAmount *sdk.Coins) (*TxResult, error) {
	if attachedAmount != nil && !attachedAmount.IsZero() {
		msgs = attachFunds(msgs, *attachedAmount)
	}

	txHash, err := c.QueueMessage(ctx, kind, msgs, priority, signerIndex, gasOption)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(time.Duration(c.cfg.MaxRetries+1) * c.cfg.SleepBetweenFailedTx * 4)
	ticker := time.NewTicker(c.cfg.TransactionPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			result, err := c.fetchTxResult(ctx, txHash)
			if err == nil {
				return result, nil
			}
			if time.Now().After(deadline) {
				return nil, classifyBroadcastError(txHash, fmt.Errorf("timed out waiting for inclusion"))
			}
		}
	}
}

func (c *Client) fetchTxResult(ctx context.Context, txHash string) (*TxResult, error) {
	if c.cfg.DisableTransactionBlockSearch {
		return c.fetchTxResultDirect(ctx, txHash)
	}
	return c.fetchTxResultByBlockSearch(ctx, txHash)
}

func (c *Client) fetchTxResultDirect(ctx context.Context, txHash string) (*TxResult, error) {
	hashBytes, err := hexToBytes(txHash)
	if err != nil {
		return nil, err
	}
	res, err := c.rpc.Tx(ctx, bytes.HexBytes(hashBytes), false)
	if err != nil {
		return nil, err // not yet indexed; caller keeps polling
	}
	return txResultFromResultTx(res), nil
}

func (c *Client) fetchTxResultByBlockSearch(ctx context.Context, txHash string) (*TxResult, error) {
	height, err := c.QueryBlockHeight(ctx)
	if err != nil {
		return nil, err
	}
	for h := height; h > height-uint64(c.cfg.TransactionBlockSearchMax) && h > 0; h-- {
		block, err := c.QueryBlock(ctx, h)
		if err != nil {
			continue
		}
		for _, id := range block.TxIDs {
			if id == txHash {
				return &TxResult{TxHash: txHash, Height: int64(h)}, nil
			}
		}
	}
	return nil, fmt.Errorf("chainclient: tx %s not found in last %d blocks", txHash, c.cfg.TransactionBlockSearchMax)
}

func txResultFromResultTx(res *coretypes.ResultTx) *TxResult {
	return &TxResult{
		TxHash: res.Hash.String(),
		Height: res.Height,
		Code:   res.TxResult.Code,
		RawLog: res.TxResult.Log,
	}
}

// attachFunds sets amount as the funds on every contract-execute message
// that does not already carry any, used for `stake`'s attached deposit.
func attachFunds(msgs []sdk.Msg, amount sdk.Coins) []sdk.Msg {
	out := make([]sdk.Msg, len(msgs))
	for i, m := range msgs {
		if exec, ok := m.(*wasmtypes.MsgExecuteContract); ok && exec.Funds.IsZero() {
			withFunds := *exec
			withFunds.Funds = amount
			out[i] = &withFunds
			continue
		}
		out[i] = m
	}
	return out
}

func (c *Client) signerAt(index int) (*Signer, error) {
	c.signersMu.Lock()
	defer c.signersMu.Unlock()
	if index < 0 || index >= len(c.signers) {
		return nil, fmt.Errorf("chainclient: signer index %d out of range", index)
	}
	return c.signers[index], nil
}

func classifyAndReturn(txHash string, err error, c *Client, signer *Signer) error {
	berr := classifyBroadcastError(txHash, err)
	if berr.Kind == KindSequenceMismatch {
		c.invalidateSequence(signer)
	}
	return berr
}
