package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	secp256k1sdk "github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	bankqtypes "github.com/cosmos/cosmos-sdk/x/bank/types"
)

// Signer is one of the node's derived sub-accounts: a signing key plus
// the cached {accountNumber, sequence} the dispatcher needs to build and
// broadcast transactions without a chain round-trip on every send.
type Signer struct {
	Index      int
	Address    string
	PrivKeyRaw []byte // 32-byte secp256k1 scalar

	mu            sync.Mutex
	accountNumber uint64
	sequence      uint64
	loaded        bool

	// broadcastMu serializes the whole sign-and-broadcast critical section
	// for this sub-account; mu alone only guards field access.
	broadcastMu sync.Mutex
}

// NewSigner wraps a derived sub-account keypair; index 0 is the funder
// account.
func NewSigner(index int, address string, privKeyRaw []byte) *Signer {
	return &Signer{Index: index, Address: address, PrivKeyRaw: privKeyRaw}
}

func (s *Signer) privKey() *secp256k1sdk.PrivKey {
	return &secp256k1sdk.PrivKey{Key: s.PrivKeyRaw}
}

func (s *Signer) pubKey() *secp256k1sdk.PubKey {
	return &secp256k1sdk.PubKey{Key: s.privKey().PubKey().Bytes()}
}

// SignerInfo is the public snapshot of a Signer's chain-facing state.
type SignerInfo struct {
	Index         int
	Address       string
	AccountNumber uint64
	Sequence      uint64
}

// GetSignerInfo returns the signer at index (or the default, index 0, if
// index is nil), refreshing account number/sequence from chain if not yet
// loaded.
func (c *Client) GetSignerInfo(ctx context.Context, index *int) (*SignerInfo, error) {
	i := 0
	if index != nil {
		i = *index
	}
	c.signersMu.Lock()
	if i < 0 || i >= len(c.signers) {
		c.signersMu.Unlock()
		return nil, fmt.Errorf("chainclient: signer index %d out of range", i)
	}
	signer := c.signers[i]
	c.signersMu.Unlock()

	if err := c.ensureAccountInfo(ctx, signer); err != nil {
		return nil, err
	}

	signer.mu.Lock()
	defer signer.mu.Unlock()
	return &SignerInfo{Index: signer.Index, Address: signer.Address, AccountNumber: signer.accountNumber, Sequence: signer.sequence}, nil
}

// GetAllSigners returns a snapshot of every sub-account's signer info.
func (c *Client) GetAllSigners(ctx context.Context) ([]*SignerInfo, error) {
	c.signersMu.Lock()
	signers := make([]*Signer, len(c.signers))
	copy(signers, c.signers)
	c.signersMu.Unlock()

	out := make([]*SignerInfo, 0, len(signers))
	for _, s := range signers {
		idx := s.Index
		info, err := c.GetSignerInfo(ctx, &idx)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// ensureAccountInfo fetches {accountNumber, sequence} from chain exactly
// once per signer unless invalidated by invalidateSequence (on a
// SequenceMismatch broadcast error).
func (c *Client) ensureAccountInfo(ctx context.Context, signer *Signer) error {
	signer.mu.Lock()
	if signer.loaded {
		signer.mu.Unlock()
		return nil
	}
	signer.mu.Unlock()

	accNum, seq, err := c.fetchAccountInfo(ctx, signer.Address)
	if err != nil {
		return fmt.Errorf("chainclient: fetching account info for %s: %w", signer.Address, err)
	}

	signer.mu.Lock()
	signer.accountNumber = accNum
	signer.sequence = seq
	signer.loaded = true
	signer.mu.Unlock()
	return nil
}

func (c *Client) fetchAccountInfo(ctx context.Context, address string) (accountNumber, sequence uint64, err error) {
	addr, err := sdk.AccAddressFromBech32(address)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bech32 address %s: %w", address, err)
	}

	req := &authtypes.QueryAccountRequest{Address: addr.String()}
	reqBytes, err := req.Marshal()
	if err != nil {
		return 0, 0, err
	}

	result, err := c.rpc.ABCIQueryWithOptions(ctx, "/cosmos.auth.v1beta1.Query/Account", reqBytes, rpcQueryOpts())
	if err != nil {
		return 0, 0, err
	}
	if result.Response.Code != 0 {
		return 0, 0, fmt.Errorf("account query returned code %d: %s", result.Response.Code, result.Response.Log)
	}

	var resp authtypes.QueryAccountResponse
	if err := resp.Unmarshal(result.Response.Value); err != nil {
		return 0, 0, err
	}

	var acc authtypes.BaseAccount
	if err := acc.Unmarshal(resp.Account.Value); err != nil {
		return 0, 0, err
	}
	return acc.AccountNumber, acc.Sequence, nil
}

// invalidateSequence forces the next ensureAccountInfo call for signer to
// refetch from chain; called after a SequenceMismatch broadcast error.
func (c *Client) invalidateSequence(signer *Signer) {
	signer.mu.Lock()
	signer.loaded = false
	signer.mu.Unlock()
}

// advanceSequence increments signer's cached sequence after a successful
// broadcast, so the next transaction from this sub-account does not need
// a chain round-trip.
func (c *Client) advanceSequence(signer *Signer) {
	signer.mu.Lock()
	signer.sequence++
	signer.mu.Unlock()
}

// GetBalance returns addr's spendable balance in the chain's base denom.
// Satisfies pkg/identity.ChainBalanceClient.
func (c *Client) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	req := &bankqtypes.QueryBalanceRequest{Address: addr, Denom: "aseda"}
	reqBytes, err := req.Marshal()
	if err != nil {
		return nil, fmt.Errorf("chainclient: marshaling balance request: %w", err)
	}

	result, err := c.rpc.ABCIQueryWithOptions(ctx, "/cosmos.bank.v1beta1.Query/Balance", reqBytes, rpcQueryOpts())
	if err != nil {
		return nil, fmt.Errorf("chainclient: balance query: %w", err)
	}
	if result.Response.Code != 0 {
		return nil, fmt.Errorf("chainclient: balance query returned code %d: %s", result.Response.Code, result.Response.Log)
	}

	var resp bankqtypes.QueryBalanceResponse
	if err := resp.Unmarshal(result.Response.Value); err != nil {
		return nil, fmt.Errorf("chainclient: unmarshaling balance response: %w", err)
	}
	if resp.Balance == nil {
		return zeroBigInt(), nil
	}
	return resp.Balance.Amount.BigInt(), nil
}

// SendFunds submits a plain bank MsgSend from the sub-account at
// fromSignerIndex, used by pkg/identity.SubAccountFunder. Satisfies
// pkg/identity.ChainBalanceClient.
func (c *Client) SendFunds(ctx context.Context, fromSignerIndex int, toAddress string, amount *big.Int) error {
	c.signersMu.Lock()
	if fromSignerIndex < 0 || fromSignerIndex >= len(c.signers) {
		c.signersMu.Unlock()
		return fmt.Errorf("chainclient: signer index %d out of range", fromSignerIndex)
	}
	signer := c.signers[fromSignerIndex]
	c.signersMu.Unlock()

	msg := &bankqtypes.MsgSend{
		FromAddress: signer.Address,
		ToAddress:   toAddress,
		Amount:      sdk.NewCoins(sdk.NewCoin("aseda", sdkIntFromBigInt(amount))),
	}

	_, err := c.WaitForTransaction(ctx, "bank_send", []sdk.Msg{msg}, PriorityLow, fromSignerIndex, "auto", nil)
	return err
}
