package chainclient

import (
	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// WrapContractExecute builds the MsgExecuteContract that carries one of
// pkg/protocolcrypto's JSON message envelopes (stake, commit_data_result,
// reveal_data_result, ...) to the DR protocol contract.
// Dispatcher callers marshal the envelope with protocolcrypto's message
// structs and pass the raw JSON bytes here.
func (c *Client) WrapContractExecute(senderAddr string, payload []byte, funds sdk.Coins) sdk.Msg {
	return &wasmtypes.MsgExecuteContract{
		Sender:   senderAddr,
		Contract: c.cfg.ContractAddress,
		Msg:      payload,
		Funds:    funds,
	}
}

// ContractAddress exposes the configured contract address, used by
// callers hashing the `coreContractAddress` field into protocol message
// hashes.
func (c *Client) ContractAddress() string { return c.cfg.ContractAddress }

// ChainID exposes the configured chain id for the same reason.
func (c *Client) ChainID() string { return c.cfg.ChainID }
