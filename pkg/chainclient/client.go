// Package chainclient is the single coherent surface for all chain I/O:
// contract queries, transaction queueing, and block/tx inclusion tracking
// against a Cosmos-SDK chain hosting the DR protocol contract. Built on
// cometbft's RPC client plus cosmos-sdk's tx building and CosmWasm smart
// queries.
package chainclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/sedaoverlay/node/pkg/ttlcache"
)

// Config wires a Client to a specific network (the config file's
// `sedaChain` block).
type Config struct {
	RPC                        string
	ChainID                    string
	ContractAddress            string
	GasPrice                   string // e.g. "10000000000"
	GasAdjustmentFactor        float64
	GasAdjustmentFactorCosmos  float64
	Gas                        string // "auto" or a fixed amount
	MemoSuffix                 string
	QueueInterval              time.Duration
	MaxRetries                 int
	SleepBetweenFailedTx       time.Duration
	TransactionBlockSearchMax  int
	DisableTransactionBlockSearch bool
	TransactionPollInterval    time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		GasPrice:                      "10000000000",
		GasAdjustmentFactor:           1.1,
		GasAdjustmentFactorCosmos:     2,
		Gas:                           "auto",
		QueueInterval:                 200 * time.Millisecond,
		MaxRetries:                    3,
		SleepBetweenFailedTx:          3 * time.Second,
		TransactionBlockSearchMax:     2,
		DisableTransactionBlockSearch: true,
		TransactionPollInterval:       2 * time.Second,
	}
}

// Client is the process-wide chain I/O singleton.
type Client struct {
	cfg Config
	rpc *rpchttp.HTTP

	signersMu sync.Mutex
	signers   []*Signer

	blockHeightCache *ttlcache.Cache[uint64]
	drCache          *ttlcache.Cache[*drResult]
	drConfigCache    *ttlcache.Cache[*drConfigResult]
	stakersCache     *ttlcache.Cache[*stakersResult]
	stakingCfgCache  *ttlcache.Cache[*stakingConfigResult]
}

// New dials the configured RPC endpoint with a cookie-jar-backed HTTP
// client and wraps `signers` as the sub-account fleet used for
// transaction submission. Sticky-session cookies keep sequence caching
// aligned with the shard's view on sharded RPC backends.
func New(cfg Config, signers []*Signer) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("chainclient: building cookie jar: %w", err)
	}
	httpClient := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	rpc, err := rpchttp.NewWithClient(cfg.RPC, "/websocket", httpClient)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dialing rpc %s: %w", cfg.RPC, err)
	}

	return &Client{
		cfg:              cfg,
		rpc:              rpc,
		signers:          signers,
		blockHeightCache: ttlcache.New[uint64](2500 * time.Millisecond),
		drCache:          ttlcache.New[*drResult](3 * time.Second),
		drConfigCache:    ttlcache.New[*drConfigResult](10 * time.Minute),
		stakersCache:     ttlcache.New[*stakersResult](10 * time.Minute),
		stakingCfgCache:  ttlcache.New[*stakingConfigResult](time.Hour),
	}, nil
}

// queryContractSmart runs a CosmWasm smart-contract query and unmarshals
// the JSON response into out. Routed through the node's in-process ABCI
// query service rather than a separate gRPC dial, matching how a single
// cometbft RPC endpoint is used for both Tendermint-level and app-level
// (CosmWasm) queries.
func (c *Client) queryContractSmart(ctx context.Context, queryMsg, out interface{}) error {
	queryData, err := marshalJSON(queryMsg)
	if err != nil {
		return fmt.Errorf("chainclient: marshaling query: %w", err)
	}

	req := &wasmtypes.QuerySmartContractStateRequest{
		Address:   c.cfg.ContractAddress,
		QueryData: queryData,
	}
	reqBytes, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("chainclient: marshaling abci query request: %w", err)
	}

	result, err := c.rpc.ABCIQueryWithOptions(ctx, "/cosmwasm.wasm.v1.Query/SmartContractState", reqBytes, rpcQueryOpts())
	if err != nil {
		return fmt.Errorf("chainclient: abci query: %w", err)
	}
	if result.Response.Code != 0 {
		return fmt.Errorf("chainclient: abci query returned code %d: %s", result.Response.Code, result.Response.Log)
	}

	var resp wasmtypes.QuerySmartContractStateResponse
	if err := resp.Unmarshal(result.Response.Value); err != nil {
		return fmt.Errorf("chainclient: unmarshaling abci response: %w", err)
	}

	if out == nil {
		return nil
	}
	return unmarshalJSON(resp.Data, out)
}

// AccAddressFromBech32 is a thin re-export used by callers constructing
// messages against sdk.AccAddress fields without importing cosmos-sdk
// types directly.
func AccAddressFromBech32(addr string) (sdk.AccAddress, error) {
	return sdk.AccAddressFromBech32(addr)
}
