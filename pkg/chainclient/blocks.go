package chainclient

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sedaoverlay/node/pkg/drtypes"
)

// QueryBlockHeight returns the chain's current height, cached for 2.5s.
func (c *Client) QueryBlockHeight(ctx context.Context) (uint64, error) {
	return c.blockHeightCache.GetOrFetch("height", func() (uint64, error) {
		status, err := c.rpc.Status(ctx)
		if err != nil {
			return 0, fmt.Errorf("chainclient: status: %w", err)
		}
		return uint64(status.SyncInfo.LatestBlockHeight), nil
	})
}

// QueryBlock returns the tx hashes included at height, used by the
// block-search transaction-inclusion path.
func (c *Client) QueryBlock(ctx context.Context, height uint64) (*drtypes.Block, error) {
	h := int64(height)
	block, err := c.rpc.Block(ctx, &h)
	if err != nil {
		return nil, fmt.Errorf("chainclient: block(%d): %w", height, err)
	}

	txIDs := make([]string, 0, len(block.Block.Data.Txs))
	for _, tx := range block.Block.Data.Txs {
		txIDs = append(txIDs, fmt.Sprintf("%X", tx.Hash()))
	}
	return &drtypes.Block{Height: height, TxIDs: txIDs}, nil
}

// QueryOracleProgram fetches an oracle program's WASM bytes from the
// contract. pkg/progcache wraps this with the on-disk cache; this method
// always hits the chain.
func (c *Client) QueryOracleProgram(ctx context.Context, execProgramID string) ([]byte, error) {
	var q struct {
		GetOracleProgram struct {
			ID string `json:"program_id"`
		} `json:"get_oracle_program"`
	}
	q.GetOracleProgram.ID = execProgramID

	var resp struct {
		Bytecode string `json:"bytecode"` // base64
	}
	if err := c.queryContractSmart(ctx, q, &resp); err != nil {
		return nil, fmt.Errorf("chainclient: queryOracleProgram(%s): %w", execProgramID, err)
	}
	if resp.Bytecode == "" {
		return nil, ErrNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("chainclient: decoding oracle program bytecode: %w", err)
	}
	return raw, nil
}
