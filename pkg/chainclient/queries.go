package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	rpcclient "github.com/cometbft/cometbft/rpc/client"

	"github.com/sedaoverlay/node/pkg/drtypes"
)

func marshalJSON(v interface{}) ([]byte, error)     { return json.Marshal(v) }
func unmarshalJSON(b []byte, out interface{}) error { return json.Unmarshal(b, out) }

func rpcQueryOpts() rpcclient.ABCIQueryOptions {
	return rpcclient.ABCIQueryOptions{Prove: false}
}

// Wrapper types give the generic ttlcache pointer-shaped values so a
// cache miss (nil) and "found but empty" are distinguishable.
type drResult struct{ dr *drtypes.DataRequest }
type drConfigResult struct{ cfg *drtypes.DRConfig }
type stakersResult struct{ stakers []*drtypes.Staker }
type stakingConfigResult struct {
	minimum          string
	allowlistEnabled bool
}

// --- contract query message envelopes (CosmWasm smart-query convention:
// one top-level key naming the query variant) ---

type drStatusListQuery struct {
	DrStatusList struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
		Cursor string `json:"offset,omitempty"`
	} `json:"dr_status_list"`
}

type getDrQuery struct {
	GetDataRequest struct {
		ID string `json:"dr_id"`
	} `json:"get_data_request"`
}

type getDrConfigQuery struct {
	GetDrConfig struct{} `json:"get_dr_config"`
}

type getStakersQuery struct {
	GetStakers struct {
		Limit  int    `json:"limit"`
		Offset string `json:"offset,omitempty"`
	} `json:"get_stakers"`
}

type getStakingConfigQuery struct {
	GetStakingConfig struct{} `json:"get_staking_config"`
}

type getStakerQuery struct {
	GetStaker struct {
		PublicKey string `json:"public_key"`
	} `json:"get_staker"`
}

// wireDataRequest is the contract's JSON projection of a DataRequest; the
// core translates it into drtypes.DataRequest.
type wireDataRequest struct {
	ID                string `json:"dr_id"`
	Version           string `json:"version"`
	ExecProgramID     string `json:"exec_program_id"`
	ExecInputs        string `json:"exec_inputs"`
	ExecGasLimit      uint64 `json:"exec_gas_limit"`
	TallyProgramID    string `json:"tally_program_id"`
	TallyInputs       string `json:"tally_inputs"`
	TallyGasLimit     uint64 `json:"tally_gas_limit"`
	ReplicationFactor uint16 `json:"replication_factor"`
	ConsensusFilter   string `json:"consensus_filter"`
	GasPrice          string `json:"gas_price"`
	PostedGasPrice    string `json:"posted_gas_price"`
	Memo              string `json:"memo"`
	PaybackAddress    string `json:"payback_address"`
	SedaPayload       string `json:"seda_payload"`
	Height            uint64 `json:"height"`
	Status            string `json:"status"`
	CommitsLength     uint32 `json:"commits_length"`
}

// QueryDRStatusList lists DRs in the given status, paginated by the
// contract's cursor.
func (c *Client) QueryDRStatusList(ctx context.Context, status drtypes.DRStatus, limit int, cursor string) (*drtypes.DRStatusPage, error) {
	var q drStatusListQuery
	q.DrStatusList.Status = string(status)
	q.DrStatusList.Limit = limit
	q.DrStatusList.Cursor = cursor

	var resp struct {
		DataRequests []wireDataRequest `json:"data_requests"`
		Total        int               `json:"total"`
		IsPaused     bool              `json:"is_paused"`
		HasMore      bool              `json:"has_more"`
		NextCursor   string            `json:"next_cursor"`
	}
	if err := c.queryContractSmart(ctx, q, &resp); err != nil {
		return nil, fmt.Errorf("chainclient: queryDRStatusList: %w", err)
	}

	page := &drtypes.DRStatusPage{
		Total:      resp.Total,
		IsPaused:   resp.IsPaused,
		HasMore:    resp.HasMore,
		NextCursor: resp.NextCursor,
	}
	for _, w := range resp.DataRequests {
		page.DRs = append(page.DRs, fromWireDataRequest(&w))
	}
	return page, nil
}

// QueryDR fetches a single DR by id, cached for 3s. Returns ErrNotFound
// if the chain reports absence.
func (c *Client) QueryDR(ctx context.Context, id string) (*drtypes.DataRequest, error) {
	res, err := c.drCache.GetOrFetch(id, func() (*drResult, error) {
		var q getDrQuery
		q.GetDataRequest.ID = id

		var resp struct {
			DataRequest *wireDataRequest `json:"data_request"`
		}
		if err := c.queryContractSmart(ctx, q, &resp); err != nil {
			return nil, err
		}
		if resp.DataRequest == nil {
			return &drResult{dr: nil}, nil
		}
		return &drResult{dr: fromWireDataRequest(resp.DataRequest)}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chainclient: queryDR(%s): %w", id, err)
	}
	if res.dr == nil {
		return nil, ErrNotFound
	}
	return res.dr, nil
}

// QueryDRConfig returns the governance-set DR parameters, cached 10min.
func (c *Client) QueryDRConfig(ctx context.Context) (*drtypes.DRConfig, error) {
	res, err := c.drConfigCache.GetOrFetch("singleton", func() (*drConfigResult, error) {
		var resp struct {
			CommitTimeoutBlocks uint64 `json:"commit_timeout_in_blocks"`
			RevealTimeoutBlocks uint64 `json:"reveal_timeout_in_blocks"`
			MaxExecInputBytes   uint64 `json:"max_exec_input_size_bytes"`
			MaxTallyInputBytes  uint64 `json:"max_tally_input_size_bytes"`
			BackupDelayInBlocks uint64 `json:"backup_delay_in_blocks"`
		}
		if err := c.queryContractSmart(ctx, getDrConfigQuery{}, &resp); err != nil {
			return nil, err
		}
		return &drConfigResult{cfg: &drtypes.DRConfig{
			CommitTimeoutBlocks: resp.CommitTimeoutBlocks,
			RevealTimeoutBlocks: resp.RevealTimeoutBlocks,
			MaxExecInputBytes:   resp.MaxExecInputBytes,
			MaxTallyInputBytes:  resp.MaxTallyInputBytes,
			BackupDelayInBlocks: maxUint64(resp.BackupDelayInBlocks, 1),
		}}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chainclient: queryDRConfig: %w", err)
	}
	return res.cfg, nil
}

// QueryStakers returns the union of every page of the staker set, cached
// 10min.
func (c *Client) QueryStakers(ctx context.Context) ([]*drtypes.Staker, error) {
	res, err := c.stakersCache.GetOrFetch("all", func() (*stakersResult, error) {
		const pageSize = 100
		var all []*drtypes.Staker
		offset := ""
		for {
			var q getStakersQuery
			q.GetStakers.Limit = pageSize
			q.GetStakers.Offset = offset

			var resp struct {
				Stakers []struct {
					PublicKey               string `json:"public_key"`
					TokensStaked            string `json:"tokens_staked"`
					TokensPendingWithdrawal string `json:"tokens_pending_withdrawal"`
					Memo                    string `json:"memo"`
				} `json:"stakers"`
				NextOffset string `json:"next_offset"`
			}
			if err := c.queryContractSmart(ctx, q, &resp); err != nil {
				return nil, err
			}
			for _, s := range resp.Stakers {
				all = append(all, &drtypes.Staker{
					PublicKey:               s.PublicKey,
					TokensStaked:            parseBigIntOrZero(s.TokensStaked),
					TokensPendingWithdrawal: parseBigIntOrZero(s.TokensPendingWithdrawal),
					Memo:                    s.Memo,
				})
			}
			if resp.NextOffset == "" || len(resp.Stakers) == 0 {
				break
			}
			offset = resp.NextOffset
		}
		return &stakersResult{stakers: all}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chainclient: queryStakers: %w", err)
	}
	return res.stakers, nil
}

// QueryStakingConfig returns minimumStake/allowlistEnabled, cached 1h.
func (c *Client) QueryStakingConfig(ctx context.Context) (*big.Int, bool, error) {
	res, err := c.stakingCfgCache.GetOrFetch("singleton", func() (*stakingConfigResult, error) {
		var resp struct {
			MinimumStake     string `json:"minimum_stake"`
			AllowlistEnabled bool   `json:"allowlist_enabled"`
		}
		if err := c.queryContractSmart(ctx, getStakingConfigQuery{}, &resp); err != nil {
			return nil, err
		}
		return &stakingConfigResult{minimum: resp.MinimumStake, allowlistEnabled: resp.AllowlistEnabled}, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("chainclient: queryStakingConfig: %w", err)
	}
	return parseBigIntOrZero(res.minimum), res.allowlistEnabled, nil
}

// QueryStaker fetches a single staker by public key, uncached (callers
// needing the full set should use QueryStakers). Satisfies
// pkg/identity.StakerQuery.
func (c *Client) QueryStaker(ctx context.Context, publicKey string) (*drtypes.Staker, error) {
	var q getStakerQuery
	q.GetStaker.PublicKey = publicKey

	var resp struct {
		Staker *struct {
			PublicKey               string `json:"public_key"`
			TokensStaked            string `json:"tokens_staked"`
			TokensPendingWithdrawal string `json:"tokens_pending_withdrawal"`
			Memo                    string `json:"memo"`
		} `json:"staker"`
	}
	if err := c.queryContractSmart(ctx, q, &resp); err != nil {
		return nil, fmt.Errorf("chainclient: queryStaker(%s): %w", publicKey, err)
	}
	if resp.Staker == nil {
		return nil, nil
	}
	return &drtypes.Staker{
		PublicKey:               resp.Staker.PublicKey,
		TokensStaked:            parseBigIntOrZero(resp.Staker.TokensStaked),
		TokensPendingWithdrawal: parseBigIntOrZero(resp.Staker.TokensPendingWithdrawal),
		Memo:                    resp.Staker.Memo,
	}, nil
}

// QueryStakerAndSeq returns both the staker record (possibly absent) and
// the protocol sequence number used in the stake/unstake/withdraw hash
// formulas, in a single round trip.
func (c *Client) QueryStakerAndSeq(ctx context.Context, publicKey string) (*drtypes.Staker, *big.Int, error) {
	staker, err := c.QueryStaker(ctx, publicKey)
	if err != nil {
		return nil, nil, err
	}

	var q struct {
		GetStakerSeq struct {
			PublicKey string `json:"public_key"`
		} `json:"get_staker_seq"`
	}
	q.GetStakerSeq.PublicKey = publicKey
	var resp struct {
		Seq string `json:"sequence"`
	}
	if err := c.queryContractSmart(ctx, q, &resp); err != nil {
		return nil, nil, fmt.Errorf("chainclient: queryStakerAndSeq(%s): %w", publicKey, err)
	}
	return staker, parseBigIntOrZero(resp.Seq), nil
}

// QueryPendingWithdrawal satisfies pkg/identity.PendingWithdrawalQuery.
func (c *Client) QueryPendingWithdrawal(ctx context.Context, publicKey string) (*big.Int, error) {
	staker, err := c.QueryStaker(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if staker == nil {
		return zeroBigInt(), nil
	}
	return staker.TokensPendingWithdrawal, nil
}

func fromWireDataRequest(w *wireDataRequest) *drtypes.DataRequest {
	return &drtypes.DataRequest{
		ID:                w.ID,
		Version:           w.Version,
		ExecProgramID:     w.ExecProgramID,
		ExecInputs:        mustHexOrRaw(w.ExecInputs),
		ExecGasLimit:      w.ExecGasLimit,
		TallyProgramID:    w.TallyProgramID,
		TallyInputs:       mustHexOrRaw(w.TallyInputs),
		TallyGasLimit:     w.TallyGasLimit,
		ReplicationFactor: w.ReplicationFactor,
		ConsensusFilter:   mustHexOrRaw(w.ConsensusFilter),
		GasPrice:          parseBigIntOrZero(w.GasPrice),
		PostedGasPrice:    parseBigIntOrZero(w.PostedGasPrice),
		Memo:              mustHexOrRaw(w.Memo),
		PaybackAddress:    mustHexOrRaw(w.PaybackAddress),
		SedaPayload:       mustHexOrRaw(w.SedaPayload),
		Height:            w.Height,
		Status:            drtypes.DRStatus(w.Status),
		CommitsLength:     w.CommitsLength,
	}
}
