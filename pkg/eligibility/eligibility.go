// Package eligibility implements the EligibilityTask: the protocol's
// VRF-free positional selection algorithm with time-based backup
// expansion, evaluated locally against a 30s-cached snapshot of stakers,
// staking config, DR config, and current height.
package eligibility

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/debounce"
	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/identity"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
	"github.com/sedaoverlay/node/pkg/ttlcache"
)

// Chain is the narrow chainclient surface EligibilityTask needs.
type Chain interface {
	QueryStakers(ctx context.Context) ([]*drtypes.Staker, error)
	QueryStakingConfig(ctx context.Context) (minimumStake *big.Int, allowlistEnabled bool, err error)
	QueryDRConfig(ctx context.Context) (*drtypes.DRConfig, error)
	QueryBlockHeight(ctx context.Context) (uint64, error)
	QueryDR(ctx context.Context, id string) (*drtypes.DataRequest, error)
}

// Config holds EligibilityTask's tunables.
type Config struct {
	Interval    time.Duration // default 3s
	CacheTTL    time.Duration // default 30s
	StaleDRAge  time.Duration // default 15s
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:   3 * time.Second,
		CacheTTL:   30 * time.Second,
		StaleDRAge: 15 * time.Second,
	}
}

type snapshot struct {
	stakers          []*drtypes.Staker
	minimumStake     *big.Int
	allowlistEnabled bool
	backupDelay      uint64
	height           uint64
}

// EligibilityTask evaluates, locally, which enabled identities are
// selected for each pooled DR.
type EligibilityTask struct {
	chain   Chain
	pool    *drpool.Pool
	manager *identity.Manager
	cfg     Config

	snapCache *ttlcache.Cache[*snapshot]
}

// New wires an EligibilityTask.
func New(chain Chain, pool *drpool.Pool, manager *identity.Manager, cfg Config) *EligibilityTask {
	return &EligibilityTask{
		chain:     chain,
		pool:      pool,
		manager:   manager,
		cfg:       cfg,
		snapCache: ttlcache.New[*snapshot](cfg.CacheTTL),
	}
}

// Run ticks Evaluate on cfg.Interval until ctx is cancelled. Passes never
// overlap: the next tick is scheduled after the previous pass returns.
func (t *EligibilityTask) Run(ctx context.Context) {
	debounce.Interval(ctx, t.cfg.Interval, t.Evaluate)
}

// Evaluate runs one eligibility pass across every pooled DR and every
// enabled identity not already assigned to it.
func (t *EligibilityTask) Evaluate(ctx context.Context) {
	snap, err := t.loadSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("eligibility: loading snapshot failed")
		return
	}

	for _, dr := range t.pool.ListDRs() {
		dr = t.refreshIfStale(ctx, dr)
		if dr == nil {
			continue
		}

		blocksPassed := uint64(0)
		if snap.height > dr.Height {
			blocksPassed = snap.height - dr.Height
		}

		for _, id := range t.manager.EnabledIdentities() {
			if t.pool.HasIdentityDR(dr.ID, id.ID) {
				continue
			}
			if CalculateDrEligibility(snap.stakers, snap.minimumStake, snap.backupDelay, dr.ID, dr.ReplicationFactor, blocksPassed, id.ID) {
				t.pool.InsertIdentityDR(dr.ID, id.ID, snap.height, drtypes.StatusEligibleForExecution)
				log.Info().Str("dr", dr.ID).Str("identity", id.ID).Msg("eligibility: identity selected")
			}
		}
	}
}

// refreshIfStale re-reads dr from chain when its lastUpdated age exceeds
// cfg.StaleDRAge, removing it from the pool
// if the chain reports it absent, and returns the (possibly refreshed) DR,
// or nil if it was removed or could not be re-read this pass.
func (t *EligibilityTask) refreshIfStale(ctx context.Context, dr *drtypes.DataRequest) *drtypes.DataRequest {
	if time.Since(dr.LastUpdated) < t.cfg.StaleDRAge {
		return dr
	}

	fresh, err := t.chain.QueryDR(ctx, dr.ID)
	if err != nil {
		if errors.Is(err, chainclient.ErrNotFound) {
			t.pool.DeleteDR(dr.ID)
		} else {
			log.Warn().Err(err).Str("dr", dr.ID).Msg("eligibility: refreshing stale DR failed")
		}
		return nil
	}
	fresh.LastUpdated = time.Now()
	t.pool.InsertDR(fresh)
	return fresh
}

func (t *EligibilityTask) loadSnapshot(ctx context.Context) (*snapshot, error) {
	return t.snapCache.GetOrFetch("singleton", func() (*snapshot, error) {
		stakers, err := t.chain.QueryStakers(ctx)
		if err != nil {
			return nil, err
		}
		minimumStake, allowlistEnabled, err := t.chain.QueryStakingConfig(ctx)
		if err != nil {
			return nil, err
		}
		drCfg, err := t.chain.QueryDRConfig(ctx)
		if err != nil {
			return nil, err
		}
		height, err := t.chain.QueryBlockHeight(ctx)
		if err != nil {
			return nil, err
		}
		return &snapshot{
			stakers:          stakers,
			minimumStake:     minimumStake,
			allowlistEnabled: allowlistEnabled,
			backupDelay:      drCfg.BackupDelayInBlocks,
			height:           height,
		}, nil
	})
}

// positionalHash computes H(pk, drId) = keccak256(pk || drId_bytes).
// pkHex is the staker's declared (hex) compressed public key;
// entries that are not a valid secp256k1 point are excluded from the
// eligible set S entirely rather than hashed.
func positionalHash(pkHex string, drID string) ([]byte, bool) {
	pkBytes := protocolcrypto.MustHex(pkHex)
	if _, err := secp256k1.ParsePubKey(pkBytes); err != nil {
		return nil, false
	}
	return protocolcrypto.Keccak256(pkBytes, protocolcrypto.MustHex(drID)), true
}

// CalculateDrEligibility runs the positional selection algorithm for a
// single target identity (targetID, its hex compressed public key) against
// the staker set `stakers` filtered to those meeting minimumStake.
//
// This is deterministic and referentially transparent: identical inputs
// always yield the same boolean.
func CalculateDrEligibility(stakers []*drtypes.Staker, minimumStake *big.Int, backupDelayInBlocks uint64, drID string, replicationFactor uint16, blocksPassed uint64, targetID string) bool {
	targetHash, ok := positionalHash(targetID, drID)
	if !ok {
		return false
	}

	eligibleSet := make([][]byte, 0, len(stakers))
	for _, s := range stakers {
		if minimumStake != nil && s.TokensStaked.Cmp(minimumStake) < 0 {
			continue
		}
		h, ok := positionalHash(s.PublicKey, drID)
		if !ok {
			continue
		}
		eligibleSet = append(eligibleSet, h)
	}

	lowerHashCount := 0
	for _, h := range eligibleSet {
		if bytes.Compare(h, targetHash) < 0 {
			lowerHashCount++
		}
	}

	if backupDelayInBlocks == 0 {
		backupDelayInBlocks = 1
	}

	var totalNeeded uint64
	if blocksPassed <= backupDelayInBlocks {
		totalNeeded = uint64(replicationFactor)
	} else {
		totalNeeded = uint64(replicationFactor) + (blocksPassed-1)/backupDelayInBlocks
	}

	cappedNeeded := totalNeeded
	if uint64(len(eligibleSet)) < cappedNeeded {
		cappedNeeded = uint64(len(eligibleSet))
	}

	return uint64(lowerHashCount) < cappedNeeded
}
