package identity

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/debounce"
	"github.com/sedaoverlay/node/pkg/drtypes"
)

// StakerQuery is satisfied by pkg/chainclient.Client.
type StakerQuery interface {
	QueryStaker(ctx context.Context, publicKey string) (*drtypes.Staker, error)
	QueryStakingConfig(ctx context.Context) (minimumStake *big.Int, allowlistEnabled bool, err error)
}

// ReadinessChecker runs the identityCheck interval task: an identity is
// enabled iff its staked tokens meet the chain's minimumStake. Runs once
// at startup and then on a fixed interval.
type ReadinessChecker struct {
	manager *Manager
	query   StakerQuery
}

func NewReadinessChecker(manager *Manager, query StakerQuery) *ReadinessChecker {
	return &ReadinessChecker{manager: manager, query: query}
}

// Run performs one readiness pass across every identity, logging
// enabled/disabled transitions.
func (r *ReadinessChecker) Run(ctx context.Context) {
	minimumStake, _, err := r.query.QueryStakingConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("staking config query failed; skipping readiness check")
		return
	}

	for _, id := range r.manager.Identities() {
		staker, err := r.query.QueryStaker(ctx, id.ID)
		wasEnabled := r.manager.IsEnabled(id.ID)
		var nowEnabled bool
		if err != nil || staker == nil {
			nowEnabled = false
		} else {
			nowEnabled = staker.TokensStaked.Cmp(minimumStake) >= 0
		}

		r.manager.SetEnabled(id.ID, nowEnabled)
		if nowEnabled != wasEnabled {
			log.Info().Str("identity", id.ID).Bool("enabled", nowEnabled).Msg("identity readiness changed")
		}
	}
}

// StartLoop runs Run once immediately and then on the given interval
// until ctx is cancelled.
func (r *ReadinessChecker) StartLoop(ctx context.Context, interval time.Duration) {
	debounce.Once(ctx, interval, r.Run)
}
