package identity

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/debounce"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
)

// PendingWithdrawalQuery is satisfied by pkg/chainclient.Client; kept
// narrow so identity does not import chainclient directly.
type PendingWithdrawalQuery interface {
	QueryPendingWithdrawal(ctx context.Context, publicKey string) (*big.Int, error)
}

// WithdrawSubmitter submits a signed withdraw message; satisfied by
// pkg/dispatcher.Dispatcher.
type WithdrawSubmitter interface {
	SubmitWithdraw(ctx context.Context, identityID string, proof []byte, withdrawAddress string) error
}

// RewardsWithdrawer periodically withdraws pending rewards for every
// identity whose tokensPendingWithdrawal is at least the configured minimum.
// Reward accrual lives on-chain, so each pass is query, sign, submit.
type RewardsWithdrawer struct {
	manager         *Manager
	query           PendingWithdrawalQuery
	submitter       WithdrawSubmitter
	minThreshold    *big.Int
	withdrawAddress string
	chainID         string
	contractAddress string
	sequenceFor     func(identityID string) *big.Int
}

// NewRewardsWithdrawer wires a withdrawer. sequenceFor supplies the current
// protocol sequence used in the withdraw message hash; the node backs it
// with the identity's staker sequence queried from chain.
func NewRewardsWithdrawer(
	manager *Manager,
	query PendingWithdrawalQuery,
	submitter WithdrawSubmitter,
	minThreshold *big.Int,
	withdrawAddress, chainID, contractAddress string,
	sequenceFor func(identityID string) *big.Int,
) *RewardsWithdrawer {
	return &RewardsWithdrawer{
		manager:         manager,
		query:           query,
		submitter:       submitter,
		minThreshold:    minThreshold,
		withdrawAddress: withdrawAddress,
		chainID:         chainID,
		contractAddress: contractAddress,
		sequenceFor:     sequenceFor,
	}
}

// Run executes one withdrawal pass across every identity.
func (w *RewardsWithdrawer) Run(ctx context.Context) {
	for _, id := range w.manager.Identities() {
		pending, err := w.query.QueryPendingWithdrawal(ctx, id.ID)
		if err != nil {
			log.Warn().Err(err).Str("identity", id.ID).Msg("pending withdrawal query failed")
			continue
		}
		if pending.Cmp(w.minThreshold) < 0 {
			continue
		}

		seq := w.sequenceFor(id.ID)
		hash := protocolcrypto.HashWithdraw(pending, w.chainID, w.contractAddress, seq)
		proof, err := protocolcrypto.Prove(id.PrivateKey, hash)
		if err != nil {
			log.Error().Err(err).Str("identity", id.ID).Msg("withdraw proof generation failed")
			continue
		}

		if err := w.submitter.SubmitWithdraw(ctx, id.ID, proof, w.withdrawAddress); err != nil {
			log.Error().Err(err).Str("identity", id.ID).Msg("withdraw submission failed")
			continue
		}
		log.Info().Str("identity", id.ID).Str("amount", pending.String()).Msg("rewards withdrawn")
	}
}

// StartLoop runs Run on the given interval until ctx is cancelled.
func (w *RewardsWithdrawer) StartLoop(ctx context.Context, interval time.Duration) {
	debounce.Interval(ctx, interval, w.Run)
}
