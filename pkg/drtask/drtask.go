// Package drtask implements the per-(DR, identity) state machine:
// EligibleForExecution -> Executed -> Committed -> ReadyToBeRevealed ->
// Revealed, with Failed reachable from any state on exhausted retries.
package drtask

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/dispatcher"
	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/identity"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
	"github.com/sedaoverlay/node/pkg/wasmpool"
)

// Chain is the narrow chainclient surface the refresh sub-task needs.
type Chain interface {
	QueryDR(ctx context.Context, id string) (*drtypes.DataRequest, error)
}

// TxSubmitter is the narrow dispatcher surface drtask needs.
type TxSubmitter interface {
	SubmitCommit(ctx context.Context, p dispatcher.CommitParams) (*chainclient.TxResult, error)
	SubmitReveal(ctx context.Context, p dispatcher.RevealParams) (*chainclient.TxResult, error)
}

// WasmExecutor is the narrow wasmpool surface drtask needs.
type WasmExecutor interface {
	Execute(ctx context.Context, cd wasmpool.CallData) (*wasmpool.Result, error)
}

// ProgramSource is the narrow progcache surface drtask needs.
type ProgramSource interface {
	Get(ctx context.Context, execProgramID string) ([]byte, error)
}

// Config holds per-task tunables.
type Config struct {
	StatusCheckInterval  time.Duration // default 2.5s
	DRTaskInterval       time.Duration // default 100ms
	MaxRetries           int           // default 3
	SleepBetweenFailedTx time.Duration // default 3s
	MaxGasLimit          uint64        // default 300 Tgas
	GasAdjustmentFactor  float64       // default 1.1
	GasEstimationsEnabled bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		StatusCheckInterval:   2500 * time.Millisecond,
		DRTaskInterval:        100 * time.Millisecond,
		MaxRetries:            3,
		SleepBetweenFailedTx:  3 * time.Second,
		MaxGasLimit:           300_000_000_000_000, // 300 Tgas
		GasAdjustmentFactor:   1.1,
		GasEstimationsEnabled: true,
	}
}

// Task drives exactly one (drId, identityId) through the state machine.
type Task struct {
	drID       string
	identity   *identity.Identity
	pool       *drpool.Pool
	chain      Chain
	wasm       WasmExecutor
	programs   ProgramSource
	dispatcher TxSubmitter
	cfg        Config

	chainID         string
	contractAddress string
	signerAddress   string
	signerIndex     int

	// retryAfter gates step() after a failed transition so retries pace at
	// SleepBetweenFailedTx rather than the much shorter DRTaskInterval.
	retryAfter time.Time

	// onComplete, if set, is invoked with the task's terminal status just
	// before its pool entry is deleted. Lets pkg/overlay track completed-DR
	// counters for the diagnostics snapshot without drtask importing it.
	onComplete func(drtypes.TaskStatus)
}

// New wires a Task for one (drId, identityId) pair. signerAddress/
// signerIndex select which sub-account submits this task's transactions.
func New(drID string, id *identity.Identity, pool *drpool.Pool, chain Chain, wasm WasmExecutor, programs ProgramSource, txs TxSubmitter, cfg Config, chainID, contractAddress, signerAddress string, signerIndex int) *Task {
	return &Task{
		drID:            drID,
		identity:        id,
		pool:            pool,
		chain:           chain,
		wasm:            wasm,
		programs:        programs,
		dispatcher:      txs,
		cfg:             cfg,
		chainID:         chainID,
		contractAddress: contractAddress,
		signerAddress:   signerAddress,
		signerIndex:     signerIndex,
	}
}

// OnComplete registers a callback invoked once, with the terminal status,
// when this task reaches Revealed or Failed.
func (t *Task) OnComplete(fn func(drtypes.TaskStatus)) {
	t.onComplete = fn
}

// Run drives the task to completion (Revealed or Failed), or until ctx is
// cancelled. It owns its own refresh sub-task goroutine.
func (t *Task) Run(ctx context.Context) {
	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go t.refreshLoop(refreshCtx)

	ticker := time.NewTicker(t.cfg.DRTaskInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.step(ctx) {
				return
			}
		}
	}
}

// refreshLoop re-reads the DR on statusCheck interval; if the chain
// reports it absent, the DR is deleted from the pool so step() observes a
// nil DR and stops.
func (t *Task) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.StatusCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fresh, err := t.chain.QueryDR(ctx, t.drID)
			if err != nil {
				if err == chainclient.ErrNotFound {
					t.pool.DeleteDR(t.drID)
				}
				continue
			}
			fresh.LastUpdated = time.Now()
			t.pool.InsertDR(fresh)
		}
	}
}

// step advances the task by exactly one transition attempt, returning
// false once the task has reached a terminal state and should stop.
func (t *Task) step(ctx context.Context) bool {
	if !t.retryAfter.IsZero() && time.Now().Before(t.retryAfter) {
		return true
	}

	idr := t.pool.GetIdentityDR(t.drID, t.identity.ID)
	if idr == nil {
		return false
	}
	dr := t.pool.GetDR(t.drID)
	if dr == nil {
		t.pool.DeleteIdentityDR(t.drID, t.identity.ID)
		return false
	}

	switch idr.Status {
	case drtypes.StatusEligibleForExecution:
		t.execute(ctx, dr, idr)
	case drtypes.StatusExecuted:
		t.commit(ctx, dr, idr)
	case drtypes.StatusCommitted:
		t.pollCommits(dr, idr)
	case drtypes.StatusReadyToBeRevealed:
		t.reveal(ctx, dr, idr)
	case drtypes.StatusRevealed, drtypes.StatusFailed:
		if t.onComplete != nil {
			t.onComplete(idr.Status)
		}
		t.pool.DeleteIdentityDR(t.drID, t.identity.ID)
		return false
	}
	return true
}

// fail records a failed transition attempt, moving idr to Failed once
// maxRetries is exhausted.
func (t *Task) fail(idr *drtypes.IdentityDataRequest, err error) {
	idr.Retries++
	t.retryAfter = time.Now().Add(t.cfg.SleepBetweenFailedTx)
	log.Warn().Str("dr", idr.DRID).Str("identity", idr.IdentityID).Int("retries", idr.Retries).Err(err).Msg("drtask: transition failed")
	if idr.Retries >= t.cfg.MaxRetries {
		idr.Status = drtypes.StatusFailed
		log.Error().Str("dr", idr.DRID).Str("identity", idr.IdentityID).Msg("drtask: retries exhausted, task failed")
	}
}

// advance records a successful transition: resets the retry counter and
// moves to newStatus.
func (t *Task) advance(idr *drtypes.IdentityDataRequest, newStatus drtypes.TaskStatus) {
	idr.Retries = 0
	idr.Status = newStatus
}

// execute runs EligibleForExecution -> Executed.
func (t *Task) execute(ctx context.Context, dr *drtypes.DataRequest, idr *drtypes.IdentityDataRequest) {
	wasmBytes, err := t.programs.Get(ctx, dr.ExecProgramID)
	if err != nil {
		t.fail(idr, fmt.Errorf("fetching oracle program: %w", err))
		return
	}

	clamped := wasmpool.ClampedGasLimit(dr.ExecGasLimit, dr.ReplicationFactor, t.cfg.MaxGasLimit)
	env := wasmpool.EnvForDR(dr, idr.EligibilityHeight, clamped)

	result, err := t.wasm.Execute(ctx, wasmpool.CallData{
		IdentityPrivateKey: t.identity.PrivateKey,
		DR:                 dr,
		EligibilityHeight:  idr.EligibilityHeight,
		WasmBytes:          wasmBytes,
		Env:                env,
		GasLimit:           clamped,
		ChainID:            t.chainID,
		ContractAddress:    t.contractAddress,
	})
	if err != nil {
		t.fail(idr, fmt.Errorf("executing oracle program: %w", err))
		return
	}

	exitCode := result.ExitCode
	reveal := result.Result
	stderr := result.Stderr

	maxReveal := drtypes.MaxRevealBytes(dr.ReplicationFactor)
	if len(reveal) > maxReveal {
		msg := fmt.Sprintf("Reveal size %d bytes exceeds the limit %d bytes", len(reveal), maxReveal)
		stderr = append([]string{msg}, stderr...)
		reveal = nil
		exitCode = drtypes.ResultTooLargeExitCode
	}

	idr.ExecutionResult = &drtypes.ExecutionResult{
		Stdout: result.Stdout,
		Stderr: stderr,
		RevealBody: drtypes.RevealBody{
			DRID:            dr.ID,
			DRBlockHeight:   dr.Height,
			ExitCode:        exitCode,
			GasUsed:         result.GasUsed,
			ProxyPublicKeys: result.UsedProxyPublicKeys,
			Reveal:          reveal,
		},
	}
	t.advance(idr, drtypes.StatusExecuted)
}

// commit runs Executed -> Committed.
func (t *Task) commit(ctx context.Context, dr *drtypes.DataRequest, idr *drtypes.IdentityDataRequest) {
	exec := idr.ExecutionResult
	hRB := protocolcrypto.HashRevealBody(protocolcrypto.RevealBodyInput{
		DRID:            exec.RevealBody.DRID,
		DRBlockHeight:   exec.RevealBody.DRBlockHeight,
		ExitCode:        exec.RevealBody.ExitCode,
		GasUsed:         exec.RevealBody.GasUsed,
		ProxyPublicKeys: exec.RevealBody.ProxyPublicKeys,
		Reveal:          exec.RevealBody.Reveal,
	})

	revealProof, err := protocolcrypto.Prove(t.identity.PrivateKey, hRB)
	if err != nil {
		t.fail(idr, fmt.Errorf("proving reveal body: %w", err))
		return
	}
	commitment := protocolcrypto.Commitment(hRB, t.identity.ID, protocolcrypto.ToHex(revealProof), exec.Stderr, exec.Stdout)
	hCM := protocolcrypto.HashCommitMessage(dr.ID, dr.Height, commitment, t.chainID, t.contractAddress)
	commitProof, err := protocolcrypto.Prove(t.identity.PrivateKey, hCM)
	if err != nil {
		t.fail(idr, fmt.Errorf("proving commit message: %w", err))
		return
	}

	gasOption := "auto"
	if t.cfg.GasEstimationsEnabled {
		gasOption = fmt.Sprintf("%d", estimateCommitGas(dr, t.cfg.GasAdjustmentFactor))
	}

	_, err = t.dispatcher.SubmitCommit(ctx, dispatcher.CommitParams{
		DRID:          dr.ID,
		Commitment:    commitment,
		Proof:         commitProof,
		PublicKey:     t.identity.ID,
		SignerAddress: t.signerAddress,
		SignerIndex:   t.signerIndex,
		GasOption:     gasOption,
	})
	if err != nil {
		if berr, ok := chainclient.AsBroadcastError(err); ok {
			switch berr.Kind {
			case chainclient.KindAlreadyCommitted:
				t.advance(idr, drtypes.StatusCommitted)
				return
			case chainclient.KindRevealStarted, chainclient.KindDataRequestExpired, chainclient.KindDataRequestNotFound:
				idr.Status = drtypes.StatusFailed
				log.Warn().Str("dr", dr.ID).Str("kind", berr.Kind.String()).Msg("drtask: commit stopped (terminal protocol error)")
				return
			}
		}
		t.fail(idr, fmt.Errorf("submitting commit: %w", err))
		return
	}
	t.advance(idr, drtypes.StatusCommitted)
}

// pollCommits runs Committed -> ReadyToBeRevealed once dr.CommitsLength
// reaches the replication factor. The DR's commitsLength is
// kept current by the refresh sub-task, so this is a pure pool read.
func (t *Task) pollCommits(dr *drtypes.DataRequest, idr *drtypes.IdentityDataRequest) {
	if dr.CommitsLength >= uint32(dr.ReplicationFactor) {
		t.advance(idr, drtypes.StatusReadyToBeRevealed)
	}
}

// reveal runs ReadyToBeRevealed -> Revealed.
func (t *Task) reveal(ctx context.Context, dr *drtypes.DataRequest, idr *drtypes.IdentityDataRequest) {
	exec := idr.ExecutionResult
	hRB := protocolcrypto.HashRevealBody(protocolcrypto.RevealBodyInput{
		DRID:            exec.RevealBody.DRID,
		DRBlockHeight:   exec.RevealBody.DRBlockHeight,
		ExitCode:        exec.RevealBody.ExitCode,
		GasUsed:         exec.RevealBody.GasUsed,
		ProxyPublicKeys: exec.RevealBody.ProxyPublicKeys,
		Reveal:          exec.RevealBody.Reveal,
	})
	hRM := protocolcrypto.HashRevealMessage(dr.ID, dr.Height, hRB, t.chainID, t.contractAddress)
	revealProof, err := protocolcrypto.Prove(t.identity.PrivateKey, hRM)
	if err != nil {
		t.fail(idr, fmt.Errorf("proving reveal message: %w", err))
		return
	}

	gasOption := "auto"
	if t.cfg.GasEstimationsEnabled {
		stdBytes := stdBytesOf(exec.Stdout, exec.Stderr)
		gas := estimateRevealGas(dr, len(exec.RevealBody.Reveal), stdBytes, t.cfg.GasAdjustmentFactor)
		gasOption = fmt.Sprintf("%d", gas)
	}

	_, err = t.dispatcher.SubmitReveal(ctx, dispatcher.RevealParams{
		DRID:            dr.ID,
		DRBlockHeight:   dr.Height,
		ExitCode:        exec.RevealBody.ExitCode,
		GasUsed:         exec.RevealBody.GasUsed,
		ProxyPublicKeys: exec.RevealBody.ProxyPublicKeys,
		Reveal:          exec.RevealBody.Reveal,
		Proof:           revealProof,
		PublicKey:       t.identity.ID,
		SignerAddress:   t.signerAddress,
		SignerIndex:     t.signerIndex,
		GasOption:       gasOption,
		Stdout:          exec.Stdout,
		Stderr:          exec.Stderr,
	})
	if err != nil {
		if berr, ok := chainclient.AsBroadcastError(err); ok {
			switch berr.Kind {
			case chainclient.KindAlreadyRevealed:
				t.advance(idr, drtypes.StatusRevealed)
				return
			case chainclient.KindRevealMismatch:
				idr.Status = drtypes.StatusFailed
				log.Error().Str("dr", dr.ID).Msg("drtask: reveal mismatch, on-chain data disagrees with local commitment")
				return
			}
		}
		t.fail(idr, fmt.Errorf("submitting reveal: %w", err))
		return
	}
	t.advance(idr, drtypes.StatusRevealed)
}
