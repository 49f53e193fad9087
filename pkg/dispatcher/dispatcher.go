// Package dispatcher batches, prioritizes, signs, submits, and tracks
// Cosmos transactions across the node's fleet of sub-accounts. One queue
// per sub-account is drained on a fixed `queueInterval` tick;
// HIGH-priority entries (reveal) jump the queue ahead of LOW-priority
// ones.
package dispatcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/protocolcrypto"
)

// Entry is one queued transaction.
type Entry struct {
	ID          string
	Priority    chainclient.Priority
	Kind        string
	Messages    []sdk.Msg
	SignerIndex int
	GasOption   string
	TraceID     string
	Funds       sdk.Coins

	resultCh chan outcome
}

type outcome struct {
	result *chainclient.TxResult
	err    error
}

// Chain is the narrow chainclient surface the dispatcher needs.
type Chain interface {
	QueueMessage(ctx context.Context, kind string, msgs []sdk.Msg, priority chainclient.Priority, signerIndex int, gasOption string) (string, error)
	WaitForTransaction(ctx context.Context, kind string, msgs []sdk.Msg, priority chainclient.Priority, signerIndex int, gasOption string, attachedAmount *sdk.Coins) (*chainclient.TxResult, error)
	WrapContractExecute(senderAddr string, payload []byte, funds sdk.Coins) sdk.Msg
	GetSignerInfo(ctx context.Context, index *int) (*chainclient.SignerInfo, error)
	ChainID() string
	ContractAddress() string
}

// perAccountQueue holds pending entries for exactly one sub-account,
// split by priority so HIGH entries always drain before LOW ones.
type perAccountQueue struct {
	mu   sync.Mutex
	high []*Entry
	low  []*Entry
}

func (q *perAccountQueue) push(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.Priority == chainclient.PriorityHigh {
		q.high = append(q.high, e)
	} else {
		q.low = append(q.low, e)
	}
}

// pop removes and returns at most one entry: a HIGH entry if any, else
// the oldest LOW entry.
func (q *perAccountQueue) pop() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.high) > 0 {
		e := q.high[0]
		q.high = q.high[1:]
		return e
	}
	if len(q.low) > 0 {
		e := q.low[0]
		q.low = q.low[1:]
		return e
	}
	return nil
}

// Dispatcher owns one perAccountQueue per sub-account and drains them all
// on a shared queueInterval tick.
type Dispatcher struct {
	chain Chain

	queueInterval        time.Duration
	maxRetries           int
	sleepBetweenFailedTx time.Duration

	queuesMu sync.Mutex
	queues   map[int]*perAccountQueue

	submitted uint64
	succeeded uint64
	failed    uint64
}

// TxStats is the dispatcher's lifetime transaction counters, surfaced at
// `/api/health`.
type TxStats struct {
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// Stats returns a point-in-time copy of the transaction counters.
func (d *Dispatcher) Stats() TxStats {
	return TxStats{
		Submitted: atomic.LoadUint64(&d.submitted),
		Succeeded: atomic.LoadUint64(&d.succeeded),
		Failed:    atomic.LoadUint64(&d.failed),
	}
}

// New wires a Dispatcher over chain, with the given number of
// sub-accounts.
func New(chain Chain, subAccountCount int, queueInterval time.Duration, maxRetries int, sleepBetweenFailedTx time.Duration) *Dispatcher {
	queues := make(map[int]*perAccountQueue, subAccountCount)
	for i := 0; i < subAccountCount; i++ {
		queues[i] = &perAccountQueue{}
	}
	return &Dispatcher{
		chain:                chain,
		queueInterval:        queueInterval,
		maxRetries:           maxRetries,
		sleepBetweenFailedTx: sleepBetweenFailedTx,
		queues:               queues,
	}
}

// Run drains every sub-account queue on queueInterval until ctx is
// cancelled. On shutdown, in-flight broadcasts drain on their own ctx
// path; Run itself simply stops ticking.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.queueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	d.queuesMu.Lock()
	accounts := make([]int, 0, len(d.queues))
	for idx := range d.queues {
		accounts = append(accounts, idx)
	}
	d.queuesMu.Unlock()

	for _, idx := range accounts {
		q := d.queues[idx]
		entry := q.pop()
		if entry == nil {
			continue
		}
		go d.process(ctx, entry)
	}
}

// process submits one entry under the bounded-retry policy:
// SequenceMismatch and Generic failures retry up to maxRetries with a
// sleepBetweenFailedTx pause between attempts; the protocol-terminal
// kinds are surfaced immediately without retry.
func (d *Dispatcher) process(ctx context.Context, e *Entry) {
	atomic.AddUint64(&d.submitted, 1)
	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		result, err := d.chain.WaitForTransaction(ctx, e.Kind, e.Messages, e.Priority, e.SignerIndex, e.GasOption, &e.Funds)
		if err == nil {
			atomic.AddUint64(&d.succeeded, 1)
			e.deliver(result, nil)
			return
		}
		lastErr = err

		berr, ok := chainclient.AsBroadcastError(err)
		if !ok || !berr.Kind.Retryable() {
			atomic.AddUint64(&d.failed, 1)
			e.deliver(nil, err)
			return
		}

		// Mempool-full gets a short exponential backoff capped at 2s; every
		// other retryable kind waits the flat sleepBetweenFailedTx pause.
		pause := d.sleepBetweenFailedTx
		if berr.Kind == chainclient.KindMempool {
			pause = mempoolBackoff(attempt)
		}

		log.Warn().Err(err).Str("trace_id", e.TraceID).Int("attempt", attempt).Msg("transaction failed, retrying")
		select {
		case <-ctx.Done():
			atomic.AddUint64(&d.failed, 1)
			e.deliver(nil, ctx.Err())
			return
		case <-time.After(pause):
		}
	}
	atomic.AddUint64(&d.failed, 1)
	e.deliver(nil, lastErr)
}

// mempoolBackoff returns 250ms doubled per attempt, capped at 2s.
func mempoolBackoff(attempt int) time.Duration {
	pause := 250 * time.Millisecond << uint(attempt)
	if pause > 2*time.Second {
		return 2 * time.Second
	}
	return pause
}

func (e *Entry) deliver(result *chainclient.TxResult, err error) {
	if e.resultCh == nil {
		return
	}
	e.resultCh <- outcome{result: result, err: err}
	close(e.resultCh)
}

// Submit enqueues an entry on its sub-account's queue and returns a
// channel the caller awaits for the eventual outcome.
func (d *Dispatcher) Submit(e *Entry) <-chan outcome {
	e.resultCh = make(chan outcome, 1)
	d.queuesMu.Lock()
	q, ok := d.queues[e.SignerIndex]
	d.queuesMu.Unlock()
	if !ok {
		e.deliver(nil, fmt.Errorf("dispatcher: unknown signer index %d", e.SignerIndex))
		return e.resultCh
	}
	q.push(e)
	return e.resultCh
}

// Await blocks until ch resolves or ctx is cancelled.
func Await(ctx context.Context, ch <-chan outcome) (*chainclient.TxResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-ch:
		return o.result, o.err
	}
}

// SubmitWithdraw signs and queues a withdraw message for identityID,
// satisfying pkg/identity.WithdrawSubmitter.
func (d *Dispatcher) SubmitWithdraw(ctx context.Context, identityID string, proof []byte, withdrawAddress string) error {
	msg := protocolcrypto.WithdrawMsg{
		PublicKey:       identityID,
		Proof:           protocolcrypto.ToHex(proof),
		WithdrawAddress: withdrawAddress,
	}
	payload, err := marshalEnvelope("withdraw", msg)
	if err != nil {
		return fmt.Errorf("dispatcher: marshaling withdraw message: %w", err)
	}

	signerInfo, err := d.chain.GetSignerInfo(ctx, nil)
	if err != nil {
		return fmt.Errorf("dispatcher: resolving withdraw signer: %w", err)
	}

	executeMsg := d.chain.WrapContractExecute(signerInfo.Address, payload, sdk.NewCoins())
	ch := d.Submit(&Entry{
		ID:          "withdraw-" + identityID,
		Priority:    chainclient.PriorityLow,
		Kind:        "withdraw",
		Messages:    []sdk.Msg{executeMsg},
		SignerIndex: 0,
		GasOption:   "auto",
		TraceID:     "withdraw-" + identityID,
	})
	_, err = Await(ctx, ch)
	return err
}

func marshalEnvelope(key string, body interface{}) ([]byte, error) {
	return marshalJSONEnvelope(map[string]interface{}{key: body})
}

// revealBase64 is a small convenience for callers building
// RevealDataResultMsg payloads.
func revealBase64(reveal []byte) string {
	return base64.StdEncoding.EncodeToString(reveal)
}
