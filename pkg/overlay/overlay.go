// Package overlay is the MainTask: the process-level orchestrator that
// wires the chain client, dispatcher, discovery, eligibility, identity,
// and WASM worker pool subsystems together and admits eligible
// (dr, identity) pairs into a bounded concurrent set of DRTasks
// prioritized by posted gas price.
package overlay

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/debounce"
	"github.com/sedaoverlay/node/pkg/dispatcher"
	"github.com/sedaoverlay/node/pkg/discovery"
	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtask"
	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/eligibility"
	"github.com/sedaoverlay/node/pkg/identity"
	"github.com/sedaoverlay/node/pkg/progcache"
	"github.com/sedaoverlay/node/pkg/wasmpool"
)

// Config holds MainTask's own tunables, layered on top of the subsystem
// configs each component already carries.
type Config struct {
	MaxConcurrentRequests     int           // default 20
	AdmissionInterval         time.Duration // default 2.5s (node.processDrInterval)
	FunderInterval            time.Duration // default 5min
	IdentityCheckInterval     time.Duration // default 20min
	RewardsWithdrawalInterval time.Duration // default 24h
	EnableRewardsWithdrawal   bool
	SubAccountCount           int // index 0 reserved as funder
	DRTaskConfig              drtask.Config

	ChainID         string
	ContractAddress string
}

// DefaultConfig returns the documented MainTask-level defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests:     20,
		AdmissionInterval:         2500 * time.Millisecond,
		FunderInterval:            5 * time.Minute,
		IdentityCheckInterval:     20 * time.Minute,
		RewardsWithdrawalInterval: 24 * time.Hour,
		SubAccountCount:           10,
		DRTaskConfig:              drtask.DefaultConfig(),
	}
}

// runningTask tracks one admitted (dr, identity) pair so the admission
// loop does not re-admit it and so Snapshot can report it.
type runningTask struct {
	drID       string
	identityID string
	cancel     context.CancelFunc
}

// Overlay is the MainTask: the process's single top-level orchestrator.
type Overlay struct {
	chain      *chainclient.Client
	pool       *drpool.Pool
	manager    *identity.Manager
	dispatcher *dispatcher.Dispatcher
	wasm       *wasmpool.Pool
	programs   *progcache.Cache
	funder     *identity.SubAccountFunder
	readiness  *identity.ReadinessChecker
	rewards    *identity.RewardsWithdrawer // nil unless enabled
	fetch      *discovery.FetchTask
	elig       *eligibility.EligibilityTask
	cfg        Config

	mu        sync.Mutex
	running   map[string]*runningTask // key = drID+"/"+identityID
	nextSlot  uint64                  // round-robin counter over sub-accounts 1..N-1
	completed uint64                  // atomic: total tasks reaching Revealed or Failed
	revealed  uint64
	failed    uint64
}

// New wires an Overlay over its already-constructed subsystems. rewards
// may be nil when enableRewardsWithdrawal is false.
func New(
	chain *chainclient.Client,
	pool *drpool.Pool,
	manager *identity.Manager,
	disp *dispatcher.Dispatcher,
	wasm *wasmpool.Pool,
	programs *progcache.Cache,
	funder *identity.SubAccountFunder,
	readiness *identity.ReadinessChecker,
	rewards *identity.RewardsWithdrawer,
	fetch *discovery.FetchTask,
	elig *eligibility.EligibilityTask,
	cfg Config,
) *Overlay {
	return &Overlay{
		chain:      chain,
		pool:       pool,
		manager:    manager,
		dispatcher: disp,
		wasm:       wasm,
		programs:   programs,
		funder:     funder,
		readiness:  readiness,
		rewards:    rewards,
		fetch:      fetch,
		elig:       elig,
		cfg:        cfg,
		running:    make(map[string]*runningTask),
	}
}

// Run starts every subsystem loop and the admission loop, blocking until
// ctx is cancelled. On cancellation it stops admitting new tasks and
// waits for those loops (including the dispatcher's, whose in-flight
// broadcasts drain on their own ctx-cancellation path) to return. DRTask
// goroutines started by admit are cancelled through ctx but not waited for.
func (o *Overlay) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	spawn := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	spawn(o.dispatcher.Run)
	spawn(o.fetch.Run)
	spawn(o.elig.Run)
	spawn(func(ctx context.Context) { o.readiness.StartLoop(ctx, o.cfg.IdentityCheckInterval) })
	spawn(o.runFunderLoop)
	if o.rewards != nil && o.cfg.EnableRewardsWithdrawal {
		spawn(func(ctx context.Context) { o.rewards.StartLoop(ctx, o.cfg.RewardsWithdrawalInterval) })
	}
	spawn(o.runAdmissionLoop)

	<-ctx.Done()
	log.Info().Msg("overlay: shutdown signal received, draining in-flight work")
	wg.Wait()
	return nil
}

// runFunderLoop tops up sub-accounts once at startup and then on
// cfg.FunderInterval.
func (o *Overlay) runFunderLoop(ctx context.Context) {
	debounce.Once(ctx, o.cfg.FunderInterval, func(ctx context.Context) {
		if err := o.funder.Topup(ctx); err != nil {
			log.Warn().Err(err).Msg("overlay: sub-account topup failed")
		}
	})
}

// admissionCandidate pairs an eligible identity-DR with its parent DR's
// posted gas price, for priority sorting.
type admissionCandidate struct {
	idr            *drtypes.IdentityDataRequest
	postedGasPrice *big.Int
}

// runAdmissionLoop scans the pool for eligible-but-unadmitted
// (dr, identity) pairs and admits as many as fit under
// maxConcurrentRequests, highest postedGasPrice first.
func (o *Overlay) runAdmissionLoop(ctx context.Context) {
	debounce.Interval(ctx, o.cfg.AdmissionInterval, o.admitOnce)
}

func (o *Overlay) admitOnce(ctx context.Context) {
	o.mu.Lock()
	activeCount := len(o.running)
	o.mu.Unlock()

	slots := o.cfg.MaxConcurrentRequests - activeCount
	if slots <= 0 {
		return
	}

	var candidates []admissionCandidate
	for _, idr := range o.pool.ListIdentityDRs() {
		if idr.Status != drtypes.StatusEligibleForExecution {
			continue
		}
		key := runningKey(idr.DRID, idr.IdentityID)
		o.mu.Lock()
		_, alreadyRunning := o.running[key]
		o.mu.Unlock()
		if alreadyRunning {
			continue
		}
		dr := o.pool.GetDR(idr.DRID)
		if dr == nil {
			continue
		}
		price := dr.PostedGasPrice
		if price == nil {
			price = big.NewInt(0)
		}
		candidates = append(candidates, admissionCandidate{idr: idr, postedGasPrice: price})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].postedGasPrice.Cmp(candidates[j].postedGasPrice) > 0
	})

	if len(candidates) > slots {
		candidates = candidates[:slots]
	}

	for _, c := range candidates {
		o.admit(ctx, c.idr)
	}
}

func runningKey(drID, identityID string) string { return drID + "/" + identityID }

// admit assigns a round-robin sub-account signer (1..SubAccountCount-1,
// index 0 reserved for the funder) and spawns a drtask.Task for
// (drID, identityID).
func (o *Overlay) admit(ctx context.Context, idr *drtypes.IdentityDataRequest) {
	id, ok := o.manager.ByID(idr.IdentityID)
	if !ok {
		return
	}

	signerIndex := o.nextSignerIndex()
	signerInfo, err := o.chain.GetSignerInfo(ctx, &signerIndex)
	if err != nil {
		log.Warn().Err(err).Str("dr", idr.DRID).Int("signerIndex", signerIndex).Msg("overlay: resolving signer failed, deferring admission")
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := drtask.New(idr.DRID, id, o.pool, o.chain, o.wasm, o.programs, o.dispatcher, o.cfg.DRTaskConfig, o.cfg.ChainID, o.cfg.ContractAddress, signerInfo.Address, signerIndex)

	key := runningKey(idr.DRID, idr.IdentityID)
	rt := &runningTask{drID: idr.DRID, identityID: idr.IdentityID, cancel: cancel}

	task.OnComplete(func(status drtypes.TaskStatus) {
		atomic.AddUint64(&o.completed, 1)
		if status == drtypes.StatusRevealed {
			atomic.AddUint64(&o.revealed, 1)
		} else {
			atomic.AddUint64(&o.failed, 1)
		}
	})

	o.mu.Lock()
	o.running[key] = rt
	o.mu.Unlock()

	log.Info().Str("dr", idr.DRID).Str("identity", idr.IdentityID).Int("signerIndex", signerIndex).Msg("overlay: admitted data request")

	go func() {
		task.Run(taskCtx)
		cancel()
		o.mu.Lock()
		delete(o.running, key)
		o.mu.Unlock()
	}()
}

// nextSignerIndex round-robins over sub-accounts 1..SubAccountCount-1.
// With only one sub-account configured, falls back to index 0.
func (o *Overlay) nextSignerIndex() int {
	if o.cfg.SubAccountCount <= 1 {
		return 0
	}
	o.mu.Lock()
	slot := o.nextSlot
	o.nextSlot++
	o.mu.Unlock()
	return 1 + int(slot%uint64(o.cfg.SubAccountCount-1))
}

// Snapshot reports the MainTask's current state for the diagnostics
// server.
type Snapshot struct {
	ActivelyExecutingSize             int
	EligibleButWaitingForExecutionSize int
	DataRequestPoolSize                int
	CompletedDataRequests              uint64
	RevealedDataRequests               uint64
	FailedDataRequests                 uint64
	TxStats                            dispatcher.TxStats
	ActiveIdentities                   []string
}

// PoolEntry is one pooled DR's diagnostics view, served at `/api/health`
// when the pool detail is requested.
type PoolEntry struct {
	DRID              string `json:"drId"`
	Status            string `json:"status"`
	CommitsLength     uint32 `json:"commitsLength"`
	ReplicationFactor uint16 `json:"replicationFactor"`
	Height            uint64 `json:"height"`
}

// PoolContents lists every pooled DR for the diagnostics server.
func (o *Overlay) PoolContents() []PoolEntry {
	drs := o.pool.ListDRs()
	out := make([]PoolEntry, 0, len(drs))
	for _, dr := range drs {
		out = append(out, PoolEntry{
			DRID:              dr.ID,
			Status:            string(dr.Status),
			CommitsLength:     dr.CommitsLength,
			ReplicationFactor: dr.ReplicationFactor,
			Height:            dr.Height,
		})
	}
	return out
}

// Snapshot builds a point-in-time Snapshot.
func (o *Overlay) Snapshot() Snapshot {
	o.mu.Lock()
	activelyExecuting := len(o.running)
	o.mu.Unlock()

	waiting := 0
	for _, idr := range o.pool.ListIdentityDRs() {
		if idr.Status != drtypes.StatusEligibleForExecution {
			continue
		}
		o.mu.Lock()
		_, running := o.running[runningKey(idr.DRID, idr.IdentityID)]
		o.mu.Unlock()
		if !running {
			waiting++
		}
	}

	var active []string
	for _, id := range o.manager.EnabledIdentities() {
		active = append(active, id.ID)
	}

	return Snapshot{
		ActivelyExecutingSize:             activelyExecuting,
		EligibleButWaitingForExecutionSize: waiting,
		DataRequestPoolSize:                o.pool.Len(),
		CompletedDataRequests:              atomic.LoadUint64(&o.completed),
		RevealedDataRequests:               atomic.LoadUint64(&o.revealed),
		FailedDataRequests:                 atomic.LoadUint64(&o.failed),
		TxStats:                            o.dispatcher.Stats(),
		ActiveIdentities:                   active,
	}
}
