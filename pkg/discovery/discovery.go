// Package discovery implements the FetchTask: a fixed-interval poll of
// DRs in `committing` status, paginated via the chain's cursor, mirrored
// into the DR pool.
package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/debounce"
	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtypes"
)

// Chain is the narrow chainclient surface FetchTask needs.
type Chain interface {
	QueryDRStatusList(ctx context.Context, status drtypes.DRStatus, limit int, cursor string) (*drtypes.DRStatusPage, error)
}

// Config holds FetchTask's tunables.
type Config struct {
	Interval       time.Duration // default 1s
	PageLimit      int           // default 50
	HealthWindow   time.Duration // default 5min
	FailureThresh  float64       // default 0.2
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Second,
		PageLimit:     50,
		HealthWindow:  5 * time.Minute,
		FailureThresh: 0.2,
	}
}

// OnNewDR is invoked once per newly-inserted DR, letting EligibilityTask
// react immediately rather than waiting for its own interval.
type OnNewDR func(dr *drtypes.DataRequest)

// FetchTask is the discovery loop.
type FetchTask struct {
	chain  Chain
	pool   *drpool.Pool
	cfg    Config
	onNew  OnNewDR
	health *Health
}

// New wires a FetchTask. onNew may be nil.
func New(chain Chain, pool *drpool.Pool, cfg Config, onNew OnNewDR) *FetchTask {
	return &FetchTask{
		chain:  chain,
		pool:   pool,
		cfg:    cfg,
		onNew:  onNew,
		health: NewHealth(cfg.HealthWindow, cfg.FailureThresh),
	}
}

// Run ticks FetchTask's poll on cfg.Interval until ctx is cancelled. Polls
// never overlap: the next tick is scheduled after the previous poll returns.
func (t *FetchTask) Run(ctx context.Context) {
	debounce.Interval(ctx, t.cfg.Interval, t.poll)
}

// poll fetches every page of `committing` DRs and reconciles them into the
// pool.
func (t *FetchTask) poll(ctx context.Context) {
	cursor := ""
	for {
		page, err := t.chain.QueryDRStatusList(ctx, drtypes.StatusCommitting, t.cfg.PageLimit, cursor)
		if err != nil {
			t.health.Record(false)
			log.Warn().Err(err).Msg("discovery: fetching DR status list failed")
			return
		}
		t.health.Record(true)

		for _, dr := range page.DRs {
			t.reconcile(dr)
		}

		if !page.HasMore || page.NextCursor == "" {
			return
		}
		cursor = page.NextCursor
	}
}

// reconcile applies the insert/update/skip rule for one fetched DR.
func (t *FetchTask) reconcile(dr *drtypes.DataRequest) {
	dr.LastUpdated = time.Now()

	if t.pool.HasDR(dr.ID) {
		t.pool.InsertDR(dr)
		return
	}

	if uint32(dr.ReplicationFactor) > 0 && dr.CommitsLength >= uint32(dr.ReplicationFactor) {
		// Already in reveal stage; other nodes handle it.
		return
	}

	t.pool.InsertDR(dr)
	if t.onNew != nil {
		t.onNew(dr)
	}
}

// Healthy reports FetchTask's rolling fetch-success health.
func (t *FetchTask) Healthy() bool {
	return t.health.Healthy()
}
