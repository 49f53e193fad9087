package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtypes"
)

type fakeChain struct {
	pages []*drtypes.DRStatusPage
	calls int
	err   error
}

func (f *fakeChain) QueryDRStatusList(ctx context.Context, status drtypes.DRStatus, limit int, cursor string) (*drtypes.DRStatusPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.pages) {
		return &drtypes.DRStatusPage{}, nil
	}
	return f.pages[idx], nil
}

func TestPollInsertsNewDRAndEmits(t *testing.T) {
	chain := &fakeChain{pages: []*drtypes.DRStatusPage{
		{
			DRs: []*drtypes.DataRequest{
				{ID: "dr1", ReplicationFactor: 3, CommitsLength: 1},
			},
		},
	}}
	pool := drpool.New()

	var emitted []string
	task := New(chain, pool, DefaultConfig(), func(dr *drtypes.DataRequest) {
		emitted = append(emitted, dr.ID)
	})

	task.poll(context.Background())

	if !pool.HasDR("dr1") {
		t.Fatal("expected dr1 to be tracked")
	}
	if len(emitted) != 1 || emitted[0] != "dr1" {
		t.Fatalf("expected exactly one emission for dr1, got %v", emitted)
	}
}

func TestPollSkipsNewDRAlreadyInRevealStage(t *testing.T) {
	chain := &fakeChain{pages: []*drtypes.DRStatusPage{
		{
			DRs: []*drtypes.DataRequest{
				{ID: "dr2", ReplicationFactor: 3, CommitsLength: 3},
			},
		},
	}}
	pool := drpool.New()
	task := New(chain, pool, DefaultConfig(), nil)

	task.poll(context.Background())

	if pool.HasDR("dr2") {
		t.Fatal("expected dr2 (already past replicationFactor commits) to be skipped")
	}
}

func TestPollUpdatesExistingDRInPlace(t *testing.T) {
	pool := drpool.New()
	pool.InsertDR(&drtypes.DataRequest{ID: "dr3", ReplicationFactor: 3, CommitsLength: 0})

	chain := &fakeChain{pages: []*drtypes.DRStatusPage{
		{DRs: []*drtypes.DataRequest{{ID: "dr3", ReplicationFactor: 3, CommitsLength: 2}}},
	}}

	emissions := 0
	task := New(chain, pool, DefaultConfig(), func(dr *drtypes.DataRequest) { emissions++ })
	task.poll(context.Background())

	got := pool.GetDR("dr3")
	if got.CommitsLength != 2 {
		t.Fatalf("expected commitsLength updated to 2, got %d", got.CommitsLength)
	}
	if emissions != 0 {
		t.Fatalf("expected no new-DR emission for an update, got %d", emissions)
	}
}

func TestPollPaginatesUntilHasMoreFalse(t *testing.T) {
	chain := &fakeChain{pages: []*drtypes.DRStatusPage{
		{DRs: []*drtypes.DataRequest{{ID: "a", ReplicationFactor: 1}}, HasMore: true, NextCursor: "c1"},
		{DRs: []*drtypes.DataRequest{{ID: "b", ReplicationFactor: 1}}, HasMore: false},
	}}
	pool := drpool.New()
	task := New(chain, pool, DefaultConfig(), nil)
	task.poll(context.Background())

	if !pool.HasDR("a") || !pool.HasDR("b") {
		t.Fatal("expected both pages to be consumed")
	}
	if chain.calls != 2 {
		t.Fatalf("expected 2 chain calls across pagination, got %d", chain.calls)
	}
}

func TestHealthDegradesBelowThreshold(t *testing.T) {
	h := NewHealth(time.Minute, 0.2)
	for i := 0; i < 8; i++ {
		h.Record(true)
	}
	for i := 0; i < 3; i++ {
		h.Record(false)
	}
	if h.Healthy() {
		t.Fatal("expected 3/11 failure ratio to exceed the 0.2 threshold")
	}
}

func TestHealthPrunesOldEvents(t *testing.T) {
	h := NewHealth(10*time.Millisecond, 0.2)
	h.Record(false)
	h.Record(false)
	time.Sleep(20 * time.Millisecond)
	if !h.Healthy() {
		t.Fatal("expected events older than the window to be pruned")
	}
}
