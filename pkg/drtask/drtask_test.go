package drtask

import (
	"context"
	"testing"

	"github.com/sedaoverlay/node/pkg/chainclient"
	"github.com/sedaoverlay/node/pkg/dispatcher"
	"github.com/sedaoverlay/node/pkg/drpool"
	"github.com/sedaoverlay/node/pkg/drtypes"
	"github.com/sedaoverlay/node/pkg/identity"
	"github.com/sedaoverlay/node/pkg/wasmpool"
)

type fakeChain struct {
	dr *drtypes.DataRequest
}

func (f *fakeChain) QueryDR(ctx context.Context, id string) (*drtypes.DataRequest, error) {
	if f.dr == nil {
		return nil, chainclient.ErrNotFound
	}
	return f.dr.Clone(), nil
}

type fakeTxSubmitter struct {
	commits int
	reveals int
}

func (f *fakeTxSubmitter) SubmitCommit(ctx context.Context, p dispatcher.CommitParams) (*chainclient.TxResult, error) {
	f.commits++
	return &chainclient.TxResult{TxHash: "commit-tx"}, nil
}

func (f *fakeTxSubmitter) SubmitReveal(ctx context.Context, p dispatcher.RevealParams) (*chainclient.TxResult, error) {
	f.reveals++
	return &chainclient.TxResult{TxHash: "reveal-tx"}, nil
}

type fakeWasm struct {
	result *wasmpool.Result
	err    error
}

func (f *fakeWasm) Execute(ctx context.Context, cd wasmpool.CallData) (*wasmpool.Result, error) {
	return f.result, f.err
}

type fakePrograms struct{}

func (fakePrograms) Get(ctx context.Context, execProgramID string) ([]byte, error) {
	return []byte("wasm"), nil
}

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	ids, err := identity.DeriveIdentities("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", 1)
	if err != nil {
		t.Fatalf("deriving test identity: %v", err)
	}
	return ids[0]
}

// TestExecuteCoercesOversizedReveal checks the size bound: a reveal larger
// than floor(24000/replicationFactor) is coerced to empty with exit code
// 255 and a stderr message naming the exceeded limit.
func TestExecuteCoercesOversizedReveal(t *testing.T) {
	id := testIdentity(t)
	pool := drpool.New()
	dr := &drtypes.DataRequest{ID: "dr1", ReplicationFactor: 4, Height: 10, ExecProgramID: "prog1"}
	pool.InsertDR(dr)
	pool.InsertIdentityDR("dr1", id.ID, dr.Height, drtypes.StatusEligibleForExecution)

	oversized := make([]byte, 6100)
	wasm := &fakeWasm{result: &wasmpool.Result{ExitCode: 0, Result: oversized}}
	txs := &fakeTxSubmitter{}

	task := New("dr1", id, pool, &fakeChain{dr: dr}, wasm, fakePrograms{}, txs, DefaultConfig(), "test-chain", "seda1contract", "seda1signer", 0)

	idr := pool.GetIdentityDR("dr1", id.ID)
	task.execute(context.Background(), dr, idr)

	if idr.Status != drtypes.StatusExecuted {
		t.Fatalf("expected status Executed, got %s", idr.Status)
	}
	if idr.ExecutionResult.RevealBody.ExitCode != drtypes.ResultTooLargeExitCode {
		t.Fatalf("expected exit code %d, got %d", drtypes.ResultTooLargeExitCode, idr.ExecutionResult.RevealBody.ExitCode)
	}
	if len(idr.ExecutionResult.RevealBody.Reveal) != 0 {
		t.Fatalf("expected reveal to be coerced to empty, got %d bytes", len(idr.ExecutionResult.RevealBody.Reveal))
	}
	if len(idr.ExecutionResult.Stderr) == 0 {
		t.Fatal("expected a stderr message explaining the coercion")
	}
	want := "Reveal size 6100 bytes exceeds the limit 6000 bytes"
	if idr.ExecutionResult.Stderr[0] != want {
		t.Fatalf("expected stderr[0]=%q, got %q", want, idr.ExecutionResult.Stderr[0])
	}
}

// TestPollCommitsTransitionsOnceThresholdReached checks that a DR with
// replicationFactor=3 only becomes ReadyToBeRevealed once commitsLength
// reaches 3, and does so exactly once.
func TestPollCommitsTransitionsOnceThresholdReached(t *testing.T) {
	id := testIdentity(t)
	pool := drpool.New()
	dr := &drtypes.DataRequest{ID: "dr1", ReplicationFactor: 3, Height: 10, CommitsLength: 2}
	pool.InsertDR(dr)
	pool.InsertIdentityDR("dr1", id.ID, dr.Height, drtypes.StatusCommitted)

	task := New("dr1", id, pool, &fakeChain{dr: dr}, &fakeWasm{}, fakePrograms{}, &fakeTxSubmitter{}, DefaultConfig(), "test-chain", "seda1contract", "seda1signer", 0)

	idr := pool.GetIdentityDR("dr1", id.ID)
	task.pollCommits(pool.GetDR("dr1"), idr)
	if idr.Status != drtypes.StatusCommitted {
		t.Fatalf("expected status to remain Committed at commitsLength=2, got %s", idr.Status)
	}

	dr.CommitsLength = 3
	pool.InsertDR(dr)
	idr = pool.GetIdentityDR("dr1", id.ID)
	task.pollCommits(pool.GetDR("dr1"), idr)
	if idr.Status != drtypes.StatusReadyToBeRevealed {
		t.Fatalf("expected status ReadyToBeRevealed at commitsLength=3, got %s", idr.Status)
	}
}

// TestRevealSubmitsOnceAndAdvances exercises the reveal handler end to end
// against the fake dispatcher.
func TestRevealSubmitsOnceAndAdvances(t *testing.T) {
	id := testIdentity(t)
	pool := drpool.New()
	// The reveal-body hash decodes the DR id as hex, so the fixture id must
	// be a valid hex string like the chain's real 32-byte hashes.
	drID := "00000000000000000000000000000000000000000000000000000000000000d1"
	dr := &drtypes.DataRequest{ID: drID, ReplicationFactor: 3, Height: 10}
	pool.InsertDR(dr)
	pool.InsertIdentityDR(drID, id.ID, dr.Height, drtypes.StatusReadyToBeRevealed)
	idr := pool.GetIdentityDR(drID, id.ID)
	idr.ExecutionResult = &drtypes.ExecutionResult{
		Stdout: []string{"ok"},
		RevealBody: drtypes.RevealBody{
			DRID:          drID,
			DRBlockHeight: 10,
			ExitCode:      0,
			Reveal:        []byte("result"),
		},
	}

	txs := &fakeTxSubmitter{}
	task := New(drID, id, pool, &fakeChain{dr: dr}, &fakeWasm{}, fakePrograms{}, txs, DefaultConfig(), "test-chain", "seda1contract", "seda1signer", 0)

	task.reveal(context.Background(), dr, pool.GetIdentityDR(drID, id.ID))

	if txs.reveals != 1 {
		t.Fatalf("expected exactly one reveal submission, got %d", txs.reveals)
	}
	if pool.GetIdentityDR(drID, id.ID).Status != drtypes.StatusRevealed {
		t.Fatalf("expected status Revealed, got %s", pool.GetIdentityDR(drID, id.ID).Status)
	}
}
