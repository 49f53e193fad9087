package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/sedaoverlay/node/pkg/chainclient"
)

type fakeChain struct {
	calls       int32
	failUntil   int32
	failKind    chainclient.BroadcastErrorKind
	signerAddrs []string
}

func (f *fakeChain) QueueMessage(ctx context.Context, kind string, msgs []sdk.Msg, priority chainclient.Priority, signerIndex int, gasOption string) (string, error) {
	return "deadbeef", nil
}

func (f *fakeChain) WaitForTransaction(ctx context.Context, kind string, msgs []sdk.Msg, priority chainclient.Priority, signerIndex int, gasOption string, attachedAmount *sdk.Coins) (*chainclient.TxResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failUntil {
		return nil, &chainclient.BroadcastError{Kind: f.failKind, Message: "simulated failure"}
	}
	return &chainclient.TxResult{TxHash: "deadbeef", Height: 100}, nil
}

func (f *fakeChain) WrapContractExecute(senderAddr string, payload []byte, funds sdk.Coins) sdk.Msg {
	return nil
}

func (f *fakeChain) GetSignerInfo(ctx context.Context, index *int) (*chainclient.SignerInfo, error) {
	i := 0
	if index != nil {
		i = *index
	}
	return &chainclient.SignerInfo{Index: i, Address: f.signerAddrs[i]}, nil
}

func (f *fakeChain) ChainID() string         { return "seda_test" }
func (f *fakeChain) ContractAddress() string { return "seda1testcontract" }

func TestQueuePriorityOrdering(t *testing.T) {
	q := &perAccountQueue{}
	low1 := &Entry{ID: "low1", Priority: chainclient.PriorityLow}
	low2 := &Entry{ID: "low2", Priority: chainclient.PriorityLow}
	high1 := &Entry{ID: "high1", Priority: chainclient.PriorityHigh}

	q.push(low1)
	q.push(low2)
	q.push(high1)

	if got := q.pop(); got.ID != "high1" {
		t.Fatalf("expected high1 first, got %s", got.ID)
	}
	if got := q.pop(); got.ID != "low1" {
		t.Fatalf("expected low1 second, got %s", got.ID)
	}
	if got := q.pop(); got.ID != "low2" {
		t.Fatalf("expected low2 third, got %s", got.ID)
	}
	if got := q.pop(); got != nil {
		t.Fatalf("expected nil on empty queue, got %v", got)
	}
}

func TestProcessRetriesSequenceMismatch(t *testing.T) {
	chain := &fakeChain{failUntil: 2, failKind: chainclient.KindSequenceMismatch, signerAddrs: []string{"seda1signer0"}}
	d := New(chain, 1, 10*time.Millisecond, 3, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ch := d.Submit(&Entry{ID: "t1", SignerIndex: 0, Priority: chainclient.PriorityLow})
	result, err := Await(context.Background(), ch)
	if err != nil {
		t.Fatalf("expected eventual success after retries, got %v", err)
	}
	if result.TxHash != "deadbeef" {
		t.Fatalf("unexpected tx hash %s", result.TxHash)
	}
	if atomic.LoadInt32(&chain.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", chain.calls)
	}
}

func TestProcessDoesNotRetryTerminalErrors(t *testing.T) {
	chain := &fakeChain{failUntil: 100, failKind: chainclient.KindAlreadyRevealed, signerAddrs: []string{"seda1signer0"}}
	d := New(chain, 1, 10*time.Millisecond, 3, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ch := d.Submit(&Entry{ID: "t1", SignerIndex: 0, Priority: chainclient.PriorityHigh})
	_, err := Await(context.Background(), ch)
	if err == nil {
		t.Fatal("expected an error")
	}
	berr, ok := chainclient.AsBroadcastError(err)
	if !ok || berr.Kind != chainclient.KindAlreadyRevealed {
		t.Fatalf("expected AlreadyRevealed, got %v", err)
	}
	if atomic.LoadInt32(&chain.calls) != 1 {
		t.Fatalf("expected exactly 1 attempt for a terminal error, got %d", chain.calls)
	}
}

func TestSubmitUnknownSignerIndex(t *testing.T) {
	chain := &fakeChain{signerAddrs: []string{"seda1signer0"}}
	d := New(chain, 1, 10*time.Millisecond, 1, time.Millisecond)

	ch := d.Submit(&Entry{ID: "bad", SignerIndex: 5})
	_, err := Await(context.Background(), ch)
	if err == nil {
		t.Fatal("expected an out-of-range signer error")
	}
}
