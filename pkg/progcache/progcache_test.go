package progcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sedaoverlay/node/pkg/kvstore"
)

type fakeChain struct {
	calls int
	bytes []byte
	err   error
}

func (f *fakeChain) QueryOracleProgram(ctx context.Context, execProgramID string) ([]byte, error) {
	f.calls++
	return f.bytes, f.err
}

func TestGetFetchesFromChainOnMissThenCaches(t *testing.T) {
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	chain := &fakeChain{bytes: []byte("wasm")}
	cache := New(chain, store)

	got, err := cache.Get(context.Background(), "prog1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "wasm" {
		t.Fatalf("expected wasm bytes, got %s", got)
	}
	if chain.calls != 1 {
		t.Fatalf("expected exactly one chain call, got %d", chain.calls)
	}

	// Second fetch should hit the disk cache, not the chain again.
	got2, err := cache.Get(context.Background(), "prog1")
	if err != nil {
		t.Fatalf("unexpected error on second fetch: %v", err)
	}
	if string(got2) != "wasm" {
		t.Fatalf("expected wasm bytes on cache hit, got %s", got2)
	}
	if chain.calls != 1 {
		t.Fatalf("expected the second fetch to hit the cache, not the chain; calls=%d", chain.calls)
	}

	hits, misses := cache.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got hits=%d misses=%d", hits, misses)
	}
}
