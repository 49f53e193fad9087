package kvstore

import (
	"path/filepath"
	"testing"
)

func TestProgramRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	if err := store.PutProgram("prog1_metered_v1.wasm", []byte("wasmbytes")); err != nil {
		t.Fatalf("putting program: %v", err)
	}

	got, ok := store.GetProgram("prog1_metered_v1.wasm")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(got) != "wasmbytes" {
		t.Fatalf("expected wasmbytes, got %s", got)
	}

	if _, ok := store.GetProgram("missing"); ok {
		t.Fatal("expected a cache miss for an unwritten key")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	type payload struct {
		Count int `json:"count"`
	}
	if err := store.PutSnapshot("identities", payload{Count: 3}); err != nil {
		t.Fatalf("putting snapshot: %v", err)
	}

	var out payload
	found, err := store.GetSnapshot("identities", &out)
	if err != nil {
		t.Fatalf("getting snapshot: %v", err)
	}
	if !found || out.Count != 3 {
		t.Fatalf("expected found=true count=3, got found=%v out=%+v", found, out)
	}
}
