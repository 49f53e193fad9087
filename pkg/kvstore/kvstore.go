// Package kvstore is the node's on-disk persistence layer: the
// oracle-program binary cache plus a namespace of small JSON snapshots,
// as two prefix-namespaced BadgerDB keyspaces.
package kvstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

const (
	programPrefix  = "program:"
	snapshotPrefix = "snapshot:"
)

// Store is the BadgerDB-backed KV store, living in the state directory
// next to `wasmCacheDir`. Deleting it is safe: the node re-downloads
// programs on demand.
type Store struct {
	db   *badger.DB
	path string
}

// Open opens (creating if absent) a BadgerDB store at path and starts
// its background value-log GC ticker.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening badger at %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("kvstore: opened")

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			_ = db.RunValueLogGC(0.5)
		}
	}()

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutProgram stores an oracle program's WASM bytes under key;
// pkg/progcache uses the bare execProgramId as the key.
func (s *Store) PutProgram(key string, wasmBytes []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(programPrefix+key), wasmBytes)
	})
}

// GetProgram retrieves cached WASM bytes by key, reporting a cache miss
// (not an error) when absent.
func (s *Store) GetProgram(key string) ([]byte, bool) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(programPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

// DeleteProgram evicts one cached program; deleting the whole cache is
// always safe.
func (s *Store) DeleteProgram(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(programPrefix + key))
	})
}

// PutSnapshot JSON-marshals value under the snapshot namespace.
// pkg/diagserver does not read this namespace; it serves the live
// MainTask snapshot.
func (s *Store) PutSnapshot(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: marshaling snapshot %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotPrefix+key), data)
	})
}

// GetSnapshot unmarshals the snapshot stored under key into out.
func (s *Store) GetSnapshot(key string, out interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	return found, err
}

// Stats returns on-disk size statistics; `/api/health` does not include them.
func (s *Store) Stats() map[string]interface{} {
	lsm, vlog := s.db.Size()
	return map[string]interface{}{
		"path":       s.path,
		"lsmSize":    lsm,
		"vlogSize":   vlog,
		"totalSize":  lsm + vlog,
	}
}
