// Package progcache implements getOracleProgram: try the
// on-disk cache first, otherwise fetch from chain and write back
// best-effort.
package progcache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/sedaoverlay/node/pkg/kvstore"
)

// Chain is the narrow chainclient surface progcache needs.
type Chain interface {
	QueryOracleProgram(ctx context.Context, execProgramID string) ([]byte, error)
}

// Cache wraps a Chain with an on-disk kvstore.Store cache keyed by
// execProgramId.
type Cache struct {
	chain Chain
	store *kvstore.Store

	hits   int64
	misses int64
}

// New wires a Cache.
func New(chain Chain, store *kvstore.Store) *Cache {
	return &Cache{chain: chain, store: store}
}

// Get returns execProgramID's WASM bytes, preferring the on-disk cache and
// falling back to a chain query on a miss. A successful chain
// fetch is written back to disk best-effort: a write failure is logged but
// does not fail the call, since the bytes were already obtained.
func (c *Cache) Get(ctx context.Context, execProgramID string) ([]byte, error) {
	if bytes, ok := c.store.GetProgram(execProgramID); ok {
		atomic.AddInt64(&c.hits, 1)
		return bytes, nil
	}
	atomic.AddInt64(&c.misses, 1)

	bytes, err := c.chain.QueryOracleProgram(ctx, execProgramID)
	if err != nil {
		return nil, fmt.Errorf("progcache: fetching %s from chain: %w", execProgramID, err)
	}

	if err := c.store.PutProgram(execProgramID, bytes); err != nil {
		log.Warn().Err(err).Str("execProgramId", execProgramID).Msg("progcache: best-effort disk write failed")
	}
	return bytes, nil
}

// Stats reports cache hit/miss counters; `/api/health` does not include them.
func (c *Cache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
