// Package drpool holds the two mutex-guarded lookup tables shared by
// discovery, eligibility, and task execution: the chain-sourced
// DataRequest records, and the per-(DR, identity) work items derived from
// them. Both live under one lock so DeleteDR's cascade into identityDRs
// is atomic.
package drpool

import (
	"sync"

	"github.com/sedaoverlay/node/pkg/drtypes"
)

// identityKey is the composite key for the identityDRs table.
type identityKey struct {
	drID       string
	identityID string
}

// Pool is the DR pool: a drs map and an identityDRs map kept
// consistent under a single lock so deleteDR's cascade is atomic.
type Pool struct {
	mu sync.RWMutex

	drs         map[string]*drtypes.DataRequest
	identityDRs map[identityKey]*drtypes.IdentityDataRequest
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		drs:         make(map[string]*drtypes.DataRequest),
		identityDRs: make(map[identityKey]*drtypes.IdentityDataRequest),
	}
}

// InsertDR adds dr to the pool, or replaces the existing record for
// dr.ID wholesale; records are never mutated in place.
func (p *Pool) InsertDR(dr *drtypes.DataRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drs[dr.ID] = dr
}

// GetDR returns a clone of the DR record for id, or nil if absent.
func (p *Pool) GetDR(id string) *drtypes.DataRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.drs[id].Clone()
}

// HasDR reports whether id is currently tracked.
func (p *Pool) HasDR(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.drs[id]
	return ok
}

// DeleteDR removes dr id and cascades the deletion to every identity
// entry keyed on it; no identity entry for the id survives.
func (p *Pool) DeleteDR(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.drs, id)
	for k := range p.identityDRs {
		if k.drID == id {
			delete(p.identityDRs, k)
		}
	}
}

// ListDRs returns a snapshot slice of every tracked DR, cloned so callers
// cannot mutate pool state.
func (p *Pool) ListDRs() []*drtypes.DataRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*drtypes.DataRequest, 0, len(p.drs))
	for _, dr := range p.drs {
		out = append(out, dr.Clone())
	}
	return out
}

// InsertIdentityDR creates the per-(drId, identityId) work item. It is a
// no-op if the parent DR is not (or no longer) in the pool, so a
// concurrent DeleteDR can never be followed by a resurrected entry.
func (p *Pool) InsertIdentityDR(drID, identityID string, eligibilityHeight uint64, status drtypes.TaskStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.drs[drID]; !ok {
		return
	}
	key := identityKey{drID: drID, identityID: identityID}
	if _, exists := p.identityDRs[key]; exists {
		return
	}
	p.identityDRs[key] = &drtypes.IdentityDataRequest{
		DRID:              drID,
		IdentityID:        identityID,
		Status:            status,
		EligibilityHeight: eligibilityHeight,
	}
}

// GetIdentityDR returns the live pointer for (drID, identityID), or nil.
// Unlike GetDR this is not cloned: pkg/drtask owns the object's mutation
// lifecycle and updates its fields in place through this pointer.
func (p *Pool) GetIdentityDR(drID, identityID string) *drtypes.IdentityDataRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identityDRs[identityKey{drID: drID, identityID: identityID}]
}

// HasIdentityDR reports whether (drID, identityID) already has a work
// item, used by EligibilityTask to skip identities already assigned.
func (p *Pool) HasIdentityDR(drID, identityID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.identityDRs[identityKey{drID: drID, identityID: identityID}]
	return ok
}

// DeleteIdentityDR removes a single work item, used on terminal status
// (Revealed/Failed).
func (p *Pool) DeleteIdentityDR(drID, identityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.identityDRs, identityKey{drID: drID, identityID: identityID})
}

// ListIdentityDRsForDR returns every work item for drID.
func (p *Pool) ListIdentityDRsForDR(drID string) []*drtypes.IdentityDataRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*drtypes.IdentityDataRequest, 0)
	for k, v := range p.identityDRs {
		if k.drID == drID {
			out = append(out, v)
		}
	}
	return out
}

// ListIdentityDRs returns every tracked work item, used by MainTask's
// admission loop and diagnostics snapshot.
func (p *Pool) ListIdentityDRs() []*drtypes.IdentityDataRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*drtypes.IdentityDataRequest, 0, len(p.identityDRs))
	for _, v := range p.identityDRs {
		out = append(out, v)
	}
	return out
}

// Len reports the number of DRs currently tracked.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.drs)
}
