package wallet

import (
	"sync"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// pendingCache holds create_action results awaiting a matching sign_action
// call, evicting entries once they outlive ttl (spec.md §4.1: "TTL cache
// keyed by reference", default 300s).
type pendingCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]wdk.PendingSignAction
}

func newPendingCache(ttl time.Duration) *pendingCache {
	return &pendingCache{ttl: ttl, entries: make(map[string]wdk.PendingSignAction)}
}

func (c *pendingCache) put(p wdk.PendingSignAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.Reference] = p
}

// get returns the pending entry for reference if present and not expired.
// An expired entry is evicted as a side effect.
func (c *pendingCache) get(reference string, now time.Time) (wdk.PendingSignAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[reference]
	if !ok {
		return wdk.PendingSignAction{}, false
	}
	if p.Expired(now, c.ttl) {
		delete(c.entries, reference)
		return wdk.PendingSignAction{}, false
	}
	return p, true
}

func (c *pendingCache) delete(reference string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, reference)
}
