package accounts

import (
	"sync"
	"time"
)

type snapshot struct {
	accounts []Account
	at       time.Time
}

// SnapshotCache keeps the last successful fetch per institution link so a
// failed refresh can still show last-known balances.
type SnapshotCache struct {
	mu     sync.RWMutex
	maxAge time.Duration
	byLink map[string]snapshot
}

// NewSnapshotCache returns a cache whose entries are served for maxAge.
// Zero keeps entries until they are replaced or forgotten.
func NewSnapshotCache(maxAge time.Duration) *SnapshotCache {
	return &SnapshotCache{maxAge: maxAge, byLink: make(map[string]snapshot)}
}

func (c *SnapshotCache) Put(linkID string, accounts []Account, at time.Time) {
	cp := make([]Account, len(accounts))
	copy(cp, accounts)

	c.mu.Lock()
	c.byLink[linkID] = snapshot{accounts: cp, at: at}
	c.mu.Unlock()
}

// Get returns a copy of the snapshot and when it was taken.
func (c *SnapshotCache) Get(linkID string, now time.Time) ([]Account, time.Time, bool) {
	c.mu.RLock()
	s, ok := c.byLink[linkID]
	c.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, false
	}
	if c.maxAge > 0 && now.Sub(s.at) > c.maxAge {
		return nil, time.Time{}, false
	}

	cp := make([]Account, len(s.accounts))
	copy(cp, s.accounts)
	return cp, s.at, true
}

func (c *SnapshotCache) Forget(linkID string) {
	c.mu.Lock()
	delete(c.byLink, linkID)
	c.mu.Unlock()
}
