package match

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a cached grouping/search session: the merged result state a
// follow-up "next page" request continues from, keyed by an opaque id the
// client echoes back on its query.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Hits      []Hit
}

// SessionCache stores in-flight search/grouping sessions and implements
// maintenance.SessionCache so SessionCachePruner can drop expired entries.
type SessionCache struct {
	mu  sync.Mutex
	ttl time.Duration
	by  map[string]*Session
}

// NewSessionCache returns a cache whose sessions live for ttl after
// creation unless refreshed.
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{ttl: ttl, by: make(map[string]*Session)}
}

// Put stores hits under a freshly generated session id and returns it.
func (c *SessionCache) Put(now time.Time, hits []Hit) string {
	id := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.by[id] = &Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(c.ttl), Hits: hits}
	return id
}

// Get returns the session for id if present and not expired as of now, and
// refreshes it: its expiry moves to now plus the cache's ttl.
func (c *SessionCache) Get(now time.Time, id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.by[id]
	if !ok || now.After(s.ExpiresAt) {
		return nil, false
	}
	s.ExpiresAt = now.Add(c.ttl)
	return s, true
}

// PruneExpired drops every session whose expiry is strictly before now,
// returning the number removed. Implements maintenance.SessionCache.
func (c *SessionCache) PruneExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, s := range c.by {
		if !now.After(s.ExpiresAt) {
			continue
		}
		delete(c.by, id)
		n++
	}
	return n
}
