package vault

import (
	"sync"
	"time"

	"github.com/Hussein-Mazeh/genvault/krypto"
)

// DefaultSessionTTL is how long a remembered key stays usable.
const DefaultSessionTTL = 30 * time.Minute

// SessionCache holds at most one derived key and its expiry. It never sees
// the passphrase. Expiry is checked lazily in Get.
type SessionCache struct {
	mu        sync.Mutex
	key       *krypto.Key
	expiresAt time.Time
	now       func() time.Time
}

// SessionOption configures a SessionCache.
type SessionOption func(*SessionCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(c *SessionCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewSessionCache returns an empty cache.
func NewSessionCache(opts ...SessionOption) *SessionCache {
	c := &SessionCache{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached key while it is still valid. An expired key is
// dropped on the way out.
func (c *SessionCache) Get() (*krypto.Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key == nil {
		return nil, false
	}
	if !c.now().Before(c.expiresAt) {
		c.key = nil
		c.expiresAt = time.Time{}
		return nil, false
	}
	return c.key, true
}

// Set stores key until now+ttl, replacing anything cached before.
func (c *SessionCache) Set(key *krypto.Key, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key == nil || ttl <= 0 {
		c.key = nil
		c.expiresAt = time.Time{}
		return
	}
	c.key = key
	c.expiresAt = c.now().Add(ttl)
}

// Clear discards the cached key unconditionally.
func (c *SessionCache) Clear() {
	c.mu.Lock()
	c.key = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Destroy clears the cache and destroys the key it held. Clear only drops
// the reference, since an operation may still be using the key; Destroy is
// for when no operation can be.
func (c *SessionCache) Destroy() {
	c.mu.Lock()
	key := c.key
	c.key = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	key.Destroy()
}

// ExpiresAt reports the expiry of a live cached key.
func (c *SessionCache) ExpiresAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key == nil || !c.now().Before(c.expiresAt) {
		return time.Time{}, false
	}
	return c.expiresAt, true
}
