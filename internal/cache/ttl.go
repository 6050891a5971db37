// Package cache provides a small in-memory cache with per-entry expiry.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTL is a concurrency-safe cache whose entries expire. Expired entries are
// never returned; the janitor started by Start removes them from memory.
// Reads do not extend an entry's lifetime.
type TTL[K comparable, V any] struct {
	items *ttlcache.Cache[K, V]

	stopOnce sync.Once
	stop     context.CancelFunc
	done     chan struct{}
}

// New returns an empty cache.
func New[K comparable, V any]() *TTL[K, V] {
	return &TTL[K, V]{
		items: ttlcache.New[K, V](
			ttlcache.WithDisableTouchOnHit[K, V](),
		),
	}
}

// Get returns the value for k if present and not expired.
func (c *TTL[K, V]) Get(k K) (V, bool) {
	item := c.items.Get(k)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Put stores v under k for ttl. A non-positive ttl removes k, since
// ttlcache reads zero as "use the default" and negative as "never expire".
func (c *TTL[K, V]) Put(k K, v V, ttl time.Duration) {
	if ttl <= 0 {
		c.items.Delete(k)
		return
	}
	c.items.Set(k, v, ttl)
}

// Invalidate removes k.
func (c *TTL[K, V]) Invalidate(k K) {
	c.items.Delete(k)
}

// Purge removes every entry.
func (c *TTL[K, V]) Purge() {
	c.items.DeleteAll()
}

// Len returns the number of stored entries.
func (c *TTL[K, V]) Len() int {
	return c.items.Len()
}

// DeleteExpired removes expired entries from memory.
func (c *TTL[K, V]) DeleteExpired() {
	c.items.DeleteExpired()
}

// Start runs the janitor every interval until ctx is done or Stop is
// called. It must be called at most once.
func (c *TTL[K, V]) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.items.DeleteExpired()
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit. It is a no-op when Start
// was never called.
func (c *TTL[K, V]) Stop() {
	c.stopOnce.Do(func() {
		if c.stop == nil {
			return
		}
		c.stop()
		<-c.done
	})
}
