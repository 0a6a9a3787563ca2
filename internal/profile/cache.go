package profile

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/relaydesk/switchboard/pkg/types"
)

// DefaultTTL is how long a cached profile stays fresh.
const DefaultTTL = time.Hour

// DefaultCacheSize caps how many profiles the cache holds.
const DefaultCacheSize = 4096

// BuildFunc produces a fresh profile for a customer.
type BuildFunc func(ctx context.Context) (*types.CustomerProfile, error)

// Cache is a TTL-bounded profile cache. Concurrent rebuilds of the same
// customer are coalesced into a single build; callers whose context is
// cancelled detach without cancelling the shared build.
type Cache struct {
	lru   *expirable.LRU[string, *types.CustomerProfile]
	group singleflight.Group
}

// NewCache builds a Cache. Non-positive size or TTL fall back to the
// defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru: expirable.NewLRU[string, *types.CustomerProfile](size, nil, ttl),
	}
}

// Get returns the cached profile for the customer, building and caching it on
// a miss. force bypasses the cache and rebuilds. Only successful builds are
// cached; a failed build leaves any previous entry untouched until it
// expires.
func (c *Cache) Get(ctx context.Context, customerID string, force bool, build BuildFunc) (*types.CustomerProfile, error) {
	if !force {
		if p, ok := c.lru.Get(customerID); ok {
			return p, nil
		}
	}

	// The build outlives any single caller so that one cancelled request
	// does not fail the coalesced rebuild for everyone else.
	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(customerID, func() (interface{}, error) {
		p, err := build(buildCtx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(customerID, p)
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if p, ok := res.Val.(*types.CustomerProfile); ok && p != nil {
			return p, nil
		}
		// Joined an invalidation marker flight instead of a rebuild; build
		// directly so the caller never sees a nil profile.
		p, err := build(buildCtx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(customerID, p)
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached profile for one customer, forcing the next Get
// to rebuild. Used after identity merges and ingests. When a rebuild for the
// customer is in flight, Invalidate waits for it to finish so the removal
// lands after that rebuild's cache write, never before it.
func (c *Cache) Invalidate(customerID string) {
	ch := c.group.DoChan(customerID, func() (interface{}, error) {
		return nil, nil
	})
	<-ch
	c.lru.Remove(customerID)
}

// Purge drops every cached profile.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len reports how many profiles are currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
