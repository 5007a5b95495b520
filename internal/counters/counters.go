// Package counters caches expensive counts with bounded staleness. A value
// older than TTL*PrefetchFraction is still served while one background load
// replaces it; a value older than TTL is never served and is swept out of
// memory once per TTL, so per-filter keys do not accumulate.
package counters

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL              = 5 * time.Minute
	DefaultPrefetchFraction = 0.75
	defaultRefreshTimeout   = 30 * time.Second
)

// Loader computes the current value of a counter
type Loader func(ctx context.Context) (int64, error)

// Mirror is an optional shared tier so several instances can reuse one load
type Mirror interface {
	Load(ctx context.Context, key string) (value int64, loadedAt time.Time, found bool, err error)
	Store(ctx context.Context, key string, value int64, loadedAt time.Time, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Options struct {
	TTL              time.Duration
	PrefetchFraction float64
	RefreshTimeout   time.Duration
	Clock            clockwork.Clock
	Mirror           Mirror
}

type entry struct {
	value    int64
	loadedAt time.Time
}

type Cache struct {
	ttl            time.Duration
	prefetchAfter  time.Duration
	refreshTimeout time.Duration
	clock          clockwork.Clock
	mirror         Mirror

	mu        sync.RWMutex
	entries   map[string]entry
	gens      map[string]uint64
	lastSweep time.Time
	group     singleflight.Group
}

func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.PrefetchFraction <= 0 || opts.PrefetchFraction > 1 {
		opts.PrefetchFraction = DefaultPrefetchFraction
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Cache{
		ttl:            opts.TTL,
		prefetchAfter:  time.Duration(float64(opts.TTL) * opts.PrefetchFraction),
		refreshTimeout: opts.RefreshTimeout,
		clock:          opts.Clock,
		mirror:         opts.Mirror,
		entries:        make(map[string]entry),
		gens:           make(map[string]uint64),
	}
}

// Get returns the cached value for key, calling load when it is missing or
// expired. Concurrent loads of one key are collapsed into a single call that
// outlives any one caller's ctx, bounded by the refresh timeout.
func (c *Cache) Get(ctx context.Context, key string, load Loader) (int64, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		age := c.clock.Since(e.loadedAt)
		if age < c.ttl {
			if age >= c.prefetchAfter {
				c.refreshAsync(key, load)
			}
			return e.value, nil
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.fill(fctx, key, load)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Invalidate drops key here and in the mirror so the next Get on this
// instance blocks on a fresh load. A load already in flight still answers
// its callers but is not cached. Other instances keep their local copy
// until it ages out.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)

	if c.mirror != nil {
		if err := c.mirror.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("counter", key).Msg("Counter mirror delete failed")
		}
	}
}

func (c *Cache) refreshAsync(key string, load Loader) {
	c.group.DoChan(key, func() (any, error) {
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.clock.Since(e.loadedAt) < c.prefetchAfter {
			return e.value, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()

		v, err := c.load(ctx, key, load)
		if err != nil {
			log.Warn().Err(err).Str("counter", key).Msg("Background counter refresh failed")
		}
		return v, err
	})
}

// fill serves a fresh mirrored value when there is one, otherwise loads
func (c *Cache) fill(ctx context.Context, key string, load Loader) (int64, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	gen := c.gens[key]
	c.mu.RUnlock()
	if ok && c.clock.Since(e.loadedAt) < c.ttl {
		return e.value, nil
	}

	if c.mirror != nil {
		value, loadedAt, found, err := c.mirror.Load(ctx, key)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("counter", key).Msg("Counter mirror read failed")
		case found && c.clock.Since(loadedAt) < c.prefetchAfter:
			c.put(key, gen, entry{value: value, loadedAt: loadedAt})
			return value, nil
		}
	}

	return c.load(ctx, key, load)
}

func (c *Cache) load(ctx context.Context, key string, load Loader) (int64, error) {
	c.mu.RLock()
	gen := c.gens[key]
	c.mu.RUnlock()

	start := c.clock.Now()
	value, err := load(ctx)
	if err != nil {
		return 0, err
	}

	loadedAt := c.clock.Now()
	if !c.put(key, gen, entry{value: value, loadedAt: loadedAt}) {
		log.Debug().Str("counter", key).Msg("Counter invalidated during load, not cached")
		return value, nil
	}

	log.Debug().
		Str("counter", key).
		Int64("value", value).
		Dur("took", loadedAt.Sub(start)).
		Msg("Counter loaded")

	if c.mirror != nil {
		if err := c.mirror.Store(ctx, key, value, loadedAt, c.ttl); err != nil {
			log.Warn().Err(err).Str("counter", key).Msg("Counter mirror write failed")
		}
	}
	return value, nil
}

// put stores e unless key was invalidated after gen was read. At most once
// per TTL it also drops every expired entry.
func (c *Cache) put(key string, gen uint64, e entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen {
		return false
	}

	now := c.clock.Now()
	if now.Sub(c.lastSweep) >= c.ttl {
		for k, old := range c.entries {
			if now.Sub(old.loadedAt) >= c.ttl {
				delete(c.entries, k)
			}
		}
		c.lastSweep = now
	}

	c.entries[key] = e
	return true
}
