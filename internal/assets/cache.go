package assets

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"eyewear-tryon/internal/logging"
)

// DefaultCacheBytes is the in-memory budget when none is configured.
const DefaultCacheBytes = 256 << 20

// Tier is a slower, persistent cache consulted on a memory miss.
type Tier interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Put(ctx context.Context, url string, data []byte) error
}

// Cache is a concurrency-safe Fetcher that keeps recently used assets in
// memory up to a byte budget. Concurrent misses for one URL share a single
// fetch. Failures are not cached.
type Cache struct {
	next   Fetcher
	tier   Tier
	budget int64
	log    logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recent
	used    int64

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	url  string
	data []byte
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBudget sets the memory budget in bytes. Assets larger than the budget
// are fetched but never retained.
func WithBudget(n int64) CacheOption { return func(c *Cache) { c.budget = n } }

// WithTier adds a persistent tier below memory.
func WithTier(t Tier) CacheOption { return func(c *Cache) { c.tier = t } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) CacheOption { return func(c *Cache) { c.log = l } }

// NewCache wraps next.
func NewCache(next Fetcher, opts ...CacheOption) *Cache {
	c := &Cache{
		next:    next,
		budget:  DefaultCacheBytes,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrDiscard(c.log)
	return c
}

func (c *Cache) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := c.lookup(url); ok {
		c.hits.Add(1)
		return data, nil
	}

	ch := c.group.DoChan(url, func() (interface{}, error) {
		// Double-check: another flight may have filled the entry while we
		// were queued.
		if data, ok := c.lookup(url); ok {
			return data, nil
		}
		c.misses.Add(1)
		data, err := c.load(ctx, url)
		if err != nil {
			return nil, err
		}
		c.store(url, data)
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, url string) ([]byte, error) {
	if c.tier != nil {
		data, ok, err := c.tier.Get(ctx, url)
		switch {
		case err != nil:
			c.log.WithError(err).WithField(logging.AssetKey, url).Warn("persistent cache read failed")
		case ok:
			return data, nil
		}
	}
	data, err := c.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if c.tier != nil {
		if err := c.tier.Put(ctx, url, data); err != nil {
			c.log.WithError(err).WithField(logging.AssetKey, url).Warn("persistent cache write failed")
		}
	}
	return data, nil
}

func (c *Cache) lookup(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *Cache) store(url string, data []byte) {
	size := int64(len(data))
	if size > c.budget {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[url]; ok {
		c.used -= int64(len(el.Value.(*cacheEntry).data))
		c.lru.Remove(el)
	}
	c.entries[url] = c.lru.PushFront(&cacheEntry{url: url, data: data})
	c.used += size
	for c.used > c.budget {
		back := c.lru.Back()
		e := back.Value.(*cacheEntry)
		c.lru.Remove(back)
		delete(c.entries, e.url)
		c.used -= int64(len(e.data))
	}
}

// Invalidate drops url from memory.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[url]; ok {
		c.used -= int64(len(el.Value.(*cacheEntry).data))
		c.lru.Remove(el)
		delete(c.entries, url)
	}
}

// CacheStats is a point-in-time view of a Cache.
type CacheStats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

// Stats returns current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries: len(c.entries),
		Bytes:   c.used,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
