package data

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	data      any
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// LRUCache is a TTL-bounded LRU. Expiry is checked lazily on Get; eviction
// runs on Set once the entry count crosses maxSize.
type LRUCache struct {
	mu         sync.Mutex
	maxSize    int
	defaultTTL time.Duration
	order      *list.List // front = least recently used
	entries    map[string]*list.Element
	hits       int64
	misses     int64
	now        func() time.Time
}

func NewLRUCache(maxSize int, defaultTTL time.Duration) *LRUCache {
	return &LRUCache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the cached value, or (nil, false) on miss or expiry. Expired
// entries are evicted on the spot.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if entry.expired(c.now()) {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.order.MoveToBack(el)
	c.hits++
	return entry.data, true
}

// Set stores a value under key. A zero ttl uses the cache default.
func (c *LRUCache) Set(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	for len(c.entries) >= c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	el := c.order.PushBack(&cacheEntry{key: key, data: data, createdAt: c.now(), ttl: ttl})
	c.entries[key] = el
}

func (c *LRUCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return true
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.hits, c.misses = 0, 0
}

func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports size and hit rate.
func (c *LRUCache) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return map[string]any{
		"size":     len(c.entries),
		"max_size": c.maxSize,
		"hits":     c.hits,
		"misses":   c.misses,
		"hit_rate": rate,
	}
}

// DataCache keys kline and ticker payloads independently: klines carry a
// long TTL, tickers a short one.
type DataCache struct {
	Klines  *LRUCache
	Tickers *LRUCache
}

func NewDataCache(klineTTL time.Duration, maxSize int) *DataCache {
	tickerSize := maxSize / 2
	if tickerSize < 1 {
		tickerSize = 1
	}
	return &DataCache{
		Klines:  NewLRUCache(maxSize, klineTTL),
		Tickers: NewLRUCache(tickerSize, 5*time.Second),
	}
}

// KlineKey builds the cache key (service, symbol, interval, limit, start, end).
func KlineKey(service, symbol, interval string, limit int, startMs, endMs int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%d", service, symbol, interval, limit, startMs, endMs)
}

func (c *DataCache) Stats() map[string]any {
	return map[string]any{
		"klines":  c.Klines.Stats(),
		"tickers": c.Tickers.Stats(),
	}
}
