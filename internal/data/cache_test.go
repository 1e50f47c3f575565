package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCacheSetGet(t *testing.T) {
	c := NewLRUCache(4, time.Minute)
	c.Set("a", 1, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUCacheTTLExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewLRUCache(4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1, 10*time.Second)

	now = now.Add(9 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	// touch "a" so "b" becomes the eviction candidate
	c.Get("a")
	c.Set("c", 3, 0)

	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCacheStats(t *testing.T) {
	c := NewLRUCache(4, time.Minute)
	c.Set("a", 1, 0)
	c.Get("a")
	c.Get("a")
	c.Get("nope")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
	assert.InDelta(t, 2.0/3.0, stats["hit_rate"].(float64), 1e-9)
}

func TestKlineKeyIsStable(t *testing.T) {
	a := KlineKey("binance:spot", "BTC/USDT", "1m", 100, 0, 60000)
	b := KlineKey("binance:spot", "BTC/USDT", "1m", 100, 0, 60000)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, KlineKey("binance:spot", "BTC/USDT", "1m", 100, 0, 120000))
}
