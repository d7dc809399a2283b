package hubcache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-hub/wbp-hub/internal/hubconfig"
)

func testConfig() hubconfig.CacheConfig {
	return hubconfig.CacheConfig{
		MaxBytes:           1 << 20,
		DefaultTTL:         time.Hour,
		EvictionPolicy:     "lru",
		CompressionEnabled: true,
		PreloadEnabled:     false,
		PreloadInterval:    time.Minute,
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	c.Set("k1", []byte("hello"))
	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "hello", string(v))
}

func TestGetMissingKey(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestSetCompressesLargeValues(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	big := strings.Repeat("a", compressThreshold+1)
	c.Set("big", []byte(big))

	c.mu.Lock()
	e := c.entries["big"]
	c.mu.Unlock()
	require.NotNil(t, e)
	assert.True(t, e.Compressed)

	v, ok := c.Get("big")
	require.True(t, ok)
	assert.Equal(t, big, string(v))
}

func TestSetTTLExpires(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	c.SetTTL("k1", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestInvalidateRemovesKey(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	c.Set("k1", []byte("v"))
	c.Invalidate("k1")
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestInvalidateAllClears(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	c.Set("k1", []byte("v1"))
	c.Set("k2", []byte("v2"))
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
}

func TestEnsureCapacityEvictsLRU(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBytes = 10
	cfg.CompressionEnabled = false
	c := New(cfg)
	defer c.Stop()

	c.Set("k1", []byte("12345"))
	time.Sleep(time.Millisecond)
	c.Set("k2", []byte("12345"))
	time.Sleep(time.Millisecond)
	c.Set("k3", []byte("12345"))

	_, ok1 := c.Get("k1")
	assert.False(t, ok1, "oldest entry should have been evicted")
	_, ok3 := c.Get("k3")
	assert.True(t, ok3, "newest entry should survive")
}

func TestEnsureCapacityEvictsLFU(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBytes = 10
	cfg.CompressionEnabled = false
	cfg.EvictionPolicy = "lfu"
	c := New(cfg)
	defer c.Stop()

	c.Set("k1", []byte("12345"))
	c.Set("k2", []byte("12345"))
	// Access k1 repeatedly so it accrues more hits than k2.
	c.Get("k1")
	c.Get("k1")
	c.Get("k1")

	c.Set("k3", []byte("12345"))

	_, ok2 := c.Get("k2")
	assert.False(t, ok2, "least-frequently-used entry should have been evicted")
}

func TestRegisterPreloadAndSweep(t *testing.T) {
	c := New(testConfig())
	defer c.Stop()

	c.RegisterPreload("k1")
	c.SetPreloader(func(key string) ([]byte, bool) {
		if key == "k1" {
			return []byte("preloaded"), true
		}
		return nil, false
	})

	c.runPreload()
	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "preloaded", string(v))
}
