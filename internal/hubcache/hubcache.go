// Package hubcache implements the cache/preload layer (C10): a bounded,
// size-aware cache of server state (player lists, whitelist snapshots,
// permission lookups) with pluggable eviction policy, optional
// compression of large values, and a periodic preload sweep.
package hubcache

import (
	"bytes"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/game-hub/wbp-hub/internal/hubconfig"
	"github.com/game-hub/wbp-hub/internal/model"
)

// compressThreshold is the value size above which entries are gzipped
// before being stored, when compression is enabled.
const compressThreshold = 1024

// evictionHeadroom is the fraction of MaxBytes the cache evicts down to
// once it goes over budget, so a single eviction pass buys room for more
// than one subsequent insert.
const evictionHeadroom = 0.8

// Preloader loads the current value for a key from its source of truth,
// for use by the periodic preload sweep.
type Preloader func(key string) ([]byte, bool)

// Cache is a bounded, size-limited cache of arbitrary byte values keyed
// by string, following the TTL-sweep-goroutine shape of
// infrastructure/cache.Cache but adding an eviction policy and
// compression of large values.
type Cache struct {
	mu      sync.Mutex
	cfg     hubconfig.CacheConfig
	entries map[string]*model.CacheEntry
	size    int64

	preload   Preloader
	preloadMu sync.Mutex
	keys      map[string]struct{} // keys registered for preload

	stopCh chan struct{}
}

// New creates a cache/preload layer and starts its periodic sweep.
func New(cfg hubconfig.CacheConfig) *Cache {
	c := &Cache{
		cfg:     cfg,
		entries: make(map[string]*model.CacheEntry),
		keys:    make(map[string]struct{}),
		stopCh:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// SetPreloader installs the function used to refresh registered keys
// during the periodic preload sweep.
func (c *Cache) SetPreloader(p Preloader) {
	c.preloadMu.Lock()
	defer c.preloadMu.Unlock()
	c.preload = p
}

// Stop halts the background sweep goroutine.
func (c *Cache) Stop() {
	close(c.stopCh)
}

// Get returns a key's value, decompressing it transparently, and bumps
// its access bookkeeping for the LRU/LFU eviction policy.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.TTL > 0 && time.Since(e.CreatedAt) > e.TTL {
		c.removeLocked(key)
		return nil, false
	}

	e.LastAccessed = time.Now()
	e.AccessCount++

	if !e.Compressed {
		return e.Value, true
	}
	raw, err := decompress(e.Value)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Set stores a value under key with the cache's default TTL, compressing
// it if it exceeds compressThreshold and compression is enabled, then
// evicts entries if the cache has grown past its byte budget.
func (c *Cache) Set(key string, value []byte) {
	c.SetTTL(key, value, c.cfg.DefaultTTL)
}

// SetTTL stores a value under key with an explicit TTL (0 disables
// expiry for that entry).
func (c *Cache) SetTTL(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := value
	compressed := false
	if c.cfg.CompressionEnabled && len(value) > compressThreshold {
		if z, err := compress(value); err == nil && len(z) < len(value) {
			stored = z
			compressed = true
		}
	}

	if old, ok := c.entries[key]; ok {
		c.size -= old.Size
	}

	now := time.Now()
	e := &model.CacheEntry{
		Key:          key,
		Value:        stored,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  0,
		Size:         int64(len(stored)),
		TTL:          ttl,
		Compressed:   compressed,
	}
	c.entries[key] = e
	c.size += e.Size

	c.ensureCapacityLocked()
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*model.CacheEntry)
	c.size = 0
}

// Size returns the current tracked byte size of all stored values.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RegisterPreload marks a key to be refreshed by the periodic preload
// sweep via the installed Preloader.
func (c *Cache) RegisterPreload(key string) {
	c.preloadMu.Lock()
	defer c.preloadMu.Unlock()
	c.keys[key] = struct{}{}
}

func (c *Cache) removeLocked(key string) {
	if e, ok := c.entries[key]; ok {
		c.size -= e.Size
		delete(c.entries, key)
	}
}

// ensureCapacityLocked evicts entries under the configured policy until
// the cache is back under evictionHeadroom of MaxBytes. Caller must
// hold c.mu.
func (c *Cache) ensureCapacityLocked() {
	if c.cfg.MaxBytes <= 0 || c.size <= c.cfg.MaxBytes {
		return
	}
	target := int64(float64(c.cfg.MaxBytes) * evictionHeadroom)

	victims := make([]*model.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}

	switch c.cfg.EvictionPolicy {
	case "lfu":
		sort.Slice(victims, func(i, j int) bool {
			if victims[i].AccessCount != victims[j].AccessCount {
				return victims[i].AccessCount < victims[j].AccessCount
			}
			return victims[i].LastAccessed.Before(victims[j].LastAccessed)
		})
	default: // "lru" and unrecognized policies fall back to LRU
		sort.Slice(victims, func(i, j int) bool {
			return victims[i].LastAccessed.Before(victims[j].LastAccessed)
		})
	}

	for _, e := range victims {
		if c.size <= target {
			break
		}
		c.removeLocked(e.Key)
	}
}

func (c *Cache) sweepLoop() {
	ttlTicker := time.NewTicker(1 * time.Minute)
	defer ttlTicker.Stop()

	var preloadTicker *time.Ticker
	var preloadCh <-chan time.Time
	if c.cfg.PreloadEnabled && c.cfg.PreloadInterval > 0 {
		preloadTicker = time.NewTicker(c.cfg.PreloadInterval)
		preloadCh = preloadTicker.C
		defer preloadTicker.Stop()
	}

	for {
		select {
		case <-c.stopCh:
			return
		case <-ttlTicker.C:
			c.sweepExpired()
		case <-preloadCh:
			c.runPreload()
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL {
			c.removeLocked(k)
		}
	}
}

func (c *Cache) runPreload() {
	c.preloadMu.Lock()
	p := c.preload
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	c.preloadMu.Unlock()

	if p == nil {
		return
	}
	for _, k := range keys {
		if v, ok := p(k); ok {
			c.Set(k, v)
		}
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
