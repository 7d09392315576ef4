package imageio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheMB is the shared cache budget used until configured otherwise.
const DefaultCacheMB = 2048

// maxCacheEntries bounds the entry count independently of the byte budget.
const maxCacheEntries = 4096

type cacheEntry struct {
	input   Input
	size    int64
	modTime time.Time
	bytes   int64
}

// CacheStats is a snapshot of cache usage.
type CacheStats struct {
	Entries   int
	UsedBytes int64
	MaxBytes  int64
	Hits      int64
	Misses    int64
}

// Cache keeps opened inputs keyed by absolute path under a memory budget.
// Entries are dropped when the file's size or mtime changes.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *cacheEntry]
	maxBytes int64
	used     int64
	hits     int64
	misses   int64
}

// NewCache creates a cache bounded to maxMemoryMB megabytes. Values <= 0
// disable retention.
func NewCache(maxMemoryMB int) *Cache {
	c := &Cache{maxBytes: int64(maxMemoryMB) << 20}
	entries, err := lru.NewWithEvict[string, *cacheEntry](maxCacheEntries, c.onEvict)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	c.entries = entries
	return c
}

var sharedCache = sync.OnceValue(func() *Cache {
	return NewCache(DefaultCacheMB)
})

// SharedCache returns the process-wide cache.
func SharedCache() *Cache {
	return sharedCache()
}

// onEvict runs while c.mu is held by the caller that triggered eviction.
func (c *Cache) onEvict(_ string, e *cacheEntry) {
	c.used -= e.bytes
	_ = e.input.Close()
}

// SetMaxMemoryMB changes the budget, evicting least recently used entries
// until usage fits.
func (c *Cache) SetMaxMemoryMB(mb int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxBytes = int64(mb) << 20
	c.shrinkLocked(0)
}

// Open returns the cached input for path or opens it with codec. The release
// func must be called when the caller is done reading; it closes inputs the
// cache declined to retain.
func (c *Cache) Open(path string, codec Codec) (Input, func(), error) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	info, err := os.Stat(key)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	c.mu.Lock()
	if e, ok := c.entries.Get(key); ok {
		if e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
			c.hits++
			c.mu.Unlock()
			return e.input, func() {}, nil
		}
		c.entries.Remove(key)
	}
	c.misses++
	c.mu.Unlock()

	input, err := codec.Open(key)
	if err != nil {
		return nil, nil, err
	}
	entry := &cacheEntry{input: input, size: info.Size(), modTime: info.ModTime(), bytes: footprint(input)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.bytes > c.maxBytes {
		return input, func() { _ = input.Close() }, nil
	}
	c.entries.Remove(key)
	c.shrinkLocked(entry.bytes)
	c.entries.Add(key, entry)
	c.used += entry.bytes
	return input, func() {}, nil
}

// Invalidate drops any entry for path.
func (c *Cache) Invalidate(path string) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Stats returns current usage counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.entries.Len(),
		UsedBytes: c.used,
		MaxBytes:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
	}
}

func (c *Cache) shrinkLocked(incoming int64) {
	for c.used+incoming > c.maxBytes && c.entries.Len() > 0 {
		c.entries.RemoveOldest()
	}
}

// footprint estimates the memory held by input. Codecs may report it exactly
// through a MemoryBytes method.
func footprint(input Input) int64 {
	if m, ok := input.(interface{ MemoryBytes() int64 }); ok {
		return m.MemoryBytes()
	}
	var total int64
	for s := 0; s < input.NumSubimages(); s++ {
		for m := 0; m < input.NumMipLevels(s); m++ {
			spec, err := input.Spec(s, m)
			if err != nil {
				continue
			}
			total += int64(spec.Width) * int64(spec.Height) * int64(spec.NChannels()) * 4
		}
	}
	return total
}
