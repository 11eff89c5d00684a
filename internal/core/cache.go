package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"PhotoTransfer/pkg/device"
)

// DefaultCacheSize bounds how many device listings are kept
const DefaultCacheSize = 32

// Enumerator lists the media of a device
type Enumerator interface {
	Enumerate(ctx context.Context, dev device.Device) ([]device.MediaItem, error)
}

// CacheStats is reported by the health endpoint
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// MediaCache keeps the media listing of each known device.
//
// The mutex is never held while a backend enumerates. A populate only commits
// when its device is still live and was not invalidated or pruned while the
// enumeration ran, so a removed device can never reappear in the cache.
type MediaCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, []device.MediaItem]
	live    map[string]struct{} // nil until the first scan
	gen     map[string]uint64
	source  Enumerator
	logger  log.Interface
	hits    uint64
	misses  uint64
}

// NewMediaCache creates a cache holding up to size device listings
func NewMediaCache(source Enumerator, size int, logger log.Interface) (*MediaCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = log.Log
	}
	entries, err := lru.New[string, []device.MediaItem](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create media cache: %w", err)
	}
	return &MediaCache{
		entries: entries,
		gen:     make(map[string]uint64),
		source:  source,
		logger:  logger,
	}, nil
}

// GetOrPopulate returns the cached listing of dev, enumerating the device when
// nothing is cached. Empty listings are cached; enumeration errors are not.
func (c *MediaCache) GetOrPopulate(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	c.mu.Lock()
	if items, ok := c.entries.Get(dev.ID); ok {
		c.hits++
		c.mu.Unlock()
		return cloneItems(items), nil
	}
	c.misses++
	gen := c.gen[dev.ID]
	c.mu.Unlock()

	items, err := c.source.Enumerate(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s: %w", dev.ID, err)
	}
	if items == nil {
		items = []device.MediaItem{}
	}

	c.mu.Lock()
	if c.isLive(dev.ID) && c.gen[dev.ID] == gen {
		c.entries.Add(dev.ID, items)
	} else {
		c.logger.WithField("device", dev.ID).Debug("[MediaCache] GetOrPopulate: device changed during enumeration, not caching")
	}
	c.mu.Unlock()

	c.logger.WithFields(log.Fields{"device": dev.ID, "items": len(items)}).Info("[MediaCache] GetOrPopulate: enumerated")
	return cloneItems(items), nil
}

// Invalidate drops the listing of id. It is a no-op for unknown ids.
func (c *MediaCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(id)
	c.gen[id]++
}

// ForceRefresh re-enumerates dev, replacing any cached listing
func (c *MediaCache) ForceRefresh(ctx context.Context, dev device.Device) ([]device.MediaItem, error) {
	c.Invalidate(dev.ID)
	return c.GetOrPopulate(ctx, dev)
}

// Cached returns the listing of id without enumerating
func (c *MediaCache) Cached(id string) ([]device.MediaItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.entries.Peek(id)
	if !ok {
		return nil, false
	}
	return cloneItems(items), true
}

// Stats returns counters for diagnostics
func (c *MediaCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.entries.Len(), Hits: c.hits, Misses: c.misses}
}

// retain installs ids as the live set and drops every listing of a device that
// is not in it. The registry calls it while holding its own lock.
func (c *MediaCache) retain(ids map[string]struct{}) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pruned []string
	for _, id := range c.entries.Keys() {
		if _, ok := ids[id]; !ok {
			c.entries.Remove(id)
			pruned = append(pruned, id)
		}
	}
	for id := range c.live {
		if _, ok := ids[id]; !ok {
			c.gen[id]++
		}
	}
	c.live = make(map[string]struct{}, len(ids))
	for id := range ids {
		c.live[id] = struct{}{}
	}
	return pruned
}

func (c *MediaCache) isLive(id string) bool {
	if c.live == nil {
		return true
	}
	_, ok := c.live[id]
	return ok
}

func cloneItems(items []device.MediaItem) []device.MediaItem {
	out := make([]device.MediaItem, len(items))
	copy(out, items)
	return out
}
