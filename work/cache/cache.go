package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// GuideCache holds fully rendered guide documents (the M3U playlist and the
// XMLTV file) so repeated client polls do not re-walk the schedule. Entries
// are cost-weighted by their byte size and expire after the configured TTL;
// a schedule refresh simply outlives the short TTL rather than invalidating.
type GuideCache struct {
	cache    *ristretto.Cache[string, string]
	duration time.Duration
	enabled  bool
}

// Keys for the rendered documents. The playlist key is a prefix: callers
// append the advertised base URL so each hostname caches its own links.
const (
	KeyPlaylist = "guide:playlist"
	KeyEPG      = "guide:epg"
)

// NewGuideCache builds the render cache. When enabled is false every Get
// misses, which keeps the call sites free of conditionals.
func NewGuideCache(enabled bool, duration time.Duration) *GuideCache {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 100,
		MaxCost:     100 << 20,
		BufferItems: 64,
	})
	if err != nil {
		panic(err)
	}

	return &GuideCache{
		cache:    cache,
		duration: duration,
		enabled:  enabled,
	}
}

// Get returns the cached rendering for key, if present and unexpired.
func (gc *GuideCache) Get(key string) (string, bool) {
	if !gc.enabled {
		return "", false
	}
	return gc.cache.Get(key)
}

// Set stores a rendered document under key, costed by its length.
func (gc *GuideCache) Set(key, value string) {
	if !gc.enabled {
		return
	}
	gc.cache.SetWithTTL(key, value, int64(len(value)), gc.duration)
	// make the write visible to an immediately following Get
	gc.cache.Wait()
}

// Close releases the cache's internal goroutines.
func (gc *GuideCache) Close() {
	gc.cache.Close()
}
