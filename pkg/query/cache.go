// Package query implements spec.md §4.8's per-index query cache, §5's
// concurrency/locking model, and §6's external query interface
// (query/count/take/build/rebuild), sitting on top of pkg/tree's Search
// and each pkg/index specialization's Capability.
//
// Grounded on github.com/dgraph-io/ristretto/v2 (declared in the pack's
// go.mod for _examples/ShubhamNegi4-DaemonDB; no file in that repo calls
// it, so the usage shape here follows ristretto/v2's published API rather
// than an in-corpus call site) for the TTL cache, and on the teacher's own
// reader/writer suspension-point style (pkg/tree's cache.LOCKMODE
// read/write split) for the lock manager below.
package query

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"idxengine/config"
	"idxengine/pkg/codec"
)

// CachedValue is one Value's cacheable shape: the decoded record pointer
// and metadata, without the raw on-disk value bytes (spec §4.8: "stores
// decoded IndexQueryResult sequences... to bound memory").
type CachedValue struct {
	Pointer  codec.RecordPointer
	Metadata []codec.Key
}

// IndexQueryResult is spec §6's `ResultSet { entries, values[], filter_key
// }`: entries is the match count, values the decoded matches, filter_key
// the label of whatever post-hoc filter was applied (empty if none).
type IndexQueryResult struct {
	Entries   int
	Values    []CachedValue
	FilterKey string
}

// Cache is the per-index `(op, value) → ResultSet` mapping of spec §4.8:
// sliding TTL (reset on every hit), cleared in full on any mutation.
type Cache struct {
	rc  *ristretto.Cache[string, IndexQueryResult]
	ttl time.Duration
}

// NewCache builds a Cache sized from cfg (spec §4.8's default 60s TTL,
// config.QueryConfig.MaxCost bounding total cached bytes).
func NewCache(cfg *config.QueryConfig) (*Cache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, IndexQueryResult]{
		NumCounters: 1e7,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{rc: rc, ttl: time.Duration(cfg.TTLSeconds) * time.Second}, nil
}

// Get returns the cached result for key, if present and not expired. A
// hit slides the entry's TTL forward (spec §4.8: "Sliding mode resets the
// timer on each read").
func (c *Cache) Get(key string) (IndexQueryResult, bool) {
	v, ok := c.rc.Get(key)
	if !ok {
		return IndexQueryResult{}, false
	}
	c.rc.SetWithTTL(key, v, cacheCost(v), c.ttl)
	return v, true
}

// Set inserts or replaces key's cached result with a fresh TTL.
func (c *Cache) Set(key string, result IndexQueryResult) {
	c.rc.SetWithTTL(key, result, cacheCost(result), c.ttl)
	c.rc.Wait()
}

// Clear drops every cached entry (spec §4.8: "Any mutation clears the
// cache entirely").
func (c *Cache) Clear() {
	c.rc.Clear()
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.rc.Close()
}

// cacheCost approximates a result's byte cost for MaxCost accounting: one
// unit per value plus a small fixed overhead, cheap enough not to require
// walking metadata key contents.
func cacheCost(r IndexQueryResult) int64 {
	return int64(len(r.Values)) + 1
}
