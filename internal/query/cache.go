package query

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"locus/internal/kg"
	"locus/internal/retrieval"
)

// DefaultQueryCacheSize bounds the answer cache when the configuration does
// not set a size.
const DefaultQueryCacheSize = 256

// queryCache memoizes search answers within one snapshot generation. It is
// purged on every snapshot swap, so a hit can never serve results computed
// against a previous build.
type queryCache struct {
	lru    *lru.Cache[string, []SearchResult]
	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats is the hit/miss view reported by status.
type CacheStats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	// lru.New only fails for a non-positive size, which is excluded above.
	cache, _ := lru.New[string, []SearchResult](size)
	return &queryCache{lru: cache}
}

// cacheKey folds every input that influences a search answer into one
// string. Kinds are sorted so filter order does not fragment the cache.
func cacheKey(mode retrieval.Mode, query string, topK int, kinds []kg.EntityKind) string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return fmt.Sprintf("%s\x00%s\x00%d\x00%s", mode, query, topK, strings.Join(names, ","))
}

func (c *queryCache) get(key string) ([]SearchResult, bool) {
	if results, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return results, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *queryCache) put(key string, results []SearchResult) {
	c.lru.Add(key, results)
}

func (c *queryCache) purge() {
	c.lru.Purge()
}

func (c *queryCache) stats() CacheStats {
	return CacheStats{
		Size:   c.lru.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
