package query

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/rulestore"
)

// DefaultCacheSize is used when the configured cache size is not positive.
const DefaultCacheSize = 1024

// CacheObserver is notified of every cache lookup.
type CacheObserver interface {
	IncCache(hit bool)
}

// CachedEngine memoizes query results per snapshot. Results are a pure function of
// the snapshot and the normalized request, so entries never go stale; a swapped
// snapshot simply stops producing hits for the old ID.
type CachedEngine struct {
	engine   *Engine
	cache    *lru.Cache[string, *domain.QueryResult]
	observer CacheObserver
}

// NewCachedEngine wraps engine with an LRU cache holding up to size results.
func NewCachedEngine(engine *Engine, size int, observer CacheObserver) (*CachedEngine, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *domain.QueryResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &CachedEngine{engine: engine, cache: cache, observer: observer}, nil
}

// Query returns a cached result when one exists for the same snapshot and request.
// Callers receive their own copy of the result.
func (c *CachedEngine) Query(snapshot *rulestore.Snapshot, req domain.QueryRequest) (*domain.QueryResult, error) {
	key := cacheKey(snapshot.ID(), req)
	if result, ok := c.cache.Get(key); ok {
		c.observe(true)
		return clone(result), nil
	}
	c.observe(false)

	result, err := c.engine.Query(snapshot, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, result)
	return clone(result), nil
}

// Len returns the number of cached results.
func (c *CachedEngine) Len() int {
	return c.cache.Len()
}

// Purge drops every cached result.
func (c *CachedEngine) Purge() {
	c.cache.Purge()
}

func (c *CachedEngine) observe(hit bool) {
	if c.observer != nil {
		c.observer.IncCache(hit)
	}
}

func cacheKey(snapshotID string, req domain.QueryRequest) string {
	var b strings.Builder
	b.WriteString(snapshotID)
	writeItems(&b, domain.NewTransaction(req.Observed...))
	writeItems(&b, domain.NewTransaction(req.Severe...))
	return b.String()
}

// writeItems length-prefixes every item so no label content can collide with
// another item list.
func writeItems(b *strings.Builder, items domain.Transaction) {
	fmt.Fprintf(b, "/%d", len(items))
	for _, item := range items {
		fmt.Fprintf(b, ":%d:%s", len(item), item)
	}
}

func clone(r *domain.QueryResult) *domain.QueryResult {
	out := *r
	out.Primary = append([]domain.Association{}, r.Primary...)
	out.Associated = append([]domain.Association{}, r.Associated...)
	out.Complications = append([]domain.Association{}, r.Complications...)
	return &out
}
