package translate

import (
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/jblamy/quadstore/internal/sparql/normalizer"
)

// Cache holds prepared Compiled statements keyed by the query text exactly
// as given plus the graph it was compiled against, so the same SPARQL string
// issued against two different ontologies compiles independently. Entries
// compiled from a query that used a `*STATIC` path are additionally
// invalidated whenever the target graph's journal advances past the time
// they were compiled, since a STATIC closure is allowed to go stale
// between writes but never across one.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

type cacheKey struct {
	hash  uint64
	graph int64
}

type cacheEntry struct {
	compiled  *Compiled
	asOf      int64 // graph's last_update at compile time; only meaningful when compiled.IsStatic
}

// NewCache returns an empty prepared-query cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*cacheEntry)}
}

// hashText content-addresses a query by its SPARQL text exactly as the
// caller passed it; no whitespace normalization happens here or in the
// engine, so two spellings of the same query get separate entries.
func hashText(text string) uint64 {
	return xxh3.HashString(text)
}

// Get returns a cached Compiled statement for text against graph, or
// (nil, false) on a miss. lastUpdate is the graph's current journal
// timestamp (store.Store.GetLastUpdateTime); a STATIC-path entry compiled
// before a write that bumped the journal past its own compile time is
// evicted and reported as a miss, forcing a fresh compile over the now
// possibly-changed closure.
func (c *Cache) Get(text string, graph int64, lastUpdate int64) (*Compiled, bool) {
	key := cacheKey{hash: hashText(text), graph: graph}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.compiled.IsStatic && lastUpdate > e.asOf {
		delete(c.entries, key)
		return nil, false
	}
	return e.compiled, true
}

// Put stores a freshly compiled statement, recording the graph's current
// journal timestamp so a later Get can detect staleness for STATIC paths.
func (c *Cache) Put(text string, graph int64, lastUpdate int64, compiled *Compiled) {
	key := cacheKey{hash: hashText(text), graph: graph}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{compiled: compiled, asOf: lastUpdate}
}

// InvalidateGraph drops every cached entry for graph, so the next
// CompileCached for it compiles afresh even at a matching timestamp.
// Store.DeleteOntology and bulk loads do not call it.
func (c *Cache) InvalidateGraph(graph int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.graph == graph {
			delete(c.entries, k)
		}
	}
}

// CompileCached compiles sel against graph, reusing a cached statement
// when text (the query's source as given) already produced one that's
// still valid for the graph's current journal state.
func CompileCached(cache *Cache, text string, sel *normalizer.NormSelect, graph int64, lastUpdate int64, binder normalizer.Binder) (*Compiled, error) {
	if cache != nil {
		if hit, ok := cache.Get(text, graph, lastUpdate); ok {
			return hit, nil
		}
	}
	compiled, err := Compile(sel, graph, binder)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Put(text, graph, lastUpdate, compiled)
	}
	return compiled, nil
}
