package translate_test

import (
	"testing"

	"github.com/jblamy/quadstore/internal/sparql/normalizer"
	"github.com/jblamy/quadstore/internal/sparql/parser"
	"github.com/jblamy/quadstore/internal/sparql/translate"
	"github.com/jblamy/quadstore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithResources(t *testing.T, iris ...string) *store.Store {
	t.Helper()
	st, err := store.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	for _, iri := range iris {
		_, err := st.Abbrev.Abbreviate(iri)
		require.NoError(t, err)
	}
	return st
}

func compile(t *testing.T, st *store.Store, sparql string, graph int64) *translate.Compiled {
	t.Helper()
	q, err := parser.Parse(sparql)
	require.NoError(t, err)
	norm := normalizer.New(st)
	normQ, err := norm.Normalize(q)
	require.NoError(t, err)
	compiled, err := translate.Compile(normQ.Select, graph, st)
	require.NoError(t, err)
	return compiled
}

func TestCompileSimpleTripleProjectsVariables(t *testing.T) {
	const nameIRI = "http://xmlns.com/foaf/0.1/name"
	st := newStoreWithResources(t, nameIRI)

	compiled := compile(t, st, `SELECT ?s ?o WHERE { ?s <`+nameIRI+`> ?o . }`, 1)
	assert.Contains(t, compiled.SQL, "SELECT")
	assert.ElementsMatch(t, []string{"s", "o"}, compiled.Columns)
	assert.False(t, compiled.IsStatic)
}

func TestCompileStaticPropertyPath(t *testing.T) {
	const knowsIRI = "http://xmlns.com/foaf/0.1/knows"
	st := newStoreWithResources(t, knowsIRI, "http://example.org/alice")

	compiled := compile(t, st, `SELECT ?x WHERE { <http://example.org/alice> <`+knowsIRI+`>*STATIC ?x . }`, 1)
	assert.True(t, compiled.IsStatic)
	assert.Contains(t, compiled.SQL, "WITH")
}

func TestCacheHitAvoidsRecompile(t *testing.T) {
	const nameIRI = "http://xmlns.com/foaf/0.1/name"
	st := newStoreWithResources(t, nameIRI)

	cache := translate.NewCache()
	q, err := parser.Parse(`SELECT ?s ?o WHERE { ?s <` + nameIRI + `> ?o . }`)
	require.NoError(t, err)
	norm := normalizer.New(st)
	normQ, err := norm.Normalize(q)
	require.NoError(t, err)

	text := `SELECT ?s ?o WHERE { ?s <` + nameIRI + `> ?o . }`
	first, err := translate.CompileCached(cache, text, normQ.Select, 1, 0, st)
	require.NoError(t, err)

	second, err := translate.CompileCached(cache, text, normQ.Select, 1, 0, st)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestCacheInvalidateGraphDropsEntries(t *testing.T) {
	const nameIRI = "http://xmlns.com/foaf/0.1/name"
	st := newStoreWithResources(t, nameIRI)

	cache := translate.NewCache()
	q, err := parser.Parse(`SELECT ?s ?o WHERE { ?s <` + nameIRI + `> ?o . }`)
	require.NoError(t, err)
	norm := normalizer.New(st)
	normQ, err := norm.Normalize(q)
	require.NoError(t, err)

	text := `SELECT ?s ?o WHERE { ?s <` + nameIRI + `> ?o . }`
	first, err := translate.CompileCached(cache, text, normQ.Select, 1, 0, st)
	require.NoError(t, err)

	cache.InvalidateGraph(1)

	second, err := translate.CompileCached(cache, text, normQ.Select, 1, 0, st)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestCacheStaticEntryInvalidatedByGraphWrite(t *testing.T) {
	const knowsIRI = "http://xmlns.com/foaf/0.1/knows"
	st := newStoreWithResources(t, knowsIRI, "http://example.org/alice")

	cache := translate.NewCache()
	text := `SELECT ?x WHERE { <http://example.org/alice> <` + knowsIRI + `>*STATIC ?x . }`
	q, err := parser.Parse(text)
	require.NoError(t, err)
	norm := normalizer.New(st)
	normQ, err := norm.Normalize(q)
	require.NoError(t, err)

	first, err := translate.CompileCached(cache, text, normQ.Select, 1, 5, st)
	require.NoError(t, err)
	require.True(t, first.IsStatic)

	// Same timestamp: still a hit.
	hit, ok := cache.Get(text, 1, 5)
	require.True(t, ok)
	assert.Same(t, first, hit)

	// A later timestamp (graph changed) evicts the static entry.
	_, ok = cache.Get(text, 1, 6)
	assert.False(t, ok)
}
