package engine_test

import (
	"context"
	"testing"

	"github.com/jblamy/quadstore/internal/engine"
	"github.com/jblamy/quadstore/internal/ontio"
	"github.com/jblamy/quadstore/internal/rdf"
	"github.com/jblamy/quadstore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*engine.Engine, int64) {
	t.Helper()
	st, err := store.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	graph, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	const sample = `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice"@en .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alicia"@es .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob"@en .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/knows> <http://example.org/carol> .
<http://example.org/carol> <http://xmlns.com/foaf/0.1/name> "Carol"@en .
`
	_, err = ontio.LoadNQuads(st, sample, "http://example.org/g")
	require.NoError(t, err)

	return engine.New(st), graph
}

func TestQuerySelectBasic(t *testing.T) {
	eng, graph := newEngine(t)

	result, err := eng.Query(context.Background(), `SELECT ?s ?age WHERE {
		?s <http://xmlns.com/foaf/0.1/age> ?age .
	}`, graph, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, `"30"^^<http://www.w3.org/2001/XMLSchema#integer>`, result.Rows[0]["age"].String())
}

func TestQueryAskTrueAndFalse(t *testing.T) {
	eng, graph := newEngine(t)

	result, err := eng.Query(context.Background(), `ASK {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> .
	}`, graph, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)

	result, err = eng.Query(context.Background(), `ASK {
		<http://example.org/carol> <http://xmlns.com/foaf/0.1/knows> <http://example.org/alice> .
	}`, graph, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 0)
}

func TestQueryLanguageFilter(t *testing.T) {
	eng, graph := newEngine(t)

	result, err := eng.Query(context.Background(), `SELECT ?name WHERE {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> ?name .
		FILTER(lang(?name) = "es")
	}`, graph, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	name, ok := result.Rows[0]["name"].(*rdf.Literal)
	require.True(t, ok)
	assert.Equal(t, "Alicia", name.Value)
	assert.Equal(t, "es", name.Language)
}

func TestQueryOptionalLeavesUnboundVariable(t *testing.T) {
	eng, graph := newEngine(t)

	result, err := eng.Query(context.Background(), `SELECT ?s ?knows WHERE {
		?s <http://xmlns.com/foaf/0.1/name> ?n .
		OPTIONAL { ?s <http://xmlns.com/foaf/0.1/knows> ?knows . }
	}`, graph, nil)
	require.NoError(t, err)

	foundUnbound := false
	for _, row := range result.Rows {
		if _, ok := row["knows"]; !ok {
			foundUnbound = true
		}
	}
	assert.True(t, foundUnbound, "carol has no foaf:knows, so her row should leave ?knows unbound")
}

func TestQueryTransitiveClosurePropertyPath(t *testing.T) {
	eng, graph := newEngine(t)

	result, err := eng.Query(context.Background(), `SELECT ?x WHERE {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows>+ ?x .
	}`, graph, nil)
	require.NoError(t, err)

	var names []string
	for _, row := range result.Rows {
		iri, ok := row["x"].(*rdf.IRI)
		require.True(t, ok)
		names = append(names, iri.Value)
	}
	assert.ElementsMatch(t, []string{"http://example.org/bob", "http://example.org/carol"}, names)
}

func TestQueryStaticPropertyPathCachesUntilWrite(t *testing.T) {
	eng, graph := newEngine(t)
	ctx := context.Background()
	text := `SELECT ?x WHERE {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows>*STATIC ?x .
	}`

	first, err := eng.Query(ctx, text, graph, nil)
	require.NoError(t, err)
	assert.Len(t, first.Rows, 3) // alice herself, bob, carol

	require.NoError(t, eng.Update(ctx, `INSERT DATA {
		<http://example.org/carol> <http://xmlns.com/foaf/0.1/knows> <http://example.org/dave> .
	}`, graph))

	second, err := eng.Query(ctx, text, graph, nil)
	require.NoError(t, err)
	assert.Len(t, second.Rows, 4)
}

func TestQueryGroupByHavingAggregate(t *testing.T) {
	eng, graph := newEngine(t)

	result, err := eng.Query(context.Background(), `SELECT ?s (COUNT(?name) AS ?c) WHERE {
		?s <http://xmlns.com/foaf/0.1/name> ?name .
	} GROUP BY ?s HAVING(COUNT(?name) > 1)`, graph, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	subject, ok := result.Rows[0]["s"].(*rdf.IRI)
	require.True(t, ok)
	assert.Equal(t, "http://example.org/alice", subject.Value)
}

func TestQueryGraphClauseScoping(t *testing.T) {
	st, err := store.OpenStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	g1, err := st.CreateOntology("http://example.org/g1")
	require.NoError(t, err)
	_, err = st.CreateOntology("http://example.org/g2")
	require.NoError(t, err)

	_, err = ontio.LoadNQuads(st, `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" <http://example.org/g1> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" <http://example.org/g2> .
`, "http://example.org/g1")
	require.NoError(t, err)

	eng := engine.New(st)
	result, err := eng.Query(context.Background(), `SELECT ?s WHERE {
		GRAPH <http://example.org/g2> { ?s <http://xmlns.com/foaf/0.1/name> ?n . }
	}`, g1, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	subject, ok := result.Rows[0]["s"].(*rdf.IRI)
	require.True(t, ok)
	assert.Equal(t, "http://example.org/bob", subject.Value)
}

func TestUpdateInsertAndDeleteData(t *testing.T) {
	eng, graph := newEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Update(ctx, `INSERT DATA {
		<http://example.org/dave> <http://xmlns.com/foaf/0.1/name> "Dave" .
	}`, graph))

	result, err := eng.Query(ctx, `ASK { <http://example.org/dave> <http://xmlns.com/foaf/0.1/name> "Dave" . }`, graph, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)

	require.NoError(t, eng.Update(ctx, `DELETE DATA {
		<http://example.org/dave> <http://xmlns.com/foaf/0.1/name> "Dave" .
	}`, graph))

	result, err = eng.Query(ctx, `ASK { <http://example.org/dave> <http://xmlns.com/foaf/0.1/name> "Dave" . }`, graph, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 0)
}

func TestUpdateWhereDrivenDelete(t *testing.T) {
	eng, graph := newEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Update(ctx, `DELETE { ?s <http://xmlns.com/foaf/0.1/name> ?n . }
		WHERE { ?s <http://xmlns.com/foaf/0.1/name> ?n . FILTER(lang(?n) = "es") }`, graph))

	result, err := eng.Query(ctx, `ASK { <http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alicia"@es . }`, graph, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 0)

	result, err = eng.Query(ctx, `ASK { <http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice"@en . }`, graph, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
}

func TestUpdateWhereDrivenInsertCopiesBoundValues(t *testing.T) {
	eng, graph := newEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Update(ctx, `INSERT { ?s <http://xmlns.com/foaf/0.1/nick> ?n . }
		WHERE { ?s <http://xmlns.com/foaf/0.1/name> ?n . FILTER(lang(?n) = "en") }`, graph))

	result, err := eng.Query(ctx, `SELECT ?nick WHERE { <http://example.org/alice> <http://xmlns.com/foaf/0.1/nick> ?nick . }`, graph, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	nick, ok := result.Rows[0]["nick"].(*rdf.Literal)
	require.True(t, ok)
	assert.Equal(t, "Alice", nick.Value)
	assert.Equal(t, "en", nick.Language)
}

func TestUpdateWhereDrivenInsertWithExplicitGraph(t *testing.T) {
	st, err := store.OpenStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	g1, err := st.CreateOntology("http://example.org/g1")
	require.NoError(t, err)
	g2, err := st.CreateOntology("http://example.org/g2")
	require.NoError(t, err)

	_, err = ontio.LoadNQuads(st, `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" <http://example.org/g1> .
`, "http://example.org/g1")
	require.NoError(t, err)
	_, err = ontio.LoadNQuads(st, `<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" <http://example.org/g2> .
`, "http://example.org/g2")
	require.NoError(t, err)

	eng := engine.New(st)
	ctx := context.Background()
	require.NoError(t, eng.Update(ctx, `INSERT GRAPH <http://example.org/g2> { ?s <http://xmlns.com/foaf/0.1/nick> "B" . }
		WHERE { ?s <http://xmlns.com/foaf/0.1/name> ?n . }`, g1))

	result, err := eng.Query(ctx, `ASK { ?s <http://xmlns.com/foaf/0.1/nick> "B" . }`, g1, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 0, "GRAPH <g2> targets g2, not the caller's default graph g1")

	result, err = eng.Query(ctx, `ASK { ?s <http://xmlns.com/foaf/0.1/nick> "B" . }`, g2, nil)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
}
