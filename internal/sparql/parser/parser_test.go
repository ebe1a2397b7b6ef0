package parser_test

import (
	"testing"

	"github.com/jblamy/quadstore/internal/sparql/ast"
	"github.com/jblamy/quadstore/internal/sparql/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleSelect(t *testing.T) {
	q, err := parser.Parse(`SELECT ?person ?name WHERE {
		?person <http://xmlns.com/foaf/0.1/name> ?name .
	}`)
	require.NoError(t, err)
	require.Equal(t, ast.QueryTypeSelect, q.Type)
	require.NotNil(t, q.Select)
	assert.False(t, q.Select.Star)
	assert.Len(t, q.Select.Variables, 2)
	assert.Equal(t, "person", q.Select.Variables[0].Var)
	require.Len(t, q.Select.Where.Triples, 1)
}

func TestParseSelectStarWithPrefix(t *testing.T) {
	q, err := parser.Parse(`PREFIX foaf: <http://xmlns.com/foaf/0.1/>
SELECT * WHERE { ?s foaf:name ?o . }`)
	require.NoError(t, err)
	require.True(t, q.Select.Star)
	require.Len(t, q.Select.Where.Triples, 1)
	pred, ok := q.Select.Where.Triples[0].Predicate.(ast.IRITerm)
	require.True(t, ok)
	assert.Equal(t, "http://xmlns.com/foaf/0.1/name", pred.Value)
}

func TestParseSelectDistinctLimitOffset(t *testing.T) {
	q, err := parser.Parse(`SELECT DISTINCT ?s WHERE { ?s ?p ?o . } LIMIT 10 OFFSET 5`)
	require.NoError(t, err)
	assert.True(t, q.Select.Distinct)
	assert.Equal(t, 10, q.Select.Limit)
	assert.Equal(t, 5, q.Select.Offset)
}

func TestParseAsk(t *testing.T) {
	q, err := parser.Parse(`ASK { <http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> . }`)
	require.NoError(t, err)
	require.Equal(t, ast.QueryTypeAsk, q.Type)
	require.NotNil(t, q.Ask)
}

func TestParseFilterExpr(t *testing.T) {
	q, err := parser.Parse(`SELECT ?name WHERE {
		?s <http://xmlns.com/foaf/0.1/name> ?name .
		FILTER(lang(?name) = "en")
	}`)
	require.NoError(t, err)
	require.Len(t, q.Select.Where.Filters, 1)
}

func TestParseOptional(t *testing.T) {
	q, err := parser.Parse(`SELECT ?s ?o WHERE {
		?s <http://example.org/p1> ?o1 .
		OPTIONAL { ?s <http://example.org/p2> ?o . }
	}`)
	require.NoError(t, err)
	assert.Len(t, q.Select.Where.Optionals, 1)
}

func TestParsePropertyPathStar(t *testing.T) {
	q, err := parser.Parse(`SELECT ?x WHERE {
		<http://example.org/a> <http://example.org/knows>* ?x .
	}`)
	require.NoError(t, err)
	require.Len(t, q.Select.Where.Paths, 1)
	assert.Equal(t, ast.PathZeroOrMore, q.Select.Where.Paths[0].Path.Op)
}

func TestParseInsertData(t *testing.T) {
	q, err := parser.Parse(`INSERT DATA {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
	}`)
	require.NoError(t, err)
	require.Equal(t, ast.QueryTypeUpdate, q.Type)
	require.NotNil(t, q.Update)
	assert.Equal(t, ast.UpdateInsertData, q.Update.Op)
	require.Len(t, q.Update.Template, 1)
}

func TestParseDeleteData(t *testing.T) {
	q, err := parser.Parse(`DELETE DATA {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
	}`)
	require.NoError(t, err)
	assert.Equal(t, ast.UpdateDeleteData, q.Update.Op)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := parser.Parse(`NOT A QUERY`)
	assert.Error(t, err)
}

func TestParseUnionAndGraph(t *testing.T) {
	q, err := parser.Parse(`SELECT ?s WHERE {
		GRAPH <http://example.org/g> {
			{ ?s <http://example.org/p> <http://example.org/o1> . }
			UNION
			{ ?s <http://example.org/p> <http://example.org/o2> . }
		}
	}`)
	require.NoError(t, err)
	require.Len(t, q.Select.Where.Graphs, 1)
	assert.Len(t, q.Select.Where.Graphs[0].Pattern.Alternatives, 1)
}
