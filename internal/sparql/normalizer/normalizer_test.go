package normalizer_test

import (
	"testing"

	"github.com/jblamy/quadstore/internal/qerr"
	"github.com/jblamy/quadstore/internal/sparql/ast"
	"github.com/jblamy/quadstore/internal/sparql/normalizer"
	"github.com/jblamy/quadstore/internal/sparql/parser"
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

func TestNormalizeResolvesIRIsToStorids(t *testing.T) {
	const nameIRI = "http://xmlns.com/foaf/0.1/name"
	st := newStoreWithResources(t, nameIRI)
	nameID, err := st.Abbrev.AbbreviateReadOnly(nameIRI)
	require.NoError(t, err)

	q, err := parser.Parse(`SELECT ?s ?o WHERE { ?s <` + nameIRI + `> ?o . }`)
	require.NoError(t, err)

	norm := normalizer.New(st)
	out, err := norm.Normalize(q)
	require.NoError(t, err)
	require.Len(t, out.Select.Where.Triples, 1)

	triple := out.Select.Where.Triples[0]
	assert.Equal(t, "s", triple.Subject.Var)
	assert.Equal(t, nameID, triple.Predicate.Storid)
	assert.Equal(t, "o", triple.Object.Var)
}

func TestNormalizeUnknownIRIFails(t *testing.T) {
	st := newStoreWithResources(t)
	q, err := parser.Parse(`SELECT ?s WHERE { ?s <http://example.org/never-seen> ?o . }`)
	require.NoError(t, err)

	norm := normalizer.New(st)
	_, err = norm.Normalize(q)
	require.Error(t, err)
	var unknown *qerr.UnknownIRIError
	assert.ErrorAs(t, err, &unknown)
}

func TestNormalizePropertyPathZeroOrMore(t *testing.T) {
	const knowsIRI = "http://xmlns.com/foaf/0.1/knows"
	st := newStoreWithResources(t, knowsIRI, "http://example.org/alice")

	q, err := parser.Parse(`SELECT ?x WHERE { <http://example.org/alice> <` + knowsIRI + `>* ?x . }`)
	require.NoError(t, err)

	norm := normalizer.New(st)
	out, err := norm.Normalize(q)
	require.NoError(t, err)
	require.Len(t, out.Select.Where.Paths, 1)
	path := out.Select.Where.Paths[0]
	require.Len(t, path.Shape.Steps, 1)
	assert.Equal(t, normalizer.RepeatZeroMore, path.Shape.Steps[0].Repeat)
}

func TestNormalizeNonSelectReturnsNil(t *testing.T) {
	st := newStoreWithResources(t)
	q := &ast.Query{Type: ast.QueryTypeUpdate}
	norm := normalizer.New(st)
	out, err := norm.Normalize(q)
	require.NoError(t, err)
	assert.Nil(t, out)
}
