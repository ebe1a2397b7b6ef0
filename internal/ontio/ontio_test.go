package ontio_test

import (
	"strings"
	"testing"

	"github.com/jblamy/quadstore/internal/ontio"
	"github.com/jblamy/quadstore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

const sampleNQuads = `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> .
`

func TestLoadNQuadsCountsAndPersists(t *testing.T) {
	st := newStore(t)

	n, err := ontio.LoadNQuads(st, sampleNQuads, "http://example.org/g")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	objs, err := st.GetTriplesSPO(g, 0, 0, 0)
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	datas, err := st.GetTriplesSPOD(g, 0, 0, "", 0)
	require.NoError(t, err)
	assert.Len(t, datas, 2)
}

func TestLoadNQuadsSharesBlankNodeIdentityWithinOneLoad(t *testing.T) {
	st := newStore(t)
	const doc = `_:b1 <http://xmlns.com/foaf/0.1/name> "Anon" .
_:b1 <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> .
`
	n, err := ontio.LoadNQuads(st, doc, "http://example.org/g")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	datas, err := st.GetTriplesSPOD(g, 0, 0, "", 0)
	require.NoError(t, err)
	require.Len(t, datas, 1)

	objs, err := st.GetTriplesSPO(g, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, objs, 1)

	assert.Equal(t, datas[0].Subject, objs[0].Subject)
}

func TestLoadNQuadsReaderMatchesLoadNQuads(t *testing.T) {
	st := newStore(t)
	n, err := ontio.LoadNQuadsReader(st, strings.NewReader(sampleNQuads), "http://example.org/g")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStoreSourceRoundTripsQuads(t *testing.T) {
	st := newStore(t)
	_, err := ontio.LoadNQuads(st, sampleNQuads, "http://example.org/g")
	require.NoError(t, err)

	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	src := ontio.NewStoreSource(st, g)
	quads, err := src.Quads()
	require.NoError(t, err)
	assert.Len(t, quads, 3)
	for _, q := range quads {
		assert.Equal(t, "http://example.org/g", q.Graph)
	}
}

func TestWriteNQuadsRoundTrip(t *testing.T) {
	st := newStore(t)
	_, err := ontio.LoadNQuads(st, sampleNQuads, "http://example.org/g")
	require.NoError(t, err)

	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	src := ontio.NewStoreSource(st, g)
	quads, err := src.Quads()
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, ontio.WriteNQuads(&buf, quads))
	out := buf.String()
	assert.Contains(t, out, "<http://example.org/alice>")
	assert.Contains(t, out, "<http://example.org/g>")
}
