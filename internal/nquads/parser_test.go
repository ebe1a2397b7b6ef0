package nquads

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jblamy/quadstore/internal/rdf"
)

const defaultGraph = "urn:default"

func TestParseSimpleTriple(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> <http://example.org/o> .
`
	quads, err := NewParser(input, defaultGraph).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)
	require.Equal(t, defaultGraph, quads[0].Graph)
	require.Equal(t, rdf.KindIRI, quads[0].Subject.Kind())
}

func TestParseQuadWithNamedGraph(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> <http://example.org/o> <http://example.org/g> .
`
	quads, err := NewParser(input, defaultGraph).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)
	require.Equal(t, "http://example.org/g", quads[0].Graph)
}

func TestParseMultipleQuadsAndLiteralForms(t *testing.T) {
	input := `<http://example.org/s1> <http://example.org/p1> "literal1" .
<http://example.org/s2> <http://example.org/p2> "literal2"^^<http://www.w3.org/2001/XMLSchema#string> <http://example.org/g> .
<http://example.org/s3> <http://example.org/p3> "hello"@en .
`
	quads, err := NewParser(input, defaultGraph).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 3)

	lit1, ok := quads[0].Object.(*rdf.Literal)
	require.True(t, ok)
	require.Equal(t, "literal1", lit1.Value)

	lit3, ok := quads[2].Object.(*rdf.Literal)
	require.True(t, ok)
	require.Equal(t, "en", lit3.Language)
}

func TestParseWithPrefixDirective(t *testing.T) {
	input := `PREFIX ex: <http://example.org/>
ex:s ex:p ex:o .
`
	quads, err := NewParser(input, defaultGraph).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)
	iri, ok := quads[0].Subject.(*rdf.IRI)
	require.True(t, ok)
	require.Equal(t, "http://example.org/s", iri.Value)
}

func TestParseBlankNodes(t *testing.T) {
	input := `_:b1 <http://example.org/p> "value" .
<http://example.org/s> <http://example.org/p> _:b2 _:graph .
`
	quads, err := NewParser(input, defaultGraph).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 2)
	require.Equal(t, rdf.KindBlankNode, quads[0].Subject.Kind())
	require.Equal(t, "_:graph", quads[1].Graph)
}

func TestParseNumericLiterals(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> 42 .
<http://example.org/s2> <http://example.org/p2> 3.14 .
`
	quads, err := NewParser(input, defaultGraph).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 2)

	intLit := quads[0].Object.(*rdf.Literal)
	require.Equal(t, rdf.XSDInteger.Value, intLit.Datatype.Value)

	floatLit := quads[1].Object.(*rdf.Literal)
	require.Equal(t, rdf.XSDDouble.Value, floatLit.Datatype.Value)
}

func TestParseRejectsUnterminatedStatement(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> <http://example.org/o>
`
	_, err := NewParser(input, defaultGraph).Parse()
	require.Error(t, err)
}
