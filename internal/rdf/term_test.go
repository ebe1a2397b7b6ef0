package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIRIEquals(t *testing.T) {
	a := NewIRI("http://example.org/alice")
	b := NewIRI("http://example.org/alice")
	c := NewIRI("http://example.org/bob")

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.False(t, a.Equals(NewBlankNode("b1")))
	assert.Equal(t, "<http://example.org/alice>", a.String())
}

func TestBlankNodeEquals(t *testing.T) {
	a := NewBlankNode("b1")
	b := NewBlankNode("b1")
	c := NewBlankNode("b2")

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.Equal(t, "_:b1", a.String())
}

func TestLiteralEquals(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *Literal
		expected bool
	}{
		{"plain equal", NewLiteral("hi"), NewLiteral("hi"), true},
		{"plain differs by value", NewLiteral("hi"), NewLiteral("bye"), false},
		{"lang equal", NewLangLiteral("hi", "en"), NewLangLiteral("hi", "en"), true},
		{"lang differs", NewLangLiteral("hi", "en"), NewLangLiteral("hi", "fr"), false},
		{"typed equal", NewTypedLiteral("30", XSDInteger), NewTypedLiteral("30", XSDInteger), true},
		{"typed differs", NewTypedLiteral("30", XSDInteger), NewTypedLiteral("30", XSDDouble), false},
		{"plain vs typed", NewLiteral("30"), NewTypedLiteral("30", XSDInteger), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Equals(tt.b))
		})
	}
}

func TestLiteralString(t *testing.T) {
	assert.Equal(t, `"hi"`, NewLiteral("hi").String())
	assert.Equal(t, `"hi"@en`, NewLangLiteral("hi", "en").String())
	assert.Equal(t, `"30"^^<http://www.w3.org/2001/XMLSchema#integer>`, NewTypedLiteral("30", XSDInteger).String())
}

func TestLiteralIsNumeric(t *testing.T) {
	assert.True(t, NewTypedLiteral("30", XSDInteger).IsNumeric())
	assert.True(t, NewTypedLiteral("3.5", XSDDouble).IsNumeric())
	assert.False(t, NewLiteral("hi").IsNumeric())
	assert.False(t, NewTypedLiteral("2024-01-01", XSDDate).IsNumeric())
}

func TestQuadString(t *testing.T) {
	q := Quad{
		Graph:     "http://example.org/g",
		Subject:   NewIRI("http://example.org/alice"),
		Predicate: NewIRI("http://xmlns.com/foaf/0.1/name"),
		Object:    NewLiteral("Alice"),
	}
	assert.Equal(t, `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" <http://example.org/g> .`, q.String())
}
