package store_test

import (
	"testing"

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

func TestCreateOntologyIsIdempotent(t *testing.T) {
	st := newStore(t)

	g1, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	g2, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	assert.Equal(t, g1, g2)
}

func TestAddObjHasObjDelObj(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	alice, err := st.Abbrev.Abbreviate("http://example.org/alice")
	require.NoError(t, err)
	bob, err := st.Abbrev.Abbreviate("http://example.org/bob")
	require.NoError(t, err)
	knows, err := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/knows")
	require.NoError(t, err)

	has, err := st.HasObj(g, alice, knows, bob)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, st.AddObj(g, alice, knows, bob))

	has, err = st.HasObj(g, alice, knows, bob)
	require.NoError(t, err)
	assert.True(t, has)

	// Re-adding is idempotent, not an error.
	require.NoError(t, st.AddObj(g, alice, knows, bob))

	require.NoError(t, st.DelObj(g, alice, knows, bob))
	has, err = st.HasObj(g, alice, knows, bob)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAddObjRejectsDataPredicateReuse(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	alice, err := st.Abbrev.Abbreviate("http://example.org/alice")
	require.NoError(t, err)
	bob, err := st.Abbrev.Abbreviate("http://example.org/bob")
	require.NoError(t, err)
	name, err := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/name")
	require.NoError(t, err)

	require.NoError(t, st.AddData(g, alice, name, "Alice", 0))

	err = st.AddObj(g, alice, name, bob)
	assert.Error(t, err)
}

func TestGetTriplesSPOWildcards(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	alice, _ := st.Abbrev.Abbreviate("http://example.org/alice")
	bob, _ := st.Abbrev.Abbreviate("http://example.org/bob")
	carol, _ := st.Abbrev.Abbreviate("http://example.org/carol")
	knows, _ := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/knows")

	require.NoError(t, st.AddObj(g, alice, knows, bob))
	require.NoError(t, st.AddObj(g, alice, knows, carol))
	require.NoError(t, st.AddObj(g, bob, knows, carol))

	all, err := st.GetTriplesSPO(g, 0, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	fromAlice, err := st.GetTriplesSPO(g, alice, 0, 0)
	require.NoError(t, err)
	assert.Len(t, fromAlice, 2)

	subjectsOfCarol, err := st.GetTriplesPOS(knows, carol)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice, bob}, subjectsOfCarol)
}

func TestAddDataHasDataDelData(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	alice, _ := st.Abbrev.Abbreviate("http://example.org/alice")
	age, _ := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/age")
	xsdInt, _ := st.Abbrev.Abbreviate("http://www.w3.org/2001/XMLSchema#integer")

	require.NoError(t, st.AddData(g, alice, age, "30", xsdInt))

	has, err := st.HasData(g, alice, age, "30", xsdInt)
	require.NoError(t, err)
	assert.True(t, has)

	rows, err := st.GetTriplesSPOD(g, alice, age, "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "30", rows[0].Value)
	assert.Equal(t, xsdInt, rows[0].Dtype)

	require.NoError(t, st.DelData(g, alice, age, "30", xsdInt))
	has, err = st.HasData(g, alice, age, "30", xsdInt)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAddDataLanguageTagged(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	alice, _ := st.Abbrev.Abbreviate("http://example.org/alice")
	name, _ := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/name")

	langID, err := st.Langs.ID("en")
	require.NoError(t, err)

	require.NoError(t, st.AddData(g, alice, name, "Alice", -langID))

	rows, err := st.GetTriplesSPOD(g, alice, name, "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	dtypeStorid, lang := st.Langs.Decode(rows[0].Dtype)
	assert.Equal(t, int64(0), dtypeStorid)
	assert.Equal(t, "en", lang)
}

func TestTouchOntologyBumpsLastUpdateAndDirty(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	before, err := st.GetLastUpdateTime(g)
	require.NoError(t, err)

	alice, _ := st.Abbrev.Abbreviate("http://example.org/alice")
	bob, _ := st.Abbrev.Abbreviate("http://example.org/bob")
	knows, _ := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/knows")
	require.NoError(t, st.AddObj(g, alice, knows, bob))

	after, err := st.GetLastUpdateTime(g)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	dirty, err := st.IsDirty(g)
	require.NoError(t, err)
	assert.True(t, dirty)

	require.NoError(t, st.ClearDirty(g))
	dirty, err = st.IsDirty(g)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestDeleteOntologyRemovesTriples(t *testing.T) {
	st := newStore(t)
	g, err := st.CreateOntology("http://example.org/g")
	require.NoError(t, err)

	alice, _ := st.Abbrev.Abbreviate("http://example.org/alice")
	bob, _ := st.Abbrev.Abbreviate("http://example.org/bob")
	knows, _ := st.Abbrev.Abbreviate("http://xmlns.com/foaf/0.1/knows")
	require.NoError(t, st.AddObj(g, alice, knows, bob))

	require.NoError(t, st.DeleteOntology(g))

	rows, err := st.GetTriplesSPO(g, 0, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = st.GetLastUpdateTime(g)
	assert.Error(t, err)
}
