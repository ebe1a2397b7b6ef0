package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jblamy/quadstore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv, err := New(st, "localhost:0", "http://example.org/g")
	require.NoError(t, err)
	return srv
}

func TestHandleUpdateThenQueryRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	form := url.Values{"update": {`INSERT DATA {
		<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
	}`}}
	req := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.handleUpdate(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	queryReq := httptest.NewRequest(http.MethodGet, "/sparql?query="+url.QueryEscape(
		`SELECT ?name WHERE { <http://example.org/alice> <http://xmlns.com/foaf/0.1/name> ?name . }`), nil)
	queryReq.Header.Set("Accept", "application/sparql-results+json")
	queryRec := httptest.NewRecorder()
	srv.handleQuery(queryRec, queryReq)

	require.Equal(t, http.StatusOK, queryRec.Code)
	assert.Contains(t, queryRec.Body.String(), "Alice")
}

func TestHandleQueryMissingParamIsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sparql", nil)
	rec := httptest.NewRecorder()
	srv.handleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing 'query' parameter")
}

func TestHandleQueryMalformedSparqlIsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sparql?query=NOT+A+QUERY", nil)
	rec := httptest.NewRecorder()
	srv.handleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpdateRejectsNonPOST(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/update", nil)
	rec := httptest.NewRecorder()
	srv.handleUpdate(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRootServesYasguiPage(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.handleRoot(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "yasgui")
}

func TestHandleRootUnknownPathIs404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.handleRoot(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQueryOptionsSetsCORS(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/sparql", nil)
	rec := httptest.NewRecorder()
	srv.handleQuery(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleUpdatePostBodyContentType(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/update", bytes.NewBufferString(
		`INSERT DATA { <http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" . }`))
	rec := httptest.NewRecorder()
	srv.handleUpdate(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestResolveGraphFallsBackToDefault(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sparql", nil)
	assert.Equal(t, srv.DefaultGraphID, srv.resolveGraph(req))
}

func TestResolveGraphHonorsOverride(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sparql?default-graph-uri=http://example.org/other", nil)
	graphID := srv.resolveGraph(req)
	assert.NotEqual(t, srv.DefaultGraphID, graphID)
}
