// Package server exposes a quadstore as a SPARQL 1.1 Protocol HTTP
// endpoint: GET/POST /sparql for queries, POST /update for INSERT/DELETE
// (DATA and WHERE-driven forms), and a YASGUI page at / for interactive use.
package server

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jblamy/quadstore/internal/engine"
	"github.com/jblamy/quadstore/internal/log"
	"github.com/jblamy/quadstore/internal/resultsio"
	"github.com/jblamy/quadstore/internal/store"
)

// Server is the HTTP front end for one Engine, scoped to a default graph
// that requests may override with a "default-graph-uri" parameter.
type Server struct {
	Engine         *engine.Engine
	Addr           string
	DefaultGraphID int64
	defaultGraph   string
}

// New creates a Server backed by st, provisioning (or reusing) defaultGraphIRI
// as the ontology queries run against when no "default-graph-uri" is given.
func New(st *store.Store, addr, defaultGraphIRI string) (*Server, error) {
	graphID, err := st.CreateOntology(defaultGraphIRI)
	if err != nil {
		return nil, fmt.Errorf("server: provisioning default graph: %w", err)
	}
	return &Server{
		Engine:         engine.New(st),
		Addr:           addr,
		DefaultGraphID: graphID,
		defaultGraph:   defaultGraphIRI,
	}, nil
}

// Start runs the HTTP server until it errors or the process is killed.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleQuery)
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/", s.handleRoot)

	httpServer := &http.Server{
		Addr:         s.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.WithComponent("server").Info().Str("addr", s.Addr).Msg("starting SPARQL endpoint")
	return httpServer.ListenAndServe()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	endpointURL := fmt.Sprintf("%s://%s/sparql", scheme, r.Host)

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>quadstore SPARQL endpoint</title>
    <link href="https://unpkg.com/@zazuko/yasgui@4.5.0/build/yasgui.min.css" rel="stylesheet" type="text/css" />
    <script src="https://unpkg.com/@zazuko/yasgui@4.5.0/build/yasgui.min.js"></script>
    <style>
        body { margin: 0; padding: 0; font-family: Arial, sans-serif; display: flex; flex-direction: column; height: 100vh; }
        .header { background: #2c3e50; color: white; padding: 15px 20px; }
        .header h1 { margin: 0; font-size: 22px; font-weight: 500; }
        .header .info { margin-top: 5px; font-size: 14px; opacity: 0.9; }
        .header .info code { background: rgba(255,255,255,0.2); padding: 2px 6px; border-radius: 3px; font-family: monospace; }
        #yasgui { flex: 1; overflow: hidden; }
    </style>
</head>
<body>
    <div class="header">
        <h1>quadstore SPARQL endpoint</h1>
        <div class="info">Endpoint: <code>` + endpointURL + `</code> | Default graph: <code>` + s.defaultGraph + `</code></div>
    </div>
    <div id="yasgui"></div>
    <script>
        new Yasgui(document.getElementById("yasgui"), {
            requestConfig: { endpoint: "` + endpointURL + `", method: "POST" },
            copyEndpointOnNewTab: false
        });
    </script>
</body>
</html>`

	_, _ = w.Write([]byte(html))
}

// handleQuery serves GET/POST /sparql per the SPARQL 1.1 Protocol.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	queryText, err := extractQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if queryText == "" {
		s.writeError(w, http.StatusBadRequest, "missing 'query' parameter")
		return
	}

	graph := s.resolveGraph(r)

	result, err := s.Engine.Query(r.Context(), queryText, graph, nil)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("query error: %v", err))
		return
	}

	format := resultsio.NegotiateFormat(r.Header.Get("Accept"))
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := resultsio.Encode(w, result, format); err != nil {
		log.WithComponent("server").Error().Err(err).Msg("encoding results")
	}
}

// handleUpdate serves POST /update: INSERT DATA / DELETE DATA and
// WHERE-driven INSERT / DELETE statements.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed, use POST")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	updateText := extractFormOrBody(r, string(body), "update")
	if updateText == "" {
		s.writeError(w, http.StatusBadRequest, "missing 'update' parameter")
		return
	}

	graph := s.resolveGraph(r)
	if err := s.Engine.Update(r.Context(), updateText, graph); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("update error: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveGraph honors a "default-graph-uri" override, falling back to the
// server's provisioned default graph.
func (s *Server) resolveGraph(r *http.Request) int64 {
	iri := r.URL.Query().Get("default-graph-uri")
	if iri == "" {
		return s.DefaultGraphID
	}
	graphID, err := s.Engine.Store.CreateOntology(iri)
	if err != nil {
		return s.DefaultGraphID
	}
	return graphID
}

func extractQuery(r *http.Request) (string, error) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), nil
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read request body")
		}
		return extractFormOrBody(r, string(body), "query"), nil
	default:
		return "", fmt.Errorf("method not allowed, use GET or POST")
	}
}

// extractFormOrBody pulls paramName out of a form-encoded body, or treats
// the whole body as the statement text for any other content type.
func extractFormOrBody(r *http.Request, body, paramName string) string {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(body); err == nil {
			return values.Get(paramName)
		}
	}
	return body
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	log.WithComponent("server").Warn().Int("status", statusCode).Str("message", message).Msg("request failed")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, statusCode, message)
}
