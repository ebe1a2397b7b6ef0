// Package ontio is the boundary between the quadstore and external
// collaborators that hand it (or want back) a plain stream of quads.
// Everything past this package's edge talks storids, abbreviators, and
// SQL; everything on this side talks rdf.Term and N-Quads text, the way
// a bulk ontology import or export tool would.
package ontio

import (
	"fmt"
	"io"
	"strings"

	"github.com/jblamy/quadstore/internal/nquads"
	"github.com/jblamy/quadstore/internal/rdf"
	"github.com/jblamy/quadstore/internal/store"
)

// TripleSink accepts a stream of quads, one at a time, each scoped to its
// own named graph. A sink that batches writes still commits eagerly
// enough that Close (if it has one) is never required for correctness.
type TripleSink interface {
	AddQuad(q rdf.Quad) error
}

// TripleSource produces every quad a collaborator should see.
type TripleSource interface {
	Quads() ([]rdf.Quad, error)
}

// StoreSink writes quads into a store, resolving each quad's graph IRI to
// an ontology row (creating it on first use) and tracking blank node
// labels so repeated references within one load resolve to the same
// storid instead of minting a fresh blank node per occurrence.
type StoreSink struct {
	Store  *store.Store
	blanks map[string]int64
	graphs map[string]int64
}

// NewStoreSink creates a StoreSink over st.
func NewStoreSink(st *store.Store) *StoreSink {
	return &StoreSink{Store: st, blanks: make(map[string]int64), graphs: make(map[string]int64)}
}

// AddQuad resolves q's terms and asserts it, as an object triple if the
// object is a resource or an object-less data triple if it is a literal.
func (sink *StoreSink) AddQuad(q rdf.Quad) error {
	graphID, err := sink.resolveGraph(q.Graph)
	if err != nil {
		return fmt.Errorf("ontio: resolving graph %s: %w", q.Graph, err)
	}
	s, err := sink.resolveResource(q.Subject)
	if err != nil {
		return fmt.Errorf("ontio: resolving subject: %w", err)
	}
	p, err := sink.resolveResource(q.Predicate)
	if err != nil {
		return fmt.Errorf("ontio: resolving predicate: %w", err)
	}

	if lit, ok := q.Object.(*rdf.Literal); ok {
		dtype, err := sink.literalDtype(lit)
		if err != nil {
			return fmt.Errorf("ontio: resolving literal datatype: %w", err)
		}
		return sink.Store.AddData(graphID, s, p, lit.Value, dtype)
	}

	o, err := sink.resolveResource(q.Object)
	if err != nil {
		return fmt.Errorf("ontio: resolving object: %w", err)
	}
	return sink.Store.AddObj(graphID, s, p, o)
}

func (sink *StoreSink) resolveGraph(iri string) (int64, error) {
	if id, ok := sink.graphs[iri]; ok {
		return id, nil
	}
	id, err := sink.Store.CreateOntology(iri)
	if err != nil {
		return 0, err
	}
	sink.graphs[iri] = id
	return id, nil
}

func (sink *StoreSink) resolveResource(t rdf.Term) (int64, error) {
	switch v := t.(type) {
	case *rdf.IRI:
		return sink.Store.Abbrev.Abbreviate(v.Value)
	case *rdf.BlankNode:
		if id, ok := sink.blanks[v.ID]; ok {
			return id, nil
		}
		id := sink.Store.Abbrev.NewBlankNode()
		sink.blanks[v.ID] = id
		return id, nil
	default:
		return 0, fmt.Errorf("term %s cannot appear as a resource position", t)
	}
}

func (sink *StoreSink) literalDtype(lit *rdf.Literal) (int64, error) {
	if lit.Language != "" {
		id, err := sink.Store.Langs.ID(lit.Language)
		if err != nil {
			return 0, err
		}
		return -id, nil
	}
	if lit.Datatype == nil {
		return 0, nil
	}
	return sink.Store.Abbrev.Abbreviate(lit.Datatype.Value)
}

// LoadNQuads parses an N-Quads document and loads every quad into st via a
// StoreSink, returning the number of quads applied.
func LoadNQuads(st *store.Store, input, defaultGraph string) (int, error) {
	quads, err := nquads.NewParser(input, defaultGraph).Parse()
	if err != nil {
		return 0, fmt.Errorf("ontio: parsing N-Quads: %w", err)
	}
	sink := NewStoreSink(st)
	for _, q := range quads {
		if err := sink.AddQuad(q); err != nil {
			return 0, err
		}
	}
	return len(quads), nil
}

// LoadNQuadsReader is a streaming convenience over LoadNQuads for callers
// holding an io.Reader (an uploaded file, a network body) rather than an
// in-memory string.
func LoadNQuadsReader(st *store.Store, r io.Reader, defaultGraph string) (int, error) {
	var sb strings.Builder
	if _, err := io.Copy(&sb, r); err != nil {
		return 0, fmt.Errorf("ontio: reading N-Quads input: %w", err)
	}
	return LoadNQuads(st, sb.String(), defaultGraph)
}

// StoreSource reads every quad of one graph back out of a store, decoding
// storids and literal values through the store's abbreviator and language
// table.
type StoreSource struct {
	Store *store.Store
	Graph int64
}

// NewStoreSource creates a StoreSource over one graph of st.
func NewStoreSource(st *store.Store, graph int64) *StoreSource {
	return &StoreSource{Store: st, Graph: graph}
}

// Quads decodes every object and data triple of the source's graph.
func (src *StoreSource) Quads() ([]rdf.Quad, error) {
	graphIRI, err := src.graphIRI()
	if err != nil {
		return nil, err
	}

	var out []rdf.Quad

	objTriples, err := src.Store.GetTriplesSPO(src.Graph, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("ontio: reading object triples: %w", err)
	}
	for _, t := range objTriples {
		s, err := src.resource(t.Subject)
		if err != nil {
			return nil, err
		}
		p, err := src.resource(t.Predicate)
		if err != nil {
			return nil, err
		}
		o, err := src.resource(t.Object)
		if err != nil {
			return nil, err
		}
		out = append(out, rdf.Quad{Graph: graphIRI, Subject: s, Predicate: p, Object: o})
	}

	dataTriples, err := src.Store.GetTriplesSPOD(src.Graph, 0, 0, "", 0)
	if err != nil {
		return nil, fmt.Errorf("ontio: reading data triples: %w", err)
	}
	for _, t := range dataTriples {
		s, err := src.resource(t.Subject)
		if err != nil {
			return nil, err
		}
		p, err := src.resource(t.Predicate)
		if err != nil {
			return nil, err
		}
		lit, err := src.literal(t.Value, t.Dtype)
		if err != nil {
			return nil, err
		}
		out = append(out, rdf.Quad{Graph: graphIRI, Subject: s, Predicate: p, Object: lit})
	}

	return out, nil
}

func (src *StoreSource) graphIRI() (string, error) {
	var iri string
	err := src.Store.DB().QueryRow(`SELECT iri FROM ontologies WHERE graph_id = ?`, src.Graph).Scan(&iri)
	if err != nil {
		return "", fmt.Errorf("ontio: looking up graph %d: %w", src.Graph, err)
	}
	return iri, nil
}

func (src *StoreSource) resource(storid int64) (rdf.Term, error) {
	if storid < 0 {
		return rdf.NewBlankNode(fmt.Sprintf("b%d", -storid)), nil
	}
	iri, err := src.Store.Abbrev.Unabbreviate(storid)
	if err != nil {
		return nil, fmt.Errorf("ontio: unabbreviating %d: %w", storid, err)
	}
	return rdf.NewIRI(iri), nil
}

func (src *StoreSource) literal(value string, dtype int64) (rdf.Term, error) {
	datatypeStorid, lang := src.Store.Langs.Decode(dtype)
	if lang != "" {
		return rdf.NewLangLiteral(value, lang), nil
	}
	if datatypeStorid == 0 {
		return rdf.NewLiteral(value), nil
	}
	iri, err := src.Store.Abbrev.Unabbreviate(datatypeStorid)
	if err != nil {
		return nil, fmt.Errorf("ontio: unabbreviating datatype %d: %w", datatypeStorid, err)
	}
	return rdf.NewTypedLiteral(value, rdf.NewIRI(iri)), nil
}

// WriteNQuads serializes quads as N-Quads text to w.
func WriteNQuads(w io.Writer, quads []rdf.Quad) error {
	for _, q := range quads {
		graphTerm := ""
		if q.Graph != "" {
			graphTerm = " " + formatGraphTerm(q.Graph)
		}
		if _, err := fmt.Fprintf(w, "%s %s %s%s .\n", q.Subject, q.Predicate, q.Object, graphTerm); err != nil {
			return fmt.Errorf("ontio: writing N-Quads: %w", err)
		}
	}
	return nil
}

func formatGraphTerm(graph string) string {
	if strings.HasPrefix(graph, "_:") {
		return graph
	}
	return "<" + graph + ">"
}
