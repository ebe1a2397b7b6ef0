// Package engine wires the SPARQL pipeline together: parse, normalize,
// compile (with caching), and execute against a single store and graph.
// It is the one entry point internal/server and cmd/quadstore both call
// rather than each gluing the pipeline's packages together themselves.
package engine

import (
	"context"
	"fmt"

	"github.com/jblamy/quadstore/internal/executor"
	"github.com/jblamy/quadstore/internal/qerr"
	"github.com/jblamy/quadstore/internal/rdf"
	"github.com/jblamy/quadstore/internal/sparql/ast"
	"github.com/jblamy/quadstore/internal/sparql/normalizer"
	"github.com/jblamy/quadstore/internal/sparql/parser"
	"github.com/jblamy/quadstore/internal/sparql/translate"
	"github.com/jblamy/quadstore/internal/store"
)

// Engine runs SPARQL SELECT/ASK text queries and INSERT/DELETE updates
// against one store, scoped to whatever graph the caller names per call.
type Engine struct {
	Store      *store.Store
	Cache      *translate.Cache
	Ontologies *store.OntologyStack // current-ontology scope for graph-less updates
}

// New creates an Engine with a fresh prepared-query cache and an empty
// ontology-scope stack.
func New(st *store.Store) *Engine {
	return &Engine{Store: st, Cache: translate.NewCache(), Ontologies: store.NewOntologyStack()}
}

// Query parses, compiles, and runs a SELECT query against graph, returning
// its decoded bindings. params supplies values for any "??n" positional
// parameter in the query text.
func (e *Engine) Query(ctx context.Context, text string, graph int64, params []interface{}) (*executor.SelectResult, error) {
	q, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	switch q.Type {
	case ast.QueryTypeSelect:
		return e.runSelect(ctx, text, q.Select, graph, params)
	case ast.QueryTypeAsk:
		sel := askAsSelect(q.Ask)
		res, err := e.runSelect(ctx, text, sel, graph, params)
		if err != nil {
			return nil, err
		}
		return res, nil
	default:
		return nil, fmt.Errorf("engine: query type not supported for read execution")
	}
}

// askAsSelect lowers "ASK { P }" to "SELECT * WHERE { P } LIMIT 1": ASK's
// answer is just whether that SELECT returns any row.
func askAsSelect(ask *ast.AskQuery) *ast.SelectQuery {
	return &ast.SelectQuery{Star: true, Where: ask.Where, Limit: 1}
}

func (e *Engine) runSelect(ctx context.Context, text string, sel *ast.SelectQuery, graph int64, params []interface{}) (*executor.SelectResult, error) {
	norm := normalizer.New(e.Store)
	normSel, err := norm.Normalize(&ast.Query{Type: ast.QueryTypeSelect, Select: sel})
	if err != nil {
		return nil, err
	}
	if normSel == nil {
		return nil, fmt.Errorf("engine: query normalized to nothing")
	}

	lastUpdate, err := e.Store.GetLastUpdateTime(graph)
	if err != nil {
		return nil, err
	}

	compiled, err := translate.CompileCached(e.Cache, text, normSel.Select, graph, lastUpdate, e.Store)
	if err != nil {
		return nil, err
	}

	prep := executor.Prepare(e.Store, compiled)
	return prep.Execute(ctx, params)
}

// Update applies an INSERT [DATA] / DELETE [DATA] statement. The DATA forms
// assert/retract the literal template; the WHERE-driven forms (§4.6.6)
// first run WHERE as a SELECT and drive one insert/delete pass per solution
// row, substituting that row's bindings into the template.
func (e *Engine) Update(ctx context.Context, text string, graph int64) error {
	q, err := parser.Parse(text)
	if err != nil {
		return err
	}
	if q.Type != ast.QueryTypeUpdate {
		return fmt.Errorf("engine: not an update statement")
	}
	upd := q.Update
	target, err := e.resolveTargetGraph(upd, graph)
	if err != nil {
		return err
	}
	switch upd.Op {
	case ast.UpdateInsertData:
		return e.applyTemplate(upd.Template, target, e.Store.AddObj, e.Store.AddData)
	case ast.UpdateDeleteData:
		return e.applyTemplate(upd.Template, target, e.Store.DelObj, e.Store.DelData)
	case ast.UpdateInsert:
		return e.applyWhereDriven(ctx, upd, target, e.Store.AddObj, e.Store.AddData)
	case ast.UpdateDelete:
		return e.applyWhereDriven(ctx, upd, target, e.Store.DelObj, e.Store.DelData)
	default:
		return fmt.Errorf("engine: unrecognized update operation")
	}
}

// resolveTargetGraph picks the ontology an update writes against: an
// explicit "GRAPH <iri>" on the update itself (INSERT/DELETE [DATA]
// GRAPH <iri> {...}) wins, then the innermost scope pushed onto
// e.Ontologies (matching "with ontology:" scoped writes from the original
// implementation), then the graph the caller asked to run against. The
// parser has no "WITH <iri>" form, so WITH does not set the target.
func (e *Engine) resolveTargetGraph(upd *ast.UpdateQuery, graph int64) (int64, error) {
	if upd.Graph != "" {
		return e.Store.GraphID(upd.Graph)
	}
	if cur, ok := e.Ontologies.Current(); ok {
		return cur, nil
	}
	return graph, nil
}

// applyWhereDriven implements §4.6.6's WHERE-driven INSERT/DELETE: compile
// upd.Where to a SELECT, run it, and for every solution row instantiate
// upd.Template once, allocating fresh blank nodes and NEWINSTANCEIRI IRIs
// at most once per row rather than once per template triple.
func (e *Engine) applyWhereDriven(ctx context.Context, upd *ast.UpdateQuery, graph int64, applyObj func(graph, s, p, o int64) error, applyData func(graph, s, p int64, value string, dtype int64) error) error {
	norm := normalizer.New(e.Store)
	normed, err := norm.Normalize(&ast.Query{Type: ast.QueryTypeSelect, Select: &ast.SelectQuery{Star: true, Where: upd.Where}})
	if err != nil {
		return err
	}
	if normed == nil {
		return fmt.Errorf("engine: update WHERE normalized to nothing")
	}

	compiled, err := translate.Compile(normed.Select, graph, e.Store)
	if err != nil {
		return err
	}
	res, err := executor.Prepare(e.Store, compiled).Execute(ctx, nil)
	if err != nil {
		return err
	}

	for _, row := range res.Rows {
		bnodes := map[string]int64{}
		for _, t := range upd.Template {
			s, err := e.resolveTemplateTerm(t.Subject, row, bnodes)
			if err != nil {
				return err
			}
			p, err := e.resolveTemplateTerm(t.Predicate, row, bnodes)
			if err != nil {
				return err
			}
			switch obj := t.Object.(type) {
			case ast.LiteralTerm:
				value, dtype, err := e.resolveLiteralTerm(obj)
				if err != nil {
					return err
				}
				if err := applyData(graph, s, p, value, dtype); err != nil {
					return err
				}
			case ast.VarTerm:
				term, bound := row[obj.Name]
				if !bound {
					continue // unbound variable in this row: skip this template triple
				}
				if lit, ok := term.(*rdf.Literal); ok {
					value, dtype, err := e.literalDtype(lit)
					if err != nil {
						return err
					}
					if err := applyData(graph, s, p, value, dtype); err != nil {
						return err
					}
					continue
				}
				o, err := e.resolveBoundTerm(term)
				if err != nil {
					return err
				}
				if err := applyObj(graph, s, p, o); err != nil {
					return err
				}
			default:
				o, err := e.resolveTemplateTerm(t.Object, row, bnodes)
				if err != nil {
					return err
				}
				if err := applyObj(graph, s, p, o); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// resolveTemplateTerm abbreviates a non-object-literal template position
// (subject, predicate, or an object that isn't a bound variable/literal):
// an IRI term resolves directly, a variable term looks up this row's
// binding, and a blank-node label is allocated once per row and reused for
// every template triple that repeats the same label.
func (e *Engine) resolveTemplateTerm(t ast.Term, row executor.Binding, bnodes map[string]int64) (int64, error) {
	switch v := t.(type) {
	case ast.IRITerm:
		return e.Store.Abbrev.Abbreviate(v.Value)
	case ast.BlankTerm:
		if id, ok := bnodes[v.Label]; ok {
			return id, nil
		}
		id := e.Store.Abbrev.NewBlankNode()
		bnodes[v.Label] = id
		return id, nil
	case ast.VarTerm:
		term, bound := row[v.Name]
		if !bound {
			return 0, &qerr.MalformedQueryError{Msg: fmt.Sprintf("update template references unbound variable ?%s", v.Name)}
		}
		return e.resolveBoundTerm(term)
	default:
		return 0, &qerr.MalformedQueryError{Msg: "update template position may only be an IRI, blank node, or variable"}
	}
}

// resolveBoundTerm abbreviates a row-bound RDF term into a storid for an
// objs-table position: an IRI is abbreviated (allocating a resource if this
// is the first time it's been asserted, e.g. a fresh NEWINSTANCEIRI mint),
// and a blank node's synthetic "bN" label recovers the negative storid the
// executor originally minted it from.
func (e *Engine) resolveBoundTerm(term rdf.Term) (int64, error) {
	switch v := term.(type) {
	case *rdf.IRI:
		return e.Store.Abbrev.Abbreviate(v.Value)
	case *rdf.BlankNode:
		var n int64
		if _, err := fmt.Sscanf(v.ID, "b%d", &n); err != nil {
			return 0, fmt.Errorf("engine: malformed blank node label %q in update template: %w", v.ID, err)
		}
		return -n, nil
	default:
		return 0, &qerr.MalformedQueryError{Msg: "update template's resource position is bound to a literal"}
	}
}

// literalDtype packs a row-bound literal term into the stored (value,
// dtype) pair, reusing Langs.DtypeOf so a literal that arrived from a
// language-tagged binding and one built from resolveLiteralTerm's
// DATA-template path pack dtype identically.
func (e *Engine) literalDtype(lit *rdf.Literal) (string, int64, error) {
	if lit.Language != "" {
		dtype, err := e.Store.Langs.DtypeOf(0, lit.Language)
		if err != nil {
			return "", 0, err
		}
		return lit.Value, dtype, nil
	}
	if lit.Datatype == nil {
		return lit.Value, 0, nil
	}
	storid, err := e.Store.Abbrev.Abbreviate(lit.Datatype.Value)
	if err != nil {
		return "", 0, err
	}
	dtype, err := e.Store.Langs.DtypeOf(storid, "")
	if err != nil {
		return "", 0, err
	}
	return lit.Value, dtype, nil
}

// applyTemplate walks an INSERT/DELETE DATA template, routing each triple
// to applyObj (resource object) or applyData (literal object) depending on
// the object term's kind.
func (e *Engine) applyTemplate(tmpl []ast.TriplePattern, graph int64, applyObj func(graph, s, p, o int64) error, applyData func(graph, s, p int64, value string, dtype int64) error) error {
	for _, t := range tmpl {
		s, err := e.resolveGroundTerm(t.Subject)
		if err != nil {
			return err
		}
		p, err := e.resolveGroundTerm(t.Predicate)
		if err != nil {
			return err
		}
		switch obj := t.Object.(type) {
		case ast.LiteralTerm:
			value, dtype, err := e.resolveLiteralTerm(obj)
			if err != nil {
				return err
			}
			if err := applyData(graph, s, p, value, dtype); err != nil {
				return err
			}
		default:
			o, err := e.resolveGroundTerm(t.Object)
			if err != nil {
				return err
			}
			if err := applyObj(graph, s, p, o); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveLiteralTerm abbreviates a literal template term into its stored
// (value, dtype) pair: dtype is 0 for a plain string, a positive datatype
// storid for "^^<iri>", or -lang_id for "@lang".
func (e *Engine) resolveLiteralTerm(lit ast.LiteralTerm) (string, int64, error) {
	if lit.Language != "" {
		langID, err := e.Store.Langs.ID(lit.Language)
		if err != nil {
			return "", 0, err
		}
		return lit.Value, -langID, nil
	}
	if lit.Datatype == "" {
		return lit.Value, 0, nil
	}
	storid, err := e.Store.Abbrev.Abbreviate(lit.Datatype)
	if err != nil {
		return "", 0, err
	}
	return lit.Value, storid, nil
}

// resolveGroundTerm abbreviates a subject/predicate/object-as-resource
// position of an INSERT/DELETE DATA template; DATA forms never contain
// variables, so anything else is a malformed query.
func (e *Engine) resolveGroundTerm(t ast.Term) (int64, error) {
	switch v := t.(type) {
	case ast.IRITerm:
		return e.Store.Abbrev.Abbreviate(v.Value)
	case ast.BlankTerm:
		return e.Store.Abbrev.NewBlankNode(), nil
	default:
		return 0, &qerr.MalformedQueryError{Msg: "INSERT/DELETE DATA templates may not contain variables"}
	}
}
