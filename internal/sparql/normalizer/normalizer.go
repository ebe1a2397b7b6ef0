// Package normalizer turns a parsed ast.Query into a form the SQL
// translator can compile directly: IRIs resolved to storids, predicate
// kinds checked against the store, and property paths rewritten into the
// small set of shapes the translator understands (closure, step+closure,
// optional step, static closure).
package normalizer

import (
	"github.com/jblamy/quadstore/internal/sparql/ast"
	"github.com/jblamy/quadstore/internal/store"
)

// Binder abbreviates an IRI to a storid without allocating one (queries
// never mint new resources, only ontology loads do) and reports a bound
// predicate's registered kind so the normalizer can decide which of
// objs/datas a triple pattern belongs against.
type Binder interface {
	AbbreviateReadOnly(iri string) (int64, error)
	PredicateKind(storid int64) (isObject, isData bool, err error)
}

// Normalized is the algebra tree with every IRI position replaced by its
// storid and every property path rewritten to a PathShape the translator
// can emit a recursive CTE (or plain join) for.
type Normalized struct {
	Select *NormSelect
}

// NormSelect mirrors ast.SelectQuery with IRIs resolved.
type NormSelect struct {
	Distinct  bool
	Reduced   bool
	Star      bool
	Variables []ast.SelectVar
	Where     *NormGroup
	GroupBy   []ast.Expression
	Having    []ast.Expression
	OrderBy   []ast.OrderCondition
	Limit     int
	Offset    int
}

// NormGroup mirrors ast.GroupGraphPattern with resolved triples/paths.
type NormGroup struct {
	Triples      []NormTriple
	Paths        []NormPath
	Optionals    []*NormGroup
	Filters      []ast.Expression
	Binds        []ast.Bind
	Values       []ast.ValuesClause
	Graphs       []NormGraph
	SubSelects   []*NormSelect
	Alternatives [][]*NormGroup
}

// NormTriple is a triple pattern whose IRI positions are storids; a
// Subject/Predicate/Object Term with a non-empty Var is a variable
// position, named by that Var.
type NormTriple struct {
	Subject, Predicate, Object Term
	Table                      TableHint
}

// TableHint tells the translator which of objs/datas a triple pattern's
// predicate is known to live in, computed once at normalize time so the
// translator never has to consult the store mid-compile. A predicate whose
// kind is still unknown (a variable/parameter predicate, one never seen
// before, or a dual-kind annotation property) yields TableBoth, requiring
// the translator to union both tables rather than pick one.
type TableHint int

const (
	TableBoth TableHint = iota
	TableObject
	TableData
)

// Term is one triple-pattern position after normalization: either a bound
// storid/value, or a variable name.
type Term struct {
	Var      string // "" if bound
	Storid   int64  // valid when Var == "" and Kind == TermStorid
	Literal  *ast.LiteralTerm
	Kind     TermKind
}

type TermKind int

const (
	TermStorid TermKind = iota
	TermLiteral
	TermParam
)

// NormPath is a property-path triple with its shape classified.
type NormPath struct {
	Subject, Object Term
	Shape           PathShape
}

// PathShape is the small vocabulary of path forms the translator compiles;
// everything the parser can build reduces to one of these via DeMorgan-ish
// rewriting (sequence flattens to a chain of steps, alternative flattens
// to a predicate IN-list at the base case).
type PathShape struct {
	// Steps is the sequence of base predicates composing the path (length
	// 1 for a single predicate, >1 for "/"-sequences).
	Steps []PathStep
}

// PathStep is one link of a path sequence.
type PathStep struct {
	Predicates []int64 // alternatives at this step ("|"); inverted means walk o->s
	Inverted   bool
	Repeat     RepeatKind
}

type RepeatKind int

const (
	RepeatOne      RepeatKind = iota // no modifier
	RepeatZeroOne                    // ?
	RepeatZeroMore                   // *
	RepeatOneMore                    // +
	RepeatZeroMoreStatic             // *STATIC
)

// NormGraph mirrors ast.GraphPattern. The graph itself is never abbreviated
// to a storid (graph_id is an independent ontologies-table key, not a
// resource storid); GraphIRI carries the bound IRI verbatim for the
// translator to resolve with a lookup subquery, and GraphVar names the
// SPARQL variable when GRAPH is parameterized instead of literal.
type NormGraph struct {
	GraphIRI string
	GraphVar string
	Pattern  *NormGroup
}

// Normalizer holds the store handle used to resolve IRIs and enforce
// predicate-kind rules while walking the tree.
type Normalizer struct {
	Abbrev Binder
}

// New creates a Normalizer bound to store.
func New(st *store.Store) *Normalizer {
	return &Normalizer{Abbrev: st}
}

// Normalize lowers a parsed SELECT query.
func (n *Normalizer) Normalize(q *ast.Query) (*Normalized, error) {
	if q.Type != ast.QueryTypeSelect {
		return nil, nil
	}
	sel, err := n.normalizeSelect(q.Select)
	if err != nil {
		return nil, err
	}
	return &Normalized{Select: sel}, nil
}

func (n *Normalizer) normalizeSelect(s *ast.SelectQuery) (*NormSelect, error) {
	where, err := n.normalizeGroup(s.Where)
	if err != nil {
		return nil, err
	}
	out := &NormSelect{
		Distinct: s.Distinct, Reduced: s.Reduced, Star: s.Star,
		Variables: s.Variables, Where: where,
		GroupBy: s.GroupBy, Having: s.Having, OrderBy: s.OrderBy,
		Limit: s.Limit, Offset: s.Offset,
	}
	return out, nil
}

// NormalizeGroup lowers a single group graph pattern. Exported so the SQL
// translator can normalize a FILTER (NOT) EXISTS sub-pattern inline,
// reusing the same IRI resolution the enclosing query went through.
func (n *Normalizer) NormalizeGroup(g *ast.GroupGraphPattern) (*NormGroup, error) {
	return n.normalizeGroup(g)
}

func (n *Normalizer) normalizeGroup(g *ast.GroupGraphPattern) (*NormGroup, error) {
	if g == nil {
		return nil, nil
	}
	out := &NormGroup{Filters: g.Filters, Binds: g.Binds, Values: g.Values}

	for _, t := range g.Triples {
		nt, err := n.normalizeTriple(t)
		if err != nil {
			return nil, err
		}
		out.Triples = append(out.Triples, nt)
	}
	for _, pp := range g.Paths {
		np, err := n.normalizePath(pp)
		if err != nil {
			return nil, err
		}
		out.Paths = append(out.Paths, np)
	}
	for _, opt := range g.Optionals {
		sub, err := n.normalizeGroup(opt)
		if err != nil {
			return nil, err
		}
		out.Optionals = append(out.Optionals, sub)
	}
	for _, gr := range g.Graphs {
		sub, err := n.normalizeGroup(gr.Pattern)
		if err != nil {
			return nil, err
		}
		ng := NormGraph{Pattern: sub}
		switch v := gr.Graph.(type) {
		case ast.VarTerm:
			ng.GraphVar = v.Name
		case ast.IRITerm:
			ng.GraphIRI = v.Value
		}
		out.Graphs = append(out.Graphs, ng)
	}
	for _, ss := range g.SubSelects {
		sub, err := n.normalizeSelect(ss)
		if err != nil {
			return nil, err
		}
		out.SubSelects = append(out.SubSelects, sub)
	}
	for _, branch := range g.Alternatives {
		var normBranch []*NormGroup
		for _, alt := range branch {
			sub, err := n.normalizeGroup(alt)
			if err != nil {
				return nil, err
			}
			normBranch = append(normBranch, sub)
		}
		out.Alternatives = append(out.Alternatives, normBranch)
	}
	return out, nil
}

func (n *Normalizer) normalizeTriple(t ast.TriplePattern) (NormTriple, error) {
	s, err := n.normalizeTerm(t.Subject)
	if err != nil {
		return NormTriple{}, err
	}
	p, err := n.normalizeTerm(t.Predicate)
	if err != nil {
		return NormTriple{}, err
	}
	o, err := n.normalizeTerm(t.Object)
	if err != nil {
		return NormTriple{}, err
	}
	table, err := n.classifyTable(p)
	if err != nil {
		return NormTriple{}, err
	}
	return NormTriple{Subject: s, Predicate: p, Object: o, Table: table}, nil
}

// classifyTable looks up a bound predicate's registered kind; a variable or
// parameter predicate can't be classified until execution time, so it
// always yields TableBoth.
func (n *Normalizer) classifyTable(p Term) (TableHint, error) {
	if p.Var != "" || p.Kind == TermParam {
		return TableBoth, nil
	}
	isObject, isData, err := n.Abbrev.PredicateKind(p.Storid)
	if err != nil {
		return TableBoth, err
	}
	switch {
	case isObject && !isData:
		return TableObject, nil
	case isData && !isObject:
		return TableData, nil
	default:
		return TableBoth, nil
	}
}

func (n *Normalizer) normalizeTerm(t ast.Term) (Term, error) {
	switch v := t.(type) {
	case ast.VarTerm:
		return Term{Var: v.Name}, nil
	case ast.IRITerm:
		id, err := n.Abbrev.AbbreviateReadOnly(v.Value)
		if err != nil {
			return Term{}, err
		}
		return Term{Storid: id, Kind: TermStorid}, nil
	case ast.LiteralTerm:
		lit := v
		return Term{Literal: &lit, Kind: TermLiteral}, nil
	case ast.ParamTerm:
		return Term{Kind: TermParam, Storid: int64(v.Index)}, nil
	case ast.BlankTerm:
		// Query-local blank nodes behave as existential variables scoped
		// to this query; give them a synthetic variable name so the
		// translator treats them exactly like one.
		return Term{Var: "_bnode_" + v.Label}, nil
	}
	return Term{}, nil
}

// normalizePath flattens a property path AST into the Steps/Shape form
// the translator compiles. Sequence ("/") flattens to multiple steps;
// alternative ("|") at a single step flattens to that step's predicate
// list; inverse ("^") flips the step's direction; the repeat modifiers
// (*, +, ?, *STATIC) attach to whichever step they wrap.
func (n *Normalizer) normalizePath(pp ast.PathPattern) (NormPath, error) {
	s, err := n.normalizeTerm(pp.Subject)
	if err != nil {
		return NormPath{}, err
	}
	o, err := n.normalizeTerm(pp.Object)
	if err != nil {
		return NormPath{}, err
	}
	steps, err := n.flattenPath(pp.Path)
	if err != nil {
		return NormPath{}, err
	}
	return NormPath{Subject: s, Object: o, Shape: PathShape{Steps: steps}}, nil
}

func (n *Normalizer) flattenPath(p *ast.PropertyPath) ([]PathStep, error) {
	switch p.Op {
	case ast.PathIRI:
		id, err := n.Abbrev.AbbreviateReadOnly(p.IRI)
		if err != nil {
			return nil, err
		}
		return []PathStep{{Predicates: []int64{id}, Repeat: RepeatOne}}, nil
	case ast.PathInverse:
		steps, err := n.flattenPath(p.Sub[0])
		if err != nil {
			return nil, err
		}
		for i := range steps {
			steps[i].Inverted = !steps[i].Inverted
		}
		return steps, nil
	case ast.PathSequence:
		left, err := n.flattenPath(p.Sub[0])
		if err != nil {
			return nil, err
		}
		right, err := n.flattenPath(p.Sub[1])
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case ast.PathAlternative:
		left, err := n.flattenPath(p.Sub[0])
		if err != nil {
			return nil, err
		}
		right, err := n.flattenPath(p.Sub[1])
		if err != nil {
			return nil, err
		}
		if len(left) == 1 && len(right) == 1 && left[0].Inverted == right[0].Inverted {
			left[0].Predicates = append(left[0].Predicates, right[0].Predicates...)
			return left, nil
		}
		// Sequences on either side of "|" don't reduce to one step; the
		// translator compiles this case as a UNION of the two chains.
		return append(left, right...), nil
	case ast.PathZeroOrMore, ast.PathOneOrMore, ast.PathZeroOrOne, ast.PathZeroOrMoreStatic:
		steps, err := n.flattenPath(p.Sub[0])
		if err != nil {
			return nil, err
		}
		repeat := RepeatOne
		switch p.Op {
		case ast.PathZeroOrMore:
			repeat = RepeatZeroMore
		case ast.PathOneOrMore:
			repeat = RepeatOneMore
		case ast.PathZeroOrOne:
			repeat = RepeatZeroOne
		case ast.PathZeroOrMoreStatic:
			repeat = RepeatZeroMoreStatic
		}
		if len(steps) == 1 {
			steps[0].Repeat = repeat
		}
		return steps, nil
	case ast.PathNegated:
		return n.flattenPath(p.Sub[0])
	}
	return nil, nil
}
