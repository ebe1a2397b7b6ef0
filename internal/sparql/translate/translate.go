// Package translate compiles a normalized SPARQL algebra tree into a
// single SQL statement against the objs/datas tables, including recursive
// CTEs for property paths and correlated EXISTS for FILTER (NOT) EXISTS.
package translate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jblamy/quadstore/internal/qerr"
	"github.com/jblamy/quadstore/internal/sparql/ast"
	"github.com/jblamy/quadstore/internal/sparql/normalizer"
)

// ColumnKind tells the executor how to decode a projected column's raw
// SQLite value back into an RDF term: a storid needing Unabbreviate, a
// literal needing its companion dtype column decoded via LangTable, or
// neither (an expression result with no fixed term kind, returned as
// whatever scalar type SQLite produced).
type ColumnKind int

const (
	ColKindUnknown ColumnKind = iota
	ColKindObject
	ColKindLiteral
	// ColKindAmbiguous marks a variable bound to the object position of a
	// triple pattern whose predicate kind couldn't be determined at
	// compile time (a variable/parameter predicate, or one never seen as
	// exclusively object- or data-valued). Its value was projected out of
	// a UNION ALL of objs and datas, so each row carries its own
	// discriminator (see Compiled.KindColumn) telling the executor which
	// decode path that particular row needs.
	ColKindAmbiguous
	// ColKindIRIText marks a variable bound via BIND(IRI(...)/NEWINSTANCEIRI(...)
	// AS ?v) (or an equivalent expression-valued projection): the SQL column
	// already holds the term's IRI text, so the executor wraps it directly in
	// an rdf.IRI instead of treating it as a storid or an opaque literal.
	ColKindIRIText
)

// Compiled is one prepared query: the SQL text, its positional-parameter
// order, and the projected column names in output order.
type Compiled struct {
	SQL       string
	ParamKind []ParamSlot // one per numbered placeholder in SQL: ParamKind[i] binds "?<i+1>"
	Columns   []string    // output column names, in SELECT order
	IsStatic  bool        // true if the query used a *STATIC path and should be cached per-graph

	VarKinds    map[string]ColumnKind // Columns[i] -> how to decode it
	DtypeColumn map[string]string     // Columns[i] -> hidden "__dtype_<var>" column name, when VarKinds[i] == ColKindLiteral or ColKindAmbiguous
	KindColumn  map[string]string     // Columns[i] -> hidden "__isobj_<var>" discriminator column, when VarKinds[i] == ColKindAmbiguous
}

// ParamSlot records what a "?" placeholder in the emitted SQL binds to:
// either a literal already known at compile time (graph id), or a
// positional SPARQL parameter the caller must supply at execution time.
type ParamSlot struct {
	FromQueryParam int // 1-based SPARQL "??n" index; 0 means compile-time constant
	Constant       interface{}
}

// compiler carries the mutable state of one compilation pass: the SQL
// text under construction, its variable-to-column bindings, and a counter
// for naming generated CTEs/aliases uniquely.
type compiler struct {
	graph        int64
	graphExpr    string // non-"" overrides graph with a SQL scalar expression (bound GRAPH <iri> block)
	graphVarName string // non-"" when the current scope's graph comes from a GRAPH ?var block
	abbrev       normalizer.Binder
	aliasSeq     int
	params       []ParamSlot
	varCols      map[string]string     // SPARQL variable -> "<alias>.col" expression bound so far
	varKind      map[string]ColumnKind // SPARQL variable -> decode hint for its bound column
	varDtype     map[string]string     // SPARQL variable -> "<alias>.dtype" companion expression, literals/ambiguous only
	varDiscrim   map[string]string     // SPARQL variable -> "<alias>.is_obj" discriminator expression, ambiguous only
	ctes         []string
	staticUse    bool
}

// Compile compiles a normalized SELECT query scoped to graph into one SQL
// SELECT statement (optionally preceded by WITH clauses for paths and
// subqueries). binder resolves the IRIs in any FILTER (NOT) EXISTS
// sub-pattern, which the normalizer leaves untouched since it walks the
// triple/path shape of a query, not its expression tree.
func Compile(sel *normalizer.NormSelect, graph int64, binder normalizer.Binder) (*Compiled, error) {
	c := &compiler{
		graph: graph, abbrev: binder,
		varCols:    map[string]string{},
		varKind:    map[string]ColumnKind{},
		varDtype:   map[string]string{},
		varDiscrim: map[string]string{},
	}

	fromClause, whereClauses, err := c.compileGroup(sel.Where, "")
	if err != nil {
		return nil, err
	}

	selectList, columns, kinds, dtypeCols, kindCols, err := c.compileProjection(sel)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if len(c.ctes) > 0 {
		b.WriteString("WITH ")
		b.WriteString(strings.Join(c.ctes, ", "))
		b.WriteString(" ")
	}
	b.WriteString("SELECT ")
	if sel.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(selectList)
	b.WriteString(" FROM ")
	b.WriteString(fromClause)
	if len(whereClauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(whereClauses, " AND "))
	}
	if len(sel.GroupBy) > 0 {
		groupExprs := make([]string, len(sel.GroupBy))
		for i, e := range sel.GroupBy {
			expr, err := c.compileExpr(e)
			if err != nil {
				return nil, err
			}
			groupExprs[i] = expr
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groupExprs, ", "))
	}
	if len(sel.Having) > 0 {
		havingExprs := make([]string, len(sel.Having))
		for i, e := range sel.Having {
			expr, err := c.compileExpr(e)
			if err != nil {
				return nil, err
			}
			havingExprs[i] = expr
		}
		b.WriteString(" HAVING ")
		b.WriteString(strings.Join(havingExprs, " AND "))
	}
	if len(sel.OrderBy) > 0 {
		orderExprs := make([]string, len(sel.OrderBy))
		for i, oc := range sel.OrderBy {
			expr, err := c.compileExpr(oc.Expr)
			if err != nil {
				return nil, err
			}
			if oc.Desc {
				expr += " DESC"
			}
			orderExprs[i] = expr
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orderExprs, ", "))
	}
	if sel.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", sel.Limit)
	}
	if sel.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", sel.Offset)
	}

	return &Compiled{
		SQL:         b.String(),
		ParamKind:   c.params,
		Columns:     columns,
		IsStatic:    c.staticUse,
		VarKinds:    kinds,
		DtypeColumn: dtypeCols,
		KindColumn:  kindCols,
	}, nil
}

func (c *compiler) nextAlias(prefix string) string {
	c.aliasSeq++
	return fmt.Sprintf("%s%d", prefix, c.aliasSeq)
}

func (c *compiler) bindConst(v interface{}) string {
	c.params = append(c.params, ParamSlot{Constant: v})
	return fmt.Sprintf("?%d", len(c.params))
}

func (c *compiler) bindParam(idx int) string {
	c.params = append(c.params, ParamSlot{FromQueryParam: idx})
	return fmt.Sprintf("?%d", len(c.params))
}

// dtypeColumnName is the hidden companion column carrying a literal
// variable's dtype (see internal/store.LangTable), named "__dtype_<var>".
// SPARQL variable names may start with "_", so a variable spelled
// "__dtype_<var>" would share this column name.
func dtypeColumnName(varName string) string {
	return "__dtype_" + varName
}

// isObjColumnName is the hidden companion column carrying the is_obj
// discriminator for a variable bound to an ambiguous (union-table) position.
func isObjColumnName(varName string) string {
	return "__isobj_" + varName
}

// classifyExprKind tells compileProjection/compileGroup's BIND handling how
// to decode a BIND/expression-projection result: most expressions have no
// fixed term kind and decode generically, but IRI/NEWINSTANCEIRI mint IRI
// text and BNODE mints a fresh blank-node storid, both of which need a
// specific decode path rather than the generic scalar fallback.
func classifyExprKind(e ast.Expression) ColumnKind {
	call, ok := e.(ast.CallExpr)
	if !ok {
		return ColKindUnknown
	}
	switch call.Name {
	case "IRI", "URI", "NEWINSTANCEIRI":
		return ColKindIRIText
	case "BNODE":
		return ColKindObject
	}
	return ColKindUnknown
}

// asVarName unwraps a bare-variable argument expression (the parser always
// wraps a leaf term in TermExpr), returning ok=false for anything else
// (a literal, a nested call, a path expression result with no variable).
func asVarName(e ast.Expression) (string, bool) {
	te, ok := e.(ast.TermExpr)
	if !ok {
		return "", false
	}
	vt, ok := te.Term.(ast.VarTerm)
	if !ok {
		return "", false
	}
	return vt.Name, true
}

// compileProjection builds the SELECT column list from the projected
// variables, falling back to every bound variable for SELECT *. Every
// variable bound to a literal position gets a hidden companion dtype
// column appended so the executor can decode its language tag/datatype;
// an expression-valued projection (v.Expr != nil) has no fixed kind and
// decodes generically from whatever scalar type SQLite returns.
func (c *compiler) compileProjection(sel *normalizer.NormSelect) (string, []string, map[string]ColumnKind, map[string]string, map[string]string, error) {
	kinds := map[string]ColumnKind{}
	dtypeCols := map[string]string{}
	kindCols := map[string]string{}

	addDtype := func(cols *[]string, name, boundExpr string) {
		kind := c.varKind[name]
		kinds[name] = kind
		if kind == ColKindLiteral || kind == ColKindAmbiguous {
			if dtExpr, ok := c.varDtype[name]; ok {
				dcol := dtypeColumnName(name)
				*cols = append(*cols, fmt.Sprintf("%s AS %s", dtExpr, quoteIdent(dcol)))
				dtypeCols[name] = dcol
			}
		}
		if kind == ColKindAmbiguous {
			if discExpr, ok := c.varDiscrim[name]; ok {
				icol := isObjColumnName(name)
				*cols = append(*cols, fmt.Sprintf("%s AS %s", discExpr, quoteIdent(icol)))
				kindCols[name] = icol
			}
		}
		_ = boundExpr
	}

	if sel.Star {
		var cols []string
		var names []string
		for name, expr := range c.varCols {
			cols = append(cols, fmt.Sprintf("%s AS %s", expr, quoteIdent(name)))
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			addDtype(&cols, name, c.varCols[name])
		}
		if len(cols) == 0 {
			return "1", []string{"_empty"}, kinds, dtypeCols, kindCols, nil
		}
		return strings.Join(cols, ", "), names, kinds, dtypeCols, kindCols, nil
	}
	var cols []string
	var names []string
	for _, v := range sel.Variables {
		if v.Expr == nil {
			col, ok := c.varCols[v.Var]
			if !ok {
				col = "NULL"
			}
			cols = append(cols, fmt.Sprintf("%s AS %s", col, quoteIdent(v.Var)))
			addDtype(&cols, v.Var, col)
		} else {
			expr, err := c.compileExpr(v.Expr)
			if err != nil {
				return "", nil, nil, nil, nil, err
			}
			cols = append(cols, fmt.Sprintf("%s AS %s", expr, quoteIdent(v.Var)))
			kinds[v.Var] = classifyExprKind(v.Expr)
		}
		names = append(names, v.Var)
	}
	return strings.Join(cols, ", "), names, kinds, dtypeCols, kindCols, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// compileGroup compiles one GroupGraphPattern to a FROM clause (a join of
// objs/datas aliases and any OPTIONAL left joins) and a list of WHERE
// conditions. parentAlias is unused at the top level; it threads through
// for nested GRAPH blocks that need to inherit the enclosing graph binding.
func (c *compiler) compileGroup(g *normalizer.NormGroup, parentAlias string) (string, []string, error) {
	var joins []string
	var conds []string

	for _, t := range g.Triples {
		alias := c.nextAlias("o")
		join, tconds, err := c.compileTriple(t, alias)
		if err != nil {
			return "", nil, err
		}
		joins = append(joins, join)
		conds = append(conds, tconds...)
	}

	for _, p := range g.Paths {
		alias := c.nextAlias("p")
		cteName, tconds, err := c.compilePath(p, alias)
		if err != nil {
			return "", nil, err
		}
		joins = append(joins, fmt.Sprintf("%s %s", cteName, alias))
		conds = append(conds, tconds...)
	}

	for _, opt := range g.Optionals {
		subFrom, subConds, err := c.compileGroup(opt, parentAlias)
		if err != nil {
			return "", nil, err
		}
		on := "1=1"
		if len(subConds) > 0 {
			on = strings.Join(subConds, " AND ")
		}
		joins = append(joins, fmt.Sprintf("LEFT JOIN (%s) ON %s", subFrom, on))
	}

	for _, f := range g.Filters {
		expr, err := c.compileExpr(f)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, expr)
	}

	for _, vc := range g.Values {
		cond, err := c.compileValues(vc)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
	}

	for _, b := range g.Binds {
		expr, err := c.compileExpr(b.Expr)
		if err != nil {
			return "", nil, err
		}
		c.varCols[b.Var] = expr
		c.varKind[b.Var] = classifyExprKind(b.Expr)
	}

	for _, gr := range g.Graphs {
		subFrom, subConds, err := c.compileGraph(gr)
		if err != nil {
			return "", nil, err
		}
		joins = append(joins, subFrom)
		conds = append(conds, subConds...)
	}

	for _, branch := range g.Alternatives {
		if len(branch) == 0 {
			continue
		}
		unionFrom, unionConds, err := c.compileUnion(branch)
		if err != nil {
			return "", nil, err
		}
		joins = append(joins, unionFrom)
		conds = append(conds, unionConds...)
	}

	if len(joins) == 0 {
		return "(SELECT 1) t0", conds, nil
	}
	var from strings.Builder
	for i, j := range joins {
		switch {
		case strings.HasPrefix(j, "LEFT JOIN "):
			if i == 0 {
				from.WriteString("(SELECT 1) t0")
			}
			from.WriteString(" " + j)
		case i > 0:
			from.WriteString(" JOIN " + j)
		default:
			from.WriteString(j)
		}
	}
	return from.String(), conds, nil
}

// compileTriple binds one triple pattern to objs, datas, or a UNION ALL of
// both, depending on which table its object position can actually come
// from. When the object is concretely bound (a literal or a resolved
// IRI/blank-node storid), its own term kind settles the question outright:
// a literal can only ever have been written by AddData, a resource only by
// AddObj. Only when the object is unbound (a variable, or a runtime ??n
// parameter whose shape isn't known until execution) does the predicate's
// registered kind matter, and only when that kind itself is ambiguous
// (TableBoth: a variable/parameter predicate, one never seen before, or a
// dual-kind annotation property) does the pattern need the UNION path.
func (c *compiler) compileTriple(t normalizer.NormTriple, alias string) (string, []string, error) {
	if t.Object.Var == "" && t.Object.Kind != normalizer.TermParam {
		table := "objs"
		if t.Object.Kind == normalizer.TermLiteral {
			table = "datas"
		}
		return c.compileTripleTable(t, table, alias)
	}
	switch t.Table {
	case normalizer.TableObject:
		return c.compileTripleTable(t, "objs", alias)
	case normalizer.TableData:
		return c.compileTripleTable(t, "datas", alias)
	default:
		return c.compileTripleUnion(t, alias)
	}
}

// compileTripleTable binds one triple pattern to a fresh objs or datas
// alias, returning the FROM fragment and any WHERE conditions fixing its
// bound positions.
func (c *compiler) compileTripleTable(t normalizer.NormTriple, table, alias string) (string, []string, error) {
	var conds []string
	from := fmt.Sprintf("%s %s", table, alias)

	conds = append(conds, c.graphCond(alias))

	if err := c.bindPosition(alias, "s", t.Subject, ColKindObject, &conds); err != nil {
		return "", nil, err
	}
	if err := c.bindPosition(alias, "p", t.Predicate, ColKindObject, &conds); err != nil {
		return "", nil, err
	}
	objCol := "o"
	objKind := ColKindObject
	if table == "datas" {
		objCol = "value"
		objKind = ColKindLiteral
	}
	if err := c.bindPosition(alias, objCol, t.Object, objKind, &conds); err != nil {
		return "", nil, err
	}
	return from, conds, nil
}

// compileTripleUnion binds a triple pattern whose predicate kind is
// ambiguous to a derived table unioning objs and datas under a common
// shape (graph, s, p, val, dtype, is_obj), so a single unbound object
// variable can decode as either an object storid or a literal depending on
// which arm actually produced each row. The object position is always
// projected as ColKindAmbiguous; subject/predicate are always storids in
// both tables and bind normally.
func (c *compiler) compileTripleUnion(t normalizer.NormTriple, alias string) (string, []string, error) {
	derived := fmt.Sprintf(
		"(SELECT graph, s, p, o AS val, 0 AS dtype, 1 AS is_obj FROM objs UNION ALL "+
			"SELECT graph, s, p, value AS val, dtype, 0 AS is_obj FROM datas) %s", alias)

	var conds []string
	conds = append(conds, c.graphCond(alias))

	if err := c.bindPosition(alias, "s", t.Subject, ColKindObject, &conds); err != nil {
		return "", nil, err
	}
	if err := c.bindPosition(alias, "p", t.Predicate, ColKindObject, &conds); err != nil {
		return "", nil, err
	}
	if err := c.bindPosition(alias, "val", t.Object, ColKindAmbiguous, &conds); err != nil {
		return "", nil, err
	}
	return derived, conds, nil
}

// bindPosition fixes one triple-pattern position against alias.col. When
// the position is a fresh variable, it records the column expression (and,
// for a literal position, the companion dtype column) so compileProjection
// can later tell the executor how to decode that variable's values back
// into RDF terms.
func (c *compiler) bindPosition(alias, col string, term normalizer.Term, kind ColumnKind, conds *[]string) error {
	colExpr := fmt.Sprintf("%s.%s", alias, col)
	switch {
	case term.Var != "":
		if existing, ok := c.varCols[term.Var]; ok {
			*conds = append(*conds, fmt.Sprintf("%s = %s", colExpr, existing))
		} else {
			c.varCols[term.Var] = colExpr
			c.varKind[term.Var] = kind
			if kind == ColKindLiteral || kind == ColKindAmbiguous {
				c.varDtype[term.Var] = fmt.Sprintf("%s.dtype", alias)
			}
			if kind == ColKindAmbiguous {
				c.varDiscrim[term.Var] = fmt.Sprintf("%s.is_obj", alias)
			}
		}
	case term.Kind == normalizer.TermLiteral:
		*conds = append(*conds, fmt.Sprintf("%s = %s", colExpr, c.bindConst(term.Literal.Value)))
	case term.Kind == normalizer.TermParam:
		*conds = append(*conds, fmt.Sprintf("%s = %s", colExpr, c.bindParam(int(term.Storid))))
	default:
		*conds = append(*conds, fmt.Sprintf("%s = %s", colExpr, c.bindConst(term.Storid)))
	}
	return nil
}

// graphCond returns the WHERE condition fixing alias.graph to whatever
// graph the current scope is compiling against: a bound constant normally,
// or an equality with a previously-unseen GRAPH ?var's column the first
// time that variable is encountered (subsequent triples inside the same
// GRAPH ?var block correlate against the column already on varCols).
func (c *compiler) graphCond(alias string) string {
	col := alias + ".graph"
	switch {
	case c.graphVarName != "":
		if existing, ok := c.varCols[c.graphVarName]; ok {
			return fmt.Sprintf("%s = %s", col, existing)
		}
		c.varCols[c.graphVarName] = col
		return "1=1"
	case c.graphExpr != "":
		return fmt.Sprintf("%s = %s", col, c.graphExpr)
	default:
		return fmt.Sprintf("%s = %s", col, c.bindConst(c.graph))
	}
}

// compileGraph compiles a "GRAPH g { ... }" block by temporarily
// re-scoping the compiler's notion of the current graph for the nested
// pattern, then restoring it. A bound GRAPH IRI is resolved to its
// graph_id with a scalar lookup against the ontologies table rather than
// through the resource abbreviator, since graph_id is an independent key,
// not a resource storid; property paths nested inside a GRAPH ?var block
// still scope to the compiler's last bound graph rather than per-row, a
// known limitation of compiling a path to a prebuilt CTE.
func (c *compiler) compileGraph(gr normalizer.NormGraph) (string, []string, error) {
	savedGraph, savedExpr, savedVar := c.graph, c.graphExpr, c.graphVarName
	defer func() { c.graph, c.graphExpr, c.graphVarName = savedGraph, savedExpr, savedVar }()

	switch {
	case gr.GraphVar != "":
		c.graphVarName = gr.GraphVar
		c.graphExpr = ""
	case gr.GraphIRI != "":
		c.graphVarName = ""
		c.graphExpr = fmt.Sprintf("(SELECT graph_id FROM ontologies WHERE iri = %s)", c.bindConst(gr.GraphIRI))
	}
	return c.compileGroup(gr.Pattern, "")
}

// compilePath emits a recursive CTE for a (possibly multi-step, possibly
// repeating) property path and returns its name plus the join conditions
// binding the path's endpoints to the pattern's subject/object terms.
// pathGraphExpr returns the SQL expression a path CTE's own WHERE clause
// uses to scope it to the current graph: a bound constant or a bound
// GRAPH <iri> lookup. A GRAPH ?var scope falls back to whatever graph was
// last concretely bound, since a path CTE is compiled once up front and
// can't be correlated per outer row the way a plain triple join can.
func (c *compiler) pathGraphExpr() string {
	if c.graphExpr != "" {
		return c.graphExpr
	}
	return c.bindConst(c.graph)
}

func (c *compiler) compilePath(p normalizer.NormPath, alias string) (string, []string, error) {
	name := c.nextAlias("path")
	var conds []string

	if len(p.Shape.Steps) == 1 && p.Shape.Steps[0].Repeat == normalizer.RepeatOne {
		step := p.Shape.Steps[0]
		predList := make([]string, len(step.Predicates))
		for i, pr := range step.Predicates {
			predList[i] = c.bindConst(pr)
		}
		sCol, oCol := "s", "o"
		if step.Inverted {
			sCol, oCol = "o", "s"
		}
		cte := fmt.Sprintf("%s AS (SELECT %s AS s, %s AS o FROM objs WHERE graph = %s AND p IN (%s))",
			name, sCol, oCol, c.pathGraphExpr(), strings.Join(predList, ", "))
		c.ctes = append(c.ctes, cte)
	} else {
		step := p.Shape.Steps[0]
		predList := make([]string, len(step.Predicates))
		for i, pr := range step.Predicates {
			predList[i] = c.bindConst(pr)
		}
		sCol, oCol := "s", "o"
		if step.Inverted {
			sCol, oCol = "o", "s"
		}
		base := fmt.Sprintf("SELECT %s AS s, %s AS o FROM objs WHERE graph = %s AND p IN (%s)",
			sCol, oCol, c.pathGraphExpr(), strings.Join(predList, ", "))

		if step.Repeat == normalizer.RepeatZeroMore || step.Repeat == normalizer.RepeatZeroMoreStatic {
			cte := fmt.Sprintf(
				"%s(s, o) AS (SELECT DISTINCT s, s FROM objs WHERE graph = %s UNION %s UNION SELECT %s.s, base.o FROM %s AS %s JOIN (%s) AS base ON %s.o = base.s)",
				name, c.pathGraphExpr(), base, name, name, name, base, name)
			c.ctes = append(c.ctes, cte)
			c.staticUse = c.staticUse || step.Repeat == normalizer.RepeatZeroMoreStatic
		} else if step.Repeat == normalizer.RepeatOneMore {
			cte := fmt.Sprintf(
				"%s(s, o) AS (%s UNION SELECT %s.s, base.o FROM %s AS %s JOIN (%s) AS base ON %s.o = base.s)",
				name, base, name, name, name, base, name)
			c.ctes = append(c.ctes, cte)
		} else if step.Repeat == normalizer.RepeatZeroOne {
			cte := fmt.Sprintf("%s(s, o) AS (SELECT DISTINCT s, s FROM objs WHERE graph = %s UNION %s)",
				name, c.pathGraphExpr(), base)
			c.ctes = append(c.ctes, cte)
		} else {
			cte := fmt.Sprintf("%s(s, o) AS (%s)", name, base)
			c.ctes = append(c.ctes, cte)
		}
	}

	if err := c.bindPathEndpoint(alias, "s", p.Subject, &conds); err != nil {
		return "", nil, err
	}
	if err := c.bindPathEndpoint(alias, "o", p.Object, &conds); err != nil {
		return "", nil, err
	}
	return name, conds, nil
}

func (c *compiler) bindPathEndpoint(alias, col string, term normalizer.Term, conds *[]string) error {
	colExpr := fmt.Sprintf("%s.%s", alias, col)
	if term.Var != "" {
		if existing, ok := c.varCols[term.Var]; ok {
			*conds = append(*conds, fmt.Sprintf("%s = %s", colExpr, existing))
		} else {
			c.varCols[term.Var] = colExpr
			c.varKind[term.Var] = ColKindObject
		}
		return nil
	}
	*conds = append(*conds, fmt.Sprintf("%s = %s", colExpr, c.bindConst(term.Storid)))
	return nil
}

// compileUnion compiles a SPARQL UNION's arms into a single derived table:
// each arm runs against its own copy of the variable bindings visible so
// far (so arms don't leak bindings into one another), is projected onto
// the full set of variables any arm touches (NULL where an arm leaves one
// unbound), and the arms are combined with UNION ALL. Variables the
// derived table shares with the outer scope become join conditions;
// variables only this UNION introduces become new bindings for whatever
// follows in the enclosing block.
func (c *compiler) compileUnion(branch []*normalizer.NormGroup) (string, []string, error) {
	baseVarCols := make(map[string]string, len(c.varCols))
	for k, v := range c.varCols {
		baseVarCols[k] = v
	}

	type armResult struct {
		from  string
		conds []string
		cols  map[string]string
	}
	var arms []armResult
	varSet := map[string]bool{}

	for _, g := range branch {
		saved := c.varCols
		c.varCols = cloneVarCols(baseVarCols)
		from, conds, err := c.compileGroup(g, "")
		armCols := c.varCols
		c.varCols = saved
		if err != nil {
			return "", nil, err
		}
		for k := range armCols {
			varSet[k] = true
		}
		arms = append(arms, armResult{from: from, conds: conds, cols: armCols})
	}

	varNames := make([]string, 0, len(varSet))
	for k := range varSet {
		varNames = append(varNames, k)
	}
	sort.Strings(varNames)

	var selects []string
	for _, a := range arms {
		cols := make([]string, len(varNames))
		for i, v := range varNames {
			col, ok := a.cols[v]
			if !ok {
				col = "NULL"
			}
			cols[i] = fmt.Sprintf("%s AS %s", col, quoteIdent(v))
		}
		sel := "SELECT " + strings.Join(cols, ", ") + " FROM " + a.from
		if len(a.conds) > 0 {
			sel += " WHERE " + strings.Join(a.conds, " AND ")
		}
		selects = append(selects, sel)
	}
	alias := c.nextAlias("u")
	derived := fmt.Sprintf("(%s) %s", strings.Join(selects, " UNION ALL "), alias)

	var conds []string
	for _, v := range varNames {
		colExpr := fmt.Sprintf("%s.%s", alias, quoteIdent(v))
		if existing, ok := baseVarCols[v]; ok {
			conds = append(conds, fmt.Sprintf("%s = %s", colExpr, existing))
		} else {
			c.varCols[v] = colExpr
		}
	}
	return derived, conds, nil
}

func cloneVarCols(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// compileValues lowers an inline VALUES block to an IN-list/row condition
// over the variables it binds; a variable already bound by a triple
// pattern gets an equality-to-literal-set condition, one the planner can
// index the same way it would a bound predicate.
func (c *compiler) compileValues(vc ast.ValuesClause) (string, error) {
	var orClauses []string
	for _, row := range vc.Rows {
		var eqs []string
		for i, v := range vc.Vars {
			if i >= len(row) || row[i] == nil {
				continue
			}
			col, ok := c.varCols[v]
			if !ok {
				continue
			}
			lit, ok := row[i].(ast.LiteralTerm)
			val := interface{}(nil)
			if ok {
				val = lit.Value
			} else if iri, ok := row[i].(ast.IRITerm); ok {
				val = iri.Value
			}
			eqs = append(eqs, fmt.Sprintf("%s = %s", col, c.bindConst(val)))
		}
		if len(eqs) > 0 {
			orClauses = append(orClauses, "("+strings.Join(eqs, " AND ")+")")
		}
	}
	if len(orClauses) == 0 {
		return "1=1", nil
	}
	return "(" + strings.Join(orClauses, " OR ") + ")", nil
}

// compileExpr translates a FILTER/BIND/HAVING expression into a SQL scalar
// expression, routing SPARQL builtins to the registered sparql_* SQL
// functions (internal/store/funcs.go) where SQLite has no native
// equivalent.
func (c *compiler) compileExpr(e ast.Expression) (string, error) {
	switch v := e.(type) {
	case ast.TermExpr:
		return c.compileTermExpr(v.Term)
	case ast.BinaryExpr:
		return c.compileBinaryExpr(v)
	case ast.UnaryExpr:
		inner, err := c.compileExpr(v.Expr)
		if err != nil {
			return "", err
		}
		op := v.Op
		if op == "!" {
			op = "NOT "
		}
		return fmt.Sprintf("(%s%s)", op, inner), nil
	case ast.CallExpr:
		return c.compileCallExpr(v)
	case ast.AggregateExpr:
		return c.compileAggregateExpr(v)
	case ast.ExistsExpr:
		return c.compileExists(v)
	}
	return "NULL", nil
}

// compileExists normalizes and compiles a FILTER (NOT) EXISTS sub-pattern
// as a correlated subquery: its triples reuse the enclosing scope's
// varCols bindings, so any shared variable becomes an equality condition
// inside the subquery rather than a fresh unbound column.
func (c *compiler) compileExists(v ast.ExistsExpr) (string, error) {
	n := &normalizer.Normalizer{Abbrev: c.abbrev}
	ng, err := n.NormalizeGroup(v.Pattern)
	if err != nil {
		return "", err
	}
	from, conds, err := c.compileGroup(ng, "")
	if err != nil {
		return "", err
	}
	sub := "SELECT 1 FROM " + from
	if len(conds) > 0 {
		sub += " WHERE " + strings.Join(conds, " AND ")
	}
	kw := "EXISTS"
	if v.Negated {
		kw = "NOT EXISTS"
	}
	return fmt.Sprintf("%s (%s)", kw, sub), nil
}

// compileTermExpr compiles a leaf term reference inside an expression.
// Expressions keep their terms as raw ast.Term (the normalizer only
// rewrites triple/path patterns), so a variable here is resolved against
// the columns already bound by the enclosing pattern, and an IRI is
// abbreviated on demand via the same binder the normalizer used.
func (c *compiler) compileTermExpr(t ast.Term) (string, error) {
	switch v := t.(type) {
	case ast.VarTerm:
		if col, ok := c.varCols[v.Name]; ok {
			return col, nil
		}
		return "NULL", nil
	case ast.LiteralTerm:
		switch v.Datatype {
		case "http://www.w3.org/2001/XMLSchema#integer":
			if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
				return c.bindConst(n), nil
			}
		case "http://www.w3.org/2001/XMLSchema#decimal", "http://www.w3.org/2001/XMLSchema#double", "http://www.w3.org/2001/XMLSchema#float":
			if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
				return c.bindConst(f), nil
			}
		}
		return c.bindConst(v.Value), nil
	case ast.IRITerm:
		id, err := c.abbrev.AbbreviateReadOnly(v.Value)
		if err != nil {
			return "", err
		}
		return c.bindConst(id), nil
	case ast.ParamTerm:
		return c.bindParam(v.Index), nil
	case ast.BlankTerm:
		if col, ok := c.varCols["_bnode_"+v.Label]; ok {
			return col, nil
		}
		return "NULL", nil
	}
	return "NULL", nil
}

func (c *compiler) compileBinaryExpr(v ast.BinaryExpr) (string, error) {
	left, err := c.compileExpr(v.Left)
	if err != nil {
		return "", err
	}
	right, err := c.compileExpr(v.Right)
	if err != nil {
		return "", err
	}
	op := v.Op
	switch op {
	case "=":
		op = "="
	case "!=":
		op = "<>"
	case "&&":
		op = "AND"
	case "||":
		op = "OR"
	case "in":
		return fmt.Sprintf("(%s IN (%s))", left, right), nil
	case "not in":
		return fmt.Sprintf("(%s NOT IN (%s))", left, right), nil
	}
	return fmt.Sprintf("(%s %s %s)", left, op, right), nil
}

var builtinToSQLFunc = map[string]string{
	"STRLEN":         "LENGTH",
	"UCASE":          "sparql_ucase",
	"LCASE":          "sparql_lcase",
	"CONTAINS":       "sparql_contains",
	"STRSTARTS":      "sparql_strstarts",
	"STRENDS":        "sparql_strends",
	"STRBEFORE":      "sparql_strbefore",
	"STRAFTER":       "sparql_strafter",
	"ENCODE_FOR_URI": "sparql_encode_for_uri",
	"MD5":            "sparql_md5",
	"SHA1":           "sparql_sha1",
	"SHA256":         "sparql_sha256",
	"SHA384":         "sparql_sha384",
	"SHA512":         "sparql_sha512",
	"REGEX":          "sparql_regex",
	"UUID":           "sparql_uuid",
	"STRUUID":        "sparql_struuid",
	"NOW":            "sparql_now",
	"ABS":            "ABS",
	"CEIL":           "CEIL",
	"FLOOR":          "FLOOR",
	"ROUND":          "ROUND",
	"CONCAT":         "sparql_concat",
	"COALESCE":       "COALESCE",
	"IF":             "sparql_if",
	"NEWINSTANCEIRI": "sparql_newinstanceiri",
	"YEAR":           "sparql_year",
	"MONTH":          "sparql_month",
	"DAY":            "sparql_day",
	"HOURS":          "sparql_hours",
	"MINUTES":        "sparql_minutes",
	"SECONDS":        "sparql_seconds",
	"TZ":             "sparql_tz",
	"TIMEZONE":       "sparql_timezone",
	"DATETIME_ADD":   "sparql_datetime_add",
	"DATETIME_SUB":   "sparql_datetime_sub",
	"DATETIME_DIFF":  "sparql_datetime_diff",
}

// nativeSQLiteFuncs names the handful of builtins whose SPARQL name, just
// lowercased, already names a native SQLite scalar function (no sparql_*
// shim needed): SUBSTR, REPLACE, and the LIKE(pattern, string) function
// form. Anything else with no builtinToSQLFunc entry is not a function
// SQLite (or this translator) knows how to run, and must fail to compile
// rather than emit SQL that only fails at execution time.
var nativeSQLiteFuncs = map[string]bool{
	"SUBSTR":  true,
	"REPLACE": true,
	"LIKE":    true,
}

func (c *compiler) compileCallExpr(v ast.CallExpr) (string, error) {
	switch v.Name {
	case "BOUND":
		arg, err := c.compileExpr(v.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IS NOT NULL)", arg), nil
	case "LANG":
		name, ok := asVarName(v.Args[0])
		if !ok {
			return "''", nil
		}
		dtypeExpr, ok := c.varDtype[name]
		if !ok {
			return "''", nil
		}
		return fmt.Sprintf("COALESCE((SELECT tag FROM languages WHERE lang_id = -(%s)), '')", dtypeExpr), nil
	case "STR":
		arg, err := c.compileExpr(v.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CAST(%s AS TEXT)", arg), nil
	case "DATATYPE":
		name, ok := asVarName(v.Args[0])
		if !ok {
			return "'http://www.w3.org/2001/XMLSchema#string'", nil
		}
		dtypeExpr, ok := c.varDtype[name]
		if !ok {
			return "'http://www.w3.org/2001/XMLSchema#string'", nil
		}
		return fmt.Sprintf(
			"(CASE WHEN (%s) < 0 THEN 'http://www.w3.org/1999/02/22-rdf-syntax-ns#langString' "+
				"WHEN (%s) = 0 THEN 'http://www.w3.org/2001/XMLSchema#string' "+
				"ELSE (SELECT iri FROM resources WHERE storid = (%s)) END)",
			dtypeExpr, dtypeExpr, dtypeExpr), nil
	case "ISIRI", "ISURI":
		return c.compileIsIRI(v.Args[0])
	case "ISBLANK":
		return c.compileIsBlank(v.Args[0])
	case "ISLITERAL":
		return c.compileIsLiteral(v.Args[0])
	case "ISNUMERIC":
		return c.compileIsNumeric(v.Args[0])
	case "SAMETERM":
		left, err := c.compileExpr(v.Args[0])
		if err != nil {
			return "", err
		}
		right, err := c.compileExpr(v.Args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s = %s)", left, right), nil
	case "IRI", "URI":
		arg, err := c.compileExpr(v.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CAST(%s AS TEXT)", arg), nil
	case "BNODE":
		return "sparql_bnode()", nil
	case "STRDT", "STRLANG":
		// The tagged datatype/language carried alongside the value (STRDT's
		// second arg, STRLANG's tag) isn't threaded through as a companion
		// dtype column the way a stored literal's is; like any other
		// BIND-derived projection, the result decodes as a plain literal
		// through the generic scalar path, keeping only the lexical value.
		return c.compileExpr(v.Args[0])
	case "__LIST__":
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			s, err := c.compileExpr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return strings.Join(args, ", "), nil
	}
	fn, ok := builtinToSQLFunc[v.Name]
	if !ok {
		if !nativeSQLiteFuncs[v.Name] {
			return "", &qerr.MalformedQueryError{Msg: fmt.Sprintf("unknown SPARQL builtin %s()", v.Name)}
		}
		fn = strings.ToLower(v.Name)
	}
	args := make([]string, len(v.Args))
	for i, a := range v.Args {
		s, err := c.compileExpr(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	return fmt.Sprintf("%s(%s)", fn, strings.Join(args, ", ")), nil
}

// compileIsIRI, compileIsBlank, and compileIsLiteral classify a bound
// variable's term kind from the same ColumnKind/discriminator bookkeeping
// the executor uses to decode it: an object column's sign distinguishes a
// resource (positive storid) from a blank node (negative), an ambiguous
// column's is_obj discriminator settles which arm of the union produced the
// row, and anything else with no tracked kind is neither (argument wasn't a
// bound variable, or came from an expression with no fixed kind).
func (c *compiler) compileIsIRI(e ast.Expression) (string, error) {
	name, ok := asVarName(e)
	if !ok {
		return "0", nil
	}
	switch c.varKind[name] {
	case ColKindObject:
		return fmt.Sprintf("(%s > 0)", c.varCols[name]), nil
	case ColKindAmbiguous:
		return fmt.Sprintf("(%s = 1 AND %s > 0)", c.varDiscrim[name], c.varCols[name]), nil
	case ColKindIRIText:
		return "1", nil
	default:
		return "0", nil
	}
}

func (c *compiler) compileIsBlank(e ast.Expression) (string, error) {
	name, ok := asVarName(e)
	if !ok {
		return "0", nil
	}
	switch c.varKind[name] {
	case ColKindObject:
		return fmt.Sprintf("(%s < 0)", c.varCols[name]), nil
	case ColKindAmbiguous:
		return fmt.Sprintf("(%s = 1 AND %s < 0)", c.varDiscrim[name], c.varCols[name]), nil
	default:
		return "0", nil
	}
}

func (c *compiler) compileIsLiteral(e ast.Expression) (string, error) {
	name, ok := asVarName(e)
	if !ok {
		return "0", nil
	}
	switch c.varKind[name] {
	case ColKindLiteral:
		return "1", nil
	case ColKindAmbiguous:
		return fmt.Sprintf("(%s = 0)", c.varDiscrim[name]), nil
	default:
		return "0", nil
	}
}

// compileIsNumeric binds the storids of the XSD numeric datatypes once at
// compile time (they're part of the universal vocabulary, so
// AbbreviateReadOnly always resolves them) and tests the variable's dtype
// column for membership.
func (c *compiler) compileIsNumeric(e ast.Expression) (string, error) {
	name, ok := asVarName(e)
	if !ok {
		return "0", nil
	}
	dtypeExpr, ok := c.varDtype[name]
	if !ok {
		return "0", nil
	}
	numericXSD := []string{
		"http://www.w3.org/2001/XMLSchema#integer",
		"http://www.w3.org/2001/XMLSchema#double",
		"http://www.w3.org/2001/XMLSchema#decimal",
		"http://www.w3.org/2001/XMLSchema#float",
	}
	var ids []string
	for _, iri := range numericXSD {
		id, err := c.abbrev.AbbreviateReadOnly(iri)
		if err != nil {
			continue
		}
		ids = append(ids, c.bindConst(id))
	}
	if len(ids) == 0 {
		return "0", nil
	}
	return fmt.Sprintf("(%s IN (%s))", dtypeExpr, strings.Join(ids, ", ")), nil
}

func (c *compiler) compileAggregateExpr(v ast.AggregateExpr) (string, error) {
	if v.Star {
		return "COUNT(*)", nil
	}
	arg, err := c.compileExpr(v.Arg)
	if err != nil {
		return "", err
	}
	distinct := ""
	if v.Distinct {
		distinct = "DISTINCT "
	}
	switch v.Name {
	case "COUNT":
		return fmt.Sprintf("COUNT(%s%s)", distinct, arg), nil
	case "SUM":
		return fmt.Sprintf("SUM(%s%s)", distinct, arg), nil
	case "AVG":
		return fmt.Sprintf("AVG(%s%s)", distinct, arg), nil
	case "MIN":
		return fmt.Sprintf("MIN(%s)", arg), nil
	case "MAX":
		return fmt.Sprintf("MAX(%s)", arg), nil
	case "SAMPLE":
		return fmt.Sprintf("MIN(%s)", arg), nil
	case "GROUP_CONCAT":
		sep := strconv.Quote(v.Separator)
		return fmt.Sprintf("GROUP_CONCAT(%s%s, %s)", distinct, arg, sep), nil
	}
	return arg, nil
}
