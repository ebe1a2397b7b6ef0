// Package parser implements a hand-written recursive-descent parser for
// the supported SPARQL 1.1 subset, producing the internal/sparql/ast
// tree the normalizer and translator consume.
package parser

import (
	"strconv"
	"strings"

	"github.com/jblamy/quadstore/internal/qerr"
	"github.com/jblamy/quadstore/internal/sparql/ast"
)

// Parser scans input byte-by-byte, tracking the current position for
// error reporting and PREFIX-aware IRI resolution.
type Parser struct {
	input     string
	pos       int
	prefixes  map[string]string
	baseURI   string
	nextParam int // next unnumbered "??" placeholder index
}

// New creates a Parser over a SPARQL query or update string.
func New(input string) *Parser {
	return &Parser{input: input, prefixes: make(map[string]string)}
}

// Parse parses a single SPARQL query or update request.
func Parse(input string) (*ast.Query, error) {
	return New(input).Parse()
}

// Parse consumes prologue declarations, then dispatches on the request's
// leading keyword.
func (p *Parser) Parse() (*ast.Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}
	p.skipWhitespace()

	switch {
	case p.matchKeywordCI("SELECT"):
		sel, err := p.parseSelectBody()
		if err != nil {
			return nil, err
		}
		return &ast.Query{Type: ast.QueryTypeSelect, Select: sel}, nil
	case p.matchKeywordCI("ASK"):
		where, err := p.parseWhereClause()
		if err != nil {
			return nil, err
		}
		return &ast.Query{Type: ast.QueryTypeAsk, Ask: &ast.AskQuery{Where: where}}, nil
	case p.matchKeywordCI("INSERT"):
		return p.parseUpdate(ast.UpdateInsert)
	case p.matchKeywordCI("DELETE"):
		return p.parseUpdate(ast.UpdateDelete)
	default:
		return nil, p.errHere("expected SELECT, ASK, INSERT, or DELETE")
	}
}

// ---- Prologue --------------------------------------------------------

func (p *Parser) parsePrologue() error {
	for {
		p.skipWhitespace()
		if p.matchKeywordCI("PREFIX") {
			p.skipWhitespace()
			name := p.readWhile(func(b byte) bool { return b != ':' && !isSpace(b) })
			if !p.consumeByte(':') {
				return p.errHere("expected ':' after prefix name")
			}
			p.skipWhitespace()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.prefixes[name] = iri
			continue
		}
		if p.matchKeywordCI("BASE") {
			p.skipWhitespace()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.baseURI = iri
			continue
		}
		return nil
	}
}

// ---- SELECT ------------------------------------------------------------

func (p *Parser) parseSelectBody() (*ast.SelectQuery, error) {
	sel := &ast.SelectQuery{}
	p.skipWhitespace()
	if p.matchKeywordCI("DISTINCT") {
		sel.Distinct = true
	} else if p.matchKeywordCI("REDUCED") {
		sel.Reduced = true
	}

	p.skipWhitespace()
	if p.consumeByte('*') {
		sel.Star = true
	} else {
		for {
			p.skipWhitespace()
			if p.consumeByte('(') {
				expr, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				p.skipWhitespace()
				if !p.matchKeywordCI("AS") {
					return nil, p.errHere("expected AS in select expression")
				}
				p.skipWhitespace()
				v, err := p.parseVar()
				if err != nil {
					return nil, err
				}
				if !p.consumeByte(')') {
					return nil, p.errHere("expected ')' after select expression")
				}
				sel.Variables = append(sel.Variables, ast.SelectVar{Var: v, Expr: expr})
				continue
			}
			if p.peekByte() != '?' && p.peekByte() != '$' {
				break
			}
			v, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			sel.Variables = append(sel.Variables, ast.SelectVar{Var: v})
		}
	}

	where, err := p.parseWhereClause()
	if err != nil {
		return nil, err
	}
	sel.Where = where

	p.skipWhitespace()
	if p.matchKeywordCI("GROUP") {
		p.skipWhitespace()
		if !p.matchKeywordCI("BY") {
			return nil, p.errHere("expected BY after GROUP")
		}
		for {
			p.skipWhitespace()
			if !p.moreGroupKeys() {
				break
			}
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			sel.GroupBy = append(sel.GroupBy, e)
		}
	}

	p.skipWhitespace()
	if p.matchKeywordCI("HAVING") {
		p.skipWhitespace()
		if !p.consumeByte('(') {
			return nil, p.errHere("expected '(' after HAVING")
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !p.consumeByte(')') {
			return nil, p.errHere("expected ')' closing HAVING")
		}
		sel.Having = append(sel.Having, e)
	}

	p.skipWhitespace()
	if p.matchKeywordCI("ORDER") {
		p.skipWhitespace()
		if !p.matchKeywordCI("BY") {
			return nil, p.errHere("expected BY after ORDER")
		}
		for {
			p.skipWhitespace()
			desc := false
			if p.matchKeywordCI("DESC") {
				desc = true
			} else {
				p.matchKeywordCI("ASC")
			}
			p.skipWhitespace()
			if !p.moreGroupKeys() {
				break
			}
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			sel.OrderBy = append(sel.OrderBy, ast.OrderCondition{Expr: e, Desc: desc})
		}
	}

	p.skipWhitespace()
	if p.matchKeywordCI("LIMIT") {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		sel.Limit = n
	}
	p.skipWhitespace()
	if p.matchKeywordCI("OFFSET") {
		n, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		sel.Offset = n
	}
	return sel, nil
}

func (p *Parser) moreGroupKeys() bool {
	b := p.peekByte()
	if isAlpha(b) {
		save := p.pos
		for _, kw := range []string{"HAVING", "ORDER", "LIMIT", "OFFSET"} {
			if p.matchKeywordCI(kw) {
				p.pos = save
				return false
			}
		}
	}
	return b == '?' || b == '$' || b == '(' || isAlpha(b)
}

func (p *Parser) parseWhereClause() (*ast.GroupGraphPattern, error) {
	p.skipWhitespace()
	p.matchKeywordCI("WHERE")
	p.skipWhitespace()
	return p.parseGroupGraphPattern()
}

// ---- UPDATE --------------------------------------------------------------

func (p *Parser) parseUpdate(op ast.UpdateOp) (*ast.Query, error) {
	p.skipWhitespace()
	isData := p.matchKeywordCI("DATA")
	if isData {
		if op == ast.UpdateInsert {
			op = ast.UpdateInsertData
		} else {
			op = ast.UpdateDeleteData
		}
	}
	p.skipWhitespace()

	var graph string
	if p.matchKeywordCI("GRAPH") {
		p.skipWhitespace()
		g, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		graph = g
		p.skipWhitespace()
	}
	if !p.consumeByte('{') {
		return nil, p.errHere("expected '{' opening update template")
	}
	template, err := p.parseTriplesBlock()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if !p.consumeByte('}') {
		return nil, p.errHere("expected '}' closing update template")
	}

	uq := &ast.UpdateQuery{Op: op, Graph: graph, Template: template}
	if !isData {
		where, err := p.parseWhereClause()
		if err != nil {
			return nil, err
		}
		uq.Where = where
	}
	return &ast.Query{Type: ast.QueryTypeUpdate, Update: uq}, nil
}

// ---- Group graph patterns -----------------------------------------------

func (p *Parser) parseGroupGraphPattern() (*ast.GroupGraphPattern, error) {
	if !p.consumeByte('{') {
		return nil, p.errHere("expected '{'")
	}
	ggp := &ast.GroupGraphPattern{}
	var branch []*ast.GroupGraphPattern

	for {
		p.skipWhitespace()
		if p.consumeByte('}') {
			break
		}
		switch {
		case p.matchKeywordCI("OPTIONAL"):
			sub, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			ggp.Optionals = append(ggp.Optionals, sub)
		case p.matchKeywordCI("GRAPH"):
			p.skipWhitespace()
			term, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			sub, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			ggp.Graphs = append(ggp.Graphs, ast.GraphPattern{Graph: term, Pattern: sub})
		case p.matchKeywordCI("FILTER"):
			e, err := p.parseFilterExpr()
			if err != nil {
				return nil, err
			}
			ggp.Filters = append(ggp.Filters, e)
		case p.matchKeywordCI("BIND"):
			p.skipWhitespace()
			if !p.consumeByte('(') {
				return nil, p.errHere("expected '(' after BIND")
			}
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			p.skipWhitespace()
			if !p.matchKeywordCI("AS") {
				return nil, p.errHere("expected AS in BIND")
			}
			p.skipWhitespace()
			v, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			if !p.consumeByte(')') {
				return nil, p.errHere("expected ')' closing BIND")
			}
			ggp.Binds = append(ggp.Binds, ast.Bind{Expr: e, Var: v})
		case p.matchKeywordCI("VALUES"):
			vc, err := p.parseValuesClause()
			if err != nil {
				return nil, err
			}
			ggp.Values = append(ggp.Values, *vc)
		case p.peekByte() == '{':
			isSub, sub, subSelect, err := p.parseNestedBlock()
			if err != nil {
				return nil, err
			}
			if isSub {
				ggp.SubSelects = append(ggp.SubSelects, subSelect)
				break
			}
			branch = append(branch, sub)
			p.skipWhitespace()
			if p.matchKeywordCI("UNION") {
				continue
			}
			ggp.Alternatives = append(ggp.Alternatives, branch)
			branch = nil
		default:
			triples, paths, err := p.parseTriplesAndPaths()
			if err != nil {
				return nil, err
			}
			ggp.Triples = append(ggp.Triples, triples...)
			ggp.Paths = append(ggp.Paths, paths...)
		}
		p.skipWhitespace()
		p.consumeByte('.')
	}
	if len(branch) > 0 {
		ggp.Alternatives = append(ggp.Alternatives, branch)
	}
	return ggp, nil
}

// parseNestedBlock dispatches a nested "{ ... }" block to either a plain
// GroupGraphPattern (used for OPTIONAL-free UNION branches) or a subquery,
// based on whether SELECT appears directly inside it.
func (p *Parser) parseNestedBlock() (isSubSelect bool, pattern *ast.GroupGraphPattern, sub *ast.SelectQuery, err error) {
	save := p.pos
	if !p.consumeByte('{') {
		return false, nil, nil, p.errHere("expected '{'")
	}
	p.skipWhitespace()
	if p.matchKeywordCI("SELECT") {
		sel, err := p.parseSelectBody()
		if err != nil {
			return false, nil, nil, err
		}
		p.skipWhitespace()
		if !p.consumeByte('}') {
			return false, nil, nil, p.errHere("expected '}' closing subquery")
		}
		return true, nil, sel, nil
	}
	p.pos = save
	pat, err := p.parseGroupGraphPattern()
	if err != nil {
		return false, nil, nil, err
	}
	return false, pat, nil, nil
}

func (p *Parser) parseFilterExpr() (ast.Expression, error) {
	p.skipWhitespace()
	if p.matchKeywordCI("NOT") {
		p.skipWhitespace()
		if !p.matchKeywordCI("EXISTS") {
			return nil, p.errHere("expected EXISTS after NOT")
		}
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return ast.ExistsExpr{Negated: true, Pattern: pat}, nil
	}
	if p.matchKeywordCI("EXISTS") {
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return ast.ExistsExpr{Negated: false, Pattern: pat}, nil
	}
	if p.consumeByte('(') {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if !p.consumeByte(')') {
			return nil, p.errHere("expected ')' closing FILTER")
		}
		return e, nil
	}
	return p.parseExpression()
}

func (p *Parser) parseValuesClause() (*ast.ValuesClause, error) {
	p.skipWhitespace()
	vc := &ast.ValuesClause{}
	if p.consumeByte('(') {
		for {
			p.skipWhitespace()
			if p.consumeByte(')') {
				break
			}
			v, err := p.parseVar()
			if err != nil {
				return nil, err
			}
			vc.Vars = append(vc.Vars, v)
		}
	} else {
		v, err := p.parseVar()
		if err != nil {
			return nil, err
		}
		vc.Vars = []string{v}
	}
	p.skipWhitespace()
	if !p.consumeByte('{') {
		return nil, p.errHere("expected '{' opening VALUES data block")
	}
	for {
		p.skipWhitespace()
		if p.consumeByte('}') {
			break
		}
		row := []ast.Term{}
		if p.consumeByte('(') {
			for {
				p.skipWhitespace()
				if p.consumeByte(')') {
					break
				}
				t, err := p.parseValuesTerm()
				if err != nil {
					return nil, err
				}
				row = append(row, t)
			}
		} else {
			t, err := p.parseValuesTerm()
			if err != nil {
				return nil, err
			}
			row = append(row, t)
		}
		vc.Rows = append(vc.Rows, row)
	}
	return vc, nil
}

func (p *Parser) parseValuesTerm() (ast.Term, error) {
	p.skipWhitespace()
	if p.matchKeywordCI("UNDEF") {
		return nil, nil
	}
	return p.parseTerm()
}

// ---- Triple & path patterns ----------------------------------------------

func (p *Parser) parseTriplesBlock() ([]ast.TriplePattern, error) {
	triples, _, err := p.parseTriplesAndPaths()
	return triples, err
}

// parseTriplesAndPaths parses one or more "subj pred obj [; pred obj]* [, obj]* ." groups.
// Predicates that are simple IRIs/variables become TriplePattern; predicates
// built from path operators (/, |, ^, *, +, ?, !) become PathPattern.
func (p *Parser) parseTriplesAndPaths() ([]ast.TriplePattern, []ast.PathPattern, error) {
	var triples []ast.TriplePattern
	var paths []ast.PathPattern

	for {
		p.skipWhitespace()
		subj, err := p.parseTerm()
		if err != nil {
			return nil, nil, err
		}
		for {
			p.skipWhitespace()
			predTerm, path, isPath, err := p.parsePredicate()
			if err != nil {
				return nil, nil, err
			}
			for {
				p.skipWhitespace()
				obj, err := p.parseTerm()
				if err != nil {
					return nil, nil, err
				}
				if isPath {
					paths = append(paths, ast.PathPattern{Subject: subj, Path: path, Object: obj})
				} else {
					triples = append(triples, ast.TriplePattern{Subject: subj, Predicate: predTerm, Object: obj})
				}
				p.skipWhitespace()
				if p.consumeByte(',') {
					continue
				}
				break
			}
			p.skipWhitespace()
			if p.consumeByte(';') {
				continue
			}
			break
		}
		p.skipWhitespace()
		if p.peekByte() == '.' {
			p.advance()
			p.skipWhitespace()
			if p.peekByte() == '}' || p.atEnd() {
				break
			}
			continue
		}
		break
	}
	return triples, paths, nil
}

// parsePredicate parses a predicate position: "a" (rdf:type shorthand), a
// plain IRI/variable, or a property path expression.
func (p *Parser) parsePredicate() (ast.Term, *ast.PropertyPath, bool, error) {
	p.skipWhitespace()
	if p.peekByte() == 'a' && p.isWordBoundaryAt(p.pos+1) {
		p.pos++
		return ast.IRITerm{Value: "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"}, nil, false, nil
	}
	if b := p.peekByte(); b == '?' || b == '$' {
		term, err := p.parseTerm()
		if err != nil {
			return nil, nil, false, err
		}
		return term, nil, false, nil
	}
	path, err := p.parsePathAlternative()
	if err != nil {
		return nil, nil, false, err
	}
	if path.Op == PathSimpleIRITerm {
		return ast.IRITerm{Value: path.IRI}, nil, false, nil
	}
	return nil, path, true, nil
}

// PathSimpleIRITerm aliases ast.PathIRI for readability at the call site above.
const PathSimpleIRITerm = ast.PathIRI

func (p *Parser) parsePathAlternative() (*ast.PropertyPath, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peekByte() == '|' {
			p.advance()
			right, err := p.parsePathSequence()
			if err != nil {
				return nil, err
			}
			left = &ast.PropertyPath{Op: ast.PathAlternative, Sub: []*ast.PropertyPath{left, right}}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parsePathSequence() (*ast.PropertyPath, error) {
	left, err := p.parsePathPostfix()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peekByte() == '/' {
			p.advance()
			right, err := p.parsePathPostfix()
			if err != nil {
				return nil, err
			}
			left = &ast.PropertyPath{Op: ast.PathSequence, Sub: []*ast.PropertyPath{left, right}}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parsePathPostfix() (*ast.PropertyPath, error) {
	elt, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	switch p.peekByte() {
	case '*':
		p.advance()
		if p.matchKeywordCI("STATIC") {
			return &ast.PropertyPath{Op: ast.PathZeroOrMoreStatic, Sub: []*ast.PropertyPath{elt}}, nil
		}
		return &ast.PropertyPath{Op: ast.PathZeroOrMore, Sub: []*ast.PropertyPath{elt}}, nil
	case '+':
		p.advance()
		return &ast.PropertyPath{Op: ast.PathOneOrMore, Sub: []*ast.PropertyPath{elt}}, nil
	case '?':
		p.advance()
		return &ast.PropertyPath{Op: ast.PathZeroOrOne, Sub: []*ast.PropertyPath{elt}}, nil
	}
	return elt, nil
}

func (p *Parser) parsePathPrimary() (*ast.PropertyPath, error) {
	p.skipWhitespace()
	switch p.peekByte() {
	case '^':
		p.advance()
		sub, err := p.parsePathPrimary()
		if err != nil {
			return nil, err
		}
		return &ast.PropertyPath{Op: ast.PathInverse, Sub: []*ast.PropertyPath{sub}}, nil
	case '!':
		p.advance()
		sub, err := p.parsePathAlternative()
		if err != nil {
			return nil, err
		}
		return &ast.PropertyPath{Op: ast.PathNegated, Sub: []*ast.PropertyPath{sub}}, nil
	case '(':
		p.advance()
		inner, err := p.parsePathAlternative()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if !p.consumeByte(')') {
			return nil, p.errHere("expected ')' closing property path group")
		}
		return inner, nil
	}
	iri, err := p.parseIRIOrPrefixed()
	if err != nil {
		return nil, err
	}
	return &ast.PropertyPath{Op: ast.PathIRI, IRI: iri}, nil
}

// ---- Terms -----------------------------------------------------------

func (p *Parser) parseTerm() (ast.Term, error) {
	p.skipWhitespace()
	b := p.peekByte()
	switch {
	case b == '?' && p.peekAt(1) == '?':
		p.pos += 2
		return p.parseParamTerm()
	case b == '?' || b == '$':
		name, err := p.parseVar()
		if err != nil {
			return nil, err
		}
		return ast.VarTerm{Name: name}, nil
	case b == '_':
		return p.parseBlankNode()
	case b == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		return ast.IRITerm{Value: iri}, nil
	case b == '"' || b == '\'':
		return p.parseLiteralTerm()
	case isDigit(b) || b == '+' || b == '-':
		return p.parseNumericTerm()
	case b == '[':
		return nil, p.errHere("blank node property lists are not supported")
	default:
		if p.matchKeywordCI("true") {
			return ast.LiteralTerm{Value: "true", Datatype: xsdBoolean}, nil
		}
		if p.matchKeywordCI("false") {
			return ast.LiteralTerm{Value: "false", Datatype: xsdBoolean}, nil
		}
		iri, err := p.parseIRIOrPrefixed()
		if err != nil {
			return nil, err
		}
		return ast.IRITerm{Value: iri}, nil
	}
}

const xsdBoolean = "http://www.w3.org/2001/XMLSchema#boolean"

func (p *Parser) parseParamTerm() (ast.Term, error) {
	digits := p.readWhile(isDigit)
	if digits == "" {
		p.nextParam++
		return ast.ParamTerm{Index: p.nextParam}, nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil, p.errHere("invalid positional parameter index")
	}
	return ast.ParamTerm{Index: n}, nil
}

func (p *Parser) parseVarOrIRI() (ast.Term, error) {
	p.skipWhitespace()
	if p.peekByte() == '?' || p.peekByte() == '$' {
		name, err := p.parseVar()
		if err != nil {
			return nil, err
		}
		return ast.VarTerm{Name: name}, nil
	}
	iri, err := p.parseIRIOrPrefixed()
	if err != nil {
		return nil, err
	}
	return ast.IRITerm{Value: iri}, nil
}

func (p *Parser) parseVar() (string, error) {
	if p.peekByte() != '?' && p.peekByte() != '$' {
		return "", p.errHere("expected variable")
	}
	p.advance()
	name := p.readWhile(isVarChar)
	if name == "" {
		return "", p.errHere("empty variable name")
	}
	return name, nil
}

func (p *Parser) parseBlankNode() (ast.Term, error) {
	if !p.consumeByte('_') || !p.consumeByte(':') {
		return nil, p.errHere("expected blank node label")
	}
	label := p.readWhile(isVarChar)
	return ast.BlankTerm{Label: label}, nil
}

func (p *Parser) parseLiteralTerm() (ast.Term, error) {
	quote := p.peekByte()
	p.advance()
	var sb strings.Builder
	for {
		if p.atEnd() {
			return nil, p.errHere("unterminated string literal")
		}
		c := p.peekByte()
		if c == '\\' {
			p.advance()
			sb.WriteByte(p.unescapeChar())
			continue
		}
		if c == quote {
			p.advance()
			break
		}
		sb.WriteByte(c)
		p.advance()
	}
	lit := ast.LiteralTerm{Value: sb.String()}
	if p.peekByte() == '@' {
		p.advance()
		lit.Language = p.readWhile(func(b byte) bool { return isAlpha(b) || isDigit(b) || b == '-' })
	} else if p.peekByte() == '^' && p.peekAt(1) == '^' {
		p.pos += 2
		dt, err := p.parseIRIOrPrefixed()
		if err != nil {
			return nil, err
		}
		lit.Datatype = dt
	}
	return lit, nil
}

func (p *Parser) unescapeChar() byte {
	c := p.peekByte()
	p.advance()
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func (p *Parser) parseNumericTerm() (ast.Term, error) {
	start := p.pos
	if p.peekByte() == '+' || p.peekByte() == '-' {
		p.advance()
	}
	p.readWhile(isDigit)
	dtype := "http://www.w3.org/2001/XMLSchema#integer"
	if p.peekByte() == '.' {
		dtype = "http://www.w3.org/2001/XMLSchema#decimal"
		p.advance()
		p.readWhile(isDigit)
	}
	if p.peekByte() == 'e' || p.peekByte() == 'E' {
		dtype = "http://www.w3.org/2001/XMLSchema#double"
		p.advance()
		if p.peekByte() == '+' || p.peekByte() == '-' {
			p.advance()
		}
		p.readWhile(isDigit)
	}
	lexeme := p.input[start:p.pos]
	if lexeme == "" || lexeme == "+" || lexeme == "-" {
		return nil, p.errHere("expected numeric literal")
	}
	return ast.LiteralTerm{Value: lexeme, Datatype: dtype}, nil
}

func (p *Parser) parseIRIRef() (string, error) {
	if !p.consumeByte('<') {
		return "", p.errHere("expected '<' opening IRI")
	}
	iri := p.readWhile(func(b byte) bool { return b != '>' })
	if !p.consumeByte('>') {
		return "", p.errHere("expected '>' closing IRI")
	}
	return p.resolveIRI(iri), nil
}

func (p *Parser) parseIRIOrPrefixed() (string, error) {
	p.skipWhitespace()
	if p.peekByte() == '<' {
		return p.parseIRIRef()
	}
	name := p.readWhile(func(b byte) bool { return b != ':' && !isSpace(b) && b != '.' && b != ';' && b != ',' && b != '}' && b != ')' })
	if !p.consumeByte(':') {
		return "", p.errHere("expected prefixed name")
	}
	local := p.readWhile(isVarChar)
	ns, ok := p.prefixes[name]
	if !ok {
		return "", &qerr.UnknownPrefixError{Prefix: name}
	}
	return ns + local, nil
}

func (p *Parser) resolveIRI(iri string) string {
	if strings.Contains(iri, ":") || p.baseURI == "" {
		return iri
	}
	return p.baseURI + iri
}

// ---- Expressions ---------------------------------------------------------

func (p *Parser) parseExpression() (ast.Expression, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.consumeByte2('|', '|') {
			right, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			left = ast.BinaryExpr{Op: "||", Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.consumeByte2('&', '&') {
			right, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			left = ast.BinaryExpr{Op: "&&", Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	for _, op := range []string{"<=", ">=", "!=", "=", "<", ">"} {
		if p.consumeLiteral(op) {
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return ast.BinaryExpr{Op: op, Left: left, Right: right}, nil
		}
	}
	p.skipWhitespace()
	if p.matchKeywordCI("NOT") {
		p.skipWhitespace()
		if !p.matchKeywordCI("IN") {
			return nil, p.errHere("expected IN after NOT")
		}
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return ast.BinaryExpr{Op: "not in", Left: left, Right: list}, nil
	}
	if p.matchKeywordCI("IN") {
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return ast.BinaryExpr{Op: "in", Left: left, Right: list}, nil
	}
	return left, nil
}

func (p *Parser) parseExpressionList() (ast.Expression, error) {
	p.skipWhitespace()
	if !p.consumeByte('(') {
		return nil, p.errHere("expected '(' opening expression list")
	}
	call := ast.CallExpr{Name: "__list__"}
	for {
		p.skipWhitespace()
		if p.consumeByte(')') {
			break
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, e)
		p.skipWhitespace()
		p.consumeByte(',')
	}
	return call, nil
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		b := p.peekByte()
		if b == '+' || b == '-' {
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = ast.BinaryExpr{Op: string(b), Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		b := p.peekByte()
		if b == '*' || b == '/' {
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = ast.BinaryExpr{Op: string(b), Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	p.skipWhitespace()
	switch p.peekByte() {
	case '!':
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: "!", Expr: e}, nil
	case '-':
		p.advance()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.UnaryExpr{Op: "-", Expr: e}, nil
	case '+':
		p.advance()
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	p.skipWhitespace()
	if p.consumeByte('(') {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if !p.consumeByte(')') {
			return nil, p.errHere("expected ')' closing expression")
		}
		return e, nil
	}
	if agg, ok, err := p.tryParseAggregate(); ok || err != nil {
		return agg, err
	}
	if call, ok, err := p.tryParseCall(); ok || err != nil {
		return call, err
	}
	if p.matchKeywordCI("EXISTS") {
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return ast.ExistsExpr{Pattern: pat}, nil
	}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return ast.TermExpr{Term: term}, nil
}

var aggregateNames = []string{"COUNT", "SUM", "AVG", "MIN", "MAX", "GROUP_CONCAT", "SAMPLE"}

func (p *Parser) tryParseAggregate() (ast.Expression, bool, error) {
	save := p.pos
	for _, name := range aggregateNames {
		if p.matchKeywordCI(name) {
			p.skipWhitespace()
			if !p.consumeByte('(') {
				p.pos = save
				return nil, false, nil
			}
			agg := ast.AggregateExpr{Name: name, Separator: " "}
			p.skipWhitespace()
			if p.matchKeywordCI("DISTINCT") {
				agg.Distinct = true
			}
			p.skipWhitespace()
			if name == "COUNT" && p.consumeByte('*') {
				agg.Star = true
			} else {
				e, err := p.parseExpression()
				if err != nil {
					return nil, true, err
				}
				agg.Arg = e
			}
			p.skipWhitespace()
			if name == "GROUP_CONCAT" && p.consumeByte(';') {
				p.skipWhitespace()
				if p.matchKeywordCI("SEPARATOR") {
					p.skipWhitespace()
					if !p.consumeByte('=') {
						return nil, true, p.errHere("expected '=' in SEPARATOR")
					}
					p.skipWhitespace()
					lit, err := p.parseLiteralTerm()
					if err != nil {
						return nil, true, err
					}
					agg.Separator = lit.(ast.LiteralTerm).Value
				}
				p.skipWhitespace()
			}
			if !p.consumeByte(')') {
				return nil, true, p.errHere("expected ')' closing aggregate")
			}
			return agg, true, nil
		}
	}
	return nil, false, nil
}

func (p *Parser) tryParseCall() (ast.Expression, bool, error) {
	save := p.pos
	name := p.readWhile(func(b byte) bool { return isAlpha(b) || isDigit(b) || b == '_' })
	if name == "" {
		return nil, false, nil
	}
	p.skipWhitespace()
	if !p.consumeByte('(') {
		p.pos = save
		return nil, false, nil
	}
	call := ast.CallExpr{Name: strings.ToUpper(name)}
	for {
		p.skipWhitespace()
		if p.consumeByte(')') {
			break
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, true, err
		}
		call.Args = append(call.Args, e)
		p.skipWhitespace()
		p.consumeByte(',')
	}
	return call, true, nil
}

// ---- Low-level scanning ---------------------------------------------------

func (p *Parser) atEnd() bool { return p.pos >= len(p.input) }

func (p *Parser) peekByte() byte {
	if p.atEnd() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) peekAt(off int) byte {
	if p.pos+off >= len(p.input) {
		return 0
	}
	return p.input[p.pos+off]
}

func (p *Parser) advance() {
	if !p.atEnd() {
		p.pos++
	}
}

func (p *Parser) consumeByte(b byte) bool {
	p.skipWhitespace()
	if p.peekByte() == b {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consumeByte2(a, b byte) bool {
	if p.peekByte() == a && p.peekAt(1) == b {
		p.pos += 2
		return true
	}
	return false
}

func (p *Parser) consumeLiteral(s string) bool {
	if strings.HasPrefix(p.input[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *Parser) skipWhitespace() {
	for !p.atEnd() {
		b := p.peekByte()
		if isSpace(b) {
			p.advance()
			continue
		}
		if b == '#' {
			for !p.atEnd() && p.peekByte() != '\n' {
				p.advance()
			}
			continue
		}
		break
	}
}

func (p *Parser) readWhile(pred func(byte) bool) string {
	start := p.pos
	for !p.atEnd() && pred(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

// matchKeywordCI consumes keyword (case-insensitively) if it appears next,
// provided it is not immediately followed by another identifier character.
func (p *Parser) matchKeywordCI(keyword string) bool {
	p.skipWhitespace()
	end := p.pos + len(keyword)
	if end > len(p.input) {
		return false
	}
	if !strings.EqualFold(p.input[p.pos:end], keyword) {
		return false
	}
	if end < len(p.input) && isVarChar(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

func (p *Parser) isWordBoundaryAt(i int) bool {
	if i >= len(p.input) {
		return true
	}
	return !isVarChar(p.input[i])
}

func (p *Parser) parseInt() (int, error) {
	p.skipWhitespace()
	digits := p.readWhile(isDigit)
	if digits == "" {
		return 0, p.errHere("expected integer")
	}
	return strconv.Atoi(digits)
}

func (p *Parser) errHere(msg string) error {
	return &qerr.MalformedQueryError{Pos: p.pos, Msg: msg}
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isVarChar(b byte) bool {
	return isAlpha(b) || isDigit(b) || b == '_'
}
