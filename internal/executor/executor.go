// Package executor runs a translate.Compiled statement against a
// store.Store and decodes the resulting rows back into RDF term bindings,
// plus the parallel ExecuteMany entry point for running a batch of
// independent prepared queries concurrently.
package executor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jblamy/quadstore/internal/qerr"
	"github.com/jblamy/quadstore/internal/rdf"
	"github.com/jblamy/quadstore/internal/sparql/translate"
	"github.com/jblamy/quadstore/internal/store"
)

// Binding is one solution row: SPARQL variable name -> bound RDF term. A
// variable absent from the map (rather than present with a nil Term) means
// OPTIONAL left it unbound, matching SPARQL's "unbound, not null" solution
// semantics.
type Binding map[string]rdf.Term

// SelectResult is the decoded result of running a Compiled SELECT.
type SelectResult struct {
	Variables []string
	Rows      []Binding
}

// Prepared pairs a compiled statement with the store it must run against,
// so Execute never has to re-derive graph/abbreviator context per call.
type Prepared struct {
	Store    *store.Store
	Compiled *translate.Compiled
}

// Prepare wraps a freshly compiled statement for execution against st.
func Prepare(st *store.Store, compiled *translate.Compiled) *Prepared {
	return &Prepared{Store: st, Compiled: compiled}
}

// Execute runs the prepared statement, supplying queryParams (1-based,
// matching the SPARQL "??n" positions the translator recorded) for any
// ParamSlot with FromQueryParam > 0.
func (p *Prepared) Execute(ctx context.Context, queryParams []interface{}) (*SelectResult, error) {
	args := make([]interface{}, len(p.Compiled.ParamKind))
	for i, slot := range p.Compiled.ParamKind {
		if slot.FromQueryParam > 0 {
			idx := slot.FromQueryParam - 1
			if idx >= len(queryParams) {
				return nil, fmt.Errorf("executor: query needs parameter ??%d but only %d were supplied", slot.FromQueryParam, len(queryParams))
			}
			args[i] = queryParams[idx]
		} else {
			args[i] = slot.Constant
		}
	}

	rows, err := p.Store.DB().QueryContext(ctx, p.Compiled.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("executor: query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &SelectResult{Variables: p.Compiled.Columns}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("executor: scanning row: %w", err)
		}

		byCol := make(map[string]interface{}, len(cols))
		for i, name := range cols {
			byCol[name] = raw[i]
		}

		binding := Binding{}
		for _, name := range p.Compiled.Columns {
			val, present := byCol[name]
			if !present || val == nil {
				continue
			}
			term, err := p.decodeTerm(name, val, byCol)
			if err != nil {
				return nil, err
			}
			if term != nil {
				binding[name] = term
			}
		}
		result.Rows = append(result.Rows, binding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// decodeTerm turns one column's raw SQLite value into the RDF term it
// represents, using the compile-time ColumnKind hint to decide between
// "this is a storid, Unabbreviate it" and "this is a literal, decode its
// companion dtype column".
func (p *Prepared) decodeTerm(varName string, val interface{}, byCol map[string]interface{}) (rdf.Term, error) {
	kind := p.Compiled.VarKinds[varName]
	switch kind {
	case translate.ColKindObject:
		storid, err := asInt64(val)
		if err != nil {
			return nil, fmt.Errorf("executor: decoding object column %q: %w", varName, err)
		}
		return p.decodeObjectStorid(storid)
	case translate.ColKindLiteral:
		value, err := asString(val)
		if err != nil {
			return nil, fmt.Errorf("executor: decoding literal column %q: %w", varName, err)
		}
		var dtype int64
		if dcol, ok := p.Compiled.DtypeColumn[varName]; ok {
			if raw, ok := byCol[dcol]; ok && raw != nil {
				dtype, _ = asInt64(raw)
			}
		}
		return p.decodeLiteral(value, dtype)
	case translate.ColKindAmbiguous:
		isObj := false
		if kcol, ok := p.Compiled.KindColumn[varName]; ok {
			if raw, ok := byCol[kcol]; ok && raw != nil {
				n, err := asInt64(raw)
				if err != nil {
					return nil, fmt.Errorf("executor: decoding discriminator for %q: %w", varName, err)
				}
				isObj = n != 0
			}
		}
		if isObj {
			storid, err := asInt64(val)
			if err != nil {
				return nil, fmt.Errorf("executor: decoding ambiguous column %q: %w", varName, err)
			}
			return p.decodeObjectStorid(storid)
		}
		value, err := asString(val)
		if err != nil {
			return nil, fmt.Errorf("executor: decoding ambiguous column %q: %w", varName, err)
		}
		var dtype int64
		if dcol, ok := p.Compiled.DtypeColumn[varName]; ok {
			if raw, ok := byCol[dcol]; ok && raw != nil {
				dtype, _ = asInt64(raw)
			}
		}
		return p.decodeLiteral(value, dtype)
	case translate.ColKindIRIText:
		value, err := asString(val)
		if err != nil {
			return nil, fmt.Errorf("executor: decoding IRI-text column %q: %w", varName, err)
		}
		return rdf.NewIRI(value), nil
	default:
		return decodeScalar(val), nil
	}
}

func (p *Prepared) decodeObjectStorid(storid int64) (rdf.Term, error) {
	if storid < 0 {
		return rdf.NewBlankNode(fmt.Sprintf("b%d", -storid)), nil
	}
	iri, err := p.Store.Abbrev.Unabbreviate(storid)
	if err != nil {
		var unknown *qerr.UnknownIRIError
		if errors.As(err, &unknown) {
			return nil, nil
		}
		return nil, err
	}
	return rdf.NewIRI(iri), nil
}

func (p *Prepared) decodeLiteral(value string, dtype int64) (rdf.Term, error) {
	datatypeStorid, lang := p.Store.Langs.Decode(dtype)
	if lang != "" {
		return rdf.NewLangLiteral(value, lang), nil
	}
	if datatypeStorid == 0 {
		return rdf.NewLiteral(value), nil
	}
	dtIRI, err := p.Store.Abbrev.Unabbreviate(datatypeStorid)
	if err != nil {
		return rdf.NewLiteral(value), nil
	}
	return rdf.NewTypedLiteral(value, rdf.NewIRI(dtIRI)), nil
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		var out int64
		_, err := fmt.Sscanf(string(n), "%d", &out)
		return out, err
	}
	return 0, fmt.Errorf("value %v (%T) is not an integer", v, v)
}

func asString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case int64:
		return fmt.Sprintf("%d", s), nil
	case float64:
		return fmt.Sprintf("%v", s), nil
	}
	return "", fmt.Errorf("value %v (%T) is not a string", v, v)
}

// decodeScalar handles an expression-valued projection (BIND/aggregate
// results, COUNT, etc.) with no fixed RDF term kind: text surfaces as a
// plain literal, an integer as an xsd:integer literal and a float as an
// xsd:double literal.
func decodeScalar(v interface{}) rdf.Term {
	switch s := v.(type) {
	case string:
		return rdf.NewLiteral(s)
	case []byte:
		return rdf.NewLiteral(string(s))
	case int64:
		return rdf.NewTypedLiteral(fmt.Sprintf("%d", s), rdf.XSDInteger)
	case float64:
		return rdf.NewTypedLiteral(fmt.Sprintf("%v", s), rdf.XSDDouble)
	}
	return nil
}

// ExecuteMany runs preps concurrently against their shared store, one
// goroutine per prepared query and each with no query parameters, failing
// fast with DirtyStateError if any of graphs has its dirty flag set (see
// store.Store.IsDirty): the original implementation's precondition that
// parallel reads never race a writer mutating the same journal mid-query.
func ExecuteMany(ctx context.Context, st *store.Store, graphs []int64, preps []*Prepared) ([]*SelectResult, error) {
	for _, g := range graphs {
		dirty, err := st.IsDirty(g)
		if err != nil {
			return nil, err
		}
		if dirty {
			return nil, &qerr.DirtyStateError{}
		}
	}

	results := make([]*SelectResult, len(preps))
	g, gctx := errgroup.WithContext(ctx)
	for i, prep := range preps {
		i, prep := i, prep
		g.Go(func() error {
			res, err := prep.Execute(gctx, nil)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
