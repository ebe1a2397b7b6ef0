package store

import (
	"strconv"

	"github.com/jblamy/quadstore/internal/abbrev"
	"github.com/jblamy/quadstore/internal/qerr"
)

// ParseList walks the rdf:first/rdf:rest collection rooted at head and
// returns the storids of its members in order. head must be rdf:nil (an
// empty list) or a blank node with exactly one rdf:first and one rdf:rest.
// Returns MalformedListError if the chain is missing a link, branches, or
// cycles back on itself.
func (st *Store) ParseList(graph, head int64) ([]int64, error) {
	var members []int64
	seen := map[int64]bool{}
	cur := head

	for cur != abbrev.RDFNil {
		if seen[cur] {
			return nil, &qerr.MalformedListError{Head: st.describeNode(head), Msg: "cycle detected"}
		}
		seen[cur] = true

		firsts, err := st.GetTriplesSPO(graph, cur, abbrev.RDFFirst, wildcard)
		if err != nil {
			return nil, err
		}
		if len(firsts) != 1 {
			return nil, &qerr.MalformedListError{
				Head: st.describeNode(head),
				Msg:  "expected exactly one rdf:first",
			}
		}
		members = append(members, firsts[0].Object)

		rests, err := st.GetTriplesSPO(graph, cur, abbrev.RDFRest, wildcard)
		if err != nil {
			return nil, err
		}
		if len(rests) != 1 {
			return nil, &qerr.MalformedListError{
				Head: st.describeNode(head),
				Msg:  "expected exactly one rdf:rest",
			}
		}
		cur = rests[0].Object
	}
	return members, nil
}

// ParseListAsRDF behaves like ParseList but unabbreviates each member back
// to its IRI (or a synthetic blank-node label for negative storids) before
// returning, for callers outside the storid-facing API boundary.
func (st *Store) ParseListAsRDF(graph, head int64) ([]string, error) {
	storids, err := st.ParseList(graph, head)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(storids))
	for i, id := range storids {
		out[i] = st.describeNode(id)
	}
	return out, nil
}

// describeNode renders a storid as an IRI, or a synthetic blank-node label
// if unabbreviation fails (e.g. id < 0, or an id this store never saw).
func (st *Store) describeNode(id int64) string {
	if id < 0 {
		return blankLabel(id)
	}
	iri, err := st.Abbrev.Unabbreviate(id)
	if err != nil {
		return blankLabel(id)
	}
	return iri
}

func blankLabel(id int64) string {
	return "_:b" + strconv.FormatInt(-id, 10)
}
