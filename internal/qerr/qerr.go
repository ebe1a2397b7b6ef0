// Package qerr holds the typed errors the quadstore and SPARQL compiler
// surface to callers, per the "Errors surface" contract.
package qerr

import "fmt"

// MalformedQueryError is returned when SPARQL text fails to parse.
type MalformedQueryError struct {
	Pos int
	Msg string
}

func (e *MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed SPARQL query at byte %d: %s", e.Pos, e.Msg)
}

// TypeMismatchError is returned when a predicate is used with both object
// and data terms across the store, or within a single query.
type TypeMismatchError struct {
	Predicate string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("predicate %s cannot be both an object property and a data property", e.Predicate)
}

// UnknownPrefixError is returned when a prefixed name uses an undeclared prefix.
type UnknownPrefixError struct {
	Prefix string
}

func (e *UnknownPrefixError) Error() string {
	return fmt.Sprintf("unknown prefix %q", e.Prefix)
}

// UnknownIRIError is returned when an IRI has no storid in the store and
// the calling context forbids allocating one (e.g. lookups).
type UnknownIRIError struct {
	IRI string
}

func (e *UnknownIRIError) Error() string {
	return fmt.Sprintf("unknown IRI %q", e.IRI)
}

// MalformedListError is returned when parse_list walks an RDF collection
// that cycles or is missing rdf:first/rdf:rest.
type MalformedListError struct {
	Head string
	Msg  string
}

func (e *MalformedListError) Error() string {
	return fmt.Sprintf("malformed RDF list at %s: %s", e.Head, e.Msg)
}

// AlreadyWritingError is returned when a second writer attempts to open a
// write connection on a graph that already has one open.
type AlreadyWritingError struct {
	Graph string
}

func (e *AlreadyWritingError) Error() string {
	return fmt.Sprintf("ontology %q already has an open write connection", e.Graph)
}

// DirtyStateError is returned when ExecuteMany is attempted while the store
// has uncommitted writes.
type DirtyStateError struct{}

func (e *DirtyStateError) Error() string {
	return "cannot run parallel queries while the store has uncommitted writes"
}

// OntologyParsingError wraps a failure from an external ontology-format
// collaborator feeding the store a triple/quad stream.
type OntologyParsingError struct {
	Source string
	Err    error
}

func (e *OntologyParsingError) Error() string {
	return fmt.Sprintf("parsing ontology from %s: %v", e.Source, e.Err)
}

func (e *OntologyParsingError) Unwrap() error { return e.Err }

// InconsistentStoreError signals a constraint the store itself refuses to
// hold, e.g. a quad referencing a graph absent from ontologies.
type InconsistentStoreError struct {
	Msg string
}

func (e *InconsistentStoreError) Error() string {
	return fmt.Sprintf("inconsistent store: %s", e.Msg)
}
