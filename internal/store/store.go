// Package store implements the persistent quadstore: abbreviated-id triples
// and data values held in SQLite, with per-ontology bookkeeping the SPARQL
// translator and executor build on top of.
package store

import (
	"database/sql"
	"fmt"

	"github.com/jblamy/quadstore/internal/abbrev"
	"github.com/jblamy/quadstore/internal/log"
	"github.com/jblamy/quadstore/internal/qerr"
)

// wildcard is the sentinel a caller passes for an unbound position in a
// get_triples_* lookup. storids are never 0 (resources start at 1, blank
// nodes at -1), so it is unambiguous.
const wildcard int64 = 0

// Store is a single SQLite-backed quadstore: one abbreviator, one language
// table, the connection used to read and write objs/datas, and the writer
// guard serializing concurrent writes to the same graph.
type Store struct {
	db      *sql.DB
	Abbrev  *abbrev.Abbreviator
	Langs   *LangTable
	Writers *WriterGuard
}

// OpenStore opens or creates the store at path and prepares its in-memory
// abbreviator and language table from whatever is already on disk. path
// may be ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	ab, err := abbrev.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	langs, err := NewLangTable(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, Abbrev: ab, Langs: langs, Writers: NewWriterGuard()}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// ---- Ontology lifecycle -----------------------------------------------

// CreateOntology registers a new named graph, returning its graph id. If
// the IRI is already registered, its existing graph id is returned.
func (s *Store) CreateOntology(iri string) (int64, error) {
	var graphID int64
	err := s.db.QueryRow(`SELECT graph_id FROM ontologies WHERE iri = ?`, iri).Scan(&graphID)
	if err == nil {
		return graphID, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up ontology %s: %w", iri, err)
	}
	res, err := s.db.Exec(`INSERT INTO ontologies(iri, last_update, dirty) VALUES (?, 0, 0)`, iri)
	if err != nil {
		return 0, fmt.Errorf("creating ontology %s: %w", iri, err)
	}
	graphID, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading new ontology id for %s: %w", iri, err)
	}
	log.WithComponent("store").Info().Str("iri", iri).Int64("graph", graphID).Msg("ontology created")
	return graphID, nil
}

// GraphID looks up the graph id registered for ontology IRI iri, the same
// lookup CreateOntology and the translator's GRAPH <iri> resolution use.
// Returns UnknownIRIError if no ontology is registered under that IRI.
func (s *Store) GraphID(iri string) (int64, error) {
	var graphID int64
	err := s.db.QueryRow(`SELECT graph_id FROM ontologies WHERE iri = ?`, iri).Scan(&graphID)
	if err == sql.ErrNoRows {
		return 0, &qerr.UnknownIRIError{IRI: iri}
	}
	if err != nil {
		return 0, fmt.Errorf("GraphID(%s): %w", iri, err)
	}
	return graphID, nil
}

// graphLabel returns graph's registered IRI for error messages (e.g.
// AlreadyWritingError), falling back to a numeric label if the ontology row
// is somehow missing.
func (s *Store) graphLabel(graph int64) string {
	var iri string
	if err := s.db.QueryRow(`SELECT iri FROM ontologies WHERE graph_id = ?`, graph).Scan(&iri); err == nil {
		return iri
	}
	return fmt.Sprintf("graph:%d", graph)
}

// DeleteOntology drops every quad in graph and removes its ontologies row.
func (s *Store) DeleteOntology(graph int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("deleting ontology %d: %w", graph, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM objs WHERE graph = ?`, graph); err != nil {
		return fmt.Errorf("deleting objs for graph %d: %w", graph, err)
	}
	if _, err := tx.Exec(`DELETE FROM datas WHERE graph = ?`, graph); err != nil {
		return fmt.Errorf("deleting datas for graph %d: %w", graph, err)
	}
	if _, err := tx.Exec(`DELETE FROM ontologies WHERE graph_id = ?`, graph); err != nil {
		return fmt.Errorf("deleting ontology row %d: %w", graph, err)
	}
	return tx.Commit()
}

// ---- Predicate kind tracking --------------------------------------------

// ensureObjectPredicate records p as an object property, failing if it is
// already known as a data property and is not an annotation property.
func (s *Store) ensureObjectPredicate(tx *sql.Tx, p int64) error {
	return s.ensurePredicateKind(tx, p, true, false)
}

// ensureDataPredicate records p as a data property, failing if it is
// already known as an object property and is not an annotation property.
func (s *Store) ensureDataPredicate(tx *sql.Tx, p int64) error {
	return s.ensurePredicateKind(tx, p, false, true)
}

func (s *Store) ensurePredicateKind(tx *sql.Tx, p int64, asObject, asData bool) error {
	var existsObject, existsData, isAnnotation bool
	err := tx.QueryRow(`SELECT is_object, is_data, is_annotation FROM predicates WHERE storid = ?`, p).
		Scan(&existsObject, &existsData, &isAnnotation)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO predicates(storid, is_object, is_data) VALUES (?, ?, ?)`, p, asObject, asData); err != nil {
			return fmt.Errorf("registering predicate %d: %w", p, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading predicate %d: %w", p, err)
	}
	if asObject && existsData && !isAnnotation {
		return s.typeMismatch(p)
	}
	if asData && existsObject && !isAnnotation {
		return s.typeMismatch(p)
	}
	if (asObject && existsObject) || (asData && existsData) {
		return nil
	}
	if _, err := tx.Exec(`UPDATE predicates SET is_object = is_object OR ?, is_data = is_data OR ? WHERE storid = ?`,
		asObject, asData, p); err != nil {
		return fmt.Errorf("updating predicate %d: %w", p, err)
	}
	return nil
}

// PredicateKind reports whether predicate storid p is registered as an
// object property, a data property, or both (an annotation property may be
// legitimately used as either). A predicate never seen by ensurePredicateKind
// comes back (false, false, nil) rather than an error, since a fresh
// predicate doesn't yet favor one table over the other. Used by the
// normalizer to decide, at query-compile time, whether a triple pattern
// whose object is unbound should join against objs, datas, or both.
func (s *Store) PredicateKind(p int64) (isObject, isData bool, err error) {
	err = s.db.QueryRow(`SELECT is_object, is_data FROM predicates WHERE storid = ?`, p).Scan(&isObject, &isData)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("PredicateKind(%d): %w", p, err)
	}
	return isObject, isData, nil
}

// AbbreviateReadOnly satisfies normalizer.Binder by delegating to the
// store's abbreviator, so *Store itself (not just its Abbrev field) can be
// passed anywhere a Binder is needed once predicate-kind lookups are also
// required.
func (s *Store) AbbreviateReadOnly(iri string) (int64, error) {
	return s.Abbrev.AbbreviateReadOnly(iri)
}

func (s *Store) typeMismatch(p int64) error {
	iri, err := s.Abbrev.Unabbreviate(p)
	if err != nil {
		iri = fmt.Sprintf("storid:%d", p)
	}
	return &qerr.TypeMismatchError{Predicate: iri}
}

// MarkAnnotationProperty flags p as an annotation property. Annotation
// properties may be used with both resource and literal objects:
// ensurePredicateKind raises no TypeMismatchError for them, so
// PredicateKind can report both kinds. The normalizer does not read the
// flag itself.
func (s *Store) MarkAnnotationProperty(p int64) error {
	_, err := s.db.Exec(`
		INSERT INTO predicates(storid, is_annotation) VALUES (?, 1)
		ON CONFLICT(storid) DO UPDATE SET is_annotation = 1`, p)
	if err != nil {
		return fmt.Errorf("marking annotation property %d: %w", p, err)
	}
	return nil
}

// MarkFunctionalProperty flags p as functional (owl:FunctionalProperty) in
// predicates.is_functional. Query compilation does not read the flag.
func (s *Store) MarkFunctionalProperty(p int64) error {
	_, err := s.db.Exec(`
		INSERT INTO predicates(storid, is_functional) VALUES (?, 1)
		ON CONFLICT(storid) DO UPDATE SET is_functional = 1`, p)
	if err != nil {
		return fmt.Errorf("marking functional property %d: %w", p, err)
	}
	return nil
}

// ---- Object triples ------------------------------------------------------

// AddObj asserts (s, p, o) in graph, where all three are resource or blank
// node storids. Returns TypeMismatchError if p is already a data property
// and is not marked as an annotation property.
// Serializes with any other write against the same graph via Writers,
// rejecting a concurrent one with AlreadyWritingError rather than blocking.
func (st *Store) AddObj(graph, subject, predicate, object int64) error {
	return st.Writers.WithWriter(graph, st.graphLabel(graph), func() error {
		tx, err := st.db.Begin()
		if err != nil {
			return fmt.Errorf("AddObj: %w", err)
		}
		defer tx.Rollback()

		if err := st.ensureObjectPredicate(tx, predicate); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO objs(graph, s, p, o) VALUES (?, ?, ?, ?)`,
			graph, subject, predicate, object); err != nil {
			return fmt.Errorf("AddObj insert: %w", err)
		}
		if err := touchOntology(tx, graph); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DelObj retracts (s, p, o) from graph. Serializes with other writes the
// same way AddObj does.
func (st *Store) DelObj(graph, subject, predicate, object int64) error {
	return st.Writers.WithWriter(graph, st.graphLabel(graph), func() error {
		tx, err := st.db.Begin()
		if err != nil {
			return fmt.Errorf("DelObj: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM objs WHERE graph = ? AND s = ? AND p = ? AND o = ?`,
			graph, subject, predicate, object); err != nil {
			return fmt.Errorf("DelObj: %w", err)
		}
		if err := touchOntology(tx, graph); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// HasObj reports whether (s, p, o) holds in graph.
func (st *Store) HasObj(graph, subject, predicate, object int64) (bool, error) {
	var x int
	err := st.db.QueryRow(`SELECT 1 FROM objs WHERE graph = ? AND s = ? AND p = ? AND o = ? LIMIT 1`,
		graph, subject, predicate, object).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasObj: %w", err)
	}
	return true, nil
}

// ObjTriple is one row of an object-triple lookup.
type ObjTriple struct {
	Graph, Subject, Predicate, Object int64
}

// GetTriplesSPO returns every object triple matching the given pattern;
// pass wildcard (0) for any position left unbound. Mirrors Owlready2's
// get_triples_sp_o / get_triples_s_po family collapsed into one query.
func (st *Store) GetTriplesSPO(graph, subject, predicate, object int64) ([]ObjTriple, error) {
	q := `SELECT graph, s, p, o FROM objs WHERE 1=1`
	var args []interface{}
	if graph != wildcard {
		q += ` AND graph = ?`
		args = append(args, graph)
	}
	if subject != wildcard {
		q += ` AND s = ?`
		args = append(args, subject)
	}
	if predicate != wildcard {
		q += ` AND p = ?`
		args = append(args, predicate)
	}
	if object != wildcard {
		q += ` AND o = ?`
		args = append(args, object)
	}
	rows, err := st.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("GetTriplesSPO: %w", err)
	}
	defer rows.Close()

	var out []ObjTriple
	for rows.Next() {
		var t ObjTriple
		if err := rows.Scan(&t.Graph, &t.Subject, &t.Predicate, &t.Object); err != nil {
			return nil, fmt.Errorf("GetTriplesSPO scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTriplesPOS returns the subjects of every object triple matching
// (predicate, object), mirroring Owlready2's get_triples_po_s.
func (st *Store) GetTriplesPOS(predicate, object int64) ([]int64, error) {
	rows, err := st.db.Query(`SELECT DISTINCT s FROM objs WHERE p = ? AND o = ?`, predicate, object)
	if err != nil {
		return nil, fmt.Errorf("GetTriplesPOS: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("GetTriplesPOS scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ---- Data triples ---------------------------------------------------------

// DataTriple is one row of a data-triple lookup.
type DataTriple struct {
	Graph, Subject, Predicate int64
	Value                     string
	Dtype                     int64
}

// AddData asserts (s, p, value^^dtype) in graph. dtype follows LangTable's
// encoding: 0 plain string, >0 datatype storid, <0 language id. Serializes
// with other writes the same way AddObj does.
func (st *Store) AddData(graph, subject, predicate int64, value string, dtype int64) error {
	return st.Writers.WithWriter(graph, st.graphLabel(graph), func() error {
		tx, err := st.db.Begin()
		if err != nil {
			return fmt.Errorf("AddData: %w", err)
		}
		defer tx.Rollback()

		if err := st.ensureDataPredicate(tx, predicate); err != nil {
			return err
		}
		valueNum := numericValue(value, dtype)
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO datas(graph, s, p, value, value_num, dtype) VALUES (?, ?, ?, ?, ?, ?)`,
			graph, subject, predicate, value, valueNum, dtype,
		); err != nil {
			return fmt.Errorf("AddData insert: %w", err)
		}
		if err := touchOntology(tx, graph); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DelData retracts (s, p, value^^dtype) from graph. Serializes with other
// writes the same way AddObj does.
func (st *Store) DelData(graph, subject, predicate int64, value string, dtype int64) error {
	return st.Writers.WithWriter(graph, st.graphLabel(graph), func() error {
		tx, err := st.db.Begin()
		if err != nil {
			return fmt.Errorf("DelData: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM datas WHERE graph = ? AND s = ? AND p = ? AND value = ? AND dtype = ?`,
			graph, subject, predicate, value, dtype); err != nil {
			return fmt.Errorf("DelData: %w", err)
		}
		if err := touchOntology(tx, graph); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// HasData reports whether (s, p, value^^dtype) holds in graph.
func (st *Store) HasData(graph, subject, predicate int64, value string, dtype int64) (bool, error) {
	var x int
	err := st.db.QueryRow(
		`SELECT 1 FROM datas WHERE graph = ? AND s = ? AND p = ? AND value = ? AND dtype = ? LIMIT 1`,
		graph, subject, predicate, value, dtype).Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasData: %w", err)
	}
	return true, nil
}

// GetTriplesSPOD returns every data triple matching the given pattern; pass
// wildcard (0) for subject/predicate/dtype and "" for value to leave that
// position unbound.
func (st *Store) GetTriplesSPOD(graph, subject, predicate int64, value string, dtype int64) ([]DataTriple, error) {
	q := `SELECT graph, s, p, value, dtype FROM datas WHERE 1=1`
	var args []interface{}
	if graph != wildcard {
		q += ` AND graph = ?`
		args = append(args, graph)
	}
	if subject != wildcard {
		q += ` AND s = ?`
		args = append(args, subject)
	}
	if predicate != wildcard {
		q += ` AND p = ?`
		args = append(args, predicate)
	}
	if value != "" {
		q += ` AND value = ?`
		args = append(args, value)
	}
	if dtype != wildcard {
		q += ` AND dtype = ?`
		args = append(args, dtype)
	}
	rows, err := st.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("GetTriplesSPOD: %w", err)
	}
	defer rows.Close()

	var out []DataTriple
	for rows.Next() {
		var t DataTriple
		if err := rows.Scan(&t.Graph, &t.Subject, &t.Predicate, &t.Value, &t.Dtype); err != nil {
			return nil, fmt.Errorf("GetTriplesSPOD scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// numericValue parses value as a float64 when it plausibly names a number,
// so range FILTERs can use the value_num column instead of casting at
// query time. A bad numeric literal is a data-quality issue the query
// layer surfaces as a normal FILTER mismatch, not a write-time error.
func numericValue(value string, dtype int64) interface{} {
	if dtype <= 0 {
		return nil
	}
	var f float64
	if _, err := fmt.Sscanf(value, "%g", &f); err != nil {
		return nil
	}
	return f
}

// Analyze runs SQLite's query planner statistics collection. Cheap to call
// after a bulk load; the translator's recursive CTEs benefit from it more
// than simple lookups do.
func (st *Store) Analyze() error {
	if _, err := st.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("ANALYZE: %w", err)
	}
	return nil
}

// touchOntology bumps last_update and sets dirty=1 for graph within tx.
// Every write-path function calls this before committing so the translate
// package's *STATIC cache and executor's DirtyStateError check can tell
// whether a graph changed since a prepared query was compiled.
func touchOntology(tx *sql.Tx, graph int64) error {
	_, err := tx.Exec(`UPDATE ontologies SET last_update = last_update + 1, dirty = 1 WHERE graph_id = ?`, graph)
	if err != nil {
		return fmt.Errorf("touching ontology %d: %w", graph, err)
	}
	return nil
}

// GetLastUpdateTime returns graph's monotonic update counter, used as a
// cache-invalidation token by the translate package.
func (st *Store) GetLastUpdateTime(graph int64) (int64, error) {
	var v int64
	err := st.db.QueryRow(`SELECT last_update FROM ontologies WHERE graph_id = ?`, graph).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("GetLastUpdateTime(%d): %w", graph, err)
	}
	return v, nil
}

// ClearDirty marks graph clean again after a commit boundary the caller
// considers a stable point; it is the only way the dirty flag is reset.
func (st *Store) ClearDirty(graph int64) error {
	_, err := st.db.Exec(`UPDATE ontologies SET dirty = 0 WHERE graph_id = ?`, graph)
	if err != nil {
		return fmt.Errorf("clearing dirty flag for graph %d: %w", graph, err)
	}
	return nil
}

// IsDirty reports whether graph's dirty flag is set: every committed write
// sets it and only ClearDirty resets it.
// ExecuteMany consults this for every graph touched by a prepared query
// and returns DirtyStateError if any is dirty.
func (st *Store) IsDirty(graph int64) (bool, error) {
	var dirty bool
	err := st.db.QueryRow(`SELECT dirty FROM ontologies WHERE graph_id = ?`, graph).Scan(&dirty)
	if err != nil {
		return false, fmt.Errorf("IsDirty(%d): %w", graph, err)
	}
	return dirty, nil
}
