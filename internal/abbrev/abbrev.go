// Package abbrev implements the bidirectional mapping between IRIs and the
// small integer "storids" the rest of the quadstore uses internally.
package abbrev

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jblamy/quadstore/internal/qerr"
)

// Abbreviator guarantees: a given IRI maps to exactly one storid for the
// lifetime of the store; storid -> IRI is a function; allocation is
// monotonic and safe under concurrent use. It is backed by the
// "resources" table, and caches both directions in memory.
type Abbreviator struct {
	db *sql.DB

	mu      sync.Mutex // serializes only the allocation critical section
	toID    map[string]int64
	toIRI   map[int64]string
	nextID  int64
	nextBN  int64 // next blank node id to hand out (negative, decreasing)
}

// New creates an Abbreviator over db, bootstrapping the universal
// vocabulary into the resources table if it is not already present.
func New(db *sql.DB) (*Abbreviator, error) {
	a := &Abbreviator{
		db:     db,
		toID:   make(map[string]int64),
		toIRI:  make(map[int64]string),
		nextID: FirstDynamicStorid,
		nextBN: -1,
	}
	if err := a.bootstrap(); err != nil {
		return nil, err
	}
	if err := a.loadExisting(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Abbreviator) bootstrap() error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("abbrev bootstrap: %w", err)
	}
	defer tx.Rollback()

	for i, iri := range universalVocabulary {
		storid := int64(i + 1)
		if _, err := tx.Exec(`INSERT OR IGNORE INTO resources(storid, iri) VALUES (?, ?)`, storid, iri); err != nil {
			return fmt.Errorf("abbrev bootstrap insert %s: %w", iri, err)
		}
		a.toID[iri] = storid
		a.toIRI[storid] = iri
	}
	return tx.Commit()
}

func (a *Abbreviator) loadExisting() error {
	rows, err := a.db.Query(`SELECT storid, iri FROM resources`)
	if err != nil {
		return fmt.Errorf("abbrev load: %w", err)
	}
	defer rows.Close()

	var maxID int64 = FirstDynamicStorid - 1
	var minBlank int64
	for rows.Next() {
		var storid int64
		var iri string
		if err := rows.Scan(&storid, &iri); err != nil {
			return fmt.Errorf("abbrev load scan: %w", err)
		}
		a.toID[iri] = storid
		a.toIRI[storid] = iri
		if storid >= FirstDynamicStorid && storid > maxID {
			maxID = storid
		}
		if storid < minBlank {
			minBlank = storid
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	if maxID+1 > a.nextID {
		a.nextID = maxID + 1
	}
	if minBlank-1 < a.nextBN {
		a.nextBN = minBlank - 1
	}
	a.mu.Unlock()
	return nil
}

// Abbreviate returns the storid for iri, allocating and persisting a new
// one if this is the first time iri has been seen.
func (a *Abbreviator) Abbreviate(iri string) (int64, error) {
	a.mu.Lock()
	if id, ok := a.toID[iri]; ok {
		a.mu.Unlock()
		return id, nil
	}
	id := a.nextID
	a.nextID++
	a.mu.Unlock()

	if _, err := a.db.Exec(`INSERT INTO resources(storid, iri) VALUES (?, ?)`, id, iri); err != nil {
		return 0, fmt.Errorf("abbreviate %q: %w", iri, err)
	}

	a.mu.Lock()
	a.toID[iri] = id
	a.toIRI[id] = iri
	a.mu.Unlock()
	return id, nil
}

// AbbreviateReadOnly returns the storid for iri without allocating one,
// returning UnknownIRIError if the IRI has never been abbreviated.
func (a *Abbreviator) AbbreviateReadOnly(iri string) (int64, error) {
	a.mu.Lock()
	id, ok := a.toID[iri]
	a.mu.Unlock()
	if ok {
		return id, nil
	}
	return 0, &qerr.UnknownIRIError{IRI: iri}
}

// Unabbreviate returns the IRI for storid. Negative storids (blank nodes)
// are never registered here and return an error; callers must special-case
// storid < 0 before calling this.
func (a *Abbreviator) Unabbreviate(storid int64) (string, error) {
	a.mu.Lock()
	iri, ok := a.toIRI[storid]
	a.mu.Unlock()
	if ok {
		return iri, nil
	}
	var dbIRI string
	err := a.db.QueryRow(`SELECT iri FROM resources WHERE storid = ?`, storid).Scan(&dbIRI)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unabbreviate %d: %w", storid, &qerr.UnknownIRIError{IRI: fmt.Sprintf("storid:%d", storid)})
	}
	if err != nil {
		return "", fmt.Errorf("unabbreviate %d: %w", storid, err)
	}
	a.mu.Lock()
	a.toIRI[storid] = dbIRI
	a.toID[dbIRI] = storid
	a.mu.Unlock()
	return dbIRI, nil
}

// NewBlankNode allocates a fresh negative storid. Blank nodes are never
// persisted to the resources table; they are owned implicitly by whichever
// ontology first asserts a triple mentioning them.
func (a *Abbreviator) NewBlankNode() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextBN
	a.nextBN--
	return id
}
