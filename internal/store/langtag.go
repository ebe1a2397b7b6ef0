package store

import (
	"database/sql"
	"fmt"
	"sync"
)

// LangTable resolves language tags ("en", "fr-CA", ...) to small integer
// ids and back. datas.dtype encodes three cases: 0 is a plain untyped
// string, a positive value is the storid of an xsd/owl datatype IRI, and a
// negative value is -(lang_id) for a language-tagged literal. This keeps
// dtype a single signed integer column instead of a nullable pair.
type LangTable struct {
	db *sql.DB

	mu      sync.Mutex
	toID    map[string]int64
	toTag   map[int64]string
}

// NewLangTable loads the existing tag/id mapping from the languages table.
func NewLangTable(db *sql.DB) (*LangTable, error) {
	t := &LangTable{
		db:    db,
		toID:  make(map[string]int64),
		toTag: make(map[int64]string),
	}
	rows, err := db.Query(`SELECT lang_id, tag FROM languages`)
	if err != nil {
		return nil, fmt.Errorf("loading language table: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("scanning language row: %w", err)
		}
		t.toID[tag] = id
		t.toTag[id] = tag
	}
	return t, rows.Err()
}

// ID returns the lang_id for tag, allocating one if unseen. The returned
// id is always positive; callers negate it to build a datas.dtype value.
func (t *LangTable) ID(tag string) (int64, error) {
	t.mu.Lock()
	if id, ok := t.toID[tag]; ok {
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	res, err := t.db.Exec(`INSERT OR IGNORE INTO languages(tag) VALUES (?)`, tag)
	if err != nil {
		return 0, fmt.Errorf("allocating language tag %q: %w", tag, err)
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		if err := t.db.QueryRow(`SELECT lang_id FROM languages WHERE tag = ?`, tag).Scan(&id); err != nil {
			return 0, fmt.Errorf("resolving language tag %q: %w", tag, err)
		}
	}
	t.mu.Lock()
	t.toID[tag] = id
	t.toTag[id] = tag
	t.mu.Unlock()
	return id, nil
}

// Tag returns the tag for a lang_id previously returned by ID.
func (t *LangTable) Tag(id int64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tag, ok := t.toTag[id]
	return tag, ok
}

// DtypeOf packs a literal's datatype storid and/or language tag into the
// single signed dtype column: 0 for a plain string, storid for a typed
// literal, -lang_id for a language-tagged one.
func (t *LangTable) DtypeOf(datatypeStorid int64, lang string) (int64, error) {
	if lang != "" {
		id, err := t.ID(lang)
		if err != nil {
			return 0, err
		}
		return -id, nil
	}
	return datatypeStorid, nil
}

// Decode splits a dtype value back into a datatype storid (0 if none) and
// a language tag ("" if none).
func (t *LangTable) Decode(dtype int64) (datatypeStorid int64, lang string) {
	if dtype < 0 {
		tag, _ := t.Tag(-dtype)
		return 0, tag
	}
	return dtype, ""
}
