package store

import (
	"database/sql"
	"fmt"
)

// schemaStatements creates the on-disk relational schema described in
// SPEC_FULL.md §5. Indexes are created after the tables so SQLite can build
// them once rather than maintain them row-by-row during DDL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ontologies(
		graph_id    INTEGER PRIMARY KEY,
		iri         TEXT UNIQUE NOT NULL,
		last_update INTEGER NOT NULL DEFAULT 0,
		dirty       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS resources(
		storid INTEGER PRIMARY KEY,
		iri    TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS predicates(
		storid        INTEGER PRIMARY KEY,
		is_object     INTEGER NOT NULL DEFAULT 0,
		is_data       INTEGER NOT NULL DEFAULT 0,
		is_annotation INTEGER NOT NULL DEFAULT 0,
		is_functional INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS objs(
		graph INTEGER NOT NULL,
		s     INTEGER NOT NULL,
		p     INTEGER NOT NULL,
		o     INTEGER NOT NULL,
		PRIMARY KEY(graph, s, p, o)
	)`,
	`CREATE INDEX IF NOT EXISTS objs_sp ON objs(s, p)`,
	`CREATE INDEX IF NOT EXISTS objs_po ON objs(p, o)`,
	`CREATE INDEX IF NOT EXISTS objs_op ON objs(o, p)`,
	`CREATE INDEX IF NOT EXISTS objs_gs ON objs(graph, s)`,
	`CREATE TABLE IF NOT EXISTS datas(
		graph     INTEGER NOT NULL,
		s         INTEGER NOT NULL,
		p         INTEGER NOT NULL,
		value     TEXT,
		value_num REAL,
		dtype     INTEGER NOT NULL,
		PRIMARY KEY(graph, s, p, value, dtype)
	)`,
	`CREATE INDEX IF NOT EXISTS datas_sp ON datas(s, p)`,
	`CREATE INDEX IF NOT EXISTS datas_pv ON datas(p, value)`,
	`CREATE INDEX IF NOT EXISTS datas_gs ON datas(graph, s)`,
	`CREATE TABLE IF NOT EXISTS prop_fts(
		predicate_storid INTEGER PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS languages(
		lang_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag     TEXT UNIQUE NOT NULL
	)`,
}

// initSchema creates every table and index if absent. Safe to call on an
// already-initialized store.
func initSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}
