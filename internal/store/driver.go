package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
)

const driverName = "quadstore-sqlite3"

var registerOnce sync.Once

// registerDriver registers the sqlite3 driver under driverName with a
// ConnectHook that installs the SPARQL scalar functions on every new
// connection. sql.Register panics if called twice with the same name, so
// this only ever runs once per process regardless of how many stores are
// opened.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return registerSQLFunctions(conn)
			},
		})
	})
}

// Open opens (creating if absent) the SQLite-backed quadstore at path and
// ensures its schema exists. path may be ":memory:" for an ephemeral store.
func Open(path string) (*sql.DB, error) {
	registerDriver()

	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
