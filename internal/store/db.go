// Package store holds the session-scoped conversation state: message logs,
// conversation metadata and sync watermarks. It lives in an in-memory SQLite
// database; nothing survives the process, every session is rebuilt from the
// backend.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the in-memory SQLite connection backing a session.
type DB struct {
	*sql.DB
}

// Open creates the in-memory session database. A single connection is used
// so the database is shared across all callers and statements serialize.
func Open() (*DB, error) {
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// More than one pooled connection would each get a private :memory: db.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
