// Package db is the sqlite document store behind the settings store. Every
// record is a JSON body addressed by (kind, entity id) and written by upsert.
package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

type DB struct {
	*sql.DB
	path string
}

func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	var count int
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("count documents: %w", err)
	}

	slog.Info("database opened", "path", path, "documents", count)
	return &DB{DB: sqlDB, path: path}, nil
}

func (db *DB) Path() string {
	return db.path
}
