package repository

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// NewSQLiteSnapshotStore opens (or creates) a SQLite snapshot database.
// dbPath is the path to the database file (e.g., "./data/prices.db").
func NewSQLiteSnapshotStore(dbPath string) (*SQLSnapshotStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store, err := newSQLSnapshotStore(db, dialect{
		name:        "sqlite",
		schema:      schemaFor("TEXT", "TEXT", "INTEGER"),
		placeholder: questionMark,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[SnapshotStore] SQLite initialized with database: %s", dbPath)
	return store, nil
}
