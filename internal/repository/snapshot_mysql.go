package repository

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// mysqlKeyType compares name keys byte for byte. The default collation folds
// case and accents, which would make distinct normalized names collide.
const mysqlKeyType = "VARCHAR(191) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin"

// NewMySQLSnapshotStore connects to MySQL.
// dsn format: "user:password@tcp(host:3306)/dbname?parseTime=true"
func NewMySQLSnapshotStore(dsn string) (*SQLSnapshotStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := newSQLSnapshotStore(db, dialect{
		name:        "mysql",
		schema:      schemaFor(mysqlKeyType, "TEXT", "BIGINT"),
		placeholder: questionMark,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[SnapshotStore] MySQL initialized")
	return store, nil
}
