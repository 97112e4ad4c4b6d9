package sqlite

import (
	"database/sql"
	"fmt"
)

// DriverName returns the database/sql driver the build registered.
func DriverName() string {
	return driverName
}

// DriverType returns "purego" for modernc.org/sqlite or "cgo" for
// mattn/go-sqlite3.
func DriverType() string {
	return driverType
}

// pragmas applied to every partition database.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// openDB opens path with the build's driver. A partition has a single
// writer, so the pool holds one connection.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return db, nil
}
