package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `
		CREATE TABLE IF NOT EXISTS contact_messages (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			submitted_at DATETIME NOT NULL
		)`,
	insert: `
		INSERT INTO contact_messages (id, name, email, message, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`,
	classify: classifySQLite,
}

// NewSQLiteStorage opens a file-backed store, or an in-memory one for
// ":memory:". A single connection is kept since SQLite serializes writers.
func NewSQLiteStorage(path string) (*SQLStorage, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStorage(db, sqliteDialect), nil
}

func classifySQLite(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %w", ErrWriteRejected, err)
	}
	return classify(err)
}
