// Package sqlite opens the file based SQLite storage engine used in
// development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hello/pkg/storage/sqldb"
	"net/url"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect is the goqu dialect name used for SQLite.
const Dialect = "sqlite3"

// Options defines how the SQLite database file is opened.
type Options struct {
	// Path is the database file. It is created when missing.
	Path string
	// MaxOpenConnections caps the database/sql pool. Zero leaves it unlimited.
	MaxOpenConnections int
}

// SQLite is the SQLite storage engine.
type SQLite struct {
	*sqldb.Store

	// Path is the database file backing this storage.
	Path string
}

// DSN builds the modernc.org/sqlite data source name for path. Foreign keys
// are enforced, WAL lets readers proceed during writes, and times are written
// in SQLite's own format so they compare correctly as text.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_time_format", "sqlite")

	return "file:" + path + "?" + q.Encode()
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	code := sqliteErr.Code()

	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// New opens (creating if needed) the SQLite database at options.Path and
// checks it can be used.
func New(ctx context.Context, options Options) (*SQLite, error) {
	if options.Path == "" {
		return nil, errors.New("sqlite database path is empty")
	}

	db, err := sql.Open("sqlite", DSN(options.Path))
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite database: %w", err)
	}
	if options.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(options.MaxOpenConnections)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("could not open sqlite database %s: %w", options.Path, err)
	}

	return &SQLite{
		Store: sqldb.New(db, Dialect, IsUniqueViolation),
		Path:  options.Path,
	}, nil
}
