// Package sqldb implements the storage interfaces on top of database/sql and
// goqu. The queries are shared by every SQL engine; the engine packages
// (postgres, sqlite) only open the connection and describe their dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"hello/pkg/storage"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// DB defines the subset of database/sql methods used by this package. Both
// *sql.DB and *sql.Tx satisfy this interface, allowing the same code paths to be
// used within and outside transactions.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Builder abstracts the subset of goqu methods used by this package to
// construct queries. Both a goqu database handle and a transaction handle
// implement this interface.
type Builder interface {
	From(table ...any) *goqu.SelectDataset
	Insert(table any) *goqu.InsertDataset
	Update(table any) *goqu.UpdateDataset
	Delete(table any) *goqu.DeleteDataset
}

// Store implements storage.Storage and storage.TxStorage for any database/sql
// driver goqu has a dialect for.
type Store struct {
	// DB is the underlying executor. It is either a *sql.DB (when not in a
	// transaction) or a *sql.Tx (when inside a transaction).
	DB DB
	// Builder is the goqu handle used to construct SQL queries bound to DB.
	Builder Builder
	// Dialect is the goqu dialect name, e.g. "postgres" or "sqlite3".
	Dialect string
	// IsUniqueViolation reports whether err is the engine's unique constraint
	// error. A nil func treats no error as a unique violation.
	IsUniqueViolation func(err error) bool
}

// New wraps db with goqu using the given dialect. The dialect package must be
// imported by the caller.
func New(db *sql.DB, dialect string, isUniqueViolation func(error) bool) *Store {
	return &Store{
		DB:                db,
		Builder:           goqu.Dialect(dialect).DB(db),
		Dialect:           dialect,
		IsUniqueViolation: isUniqueViolation,
	}
}

var (
	_ storage.Storage   = (*Store)(nil)
	_ storage.TxStorage = (*Store)(nil)
)

// Ping checks the database is reachable. It is only available outside a
// transaction.
func (s *Store) Ping(ctx context.Context) error {
	db, ok := s.DB.(*sql.DB)
	if !ok {
		return storage.ErrAlreadyInTx
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("could not ping database: %w", err)
	}

	return nil
}

// Close closes the underlying *sql.DB.
func (s *Store) Close() error {
	db, ok := s.DB.(*sql.DB)
	if !ok {
		return storage.ErrAlreadyInTx
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("could not close database: %w", err)
	}

	return nil
}

// Commit commits the current transaction. It returns storage.ErrNotInTx if
// called when Store is not in a transactional context.
func (s *Store) Commit() error {
	tx, ok := s.DB.(*sql.Tx)
	if !ok {
		return storage.ErrNotInTx
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit tx: %w", err)
	}

	return nil
}

// Rollback aborts the current transaction. It returns storage.ErrNotInTx if
// called when Store is not in a transactional context.
func (s *Store) Rollback() error {
	tx, ok := s.DB.(*sql.Tx)
	if !ok {
		return storage.ErrNotInTx
	}

	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("could not rollback tx: %w", err)
	}

	return nil
}

// Begin starts a new database transaction and returns a transactional Store.
// If called while already inside a transaction, ErrAlreadyInTx is returned.
func (s *Store) Begin(ctx context.Context) (storage.TxStorage, error) {
	db, ok := s.DB.(*sql.DB)
	if !ok {
		return nil, storage.ErrAlreadyInTx
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin tx: %w", err)
	}

	return &Store{
		DB:                tx,
		Builder:           goqu.NewTx(s.Dialect, tx),
		Dialect:           s.Dialect,
		IsUniqueViolation: s.IsUniqueViolation,
	}, nil
}

// WithTx starts a transaction, executes cb with a transactional storage
// handle, and commits if cb returns nil. If cb returns an error, the
// transaction is rolled back and that error is returned.
func (s *Store) WithTx(ctx context.Context, cb func(storage storage.AllStorage) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit tx: %w", err)
	}

	return nil
}

func (s *Store) uniqueViolation(err error) bool {
	return s.IsUniqueViolation != nil && s.IsUniqueViolation(err)
}

// dbTime normalizes timestamps before they reach the database so that every
// engine stores and compares the same value.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
