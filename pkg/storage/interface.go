// Package storage defines the storage interfaces the application relies on.
// It abstracts persistence of the bookkeeping tables (users, sessions) and
// transaction management so that different backends (PostgreSQL, SQLite,
// Redis for sessions) can provide concrete implementations.
//
// Getters return nil and no error when the row does not exist.
//
//go:generate mockgen -package mockstorage -source=interface.go -destination=mock/mockstorage.go *
package storage

import (
	"context"
	"hello/pkg/domain"
	"time"
)

// UserStorage persists admin users.
type UserStorage interface {
	// CreateUser inserts user and returns it as stored. ErrUsernameTaken is
	// returned when the username already exists.
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	// UserByUsername fetches a user by username.
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
	// UserByID fetches a user by ID.
	UserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	// UpdateLastLogin records a successful sign in.
	UpdateLastLogin(ctx context.Context, id domain.UserID, at time.Time) error
}

// SessionStorage persists login sessions.
type SessionStorage interface {
	// StoreSession inserts a new session.
	StoreSession(ctx context.Context, session domain.Session) error
	// SessionByKey fetches a session by key. Expired sessions may still be
	// returned; callers check Session.Expired.
	SessionByKey(ctx context.Context, key domain.SessionKey) (*domain.Session, error)
	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, key domain.SessionKey) error
	// ClearExpiredSessions deletes every session expired at now and returns
	// how many were removed.
	ClearExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// AllStorage is a composite interface that includes all domain-specific storage
// capabilities required by the application.
type AllStorage interface {
	UserStorage
	SessionStorage
}

// TxStorage describes a storage handle that operates within a database
// transaction. It exposes the same domain-specific capabilities as AllStorage,
// and additionally allows committing or rolling back the ongoing transaction.
// Implementations should become unusable after Commit or Rollback is called.
type TxStorage interface {
	AllStorage

	// Commit finalizes the transaction, persisting all changes.
	Commit() error
	// Rollback aborts the transaction, discarding all uncommitted changes.
	Rollback() error
}

// Storage describes a non-transactional storage handle with the ability to
// start transactions.
type Storage interface {
	AllStorage

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the storage implementation (e.g. the
	// underlying connection pool). After Close, the instance should not be used.
	Close() error

	// Begin starts a new transaction and returns a TxStorage that can be used to
	// perform further operations within that transaction.
	Begin(ctx context.Context) (TxStorage, error)
	// WithTx begins a transaction, invokes cb with it, and then commits on
	// success or rolls back if cb returns an error.
	WithTx(ctx context.Context, cb func(storage AllStorage) error) error
}
