// Package storagetest holds behaviour tests shared by every storage engine.
// Engine packages call the Run functions from their own tests with a fresh,
// migrated store.
package storagetest

import (
	"context"
	"database/sql"
	"errors"
	"hello/pkg/domain"
	"hello/pkg/serrors"
	"hello/pkg/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RunUserStorage exercises storage.UserStorage.
func RunUserStorage(t *testing.T, s storage.UserStorage) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		joined := time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)
		created, err := s.CreateUser(ctx, domain.User{
			Username:     "alice",
			PasswordHash: "hash",
			IsActive:     true,
			IsStaff:      true,
			DateJoined:   joined,
		})
		require.NoError(t, err)
		require.NotEqual(t, domain.UserID{}, created.ID)
		require.Equal(t, "alice", created.Username)
		require.Equal(t, "hash", created.PasswordHash)
		require.True(t, created.IsStaff)
		require.False(t, created.IsSuperuser)
		require.True(t, created.LastLogin.IsZero())
		require.True(t, joined.Equal(created.DateJoined))

		byName, err := s.UserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, created, byName)

		byID, err := s.UserByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, created, byID)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := s.CreateUser(ctx, domain.User{Username: "bob", PasswordHash: "x", IsActive: true})
		require.NoError(t, err)

		_, err = s.CreateUser(ctx, domain.User{Username: "bob", PasswordHash: "y", IsActive: true})
		require.ErrorIs(t, err, storage.ErrUsernameTaken)
		require.Equal(t, serrors.ErrConflict, serrors.KindOf(err))
	})

	t.Run("missing user", func(t *testing.T) {
		u, err := s.UserByUsername(ctx, "nobody")
		require.NoError(t, err)
		require.Nil(t, u)

		u, err = s.UserByID(ctx, domain.NewUserID())
		require.NoError(t, err)
		require.Nil(t, u)
	})

	t.Run("update last login", func(t *testing.T) {
		u, err := s.CreateUser(ctx, domain.User{Username: "carol", PasswordHash: "x", IsActive: true})
		require.NoError(t, err)

		at := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
		require.NoError(t, s.UpdateLastLogin(ctx, u.ID, at))

		u, err = s.UserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, at.Truncate(time.Second).Equal(u.LastLogin))
	})
}

// NewUser creates a user sessions can refer to.
func NewUser(t *testing.T, s storage.UserStorage, username string) *domain.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), domain.User{Username: username, PasswordHash: "x", IsActive: true})
	require.NoError(t, err)

	return u
}

// RunSessionStorage exercises storage.SessionStorage. owner must exist when
// the engine enforces the user foreign key.
func RunSessionStorage(t *testing.T, s storage.SessionStorage, owner domain.UserID) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("store fetch delete", func(t *testing.T) {
		sess := domain.Session{
			Key:        domain.NewSessionKey(),
			UserID:     owner,
			ExpireDate: now.Add(time.Hour),
			CreatedAt:  now,
		}
		require.NoError(t, s.StoreSession(ctx, sess))

		got, err := s.SessionByKey(ctx, sess.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, sess.Key, got.Key)
		require.Equal(t, owner, got.UserID)
		require.True(t, sess.ExpireDate.Equal(got.ExpireDate))
		require.False(t, got.Expired(now))

		require.NoError(t, s.DeleteSession(ctx, sess.Key))
		got, err = s.SessionByKey(ctx, sess.Key)
		require.NoError(t, err)
		require.Nil(t, got)

		require.NoError(t, s.DeleteSession(ctx, sess.Key), "deleting twice is fine")
	})

	t.Run("clear expired keeps live sessions", func(t *testing.T) {
		short := domain.Session{Key: domain.NewSessionKey(), UserID: owner, ExpireDate: now.Add(time.Minute), CreatedAt: now}
		long := domain.Session{Key: domain.NewSessionKey(), UserID: owner, ExpireDate: now.Add(24 * time.Hour), CreatedAt: now}
		require.NoError(t, s.StoreSession(ctx, short))
		require.NoError(t, s.StoreSession(ctx, long))

		_, err := s.ClearExpiredSessions(ctx, now.Add(time.Hour))
		require.NoError(t, err)

		got, err := s.SessionByKey(ctx, long.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
	})
}

// RunClearExpired checks that ClearExpiredSessions removes exactly the
// expired rows. Only engines that keep expired rows around can run it.
func RunClearExpired(t *testing.T, s storage.SessionStorage, owner domain.UserID) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	expired := domain.Session{Key: domain.NewSessionKey(), UserID: owner, ExpireDate: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)}
	atNow := domain.Session{Key: domain.NewSessionKey(), UserID: owner, ExpireDate: now, CreatedAt: now.Add(-time.Hour)}
	live := domain.Session{Key: domain.NewSessionKey(), UserID: owner, ExpireDate: now.Add(time.Minute), CreatedAt: now}
	for _, sess := range []domain.Session{expired, atNow, live} {
		require.NoError(t, s.StoreSession(ctx, sess))
	}

	n, err := s.ClearExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(2))

	for _, key := range []domain.SessionKey{expired.Key, atNow.Key} {
		got, err := s.SessionByKey(ctx, key)
		require.NoError(t, err)
		require.Nil(t, got)
	}

	got, err := s.SessionByKey(ctx, live.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
}

// RunTx exercises Begin, WithTx, Commit and Rollback.
func RunTx(t *testing.T, s storage.Storage) {
	t.Helper()
	ctx := context.Background()

	t.Run("rollback twice", func(t *testing.T) {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())
		require.ErrorIs(t, tx.Rollback(), sql.ErrTxDone)
	})

	t.Run("with tx commits", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx storage.AllStorage) error {
			_, err := tx.CreateUser(ctx, domain.User{Username: "tx-commit", PasswordHash: "x"})

			return err //nolint: wrapcheck
		})
		require.NoError(t, err)

		u, err := s.UserByUsername(ctx, "tx-commit")
		require.NoError(t, err)
		require.NotNil(t, u)
	})

	t.Run("with tx rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx storage.AllStorage) error {
			if _, err := tx.CreateUser(ctx, domain.User{Username: "tx-rollback", PasswordHash: "x"}); err != nil {
				return err //nolint: wrapcheck
			}

			return boom
		})
		require.ErrorIs(t, err, boom)

		u, err := s.UserByUsername(ctx, "tx-rollback")
		require.NoError(t, err)
		require.Nil(t, u)
	})
}

// OrphanSession returns a session owned by a user that does not exist.
func OrphanSession() domain.Session {
	now := time.Now()

	return domain.Session{
		Key:        domain.NewSessionKey(),
		UserID:     domain.NewUserID(),
		ExpireDate: now.Add(time.Hour),
		CreatedAt:  now,
	}
}
