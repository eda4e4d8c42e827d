package postgres_test

import (
	"context"
	"database/sql"
	"hello/internal/ledger"
	"hello/pkg/storage"
	"hello/pkg/storage/postgres"
	"hello/pkg/storage/postgres/postgrestest"
	"hello/pkg/storage/sqldb"
	"hello/pkg/storage/storagetest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *postgres.PgSQL {
	t.Helper()
	pg := postgrestest.New(t)

	l, err := ledger.New(pg.DB.(*sql.DB), ledger.EnginePostgres)
	require.NoError(t, err)
	_, err = l.Apply(context.Background())
	require.NoError(t, err)

	return pg
}

func TestPgSQL(t *testing.T) {
	pg := setupTestDB(t)

	t.Run("users", func(t *testing.T) {
		storagetest.RunUserStorage(t, pg)
	})

	t.Run("sessions", func(t *testing.T) {
		owner := storagetest.NewUser(t, pg, "session-owner")
		storagetest.RunSessionStorage(t, pg, owner.ID)
		storagetest.RunClearExpired(t, pg, owner.ID)
	})

	t.Run("tx", func(t *testing.T) {
		storagetest.RunTx(t, pg)
	})

	t.Run("session requires user", func(t *testing.T) {
		err := pg.StoreSession(context.Background(), storagetest.OrphanSession())
		require.Error(t, err)
		require.False(t, postgres.IsUniqueViolation(err))
	})

	t.Run("begin inside tx", func(t *testing.T) {
		ctx := context.Background()
		require.ErrorIs(t, pg.Commit(), storage.ErrNotInTx)

		tx, err := pg.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		inner, ok := tx.(*sqldb.Store)
		require.True(t, ok)
		_, isTx := inner.DB.(*sql.Tx)
		require.True(t, isTx)

		_, err = inner.Begin(ctx)
		require.ErrorIs(t, err, storage.ErrAlreadyInTx)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, pg.Ping(context.Background()))
	})
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := postgres.New(ctx, postgres.Options{
		Username: postgrestest.User,
		Password: postgrestest.Password,
		Host:     "127.0.0.1",
		Port:     1,
		Database: postgrestest.Database,
		SslMode:  "disable",
	})
	require.Error(t, err)
}
