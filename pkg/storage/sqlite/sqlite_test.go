package sqlite_test

import (
	"context"
	"database/sql"
	"hello/internal/ledger"
	"hello/pkg/storage"
	"hello/pkg/storage/sqlite"
	"hello/pkg/storage/storagetest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sqlite.SQLite {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(ctx, sqlite.Options{
		Path:               filepath.Join(t.TempDir(), "test.sqlite3"),
		MaxOpenConnections: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l, err := ledger.New(db.DB.(*sql.DB), ledger.EngineSQLite)
	require.NoError(t, err)
	_, err = l.Apply(ctx)
	require.NoError(t, err)

	return db
}

func TestSQLite_Users(t *testing.T) {
	storagetest.RunUserStorage(t, setupTestDB(t))
}

func TestSQLite_Sessions(t *testing.T) {
	db := setupTestDB(t)
	owner := storagetest.NewUser(t, db, "owner")

	storagetest.RunSessionStorage(t, db, owner.ID)
	storagetest.RunClearExpired(t, db, owner.ID)
}

func TestSQLite_Tx(t *testing.T) {
	storagetest.RunTx(t, setupTestDB(t))
}

func TestSQLite_TxMisuse(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.ErrorIs(t, db.Commit(), storage.ErrNotInTx)
	require.ErrorIs(t, db.Rollback(), storage.ErrNotInTx)

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	_, err = tx.(storage.Storage).Begin(ctx)
	require.ErrorIs(t, err, storage.ErrAlreadyInTx)
	require.ErrorIs(t, tx.(storage.Storage).Ping(ctx), storage.ErrAlreadyInTx)
}

func TestSQLite_SessionRequiresUser(t *testing.T) {
	db := setupTestDB(t)

	err := db.StoreSession(context.Background(), storagetest.OrphanSession())
	require.Error(t, err, "foreign keys are enforced")
}

func TestSQLite_Ping(t *testing.T) {
	require.NoError(t, setupTestDB(t).Ping(context.Background()))
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := sqlite.New(context.Background(), sqlite.Options{})
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	dsn := sqlite.DSN("/tmp/db.sqlite3")

	require.True(t, strings.HasPrefix(dsn, "file:/tmp/db.sqlite3?"))
	require.Contains(t, dsn, "_time_format=sqlite")
	require.Contains(t, dsn, "foreign_keys%281%29")
}
