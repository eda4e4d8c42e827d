package ledger_test

import (
	"context"
	"database/sql"
	"hello/internal/ledger"
	"hello/pkg/logger"
	"hello/pkg/storage/sqlite"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Setup(logger.DevelopmentEnvironment)
	m.Run()
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.New(context.Background(), sqlite.Options{
		Path:               filepath.Join(t.TempDir(), "db.sqlite3"),
		MaxOpenConnections: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db.DB.(*sql.DB)
}

// schema dumps the definitions of every object in the database.
func schema(t *testing.T, db *sql.DB) string {
	t.Helper()

	rows, err := db.Query(`SELECT type, name, COALESCE(sql, '') FROM sqlite_master ORDER BY type, name`)
	require.NoError(t, err)
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var typ, name, def string
		require.NoError(t, rows.Scan(&typ, &name, &def))
		b.WriteString(typ + " " + name + " " + def + "\n")
	}
	require.NoError(t, rows.Err())

	return b.String()
}

func TestNew_UnknownEngine(t *testing.T) {
	_, err := ledger.New(openSQLite(t), "oracle")
	require.ErrorContains(t, err, "unsupported database engine")
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	l, err := ledger.New(db, ledger.EngineSQLite)
	require.NoError(t, err)
	require.Equal(t, ledger.EngineSQLite, l.Engine())

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, pending)

	applied, err := l.Apply(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, "00001_auth_user.sql", applied[0].Name)
	require.Equal(t, "00002_auth_session.sql", applied[1].Name)
	once := schema(t, db)
	require.Contains(t, once, "table auth_user")
	require.Contains(t, once, "table auth_session")

	applied, err = l.Apply(ctx)
	require.NoError(t, err)
	require.Empty(t, applied)
	require.Equal(t, once, schema(t, db))

	pending, err = l.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestApply_FreshLedgerSeesAppliedState(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	first, err := ledger.New(db, ledger.EngineSQLite)
	require.NoError(t, err)
	_, err = first.Apply(ctx)
	require.NoError(t, err)

	second, err := ledger.New(db, ledger.EngineSQLite)
	require.NoError(t, err)
	applied, err := second.Apply(ctx)
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.New(openSQLite(t), ledger.EngineSQLite)
	require.NoError(t, err)

	entries, err := l.Status(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "[ ] 00001_auth_user", entries[0].String())
	require.False(t, entries[1].Applied)

	_, err = l.Apply(ctx)
	require.NoError(t, err)

	entries, err = l.Status(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		require.True(t, e.Applied, e.Name)
	}
	require.Equal(t, "[X] 00002_auth_session", entries[1].String())
}
