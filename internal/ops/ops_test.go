package ops_test

import (
	"errors"
	"hello/internal/ops"
	"hello/pkg/logger"
	"hello/pkg/storage/sqldb"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Setup(logger.DevelopmentEnvironment)
	m.Run()
}

func newStore(t *testing.T, pingErr error) *sqldb.Store {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ping := mock.ExpectPing()
	if pingErr != nil {
		ping.WillReturnError(pingErr)
	}

	return sqldb.New(db, "sqlite3", nil)
}

func handler(t *testing.T, checks map[string]ops.Pinger, debug bool) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "hello_test_total"})
	counter.Inc()
	reg.MustRegister(counter)

	return ops.Handler(ops.Deps{Gatherer: reg, Checks: checks}, ops.Options{Debug: debug})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(handler(t, nil, false), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		rec := get(handler(t, map[string]ops.Pinger{"database": newStore(t, nil)}, false), "/readyz")

		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok","checks":{"database":"ok"}}`, rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		rec := get(handler(t, map[string]ops.Pinger{
			"database": newStore(t, errors.New("connection refused")),
		}, false), "/readyz")

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Contains(t, rec.Body.String(), `"status":"unavailable"`)
		require.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestMetrics(t *testing.T) {
	rec := get(handler(t, nil, false), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "hello_test_total 1")
}

func TestSpecAndDocs(t *testing.T) {
	h := handler(t, nil, false)

	rec := get(h, "/specs/openapi.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "operationId: index")

	require.Equal(t, http.StatusOK, get(h, "/docs/").Code)
}

func TestPprofOnlyInDebug(t *testing.T) {
	require.Equal(t, http.StatusNotFound, get(handler(t, nil, false), "/debug/pprof/").Code)
	require.Equal(t, http.StatusOK, get(handler(t, nil, true), "/debug/pprof/cmdline").Code)
}

func TestNewServer_NeedsGatherer(t *testing.T) {
	_, err := ops.NewServer(ops.Deps{}, ops.Options{})
	require.Error(t, err)

	srv, err := ops.NewServer(ops.Deps{Gatherer: prometheus.NewRegistry()}, ops.Options{Addr: ":9090"})
	require.NoError(t, err)
	require.Equal(t, ":9090", srv.Addr)
}
