package controller_test

import (
	"hello/pkg/controller"
	"hello/pkg/serrors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func panicking(v any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(v)
	})
}

func TestWithRecover_HidesDetailWithoutDebug(t *testing.T) {
	rec := httptest.NewRecorder()
	controller.WithRecover(false)(panicking("secret detail")).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Internal Server Error (500)\n", rec.Body.String())
}

func TestWithRecover_ShowsDetailInDebug(t *testing.T) {
	rec := httptest.NewRecorder()
	controller.WithRecover(true)(panicking("secret detail")).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "secret detail")
}

func TestWithRecover_AbortHandlerWritesNothing(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		controller.WithRecover(false)(panicking(http.ErrAbortHandler)).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Empty(t, rec.Body.String())
}

func TestWithRecover_PassThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	controller.WithRecover(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWriteError_MapsKinds(t *testing.T) {
	rec := httptest.NewRecorder()
	controller.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		serrors.With(serrors.ErrNotFound, "no such page"), false)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Not Found (404)\n", rec.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}
