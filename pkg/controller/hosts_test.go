package controller_test

import (
	"hello/pkg/controller"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostAllowed(t *testing.T) {
	tests := []struct {
		host     string
		patterns []string
		want     bool
	}{
		{"example.com", []string{"example.com"}, true},
		{"example.com:8000", []string{"example.com"}, true},
		{"EXAMPLE.com.", []string{"example.com"}, true},
		{"www.example.com", []string{"example.com"}, false},
		{"www.example.com", []string{".example.com"}, true},
		{"example.com", []string{".example.com"}, true},
		{"badexample.com", []string{".example.com"}, false},
		{"anything.test", []string{"*"}, true},
		{"[::1]:8000", []string{"[::1]"}, true},
		{"127.0.0.1:8000", []string{"127.0.0.1"}, true},
		{"", []string{"*"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			require.Equal(t, tt.want, controller.HostAllowed(tt.host, tt.patterns))
		})
	}
}

func TestWithAllowedHosts(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("rejects unknown host", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://evil.test/", nil)
		rec := httptest.NewRecorder()
		controller.WithAllowedHosts([]string{"example.com"}, false)(ok).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotContains(t, rec.Body.String(), "evil.test", "detail must be hidden without debug")
	})

	t.Run("accepts configured host", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		rec := httptest.NewRecorder()
		controller.WithAllowedHosts([]string{"example.com"}, false)(ok).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("debug accepts localhost when unconfigured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://localhost:8000/", nil)
		rec := httptest.NewRecorder()
		controller.WithAllowedHosts(nil, true)(ok).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("debug shows detail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://evil.test/", nil)
		rec := httptest.NewRecorder()
		controller.WithAllowedHosts(nil, true)(ok).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "evil.test")
	})
}
