package site_test

import (
	"hello/internal/site"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
	}{
		{"plain get", http.MethodGet, "/", nil},
		{"query string", http.MethodGet, "/?lang=fr", nil},
		{"irrelevant headers", http.MethodGet, "/", map[string]string{
			"Accept":          "application/json",
			"Accept-Language": "de",
			"X-Custom":        "1",
		}},
		{"post", http.MethodPost, "/", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			site.Index(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, site.Greeting, rec.Body.String())
			require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		})
	}
}
