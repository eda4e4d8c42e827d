package app_test

import (
	"hello"
	"hello/internal/proxy"
	"hello/internal/site"
	"hello/internal/staticfiles"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const publicHost = "hello.test"

// behindProxy puts the reverse proxy in front of a, serving the collected
// static files from disk.
func behindProxy(t *testing.T, a *testApp) (*httptest.Server, string) {
	t.Helper()

	src, err := fs.Sub(hello.Static, "static")
	require.NoError(t, err)
	root := t.TempDir()
	_, err = staticfiles.Collect(src, root, staticfiles.Options{})
	require.NoError(t, err)

	h, err := proxy.New(proxy.Options{
		Upstream:        a.srv.URL,
		UpstreamTimeout: 5 * time.Second,
		StaticURL:       "/static/",
		StaticRoot:      root,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return srv, root
}

// fetch requests path from srv as if the client had asked for publicHost.
func fetch(t *testing.T, client *http.Client, srv *httptest.Server, path string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Host = publicHost

	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res, string(body)
}

func TestThroughProxy(t *testing.T) {
	// the app only accepts the public host, so every 2xx below proves the
	// proxy kept the client's Host header
	a := newTestAppForHosts(t, publicHost)
	srv, root := behindProxy(t, a)

	t.Run("greeting", func(t *testing.T) {
		res, body := fetch(t, a.client, srv, "/")
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Equal(t, site.Greeting, body)
		require.NotEmpty(t, res.Header.Get("X-Request-Id"))
	})

	t.Run("undefined path", func(t *testing.T) {
		res, _ := fetch(t, a.client, srv, "/nonexistent")
		require.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("admin redirects to login", func(t *testing.T) {
		res, _ := fetch(t, a.client, srv, "/admin/")
		require.Equal(t, http.StatusFound, res.StatusCode)
		require.Equal(t, "/admin/login/?next="+url.QueryEscape("/admin/"), res.Header.Get("Location"))
	})

	t.Run("static from disk", func(t *testing.T) {
		// the proxy answers from its root, not from the app's embedded copy
		require.NoError(t, os.WriteFile(filepath.Join(root, "robots.txt"), []byte("from disk\n"), 0o600))

		res, body := fetch(t, a.client, srv, "/static/robots.txt")
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Equal(t, "from disk\n", body)
		require.Contains(t, res.Header.Get("Cache-Control"), "max-age=")

		res, body = fetch(t, a.client, srv, "/static/admin/css/base.css")
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, body, "#header")
	})

	t.Run("host rejected by the app", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
		require.NoError(t, err)
		req.Host = "evil.test"

		res, err := a.client.Do(req)
		require.NoError(t, err)
		_ = res.Body.Close()
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}
