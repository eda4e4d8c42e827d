package controller_test

import (
	"hello/pkg/controller"
	"hello/pkg/metrics"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestWithMetrics_RecordsRequestDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := metrics.NewMeterProvider(reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(t.Context()) })

	mw, err := controller.WithMetrics(mp.Meter("test"))
	require.NoError(t, err)

	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		controller.SetRoute(r.Context(), "index")
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "http_server_request_duration_seconds" {
			continue
		}
		found = true
		require.Len(t, f.GetMetric(), 1)
		require.EqualValues(t, 1, f.GetMetric()[0].GetHistogram().GetSampleCount())

		labels := map[string]string{}
		for _, l := range f.GetMetric()[0].GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		require.Equal(t, "index", labels["http_route"])
		require.Equal(t, "GET", labels["http_request_method"])
	}
	require.True(t, found, "histogram should be exported through the registry")
}

func TestWithSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	controller.WithSecurityHeaders(http.NotFoundHandler()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "same-origin", rec.Header().Get("Referrer-Policy"))
}
