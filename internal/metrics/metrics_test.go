package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/ccicube/internal/metrics"
)

func TestStoreRequests(t *testing.T) {
	m := metrics.New()
	m.ObserveStoreRequest("esa-cci", "describe", nil, 10*time.Millisecond)
	m.ObserveStoreRequest("esa-cci", "describe", nil, 20*time.Millisecond)
	m.ObserveStoreRequest("esa-cci", "open", errors.New("boom"), time.Second)
	m.AddBytesReceived(2048)
	m.IncRetries()
	m.IncDatasetsOpened("esa-cci")

	n, err := testutil.GatherAndCount(m.Registry(), "ccicube_store_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	expected := `
# HELP ccicube_store_received_bytes_total Bytes of dataset payload received from remote stores.
# TYPE ccicube_store_received_bytes_total counter
ccicube_store_received_bytes_total 2048
# HELP ccicube_store_retries_total Retried remote requests.
# TYPE ccicube_store_retries_total counter
ccicube_store_retries_total 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"ccicube_store_received_bytes_total", "ccicube_store_retries_total"))
}

func TestHTTPAndHandler(t *testing.T) {
	m := metrics.New()
	m.ObserveHTTP("describe", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP("describe", http.StatusNotFound, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ccicube_http_requests_total{code="200",route="describe"} 1`)
	assert.Contains(t, body, `ccicube_http_requests_total{code="404",route="describe"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveStoreRequest("s", "op", nil, time.Second)
		m.AddBytesReceived(1)
		m.IncRetries()
		m.IncDatasetsOpened("s")
		m.ObserveHTTP("r", 200, time.Second)
	})
	assert.NoError(t, m.Push(context.Background(), "http://example.invalid", "job"))
}

func TestPush(t *testing.T) {
	var pushes atomic.Int32
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if strings.HasPrefix(r.URL.Path, "/metrics/job/ccicube") {
			pushes.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := metrics.New()
	m.IncRetries()
	require.NoError(t, m.Push(context.Background(), gw.URL, "ccicube"))
	assert.Equal(t, int32(1), pushes.Load())
}
