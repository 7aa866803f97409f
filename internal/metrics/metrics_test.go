package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetSessions(3)
	m.ClientConnected()
	m.ClientDisconnected()
	m.Action("coin-action", "ok")
	m.RateLimited("coin-action")
	m.LeeSoonSin("coins")
	m.SessionEvicted()
	require.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectorsRecord(t *testing.T) {
	m := New()
	m.SetSessions(2)
	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()
	m.Action("next-turn", "ok")
	m.Action("next-turn", "ok")
	m.LeeSoonSin("timeout")

	require.Equal(t, 2.0, testutil.ToFloat64(m.sessions))
	require.Equal(t, 1.0, testutil.ToFloat64(m.clients))
	require.Equal(t, 2.0, testutil.ToFloat64(m.actions.WithLabelValues("next-turn", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.leeSoonSin.WithLabelValues("timeout")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.RateLimited("coin-action")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `lss_rate_limited_total{action="coin-action"} 1`)
}
