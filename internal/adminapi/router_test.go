package adminapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkeep-io/switchboard/internal/adminapi"
	"github.com/arkeep-io/switchboard/internal/messagelog"
	"github.com/arkeep-io/switchboard/internal/switchboard"
	"github.com/arkeep-io/switchboard/internal/wire"
)

type fakeStatus struct {
	spaces, conns int
	dht           switchboard.DHTConfig
}

func (f fakeStatus) SpaceCount() int                     { return f.spaces }
func (f fakeStatus) ConnectionCount() int                { return f.conns }
func (f fakeStatus) DHTAlgorithm() switchboard.DHTConfig { return f.dht }

func newTestRouter(t *testing.T, fs fakeStatus) http.Handler {
	t.Helper()
	log := messagelog.New(zap.NewNop(), 10)
	return adminapi.NewRouter(adminapi.RouterConfig{
		Switchboard: fs,
		MsgLog:      log,
		Registry:    prometheus.NewRegistry(),
		Logger:      zap.NewNop(),
	})
}

func TestHealthzReportsOk(t *testing.T) {
	r := newTestRouter(t, fakeStatus{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
}

func TestDebugSpacesReportsCurrentCounts(t *testing.T) {
	r := newTestRouter(t, fakeStatus{spaces: 2, conns: 5, dht: switchboard.DHTConfig{Algorithm: switchboard.NaiveSharding, RedundantCount: 3}})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/spaces")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["spaces"])
	assert.Equal(t, float64(5), data["connections"])
	assert.Equal(t, "naive-sharding", data["dht_algorithm"])
	assert.Equal(t, float64(3), data["redundant_count"])
}

func TestDebugMessagesReturnsRecentEntries(t *testing.T) {
	log := messagelog.New(zap.NewNop(), 10)
	log.Append("A1", "u1", wire.TypeJoinSpace)

	r := adminapi.NewRouter(adminapi.RouterConfig{
		Switchboard: fakeStatus{},
		MsgLog:      log,
		Registry:    prometheus.NewRegistry(),
		Logger:      zap.NewNop(),
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	entries, _ := body["data"].([]any)
	require.Len(t, entries, 1)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := newTestRouter(t, fakeStatus{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
