package metrics

import (
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
)

func TestCounters(t *testing.T) {
	m := New()
	m.EventSynced(1, Pulled, "created")
	m.EventSynced(1, Pulled, "created")
	m.EventSynced(1, Pushed, "failed")
	m.ClustersSynced(2, Pulled, 3)
	m.ClustersSynced(2, Pulled, 0)
	m.ProposalsSynced(2, Pushed, 4)
	m.SightingsSynced(2, Pulled, 5)
	m.Correlated("excluded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues("1", Pulled, "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("1", Pushed, "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Clusters.WithLabelValues("2", Pulled)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Proposals.WithLabelValues("2", Pushed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Sightings.WithLabelValues("2", Pulled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Correlations.WithLabelValues("excluded")))

	m.ObserveJob("pull", time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventSynced(1, Pulled, "created")
		m.ClustersSynced(1, Pulled, 1)
		m.Correlated("found")
		m.ObserveJob("pull", time.Now())
	})
	assert.NoError(t, m.Push("http://localhost:9091", "pull"))
}

func TestPush(t *testing.T) {
	var hits int32
	var body string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/metrics/job/threatsync_pull"))
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New()
	m.EventSynced(1, Pulled, "created")
	require.NoError(t, m.Push(gateway.URL, "threatsync_pull"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.NotEmpty(t, body)

	require.NoError(t, m.Push("", "threatsync_pull"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
