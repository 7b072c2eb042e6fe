package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "threatsync"

// sync directions
const (
	Pulled = "pull"
	Pushed = "push"
)

//Metrics holds the collectors describing sync and correlation outcomes.
//A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Events       *prometheus.CounterVec
	Clusters     *prometheus.CounterVec
	Proposals    *prometheus.CounterVec
	Sightings    *prometheus.CounterVec
	Correlations *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
}

//New creates the collectors on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events exchanged with peers by direction and outcome",
		}, []string{"server", "direction", "outcome"}),
		Clusters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "galaxy_clusters_total",
			Help:      "Galaxy clusters exchanged with peers",
		}, []string{"server", "direction"}),
		Proposals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_total",
			Help:      "Proposals exchanged with peers",
		}, []string{"server", "direction"}),
		Sightings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sightings_total",
			Help:      "Sightings exchanged with peers",
		}, []string{"server", "direction"}),
		Correlations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Correlated values by classification",
		}, []string{"classification"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of jobs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"job"}),
	}
}

func serverLabel(serverID int64) string {
	return strconv.FormatInt(serverID, 10)
}

//EventSynced counts an event exchanged with a peer
func (m *Metrics) EventSynced(serverID int64, direction string, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(serverLabel(serverID), direction, outcome).Inc()
}

//ClustersSynced counts galaxy clusters exchanged with a peer
func (m *Metrics) ClustersSynced(serverID int64, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Clusters.WithLabelValues(serverLabel(serverID), direction).Add(float64(n))
}

//ProposalsSynced counts proposals exchanged with a peer
func (m *Metrics) ProposalsSynced(serverID int64, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Proposals.WithLabelValues(serverLabel(serverID), direction).Add(float64(n))
}

//SightingsSynced counts sightings exchanged with a peer
func (m *Metrics) SightingsSynced(serverID int64, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Sightings.WithLabelValues(serverLabel(serverID), direction).Add(float64(n))
}

//Correlated counts a correlated value by its classification
func (m *Metrics) Correlated(classification string) {
	if m == nil {
		return
	}
	m.Correlations.WithLabelValues(classification).Inc()
}

//ObserveJob records how long a job ran
func (m *Metrics) ObserveJob(job string, start time.Time) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

//Gatherer exposes the registry holding the collectors
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

//Push sends the collected metrics to a Pushgateway under the job name.
//Nothing is sent if gatewayURL is empty.
func (m *Metrics) Push(gatewayURL string, job string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	return push.New(gatewayURL, job).Gatherer(m.registry).Push()
}
