package pull

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/peer/peertest"
	"github.com/activecm/threatsync/pkg/reconciler"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = data.User{ID: 1, OrgID: 1, SiteAdmin: true, PermSync: true, PermGalaxyEditor: true}

const serverID int64 = 1

func newTestPuller(t *testing.T, server data.Server) (*Puller, *store.MemoryStore, *peertest.Fake) {
	conf, err := config.LoadTestingConfig("mongodb://localhost:27017")
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	st := store.NewMemoryStore()
	_, err = st.CreateOrg(&data.Organisation{ID: 1, UUID: "host-org", Name: "Host", Local: true})
	require.NoError(t, err)
	st.AddServer(server)

	rec, err := reconciler.New(st, conf, logger)
	require.NoError(t, err)

	fake := peertest.New()
	return New(st, fake.Factory(), rec, conf, logger, metrics.New()), st, fake
}

func pullServer() data.Server {
	return data.Server{ID: serverID, Name: "peer", OrgID: 2, RemoteOrgID: 3, Pull: true, PullGalaxyClusters: true}
}

func remoteEvent(id int64, uuid string, timestamp int64) *data.Event {
	return &data.Event{
		ID:             id,
		UUID:           uuid,
		Info:           "remote " + uuid,
		ThreatLevelID:  1,
		Distribution:   data.ConnectedCommunities,
		Published:      true,
		Timestamp:      timestamp,
		AttributeCount: 1,
		Orgc:           &data.Organisation{ID: 50, UUID: "creator", Name: "Creator"},
		Tags:           []data.Tag{{Name: "tlp:green"}},
		Attributes: []data.Attribute{
			{ID: id * 10, UUID: uuid + "-a1", Type: "ip-dst", Category: "Network activity", Value: "10.0.0.1", Distribution: data.InheritEvent},
		},
	}
}

func remoteCluster(uuid string, version int64) *data.GalaxyCluster {
	return &data.GalaxyCluster{
		UUID:         uuid,
		Type:         "threat-actor",
		Value:        "Actor " + uuid,
		Version:      version,
		Distribution: data.AllCommunities,
		Published:    true,
		Galaxy:       &data.Galaxy{UUID: "galaxy-ta", Name: "Threat Actor", Type: "threat-actor"},
		Orgc:         &data.Organisation{UUID: "creator", Name: "Creator"},
	}
}

func TestParseTechnique(t *testing.T) {
	for _, name := range []string{"full", "incremental", "pull_relevant_clusters"} {
		technique, err := ParseTechnique(name)
		require.NoError(t, err)
		assert.Equal(t, Technique(name), technique)
	}
	_, err := ParseTechnique("update")
	assert.True(t, errors.Is(err, ErrUnknownTechnique))
}

func TestPullPreconditions(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		p, st, fake := newTestPuller(t, pullServer())
		fake.AddEvent(remoteEvent(10, "e1", 100))
		fake.SettingsErr = errors.New("dial tcp 10.1.1.1:443: connect: connection refused")

		_, err := p.Run(context.Background(), admin, serverID, Full)
		assert.True(t, errors.Is(err, peer.ErrServerNotReachable))
		assert.Equal(t, 0, fake.CallCount("MinimalEvents"))
		assert.Equal(t, 0, fake.CallCount("Event"))

		events, err := st.MinimalEvents()
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("invalid response", func(t *testing.T) {
		p, _, fake := newTestPuller(t, pullServer())
		fake.SettingsErr = peer.ErrInvalidAPIResponse

		_, err := p.Run(context.Background(), admin, serverID, Full)
		assert.True(t, errors.Is(err, peer.ErrInvalidAPIResponse))
		assert.False(t, errors.Is(err, peer.ErrServerNotReachable))
	})

	t.Run("pull disabled", func(t *testing.T) {
		server := pullServer()
		server.Pull = false
		p, _, fake := newTestPuller(t, server)
		fake.AddEvent(remoteEvent(10, "e1", 100))

		_, err := p.Run(context.Background(), admin, serverID, Full)
		assert.True(t, errors.Is(err, peer.ErrForbiddenByServerSettings))
		assert.Equal(t, 0, fake.CallCount("Event"))
	})

	t.Run("unknown server", func(t *testing.T) {
		p, _, _ := newTestPuller(t, pullServer())
		_, err := p.Run(context.Background(), admin, 99, Full)
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestPullFull(t *testing.T) {
	p, st, fake := newTestPuller(t, pullServer())
	fake.AddEvent(remoteEvent(10, "e1", 100))
	fake.AddEvent(remoteEvent(11, "e2", 100))
	fake.AddEvent(remoteEvent(12, "e3", 100))
	unpublished := remoteEvent(13, "e4", 100)
	unpublished.Published = false
	fake.AddEvent(unpublished)
	fake.EventErrs[11] = errors.New("read timeout")
	st.BlockEvent("e3")

	result, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsSuccess)
	assert.Equal(t, 1, result.EventsFail)
	assert.Equal(t, 0, result.EventsSkipped)
	assert.Equal(t, 2, fake.CallCount("Event"))

	stored, err := st.EventByUUID("e1")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.Equal(t, int64(2), stored.OrgID)
	assert.Equal(t, data.ThisCommunity, stored.Distribution)

	_, ok, err := st.EventIDExists("e3")
	require.NoError(t, err)
	assert.False(t, ok)

	server, err := st.Server(serverID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), server.LastPulledID)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.Events.WithLabelValues("1", metrics.Pulled, "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.Events.WithLabelValues("1", metrics.Pulled, "failed")))
}

func TestPullIdempotent(t *testing.T) {
	p, st, fake := newTestPuller(t, pullServer())
	fake.AddEvent(remoteEvent(10, "e1", 100))

	first, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 1, first.EventsSuccess)

	second, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 0, second.EventsSuccess)
	assert.Equal(t, 0, second.EventsFail)
	assert.Equal(t, 1, second.EventsSkipped)
	assert.Equal(t, 1, fake.CallCount("Event"))

	events, err := st.MinimalEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPullIncremental(t *testing.T) {
	p, st, fake := newTestPuller(t, pullServer())
	fake.AddEvent(remoteEvent(10, "e1", 100))
	_, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)

	fake.AddEvent(remoteEvent(10, "e1", 200))
	fake.AddEvent(remoteEvent(20, "e2", 100))

	result, err := p.Run(context.Background(), admin, serverID, Incremental)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsSuccess)

	stored, err := st.EventByUUID("e1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored.Timestamp)

	_, ok, err := st.EventIDExists("e2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPullSkipsLocallyCreatedEvents(t *testing.T) {
	p, st, fake := newTestPuller(t, pullServer())
	local := remoteEvent(0, "e1", 50)
	local.OrgcID = 1
	local.Orgc = nil
	_, err := st.CreateEvent(local)
	require.NoError(t, err)

	fake.AddEvent(remoteEvent(10, "e1", 500))
	result, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsSkipped)
	assert.Equal(t, 0, fake.CallCount("Event"))

	stored, err := st.EventByUUID("e1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.Timestamp)
}

func TestPullClusters(t *testing.T) {
	p, st, fake := newTestPuller(t, pullServer())
	fake.AddCluster(remoteCluster("c1", 1))
	fake.AddCluster(remoteCluster("c2", 1))
	fake.AddCluster(remoteCluster("c3", 1))
	st.BlockCluster("c3")

	result, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ClustersPulled)

	stored, err := st.ClusterByUUID("c1")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.Equal(t, data.AllCommunities, stored.Distribution)

	// only clusters held locally and newer remotely are refreshed
	fake.AddCluster(remoteCluster("c1", 2))
	fake.AddCluster(remoteCluster("c4", 1))
	result, err = p.Run(context.Background(), admin, serverID, RelevantClusters)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClustersPulled)
	assert.Equal(t, 0, result.EventsSuccess)
	assert.Equal(t, 1, fake.CallCount("MinimalEvents"))

	stored, err = st.ClusterByUUID("c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	_, err = st.ClusterByUUID("c4")
	assert.Equal(t, store.ErrNotFound, err)
}

func TestPullClustersDisabled(t *testing.T) {
	server := pullServer()
	server.PullGalaxyClusters = false
	p, _, fake := newTestPuller(t, server)
	fake.AddCluster(remoteCluster("c1", 1))

	result, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ClustersPulled)
	assert.Equal(t, 0, fake.CallCount("CustomClusters"))
}

func TestPullProposalsAndSightings(t *testing.T) {
	p, st, fake := newTestPuller(t, pullServer())
	fake.AddEvent(remoteEvent(10, "e1", 100))
	now := time.Now().Unix()
	fake.ProposalList = []data.ShadowAttribute{
		{UUID: "p1", EventID: 10, EventUUID: "e1", Type: "ip-src", Category: "Network activity", Value: "10.0.0.2", Timestamp: now},
		{UUID: "p2", EventID: 99, EventUUID: "gone", Type: "ip-src", Value: "10.0.0.3", Timestamp: now},
		{UUID: "p3", EventID: 10, EventUUID: "e1", Type: "ip-src", Value: "10.0.0.4", Timestamp: now - 365*24*3600},
	}
	fake.Sightings["e1"] = []data.Sighting{
		{UUID: "s1", AttributeUUID: "e1-a1", DateSighting: now},
		{UUID: "s2", AttributeUUID: "unknown", DateSighting: now},
	}

	result, err := p.Run(context.Background(), admin, serverID, Full)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsSuccess)
	assert.Equal(t, 1, result.ProposalsPulled)
	assert.Equal(t, 1, result.SightingsPulled)

	stored, err := st.EventByUUID("e1")
	require.NoError(t, err)
	require.Len(t, stored.ShadowAttributes, 1)
	assert.Equal(t, "p1", stored.ShadowAttributes[0].UUID)
	assert.Equal(t, int64(2), stored.ShadowAttributes[0].OrgID)

	sightings, err := st.EventSightings(stored.ID)
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, "s1", sightings[0].UUID)
}

func TestPullCancelled(t *testing.T) {
	p, _, fake := newTestPuller(t, pullServer())
	fake.AddEvent(remoteEvent(10, "e1", 100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, admin, serverID, Full)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, fake.CallCount("Event"))
}
