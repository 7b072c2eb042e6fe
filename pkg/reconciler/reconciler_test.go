package reconciler

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostOrg int64 = 1

var (
	admin   = data.User{ID: 1, OrgID: hostOrg, SiteAdmin: true, PermSync: true, PermGalaxyEditor: true}
	syncer  = data.User{ID: 2, OrgID: hostOrg, PermSync: true}
	remote  = &data.Server{ID: 1, OrgID: 2, RemoteOrgID: 3}
	trusted = &data.Server{ID: 2, OrgID: hostOrg, RemoteOrgID: 3, Internal: true}
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.MemoryStore) {
	conf := &config.Config{}
	conf.S.Sync.HostOrgID = hostOrg
	conf.S.Sync.OrgCacheSize = 16
	logger, _ := test.NewNullLogger()

	st := store.NewMemoryStore()
	_, err := st.CreateOrg(&data.Organisation{ID: hostOrg, UUID: "host-org", Name: "Host", Local: true})
	require.NoError(t, err)

	r, err := New(st, conf, logger)
	require.NoError(t, err)
	return r, st
}

func remoteCluster(uuid string, version int64) *data.GalaxyCluster {
	return &data.GalaxyCluster{
		UUID:         uuid,
		Type:         "threat-actor",
		Value:        "APT-" + uuid,
		Version:      version,
		Distribution: data.ConnectedCommunities,
		Published:    true,
		Galaxy:       &data.Galaxy{UUID: "galaxy-1", Name: "Threat Actor", Type: "threat-actor"},
		Orgc:         &data.Organisation{UUID: "remote-org", Name: "Remote"},
		Elements:     []data.GalaxyElement{{ID: 77, GalaxyClusterID: 99, Key: "country", Value: "X"}},
	}
}

func TestReconcileClusterRejections(t *testing.T) {
	r, st := newTestReconciler(t)

	c := remoteCluster("c1", 1)
	c.Default = true
	_, err := r.ReconcileCluster(admin, remote, c)
	assert.Equal(t, ErrDefaultCluster, err)

	c = remoteCluster("c1", 1)
	c.Galaxy = nil
	_, err = r.ReconcileCluster(admin, remote, c)
	assert.Equal(t, ErrMissingGalaxy, err)

	_, err = r.ReconcileCluster(syncer, remote, remoteCluster("c1", 1))
	assert.Equal(t, ErrGalaxyPermission, err)

	_, err = st.CreateCluster(&data.GalaxyCluster{UUID: "local", Type: "threat-actor", Version: 1})
	require.NoError(t, err)
	_, err = r.ReconcileCluster(admin, remote, remoteCluster("local", 5))
	assert.Equal(t, ErrClusterNotLocked, err)

	// internal peers may overwrite unlocked clusters
	outcome, err := r.ReconcileCluster(admin, trusted, remoteCluster("local", 5))
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)
}

func TestReconcileClusterCreateAndVersion(t *testing.T) {
	r, st := newTestReconciler(t)

	outcome, err := r.ReconcileCluster(admin, remote, remoteCluster("c1", 2))
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)

	stored, err := st.ClusterByUUID("c1")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.Equal(t, data.ThisCommunity, stored.Distribution)
	assert.Equal(t, admin.OrgID, stored.OrgID)
	assert.NotEqual(t, hostOrg, stored.OrgcID)
	assert.Equal(t, stored.ID, stored.Elements[0].GalaxyClusterID)
	assert.NotZero(t, stored.GalaxyID)
	assert.Equal(t, `misp-galaxy:threat-actor="c1"`, stored.TagName)

	orgc, err := st.OrgByUUID("remote-org")
	require.NoError(t, err)
	assert.False(t, orgc.Local)
	assert.Equal(t, orgc.ID, stored.OrgcID)

	t.Run("same or older version is skipped", func(t *testing.T) {
		for _, version := range []int64{1, 2} {
			outcome, err := r.ReconcileCluster(admin, remote, remoteCluster("c1", version))
			require.NoError(t, err)
			assert.Equal(t, Skipped, outcome)
		}
		after, err := st.ClusterByUUID("c1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), after.Version)
	})

	t.Run("newer version updates in place", func(t *testing.T) {
		outcome, err := r.ReconcileCluster(admin, remote, remoteCluster("c1", 3))
		require.NoError(t, err)
		assert.Equal(t, Updated, outcome)
		after, err := st.ClusterByUUID("c1")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, after.ID)
		assert.Equal(t, stored.GalaxyID, after.GalaxyID)
		assert.Equal(t, int64(3), after.Version)
		assert.Equal(t, stored.ID, after.Elements[0].GalaxyClusterID)
	})

	t.Run("existing galaxy needs no permission", func(t *testing.T) {
		outcome, err := r.ReconcileCluster(syncer, remote, remoteCluster("c2", 1))
		require.NoError(t, err)
		assert.Equal(t, Created, outcome)
	})
}

func TestReconcileClusterDistribution(t *testing.T) {
	r, st := newTestReconciler(t)

	c := remoteCluster("trusted", 1)
	_, err := r.ReconcileCluster(admin, trusted, c)
	require.NoError(t, err)
	stored, err := st.ClusterByUUID("trusted")
	require.NoError(t, err)
	assert.Equal(t, data.ConnectedCommunities, stored.Distribution)

	c = remoteCluster("community", 1)
	c.Distribution = data.ThisCommunity
	_, err = r.ReconcileCluster(admin, remote, c)
	require.NoError(t, err)
	stored, err = st.ClusterByUUID("community")
	require.NoError(t, err)
	assert.Equal(t, data.OwnOrganisation, stored.Distribution)

	sg := st.AddSharingGroup(data.SharingGroup{UUID: "sg-known", OrgID: hostOrg})

	c = remoteCluster("sg-known", 1)
	c.Distribution = data.SharingGroupDistribution
	c.SharingGroupID = 1234
	c.SharingGroup = &data.SharingGroup{ID: 1234, UUID: "sg-known"}
	_, err = r.ReconcileCluster(syncer, remote, c)
	require.NoError(t, err)
	stored, err = st.ClusterByUUID("sg-known")
	require.NoError(t, err)
	assert.Equal(t, data.SharingGroupDistribution, stored.Distribution)
	assert.Equal(t, sg.ID, stored.SharingGroupID)

	c = remoteCluster("sg-unknown", 1)
	c.Distribution = data.SharingGroupDistribution
	c.SharingGroupID = 1234
	c.SharingGroup = &data.SharingGroup{ID: 1234, UUID: "sg-unknown"}
	_, err = r.ReconcileCluster(syncer, remote, c)
	require.NoError(t, err)
	stored, err = st.ClusterByUUID("sg-unknown")
	require.NoError(t, err)
	assert.Equal(t, data.OwnOrganisation, stored.Distribution)
	assert.Zero(t, stored.SharingGroupID)

	c = remoteCluster("no-orgc", 1)
	c.Orgc = nil
	_, err = r.ReconcileCluster(syncer, remote, c)
	require.NoError(t, err)
	stored, err = st.ClusterByUUID("no-orgc")
	require.NoError(t, err)
	assert.Equal(t, syncer.OrgID, stored.OrgcID)
}

func remoteEvent(uuid string, timestamp int64) *data.Event {
	return &data.Event{
		ID:            500,
		UUID:          uuid,
		Info:          "remote event",
		OrgID:         40,
		OrgcID:        41,
		ThreatLevelID: 2,
		Distribution:  data.ConnectedCommunities,
		Published:     true,
		Timestamp:     timestamp,
		Orgc:          &data.Organisation{ID: 41, UUID: "creator", Name: "Creator"},
		Attributes: []data.Attribute{
			{ID: 900, UUID: uuid + "-a1", Type: "ip-dst", Value: "1.2.3.4", Distribution: data.ThisCommunity},
			{ID: 901, UUID: uuid + "-a2", Type: "domain", Value: "evil.example", Distribution: data.InheritEvent},
			{ID: 902, UUID: uuid + "-a3", Type: "url", Value: "http://x", Distribution: data.SharingGroupDistribution, SharingGroupID: 77},
		},
		ShadowAttributes: []data.ShadowAttribute{{UUID: "ignored"}},
	}
}

func TestReconcileEvent(t *testing.T) {
	r, st := newTestReconciler(t)

	outcome, stored, err := r.ReconcileEvent(syncer, remote, remoteEvent("e1", 100))
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)
	require.NotNil(t, stored)

	assert.NotEqual(t, int64(500), stored.ID)
	assert.Equal(t, remote.OrgID, stored.OrgID)
	assert.True(t, stored.Locked)
	assert.Equal(t, data.ThisCommunity, stored.Distribution)
	assert.Equal(t, data.OwnOrganisation, stored.Attributes[0].Distribution)
	assert.Equal(t, data.InheritEvent, stored.Attributes[1].Distribution)
	assert.Equal(t, data.OwnOrganisation, stored.Attributes[2].Distribution)
	assert.Zero(t, stored.Attributes[2].SharingGroupID)
	assert.Equal(t, int64(2), stored.ThreatLevelID)
	assert.Empty(t, stored.ShadowAttributes)

	orgc, err := st.OrgByUUID("creator")
	require.NoError(t, err)
	assert.Equal(t, orgc.ID, stored.OrgcID)

	t.Run("unchanged event is skipped", func(t *testing.T) {
		outcome, _, err := r.ReconcileEvent(syncer, remote, remoteEvent("e1", 100))
		require.NoError(t, err)
		assert.Equal(t, Skipped, outcome)
	})

	t.Run("newer event updates in place", func(t *testing.T) {
		outcome, updated, err := r.ReconcileEvent(syncer, remote, remoteEvent("e1", 200))
		require.NoError(t, err)
		assert.Equal(t, Updated, outcome)
		assert.Equal(t, stored.ID, updated.ID)
		assert.Equal(t, stored.Attributes[0].ID, updated.Attributes[0].ID)
		assert.Equal(t, int64(200), updated.Timestamp)
	})

	t.Run("locally created event is never overwritten", func(t *testing.T) {
		local := remoteEvent("mine", 1)
		local.Locked = false
		_, err := st.CreateEvent(local)
		require.NoError(t, err)
		outcome, _, err := r.ReconcileEvent(syncer, remote, remoteEvent("mine", 999))
		require.NoError(t, err)
		assert.Equal(t, Skipped, outcome)

		//internal servers do not overwrite unlocked events either
		outcome, _, err = r.ReconcileEvent(syncer, trusted, remoteEvent("mine", 999))
		require.NoError(t, err)
		assert.Equal(t, Skipped, outcome)
		kept, err := st.EventByUUID("mine")
		require.NoError(t, err)
		assert.False(t, kept.Locked)
		assert.Equal(t, int64(1), kept.Timestamp)
	})

	t.Run("unknown threat level falls back to undefined", func(t *testing.T) {
		event := remoteEvent("e2", 1)
		event.ThreatLevelID = 42
		_, stored, err := r.ReconcileEvent(syncer, remote, event)
		require.NoError(t, err)
		assert.Equal(t, data.UndefinedThreatLevel, stored.ThreatLevelID)
	})

	t.Run("missing creator fails", func(t *testing.T) {
		event := remoteEvent("e3", 1)
		event.Orgc = nil
		_, _, err := r.ReconcileEvent(syncer, remote, event)
		assert.ErrorIs(t, err, ErrOrgcUnresolved)
		_, ok, err := st.EventIDExists("e3")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("trusted server keeps distribution", func(t *testing.T) {
		_, stored, err := r.ReconcileEvent(syncer, trusted, remoteEvent("e4", 1))
		require.NoError(t, err)
		assert.Equal(t, data.ConnectedCommunities, stored.Distribution)
		assert.Equal(t, data.ThisCommunity, stored.Attributes[0].Distribution)
	})
}

func TestReconcileEventSharingGroup(t *testing.T) {
	r, st := newTestReconciler(t)
	sg := st.AddSharingGroup(data.SharingGroup{
		UUID:          "sg-1",
		Organisations: []data.SharingGroupOrg{{OrgID: remote.RemoteOrgID}},
	})

	event := remoteEvent("e1", 1)
	event.Distribution = data.SharingGroupDistribution
	event.SharingGroupID = 77
	event.SharingGroup = &data.SharingGroup{ID: 77, UUID: "sg-1"}
	_, stored, err := r.ReconcileEvent(syncer, remote, event)
	require.NoError(t, err)
	assert.Equal(t, data.SharingGroupDistribution, stored.Distribution)
	assert.Equal(t, sg.ID, stored.SharingGroupID)
	assert.Equal(t, data.SharingGroupDistribution, stored.Attributes[2].Distribution)
	assert.Equal(t, sg.ID, stored.Attributes[2].SharingGroupID)
}

func TestCaptureOrgc(t *testing.T) {
	r, st := newTestReconciler(t)

	_, err := st.CreateOrg(&data.Organisation{UUID: "other", Name: "Clash"})
	require.NoError(t, err)

	id, err := r.CaptureOrgc(&data.Organisation{UUID: "new-uuid", Name: "Clash"})
	require.NoError(t, err)
	org, err := st.OrgByID(id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(org.Name, "Clash_"))
	assert.False(t, org.Local)

	again, err := r.CaptureOrgc(&data.Organisation{UUID: "new-uuid", Name: "Clash"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = r.CaptureOrgc(nil)
	assert.Error(t, err)
	_, err = r.CaptureOrgc(&data.Organisation{Name: "no uuid"})
	assert.Error(t, err)
}

// slowOrgStore widens the window between the name lookup and the insert
type slowOrgStore struct {
	*store.MemoryStore
}

func (s slowOrgStore) OrgByName(name string) (*data.Organisation, error) {
	time.Sleep(5 * time.Millisecond)
	return s.MemoryStore.OrgByName(name)
}

func TestCaptureOrgcConcurrent(t *testing.T) {
	conf := &config.Config{}
	conf.S.Sync.HostOrgID = hostOrg
	conf.S.Sync.OrgCacheSize = 16
	logger, _ := test.NewNullLogger()
	st := store.NewMemoryStore()
	r, err := New(slowOrgStore{st}, conf, logger)
	require.NoError(t, err)

	const workers = 4
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = r.CaptureOrgc(&data.Organisation{UUID: "new-org", Name: "New"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	org, err := st.OrgByUUID("new-org")
	require.NoError(t, err)
	assert.Equal(t, ids[0], org.ID)

	// a different organisation with the same name gets a suffix
	other, err := r.CaptureOrgc(&data.Organisation{UUID: "other-org", Name: "New"})
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], other)
}

func TestReconcileProposalAndSightings(t *testing.T) {
	r, st := newTestReconciler(t)

	err := r.ReconcileProposal(remote, &data.ShadowAttribute{UUID: "p1", EventUUID: "missing"})
	assert.Equal(t, ErrUnknownEvent, err)

	_, stored, err := r.ReconcileEvent(syncer, remote, remoteEvent("e1", 1))
	require.NoError(t, err)

	proposal := &data.ShadowAttribute{UUID: "p1", EventUUID: "e1", EventID: 999, OldID: 900, Value: "5.6.7.8"}
	require.NoError(t, r.ReconcileProposal(remote, proposal))
	event, err := st.EventByUUID("e1")
	require.NoError(t, err)
	require.Len(t, event.ShadowAttributes, 1)
	assert.Equal(t, stored.ID, event.ShadowAttributes[0].EventID)
	assert.Zero(t, event.ShadowAttributes[0].OldID)

	added, err := r.ReconcileSightings(remote, "e1", []data.Sighting{
		{UUID: "s1", AttributeUUID: "e1-a1"},
		{UUID: "s2", AttributeUUID: "unknown-attribute"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	sightings, err := st.EventSightings(stored.ID)
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, stored.Attributes[0].ID, sightings[0].AttributeID)

	added, err = r.ReconcileSightings(remote, "e1", []data.Sighting{{UUID: "s1", AttributeUUID: "e1-a1"}})
	require.NoError(t, err)
	assert.Zero(t, added)
}
