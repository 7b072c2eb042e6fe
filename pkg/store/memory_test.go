package store

import (
	"testing"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(uuid string) *data.Event {
	return &data.Event{
		UUID:         uuid,
		Info:         "test event",
		OrgcID:       1,
		Distribution: data.ThisCommunity,
		Published:    true,
		Timestamp:    100,
		Attributes: []data.Attribute{
			{UUID: uuid + "-a1", Type: "ip-src", Value: "10.0.0.1"},
			{UUID: uuid + "-a2", Type: "domain", Value: "example.com", Deleted: true},
		},
		Objects: []data.Object{
			{
				UUID: uuid + "-o1",
				Name: "file",
				Attributes: []data.Attribute{
					{UUID: uuid + "-o1a1", Type: "md5", Value: "d41d8cd98f00b204e9800998ecf8427e"},
				},
			},
		},
	}
}

func TestMemoryStoreEvents(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.CreateOrg(&data.Organisation{ID: 1, UUID: "org-1", Name: "ORG"})
	require.NoError(t, err)

	created, err := s.CreateEvent(testEvent("e1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, 2, created.AttributeCount)
	require.NotNil(t, created.Orgc)
	assert.Equal(t, "org-1", created.Orgc.UUID)
	require.Len(t, created.Objects, 1)
	require.Len(t, created.Objects[0].Attributes, 1)
	assert.Equal(t, created.Objects[0].ID, created.Objects[0].Attributes[0].ObjectID)
	assert.Equal(t, "e1", created.Attributes[0].EventUUID)

	t.Run("duplicate", func(t *testing.T) {
		_, err := s.CreateEvent(testEvent("e1"))
		assert.True(t, IsDuplicate(err))
	})

	t.Run("update keeps ids", func(t *testing.T) {
		update := testEvent("e1")
		update.Timestamp = 200
		update.Attributes = append(update.Attributes, data.Attribute{Type: "url", Value: "http://x"})
		updated, err := s.UpdateEvent(update)
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, created.Attributes[0].ID, updated.Attributes[0].ID)
		assert.NotEmpty(t, updated.Attributes[2].UUID)
		assert.Equal(t, int64(200), updated.Timestamp)
	})

	t.Run("update missing", func(t *testing.T) {
		_, err := s.UpdateEvent(testEvent("missing"))
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("lookup", func(t *testing.T) {
		id, ok, err := s.EventIDExists("e1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, created.ID, id)

		_, ok, err = s.EventIDExists("nope")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.EventByUUID("nope")
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("minimal", func(t *testing.T) {
		events, err := s.MinimalEvents()
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "org-1", events[0].OrgcUUID)
	})
}

func TestMemoryStoreProposalsAndSightings(t *testing.T) {
	s := NewMemoryStore()
	event, err := s.CreateEvent(testEvent("e1"))
	require.NoError(t, err)

	proposal := &data.ShadowAttribute{UUID: "p1", EventID: event.ID, Value: "1.2.3.4"}
	require.NoError(t, s.SaveProposal(proposal))
	firstID := proposal.ID
	proposal.Value = "5.6.7.8"
	require.NoError(t, s.SaveProposal(proposal))
	assert.Equal(t, firstID, proposal.ID)

	loaded, err := s.EventByID(event.ID)
	require.NoError(t, err)
	require.Len(t, loaded.ShadowAttributes, 1)
	assert.Equal(t, "5.6.7.8", loaded.ShadowAttributes[0].Value)

	added, err := s.AddSightings([]data.Sighting{
		{UUID: "s1", EventID: event.ID},
		{UUID: "s2", EventID: event.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.AddSightings([]data.Sighting{{UUID: "s1", EventID: event.ID}})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	sightings, err := s.EventSightings(event.ID)
	require.NoError(t, err)
	assert.Len(t, sightings, 2)
}

func TestMemoryStoreClusters(t *testing.T) {
	s := NewMemoryStore()
	sg := s.AddSharingGroup(data.SharingGroup{
		UUID:          "sg-1",
		Organisations: []data.SharingGroupOrg{{OrgID: 7}},
	})

	clusters := []*data.GalaxyCluster{
		{UUID: "c1", Type: "threat-actor", Distribution: data.OwnOrganisation, OrgID: 1, Published: true},
		{UUID: "c2", Type: "threat-actor", Distribution: data.ThisCommunity, OrgID: 2, Published: true},
		{UUID: "c3", Type: "threat-actor", Distribution: data.SharingGroupDistribution, SharingGroupID: sg.ID, OrgID: 2},
		{UUID: "c4", Type: "threat-actor", Default: true, Distribution: data.AllCommunities},
	}
	for _, c := range clusters {
		_, err := s.CreateCluster(c)
		require.NoError(t, err)
	}

	stored, err := s.ClusterByUUID("c1")
	require.NoError(t, err)
	assert.Equal(t, `misp-galaxy:threat-actor="c1"`, stored.TagName)

	_, err = s.CreateCluster(&data.GalaxyCluster{UUID: "c1"})
	assert.True(t, IsDuplicate(err))

	t.Run("accessible", func(t *testing.T) {
		visible, err := s.AccessibleClusters(data.User{OrgID: 7})
		require.NoError(t, err)
		var uuids []string
		for _, c := range visible {
			uuids = append(uuids, c.UUID)
		}
		assert.Equal(t, []string{"c2", "c3"}, uuids)

		visible, err = s.AccessibleClusters(data.User{OrgID: 1})
		require.NoError(t, err)
		uuids = nil
		for _, c := range visible {
			uuids = append(uuids, c.UUID)
		}
		assert.Equal(t, []string{"c1", "c2"}, uuids)
	})

	t.Run("pushable", func(t *testing.T) {
		pushable, err := s.PushableClusters()
		require.NoError(t, err)
		assert.Len(t, pushable, 2)
	})

	t.Run("update", func(t *testing.T) {
		update := &data.GalaxyCluster{UUID: "c2", Type: "threat-actor", Version: 5,
			Elements: []data.GalaxyElement{{Key: "country", Value: "X"}}}
		updated, err := s.UpdateCluster(update)
		require.NoError(t, err)
		assert.Equal(t, stored.ID+1, updated.ID)
		assert.Equal(t, updated.ID, updated.Elements[0].GalaxyClusterID)
		assert.Equal(t, `misp-galaxy:threat-actor="c2"`, updated.TagName)

		_, err = s.UpdateCluster(&data.GalaxyCluster{UUID: "nope"})
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("galaxies", func(t *testing.T) {
		_, ok, err := s.GalaxyIDExists("g1")
		require.NoError(t, err)
		assert.False(t, ok)
		galaxy, err := s.CreateGalaxy(&data.Galaxy{UUID: "g1"})
		require.NoError(t, err)
		id, ok, err := s.GalaxyIDExists("g1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, galaxy.ID, id)

		byID, err := s.GalaxyByID(id)
		require.NoError(t, err)
		assert.Equal(t, "g1", byID.UUID)
		_, err = s.GalaxyByID(id + 100)
		assert.Equal(t, ErrNotFound, err)
	})
}

func TestMemoryStoreOrgs(t *testing.T) {
	s := NewMemoryStore()
	org, err := s.CreateOrg(&data.Organisation{UUID: "o1", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), org.ID)

	found, err := s.OrgByName("ACME")
	require.NoError(t, err)
	assert.Equal(t, "o1", found.UUID)

	_, err = s.CreateOrg(&data.Organisation{UUID: "o2", Name: "acme"})
	assert.True(t, IsDuplicate(err))

	_, err = s.OrgByUUID("missing")
	assert.Equal(t, ErrNotFound, err)

	preset, err := s.CreateOrg(&data.Organisation{ID: 10, UUID: "o3", Name: "Preset"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), preset.ID)
	next, err := s.CreateOrg(&data.Organisation{UUID: "o4", Name: "Next"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), next.ID)
}

func TestMemoryStoreServers(t *testing.T) {
	s := NewMemoryStore()
	s.AddServer(data.Server{ID: 1, Name: "peer"})
	require.NoError(t, s.SetLastPushedID(1, 105))
	require.NoError(t, s.SetLastPulledID(1, 42))
	server, err := s.Server(1)
	require.NoError(t, err)
	assert.Equal(t, int64(105), server.LastPushedID)
	assert.Equal(t, int64(42), server.LastPulledID)
	assert.Equal(t, ErrNotFound, s.SetLastPushedID(2, 1))

	s.BlockEvent("e1")
	s.BlockOrg("o1")
	s.BlockCluster("c1")
	lists, err := s.Blocklists()
	require.NoError(t, err)
	assert.True(t, lists.Events.Contains("e1"))
	assert.True(t, lists.Orgs.Contains("o1"))
	assert.True(t, lists.Clusters.Contains("c1"))
}

func TestMemoryStoreCorrelations(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.AddCorrelationValue("1.2.3.4")
	require.NoError(t, err)
	again, err := s.AddCorrelationValue("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	rows := []data.Correlation{
		{ValueID: id, Side1: data.CorrelationSide{AttributeID: 1}, Side2: data.CorrelationSide{AttributeID: 2}},
		{ValueID: id, Side1: data.CorrelationSide{AttributeID: 2}, Side2: data.CorrelationSide{AttributeID: 1}},
		{ValueID: id, Side1: data.CorrelationSide{AttributeID: 1}, Side2: data.CorrelationSide{AttributeID: 3}},
	}
	added, err := s.AddCorrelations(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	n, err := s.NumberOfCorrelations("1.2.3.4", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := s.Correlations("1.2.3.4")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(2), stored[0].Side2.AttributeID)
	assert.Equal(t, int64(3), stored[1].Side2.AttributeID)
	stored, err = s.Correlations("unknown")
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, s.AddOverCorrelatingValue("1.2.3.4", 30))
	n, err = s.NumberOfCorrelations("1.2.3.4", false)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	n, err = s.NumberOfCorrelations("1.2.3.4", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := s.DeleteCorrelations("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	removed, err = s.DeleteCorrelations("unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	require.NoError(t, s.DeleteOverCorrelatingValue("1.2.3.4"))
	over, err := s.IsOverCorrelatingValue("1.2.3.4")
	require.NoError(t, err)
	assert.False(t, over)

	require.NoError(t, s.AddExcludedCorrelation("8.8.8.8"))
	excluded, err := s.IsExcludedCorrelation("8.8.8.8")
	require.NoError(t, err)
	assert.True(t, excluded)

	_, ok, err := s.Threshold()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.SaveThreshold(30))
	threshold, ok, err := s.Threshold()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30, threshold)
}

func TestMemoryStoreAttributesWithValue(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.CreateEvent(testEvent("e1"))
	require.NoError(t, err)
	_, err = s.CreateEvent(testEvent("e2"))
	require.NoError(t, err)

	attrs, err := s.AttributesWithValue("10.0.0.1")
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "e1", attrs[0].Event.UUID)
	assert.Equal(t, "e2", attrs[1].Event.UUID)

	attrs, err = s.AttributesWithValue("d41d8cd98f00b204e9800998ecf8427e")
	require.NoError(t, err)
	assert.Len(t, attrs, 2)
}
