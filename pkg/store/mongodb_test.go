// +build integration

package store

import (
	"testing"
	"time"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMongoStore(t *testing.T) *MongoStore {
	res := resources.InitIntegrationTestingResources(t)
	err := res.DB.Session.DB(res.DB.GetSelectedDB()).DropDatabase()
	require.NoError(t, err)
	s := NewMongoStore(res.DB, res.Config, res.Log)
	require.NoError(t, s.CreateIndexes())
	return s
}

func TestMongoStoreEvents(t *testing.T) {
	s := newTestMongoStore(t)
	_, err := s.CreateOrg(&data.Organisation{ID: 1, UUID: "org-1", Name: "ORG"})
	require.NoError(t, err)

	created, err := s.CreateEvent(testEvent("e1"))
	require.NoError(t, err)
	assert.Equal(t, 2, created.AttributeCount)
	require.NotNil(t, created.Orgc)
	require.Len(t, created.Objects, 1)
	require.Len(t, created.Objects[0].Attributes, 1)

	_, err = s.CreateEvent(testEvent("e1"))
	assert.True(t, IsDuplicate(err))

	update := testEvent("e1")
	update.Attributes = update.Attributes[:1]
	update.Timestamp = 300
	updated, err := s.UpdateEvent(update)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Len(t, updated.Attributes, 1)
	assert.Equal(t, int64(300), updated.Timestamp)

	level, err := s.ThreatLevel(data.UndefinedThreatLevel)
	require.NoError(t, err)
	assert.Equal(t, "Undefined", level.Name)
	_, err = s.ThreatLevel(99)
	assert.Equal(t, ErrNotFound, err)

	minimal, err := s.MinimalEvents()
	require.NoError(t, err)
	require.Len(t, minimal, 1)
	assert.Equal(t, "org-1", minimal[0].OrgcUUID)
}

func TestMongoStoreClusters(t *testing.T) {
	s := newTestMongoStore(t)
	cluster, err := s.CreateCluster(&data.GalaxyCluster{
		UUID:      "c1",
		Type:      "threat-actor",
		Published: true,
		Elements:  []data.GalaxyElement{{Key: "synonyms", Value: "APT0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, cluster.ID, cluster.Elements[0].GalaxyClusterID)

	_, err = s.CreateCluster(&data.GalaxyCluster{UUID: "c1"})
	assert.True(t, IsDuplicate(err))

	pushable, err := s.PushableClusters()
	require.NoError(t, err)
	assert.Len(t, pushable, 1)

	cluster.Version = 3
	_, err = s.UpdateCluster(cluster)
	require.NoError(t, err)
	stored, err := s.ClusterByUUID("c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
}

func TestMongoStoreCorrelations(t *testing.T) {
	s := newTestMongoStore(t)
	id, err := s.AddCorrelationValue("1.2.3.4")
	require.NoError(t, err)
	again, err := s.AddCorrelationValue("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	rows := []data.Correlation{
		{ValueID: id, Side1: data.CorrelationSide{AttributeID: 1}, Side2: data.CorrelationSide{AttributeID: 2}},
		{ValueID: id, Side1: data.CorrelationSide{AttributeID: 1}, Side2: data.CorrelationSide{AttributeID: 3}},
	}
	added, err := s.AddCorrelations(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	added, err = s.AddCorrelations(rows)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	n, err := s.NumberOfCorrelations("1.2.3.4", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := s.Correlations("1.2.3.4")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(3), stored[1].Side2.AttributeID)

	removed, err := s.DeleteCorrelations("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	require.NoError(t, s.AddOverCorrelatingValue("9.9.9.9", 25))
	require.NoError(t, s.AddOverCorrelatingValue("9.9.9.9", 26))
	over, err := s.OverCorrelatingValues()
	require.NoError(t, err)
	assert.Equal(t, []data.OverCorrelatingValue{{Value: "9.9.9.9", Occurrence: 26}}, over)

	require.NoError(t, s.AddExcludedCorrelation("8.8.8.8"))
	excluded, err := s.ExcludedCorrelations()
	require.NoError(t, err)
	assert.Equal(t, []string{"8.8.8.8"}, excluded)

	require.NoError(t, s.SaveThreshold(40))
	threshold, ok, err := s.Threshold()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 40, threshold)
}

func TestMongoStoreUpdateCheck(t *testing.T) {
	s := newTestMongoStore(t)

	checked, version, err := s.LastUpdateCheck()
	require.NoError(t, err)
	assert.True(t, checked.IsZero())
	assert.Empty(t, version)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.SaveUpdateCheck(now, "1.2.3"))

	checked, version, err = s.LastUpdateCheck()
	require.NoError(t, err)
	assert.True(t, now.Equal(checked))
	assert.Equal(t, "1.2.3", version)

	//the threshold lives in the same collection
	require.NoError(t, s.SaveThreshold(12))
	threshold, ok, err := s.Threshold()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, threshold)
}
