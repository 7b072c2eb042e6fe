package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistributionDowngrade(t *testing.T) {
	cases := []struct {
		in  Distribution
		out Distribution
	}{
		{OwnOrganisation, OwnOrganisation},
		{ThisCommunity, OwnOrganisation},
		{ConnectedCommunities, ThisCommunity},
		{AllCommunities, AllCommunities},
		{SharingGroupDistribution, SharingGroupDistribution},
		{InheritEvent, InheritEvent},
	}
	for _, c := range cases {
		t.Run(c.in.String(), func(t *testing.T) {
			assert.Equal(t, c.out, c.in.Downgrade())
		})
	}
}

func TestDistributionValid(t *testing.T) {
	assert.True(t, OwnOrganisation.Valid())
	assert.True(t, InheritEvent.Valid())
	assert.False(t, Distribution(6).Valid())
	assert.False(t, Distribution(-1).Valid())
	assert.Equal(t, "distribution(9)", Distribution(9).String())
}

func TestClusterTagName(t *testing.T) {
	name := ClusterTagName("threat-actor", "7cdff317-a673-4474-84ec-4f1754947823")
	assert.Equal(t, `misp-galaxy:threat-actor="7cdff317-a673-4474-84ec-4f1754947823"`, name)

	clusterType, uuid, ok := ParseClusterTagName(name)
	assert.True(t, ok)
	assert.Equal(t, "threat-actor", clusterType)
	assert.Equal(t, "7cdff317-a673-4474-84ec-4f1754947823", uuid)

	for _, bad := range []string{"tlp:white", "misp-galaxy:", `misp-galaxy:="x"`, `misp-galaxy:type=""`} {
		_, _, ok := ParseClusterTagName(bad)
		assert.False(t, ok, bad)
	}
}

func TestEventMinimal(t *testing.T) {
	event := Event{
		ID:             12,
		UUID:           "event-uuid",
		OrgID:          1,
		OrgcID:         2,
		Distribution:   ConnectedCommunities,
		Published:      true,
		Timestamp:      1600000000,
		AttributeCount: 3,
		Orgc:           &Organisation{ID: 2, UUID: "orgc-uuid"},
		Tags:           []Tag{{Name: "tlp:green"}, {Name: "apt"}},
	}
	m := event.Minimal()
	assert.Equal(t, int64(12), m.ID)
	assert.Equal(t, "orgc-uuid", m.OrgcUUID)
	assert.Equal(t, []string{"tlp:green", "apt"}, m.Tags)
	assert.Equal(t, ConnectedCommunities, m.Distribution)
	assert.Equal(t, []string{"tlp:green", "apt"}, event.TagNames())
}

func TestEventAllAttributes(t *testing.T) {
	event := Event{
		Attributes: []Attribute{{ID: 1}},
		Objects: []Object{
			{ID: 10, Attributes: []Attribute{{ID: 2}, {ID: 3}}},
			{ID: 11},
		},
	}
	all := event.AllAttributes()
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), all[2].ID)
}

func TestAttributeCorrelatable(t *testing.T) {
	assert.True(t, (&Attribute{}).Correlatable())
	assert.False(t, (&Attribute{Deleted: true}).Correlatable())
	assert.False(t, (&Attribute{DisableCorrelation: true}).Correlatable())
}

func TestSets(t *testing.T) {
	s := NewStringSet("b", "a")
	s.Insert("c")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("d"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Items())

	ids := Int64Set{}
	ids.Insert(5)
	ids.Insert(1)
	ids.Insert(5)
	assert.Equal(t, []int64{1, 5}, ids.Items())
	assert.True(t, ids.Contains(1))
}

func TestSharingGroupHasMember(t *testing.T) {
	sg := SharingGroup{Organisations: []SharingGroupOrg{{OrgID: 4}, {OrgID: 9}}}
	assert.True(t, sg.HasMember(9))
	assert.False(t, sg.HasMember(1))
}

func TestOrgMatchKeys(t *testing.T) {
	org := Organisation{ID: 3, UUID: "u-3", Name: "CIRCL"}
	assert.Equal(t, []string{"3", "u-3", "CIRCL"}, org.OrgMatchKeys())
	assert.Equal(t, []string{"4"}, (&Organisation{ID: 4}).OrgMatchKeys())
}

func TestCorrelatingAttributeSide(t *testing.T) {
	ca := CorrelatingAttribute{
		Attribute: Attribute{ID: 7, ObjectID: 2, Distribution: InheritEvent, SharingGroupID: 0},
		Event:     MinimalEvent{ID: 3, UUID: "e3", OrgID: 1, Distribution: SharingGroupDistribution, SharingGroupID: 6},
	}
	side := ca.Side()
	assert.Equal(t, int64(7), side.AttributeID)
	assert.Equal(t, "e3", side.EventUUID)
	assert.Equal(t, InheritEvent, side.Distribution)
	assert.Equal(t, SharingGroupDistribution, side.EventDistribution)
	assert.Equal(t, int64(6), side.EventSharingGroupID)
}
