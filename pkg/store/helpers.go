package store

import (
	"sort"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/google/uuid"
)

//DefaultThreatLevels are seeded into a new store
var DefaultThreatLevels = []data.ThreatLevel{
	{ID: 1, Name: "High"},
	{ID: 2, Name: "Medium"},
	{ID: 3, Name: "Low"},
	{ID: data.UndefinedThreatLevel, Name: "Undefined"},
}

// id counter names
const (
	eventCounter        = "events"
	attributeCounter    = "attributes"
	objectCounter       = "objects"
	clusterCounter      = "galaxy_clusters"
	elementCounter      = "galaxy_elements"
	relationCounter     = "galaxy_cluster_relations"
	galaxyCounter       = "galaxies"
	orgCounter          = "organisations"
	proposalCounter     = "shadow_attributes"
	sightingCounter     = "sightings"
	valueCounter        = "correlation_values"
	sharingGroupCounter = "sharing_groups"
)

// assignEventIDs numbers the event, its objects and its attributes. Rows
// already present in existing (matched by UUID) keep their local ids and
// rows without a UUID are given one.
func assignEventIDs(event *data.Event, existing *data.Event, next func(string) (int64, error)) error {
	oldAttrs := map[string]int64{}
	oldObjects := map[string]int64{}
	if existing != nil {
		event.ID = existing.ID
		for _, attr := range existing.AllAttributes() {
			oldAttrs[attr.UUID] = attr.ID
		}
		for _, obj := range existing.Objects {
			oldObjects[obj.UUID] = obj.ID
		}
	} else {
		id, err := next(eventCounter)
		if err != nil {
			return err
		}
		event.ID = id
	}

	numberAttr := func(attr *data.Attribute, objectID int64) error {
		if attr.UUID == "" {
			attr.UUID = uuid.New().String()
		}
		if id, ok := oldAttrs[attr.UUID]; ok && attr.UUID != "" {
			attr.ID = id
		} else {
			id, err := next(attributeCounter)
			if err != nil {
				return err
			}
			attr.ID = id
		}
		attr.EventID = event.ID
		attr.EventUUID = event.UUID
		attr.ObjectID = objectID
		return nil
	}

	count := 0
	for i := range event.Attributes {
		if err := numberAttr(&event.Attributes[i], 0); err != nil {
			return err
		}
		if !event.Attributes[i].Deleted {
			count++
		}
	}

	for i := range event.Objects {
		obj := &event.Objects[i]
		if obj.UUID == "" {
			obj.UUID = uuid.New().String()
		}
		if id, ok := oldObjects[obj.UUID]; ok && obj.UUID != "" {
			obj.ID = id
		} else {
			id, err := next(objectCounter)
			if err != nil {
				return err
			}
			obj.ID = id
		}
		obj.EventID = event.ID
		for j := range obj.Attributes {
			if err := numberAttr(&obj.Attributes[j], obj.ID); err != nil {
				return err
			}
			if !obj.Attributes[j].Deleted {
				count++
			}
		}
	}
	event.AttributeCount = count
	return nil
}

// assignClusterIDs numbers the elements and relations of a cluster
// attached to the cluster id
func assignClusterIDs(cluster *data.GalaxyCluster, next func(string) (int64, error)) error {
	for i := range cluster.Elements {
		id, err := next(elementCounter)
		if err != nil {
			return err
		}
		cluster.Elements[i].ID = id
		cluster.Elements[i].GalaxyClusterID = cluster.ID
	}
	for i := range cluster.Relations {
		id, err := next(relationCounter)
		if err != nil {
			return err
		}
		cluster.Relations[i].ID = id
		cluster.Relations[i].GalaxyClusterID = cluster.ID
		cluster.Relations[i].GalaxyClusterUUID = cluster.UUID
	}
	return nil
}

// clusterAccessible reports whether the user may see the cluster
func clusterAccessible(cluster *data.GalaxyCluster, user data.User, groups map[int64]*data.SharingGroup) bool {
	if user.SiteAdmin {
		return true
	}
	if cluster.OrgID == user.OrgID || cluster.OrgcID == user.OrgID {
		return true
	}
	switch cluster.Distribution {
	case data.ThisCommunity, data.ConnectedCommunities, data.AllCommunities:
		return true
	case data.SharingGroupDistribution:
		sg, ok := groups[cluster.SharingGroupID]
		return ok && (sg.OrgID == user.OrgID || sg.HasMember(user.OrgID))
	}
	return false
}

// groupByObject splits attributes loaded from storage back onto the
// event and its objects
func groupByObject(event *data.Event, attrs []data.Attribute) {
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].ID < attrs[j].ID })
	objects := map[int64]int{}
	for i := range event.Objects {
		event.Objects[i].Attributes = nil
		objects[event.Objects[i].ID] = i
	}
	event.Attributes = nil
	for _, attr := range attrs {
		if idx, ok := objects[attr.ObjectID]; ok && attr.ObjectID != 0 {
			event.Objects[idx].Attributes = append(event.Objects[idx].Attributes, attr)
			continue
		}
		event.Attributes = append(event.Attributes, attr)
	}
}

// pairKey identifies an unordered attribute pair
func pairKey(c data.Correlation) [2]int64 {
	a, b := c.Side1.AttributeID, c.Side2.AttributeID
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}
