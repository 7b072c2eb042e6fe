package store

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/database"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	log "github.com/sirupsen/logrus"
)

var _ Store = (*MongoStore)(nil)

const (
	// thresholdSetting is the settings document holding the correlation threshold
	thresholdSetting = "correlation_threshold"

	// updateCheckSetting is the settings document recording the last release check
	updateCheckSetting = "update_check"
)

type (
	//MongoStore implements Store on top of MongoDB. MongoDB offers no
	//multi-document transactions through mgo, so an event's attributes are
	//written before the event document and every write is keyed by UUID:
	//re-running an interrupted write converges on the same state.
	MongoStore struct {
		database *database.DB
		config   *config.Config
		log      *log.Logger
	}

	uuidDoc struct {
		UUID string `bson:"uuid"`
	}

	valueDoc struct {
		Value string `bson:"value"`
	}

	settingDoc struct {
		Name  string `bson:"_id"`
		Value int    `bson:"value"`
	}

	updateCheckDoc struct {
		Name    string    `bson:"_id"`
		Checked time.Time `bson:"checked"`
		Version string    `bson:"version"`
	}

	counterDoc struct {
		Seq int64 `bson:"seq"`
	}
)

//NewMongoStore creates a store backed by the selected MongoDB database
func NewMongoStore(db *database.DB, conf *config.Config, logger *log.Logger) *MongoStore {
	return &MongoStore{
		database: db,
		config:   conf,
		log:      logger,
	}
}

func (m *MongoStore) c(ssn *mgo.Session, name string) *mgo.Collection {
	return ssn.DB(m.database.GetSelectedDB()).C(name)
}

// mapErr converts mgo errors into the store's errors
func mapErr(err error, kind string, uuid string) error {
	if err == nil {
		return nil
	}
	if err == mgo.ErrNotFound {
		return ErrNotFound
	}
	if mgo.IsDup(err) {
		return &DuplicateError{Kind: kind, UUID: uuid}
	}
	return err
}

// nextFunc returns an id allocator backed by the counters collection
func (m *MongoStore) nextFunc(ssn *mgo.Session) func(string) (int64, error) {
	return func(counter string) (int64, error) {
		var doc counterDoc
		_, err := m.c(ssn, m.config.T.Meta.CountersTable).FindId(counter).Apply(mgo.Change{
			Update:    bson.M{"$inc": bson.M{"seq": 1}},
			Upsert:    true,
			ReturnNew: true,
		}, &doc)
		if err != nil {
			return 0, fmt.Errorf("could not allocate %s id: %w", counter, err)
		}
		return doc.Seq, nil
	}
}

//CreateIndexes creates every collection used by the store along with its
//indexes and seeds the default threat levels
func (m *MongoStore) CreateIndexes() error {
	t := m.config.T
	uuidIndex := mgo.Index{Key: []string{"uuid"}, Unique: true}
	idIndex := mgo.Index{Key: []string{"id"}, Unique: true}
	valueIndex := mgo.Index{Key: []string{"value"}, Unique: true}

	collections := []struct {
		name    string
		indexes []mgo.Index
	}{
		{t.Events.EventTable, []mgo.Index{uuidIndex, idIndex, {Key: []string{"timestamp"}}}},
		{t.Events.AttributeTable, []mgo.Index{uuidIndex, idIndex, {Key: []string{"event_id"}}, {Key: []string{"value"}}}},
		{t.Events.ShadowAttributeTable, []mgo.Index{uuidIndex, {Key: []string{"event_id"}}}},
		{t.Events.SightingTable, []mgo.Index{uuidIndex, {Key: []string{"event_id"}}}},
		{t.Events.ThreatLevelTable, []mgo.Index{idIndex}},
		{t.Galaxy.GalaxyTable, []mgo.Index{uuidIndex, idIndex}},
		{t.Galaxy.GalaxyClusterTable, []mgo.Index{uuidIndex, idIndex, {Key: []string{"default", "published"}}}},
		{t.Community.OrganisationTable, []mgo.Index{idIndex, {Key: []string{"uuid"}, Unique: true, Sparse: true}, {Key: []string{"name"}, Unique: true}}},
		{t.Community.SharingGroupTable, []mgo.Index{uuidIndex, idIndex}},
		{t.Community.ServerTable, []mgo.Index{idIndex}},
		{t.Correlation.CorrelationValueTable, []mgo.Index{valueIndex, idIndex}},
		{t.Correlation.CorrelationTable, []mgo.Index{{Key: []string{"value_id"}}}},
		{t.Correlation.OverCorrelatingValueTable, []mgo.Index{valueIndex}},
		{t.Correlation.ExclusionTable, []mgo.Index{valueIndex}},
		{t.Blocklist.EventBlocklistTable, []mgo.Index{uuidIndex}},
		{t.Blocklist.OrgBlocklistTable, []mgo.Index{uuidIndex}},
		{t.Blocklist.ClusterBlocklistTable, []mgo.Index{uuidIndex}},
		{t.Meta.SettingsTable, nil},
		{t.Meta.CountersTable, nil},
	}

	for _, coll := range collections {
		if err := m.database.CreateCollection(coll.name, coll.indexes); err != nil {
			return fmt.Errorf("could not create %s: %w", coll.name, err)
		}
	}

	ssn := m.database.Session.Copy()
	defer ssn.Close()
	for _, level := range DefaultThreatLevels {
		_, err := m.c(ssn, t.Events.ThreatLevelTable).Upsert(bson.M{"id": level.ID}, level)
		if err != nil {
			return err
		}
	}
	return nil
}

//
// events
//

func (m *MongoStore) loadEvent(ssn *mgo.Session, selector bson.M) (*data.Event, error) {
	event := &data.Event{}
	err := m.c(ssn, m.config.T.Events.EventTable).Find(selector).One(event)
	if err != nil {
		return nil, mapErr(err, "event", "")
	}

	var attrs []data.Attribute
	err = m.c(ssn, m.config.T.Events.AttributeTable).Find(bson.M{"event_id": event.ID}).All(&attrs)
	if err != nil {
		return nil, err
	}
	groupByObject(event, attrs)

	org := &data.Organisation{}
	err = m.c(ssn, m.config.T.Community.OrganisationTable).Find(bson.M{"id": event.OrgcID}).One(org)
	if err == nil {
		event.Orgc = org
	} else if err != mgo.ErrNotFound {
		return nil, err
	}

	if event.Distribution == data.SharingGroupDistribution {
		sg := &data.SharingGroup{}
		err = m.c(ssn, m.config.T.Community.SharingGroupTable).Find(bson.M{"id": event.SharingGroupID}).One(sg)
		if err == nil {
			event.SharingGroup = sg
		} else if err != mgo.ErrNotFound {
			return nil, err
		}
	}

	err = m.c(ssn, m.config.T.Events.ShadowAttributeTable).
		Find(bson.M{"event_id": event.ID}).Sort("id").All(&event.ShadowAttributes)
	if err != nil {
		return nil, err
	}
	return event, nil
}

//EventByUUID implements EventStore
func (m *MongoStore) EventByUUID(uuid string) (*data.Event, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	return m.loadEvent(ssn, bson.M{"uuid": uuid})
}

//EventByID implements EventStore
func (m *MongoStore) EventByID(id int64) (*data.Event, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	return m.loadEvent(ssn, bson.M{"id": id})
}

//EventIDExists implements EventStore
func (m *MongoStore) EventIDExists(uuid string) (int64, bool, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var doc struct {
		ID int64 `bson:"id"`
	}
	err := m.c(ssn, m.config.T.Events.EventTable).Find(bson.M{"uuid": uuid}).Select(bson.M{"id": 1}).One(&doc)
	if err == mgo.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return doc.ID, true, nil
}

// orgUUIDs maps local organisation ids to UUIDs
func (m *MongoStore) orgUUIDs(ssn *mgo.Session) (map[int64]string, error) {
	var orgs []data.Organisation
	err := m.c(ssn, m.config.T.Community.OrganisationTable).Find(nil).Select(bson.M{"id": 1, "uuid": 1}).All(&orgs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(orgs))
	for _, org := range orgs {
		out[org.ID] = org.UUID
	}
	return out, nil
}

//MinimalEvents implements EventStore
func (m *MongoStore) MinimalEvents() ([]data.MinimalEvent, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	orgs, err := m.orgUUIDs(ssn)
	if err != nil {
		return nil, err
	}

	var events []data.Event
	err = m.c(ssn, m.config.T.Events.EventTable).Find(nil).Select(bson.M{
		"id": 1, "uuid": 1, "timestamp": 1, "published": 1, "locked": 1,
		"distribution": 1, "sharing_group_id": 1, "org_id": 1, "orgc_id": 1,
		"attribute_count": 1, "tags": 1,
	}).Sort("id").All(&events)
	if err != nil {
		return nil, err
	}

	out := make([]data.MinimalEvent, 0, len(events))
	for i := range events {
		minimal := events[i].Minimal()
		minimal.OrgcUUID = orgs[events[i].OrgcID]
		out = append(out, minimal)
	}
	return out, nil
}

// writeEvent stores the attributes of the event followed by the event document
func (m *MongoStore) writeEvent(ssn *mgo.Session, event *data.Event, existing *data.Event) (*data.Event, error) {
	if err := assignEventIDs(event, existing, m.nextFunc(ssn)); err != nil {
		return nil, err
	}

	attrs := event.AllAttributes()
	uuids := make([]string, 0, len(attrs))
	bulk := m.c(ssn, m.config.T.Events.AttributeTable).Bulk()
	for _, attr := range attrs {
		uuids = append(uuids, attr.UUID)
		database.BulkChange{
			Selector: bson.M{"uuid": attr.UUID},
			Update:   attr,
			Upsert:   true,
		}.Apply(bulk)
	}
	if len(attrs) > 0 {
		if _, err := bulk.Run(); err != nil {
			return nil, fmt.Errorf("could not write attributes of event %s: %w", event.UUID, err)
		}
	}

	if existing != nil {
		_, err := m.c(ssn, m.config.T.Events.AttributeTable).RemoveAll(bson.M{
			"event_id": event.ID,
			"uuid":     bson.M{"$nin": uuids},
		})
		if err != nil {
			return nil, err
		}
		err = m.c(ssn, m.config.T.Events.EventTable).Update(bson.M{"uuid": event.UUID}, event)
		if err != nil {
			return nil, mapErr(err, "event", event.UUID)
		}
	} else {
		err := m.c(ssn, m.config.T.Events.EventTable).Insert(event)
		if err != nil {
			return nil, mapErr(err, "event", event.UUID)
		}
	}
	return m.loadEvent(ssn, bson.M{"id": event.ID})
}

//CreateEvent implements EventStore
func (m *MongoStore) CreateEvent(event *data.Event) (*data.Event, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	if _, exists, err := m.EventIDExists(event.UUID); err != nil {
		return nil, err
	} else if exists {
		return nil, &DuplicateError{Kind: "event", UUID: event.UUID}
	}
	return m.writeEvent(ssn, event, nil)
}

//UpdateEvent implements EventStore
func (m *MongoStore) UpdateEvent(event *data.Event) (*data.Event, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	existing, err := m.loadEvent(ssn, bson.M{"uuid": event.UUID})
	if err != nil {
		return nil, err
	}
	return m.writeEvent(ssn, event, existing)
}

//ThreatLevel implements EventStore
func (m *MongoStore) ThreatLevel(id int64) (*data.ThreatLevel, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	level := &data.ThreatLevel{}
	err := m.c(ssn, m.config.T.Events.ThreatLevelTable).Find(bson.M{"id": id}).One(level)
	if err != nil {
		return nil, mapErr(err, "threat level", "")
	}
	return level, nil
}

//SaveProposal implements EventStore
func (m *MongoStore) SaveProposal(proposal *data.ShadowAttribute) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	coll := m.c(ssn, m.config.T.Events.ShadowAttributeTable)

	var old data.ShadowAttribute
	err := coll.Find(bson.M{"uuid": proposal.UUID}).One(&old)
	switch {
	case err == nil:
		proposal.ID = old.ID
	case err == mgo.ErrNotFound:
		proposal.ID, err = m.nextFunc(ssn)(proposalCounter)
		if err != nil {
			return err
		}
	default:
		return err
	}
	_, err = coll.Upsert(bson.M{"uuid": proposal.UUID}, proposal)
	return err
}

//AddSightings implements EventStore
func (m *MongoStore) AddSightings(sightings []data.Sighting) (int, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	coll := m.c(ssn, m.config.T.Events.SightingTable)
	next := m.nextFunc(ssn)

	added := 0
	for _, sighting := range sightings {
		n, err := coll.Find(bson.M{"uuid": sighting.UUID}).Count()
		if err != nil {
			return added, err
		}
		if n > 0 {
			continue
		}
		sighting.ID, err = next(sightingCounter)
		if err != nil {
			return added, err
		}
		err = coll.Insert(sighting)
		if mgo.IsDup(err) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

//EventSightings implements EventStore
func (m *MongoStore) EventSightings(eventID int64) ([]data.Sighting, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var out []data.Sighting
	err := m.c(ssn, m.config.T.Events.SightingTable).Find(bson.M{"event_id": eventID}).Sort("id").All(&out)
	return out, err
}

//
// galaxies
//

//ClusterByUUID implements ClusterStore
func (m *MongoStore) ClusterByUUID(uuid string) (*data.GalaxyCluster, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	cluster := &data.GalaxyCluster{}
	err := m.c(ssn, m.config.T.Galaxy.GalaxyClusterTable).Find(bson.M{"uuid": uuid}).One(cluster)
	if err != nil {
		return nil, mapErr(err, "galaxy cluster", uuid)
	}
	return cluster, nil
}

//ClustersByUUID implements ClusterStore
func (m *MongoStore) ClustersByUUID(uuids []string) ([]data.GalaxyCluster, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var out []data.GalaxyCluster
	err := m.c(ssn, m.config.T.Galaxy.GalaxyClusterTable).
		Find(bson.M{"uuid": bson.M{"$in": uuids}}).Sort("id").All(&out)
	return out, err
}

//AccessibleClusters implements ClusterStore
func (m *MongoStore) AccessibleClusters(user data.User) ([]data.GalaxyCluster, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	var groups []data.SharingGroup
	err := m.c(ssn, m.config.T.Community.SharingGroupTable).Find(nil).All(&groups)
	if err != nil {
		return nil, err
	}
	groupMap := make(map[int64]*data.SharingGroup, len(groups))
	for i := range groups {
		groupMap[groups[i].ID] = &groups[i]
	}

	var clusters []data.GalaxyCluster
	err = m.c(ssn, m.config.T.Galaxy.GalaxyClusterTable).
		Find(bson.M{"default": false, "deleted": false}).Sort("id").All(&clusters)
	if err != nil {
		return nil, err
	}

	out := clusters[:0]
	for i := range clusters {
		if clusterAccessible(&clusters[i], user, groupMap) {
			out = append(out, clusters[i])
		}
	}
	return out, nil
}

//PushableClusters implements ClusterStore
func (m *MongoStore) PushableClusters() ([]data.GalaxyCluster, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var out []data.GalaxyCluster
	err := m.c(ssn, m.config.T.Galaxy.GalaxyClusterTable).
		Find(bson.M{"default": false, "deleted": false, "published": true}).Sort("id").All(&out)
	return out, err
}

//CreateCluster implements ClusterStore
func (m *MongoStore) CreateCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	next := m.nextFunc(ssn)

	id, err := next(clusterCounter)
	if err != nil {
		return nil, err
	}
	cluster.ID = id
	if cluster.TagName == "" {
		cluster.TagName = data.ClusterTagName(cluster.Type, cluster.UUID)
	}
	if err := assignClusterIDs(cluster, next); err != nil {
		return nil, err
	}
	err = m.c(ssn, m.config.T.Galaxy.GalaxyClusterTable).Insert(cluster)
	if err != nil {
		return nil, mapErr(err, "galaxy cluster", cluster.UUID)
	}
	return cluster, nil
}

//UpdateCluster implements ClusterStore
func (m *MongoStore) UpdateCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	coll := m.c(ssn, m.config.T.Galaxy.GalaxyClusterTable)

	var existing data.GalaxyCluster
	if err := coll.Find(bson.M{"uuid": cluster.UUID}).One(&existing); err != nil {
		return nil, mapErr(err, "galaxy cluster", cluster.UUID)
	}
	cluster.ID = existing.ID
	if cluster.TagName == "" {
		cluster.TagName = existing.TagName
	}
	if err := assignClusterIDs(cluster, m.nextFunc(ssn)); err != nil {
		return nil, err
	}
	if err := coll.Update(bson.M{"uuid": cluster.UUID}, cluster); err != nil {
		return nil, mapErr(err, "galaxy cluster", cluster.UUID)
	}
	return cluster, nil
}

//GalaxyByID implements ClusterStore
func (m *MongoStore) GalaxyByID(id int64) (*data.Galaxy, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	galaxy := &data.Galaxy{}
	err := m.c(ssn, m.config.T.Galaxy.GalaxyTable).Find(bson.M{"id": id}).One(galaxy)
	if err != nil {
		return nil, mapErr(err, "galaxy", strconv.FormatInt(id, 10))
	}
	return galaxy, nil
}

//GalaxyIDExists implements ClusterStore
func (m *MongoStore) GalaxyIDExists(uuid string) (int64, bool, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var galaxy data.Galaxy
	err := m.c(ssn, m.config.T.Galaxy.GalaxyTable).Find(bson.M{"uuid": uuid}).One(&galaxy)
	if err == mgo.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return galaxy.ID, true, nil
}

//CreateGalaxy implements ClusterStore
func (m *MongoStore) CreateGalaxy(galaxy *data.Galaxy) (*data.Galaxy, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	id, err := m.nextFunc(ssn)(galaxyCounter)
	if err != nil {
		return nil, err
	}
	galaxy.ID = id
	if err := m.c(ssn, m.config.T.Galaxy.GalaxyTable).Insert(galaxy); err != nil {
		return nil, mapErr(err, "galaxy", galaxy.UUID)
	}
	return galaxy, nil
}

//
// organisations
//

func (m *MongoStore) findOrg(selector bson.M) (*data.Organisation, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	org := &data.Organisation{}
	err := m.c(ssn, m.config.T.Community.OrganisationTable).Find(selector).One(org)
	if err != nil {
		return nil, mapErr(err, "organisation", "")
	}
	return org, nil
}

//OrgByID implements OrgStore
func (m *MongoStore) OrgByID(id int64) (*data.Organisation, error) {
	return m.findOrg(bson.M{"id": id})
}

//OrgByUUID implements OrgStore
func (m *MongoStore) OrgByUUID(uuid string) (*data.Organisation, error) {
	return m.findOrg(bson.M{"uuid": uuid})
}

//OrgByName implements OrgStore. Names are compared case insensitively.
func (m *MongoStore) OrgByName(name string) (*data.Organisation, error) {
	return m.findOrg(bson.M{"name": bson.RegEx{Pattern: "^" + regexp.QuoteMeta(name) + "$", Options: "i"}})
}

//CreateOrg implements OrgStore
func (m *MongoStore) CreateOrg(org *data.Organisation) (*data.Organisation, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	if org.ID == 0 {
		id, err := m.nextFunc(ssn)(orgCounter)
		if err != nil {
			return nil, err
		}
		org.ID = id
	}
	if err := m.c(ssn, m.config.T.Community.OrganisationTable).Insert(org); err != nil {
		return nil, mapErr(err, "organisation", org.UUID)
	}
	return org, nil
}

//SharingGroups implements OrgStore
func (m *MongoStore) SharingGroups() ([]data.SharingGroup, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var out []data.SharingGroup
	err := m.c(ssn, m.config.T.Community.SharingGroupTable).Find(nil).Sort("id").All(&out)
	return out, err
}

func (m *MongoStore) findSharingGroup(selector bson.M) (*data.SharingGroup, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	sg := &data.SharingGroup{}
	err := m.c(ssn, m.config.T.Community.SharingGroupTable).Find(selector).One(sg)
	if err != nil {
		return nil, mapErr(err, "sharing group", "")
	}
	return sg, nil
}

//SharingGroupByID implements OrgStore
func (m *MongoStore) SharingGroupByID(id int64) (*data.SharingGroup, error) {
	return m.findSharingGroup(bson.M{"id": id})
}

//SharingGroupByUUID implements OrgStore
func (m *MongoStore) SharingGroupByUUID(uuid string) (*data.SharingGroup, error) {
	return m.findSharingGroup(bson.M{"uuid": uuid})
}

//
// servers
//

//Server implements ServerStore
func (m *MongoStore) Server(id int64) (*data.Server, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	server := &data.Server{}
	err := m.c(ssn, m.config.T.Community.ServerTable).Find(bson.M{"id": id}).One(server)
	if err != nil {
		return nil, mapErr(err, "server", "")
	}
	return server, nil
}

func (m *MongoStore) setServerField(serverID int64, field string, value int64) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	err := m.c(ssn, m.config.T.Community.ServerTable).Update(
		bson.M{"id": serverID},
		bson.M{"$set": bson.M{field: value}},
	)
	return mapErr(err, "server", "")
}

//SetLastPulledID implements ServerStore
func (m *MongoStore) SetLastPulledID(serverID int64, eventID int64) error {
	return m.setServerField(serverID, "last_pulled_id", eventID)
}

//SetLastPushedID implements ServerStore
func (m *MongoStore) SetLastPushedID(serverID int64, eventID int64) error {
	return m.setServerField(serverID, "last_pushed_id", eventID)
}

//Blocklists implements ServerStore
func (m *MongoStore) Blocklists() (data.Blocklists, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	lists := data.NewBlocklists()
	load := func(table string, set data.StringSet) error {
		var docs []uuidDoc
		if err := m.c(ssn, table).Find(nil).All(&docs); err != nil {
			return err
		}
		for _, doc := range docs {
			set.Insert(doc.UUID)
		}
		return nil
	}

	t := m.config.T.Blocklist
	if err := load(t.EventBlocklistTable, lists.Events); err != nil {
		return lists, err
	}
	if err := load(t.OrgBlocklistTable, lists.Orgs); err != nil {
		return lists, err
	}
	if err := load(t.ClusterBlocklistTable, lists.Clusters); err != nil {
		return lists, err
	}
	return lists, nil
}

//
// correlations
//

//AttributesWithValue implements CorrelationStore
func (m *MongoStore) AttributesWithValue(value string) ([]data.CorrelatingAttribute, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	var attrs []data.Attribute
	err := m.c(ssn, m.config.T.Events.AttributeTable).Find(bson.M{"value": value}).Sort("id").All(&attrs)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}

	ids := data.Int64Set{}
	for _, attr := range attrs {
		ids.Insert(attr.EventID)
	}
	var events []data.Event
	err = m.c(ssn, m.config.T.Events.EventTable).Find(bson.M{"id": bson.M{"$in": ids.Items()}}).All(&events)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]data.MinimalEvent, len(events))
	for i := range events {
		byID[events[i].ID] = events[i].Minimal()
	}

	out := make([]data.CorrelatingAttribute, 0, len(attrs))
	for _, attr := range attrs {
		event, ok := byID[attr.EventID]
		if !ok {
			// attributes of an event whose document was never committed
			continue
		}
		out = append(out, data.CorrelatingAttribute{Attribute: attr, Event: event})
	}
	return out, nil
}

//CorrelationValues implements CorrelationStore
func (m *MongoStore) CorrelationValues() ([]data.CorrelationValue, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var out []data.CorrelationValue
	err := m.c(ssn, m.config.T.Correlation.CorrelationValueTable).Find(nil).Sort("id").All(&out)
	return out, err
}

func (m *MongoStore) valueID(ssn *mgo.Session, value string) (int64, bool, error) {
	var cv data.CorrelationValue
	err := m.c(ssn, m.config.T.Correlation.CorrelationValueTable).Find(bson.M{"value": value}).One(&cv)
	if err == mgo.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cv.ID, true, nil
}

//AddCorrelationValue implements CorrelationStore
func (m *MongoStore) AddCorrelationValue(value string) (int64, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	id, ok, err := m.valueID(ssn, value)
	if err != nil || ok {
		return id, err
	}
	id, err = m.nextFunc(ssn)(valueCounter)
	if err != nil {
		return 0, err
	}
	err = m.c(ssn, m.config.T.Correlation.CorrelationValueTable).Insert(data.CorrelationValue{ID: id, Value: value})
	if mgo.IsDup(err) {
		// a concurrent writer created the value first
		id, _, err = m.valueID(ssn, value)
		return id, err
	}
	return id, err
}

// correlationKey is the document id of a correlation, unique per value and pair
func correlationKey(c data.Correlation) string {
	key := pairKey(c)
	return fmt.Sprintf("%d:%d:%d", c.ValueID, key[0], key[1])
}

func (m *MongoStore) countCorrelations(ssn *mgo.Session, valueIDs []int64) (int, error) {
	return m.c(ssn, m.config.T.Correlation.CorrelationTable).
		Find(bson.M{"value_id": bson.M{"$in": valueIDs}}).Count()
}

//AddCorrelations implements CorrelationStore
func (m *MongoStore) AddCorrelations(correlations []data.Correlation) (int, error) {
	if len(correlations) == 0 {
		return 0, nil
	}
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	valueIDs := data.Int64Set{}
	for _, c := range correlations {
		valueIDs.Insert(c.ValueID)
	}
	before, err := m.countCorrelations(ssn, valueIDs.Items())
	if err != nil {
		return 0, err
	}

	table := m.config.T.Correlation.CorrelationTable
	writer := database.NewBulkWriter(m.database, m.log, true, "correlations")
	writer.Start()
	changes := make([]database.BulkChange, 0, len(correlations))
	for _, c := range correlations {
		if c.Side1.AttributeID > c.Side2.AttributeID {
			c.Side1, c.Side2 = c.Side2, c.Side1
		}
		changes = append(changes, database.BulkChange{
			Selector: bson.M{"_id": correlationKey(c)},
			Update:   bson.M{"$setOnInsert": c},
			Upsert:   true,
		})
	}
	writer.Collect(database.BulkChanges{table: changes})
	if err := writer.Close(); err != nil {
		return 0, err
	}

	after, err := m.countCorrelations(ssn, valueIDs.Items())
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

//Correlations implements CorrelationStore
func (m *MongoStore) Correlations(value string) ([]data.Correlation, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	id, ok, err := m.valueID(ssn, value)
	if err != nil || !ok {
		return nil, err
	}
	var out []data.Correlation
	err = m.c(ssn, m.config.T.Correlation.CorrelationTable).
		Find(bson.M{"value_id": id}).Sort("side_1.attribute_id", "side_2.attribute_id").All(&out)
	return out, err
}

//DeleteCorrelations implements CorrelationStore
func (m *MongoStore) DeleteCorrelations(value string) (int, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	id, ok, err := m.valueID(ssn, value)
	if err != nil || !ok {
		return 0, err
	}
	info, err := m.c(ssn, m.config.T.Correlation.CorrelationTable).RemoveAll(bson.M{"value_id": id})
	if err != nil {
		return 0, err
	}
	return info.Removed, nil
}

//NumberOfCorrelations implements CorrelationStore
func (m *MongoStore) NumberOfCorrelations(value string, correlationTableOnly bool) (int, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()

	if !correlationTableOnly {
		var over data.OverCorrelatingValue
		err := m.c(ssn, m.config.T.Correlation.OverCorrelatingValueTable).Find(bson.M{"value": value}).One(&over)
		if err == nil {
			return over.Occurrence, nil
		}
		if err != mgo.ErrNotFound {
			return 0, err
		}
	}

	id, ok, err := m.valueID(ssn, value)
	if err != nil || !ok {
		return 0, err
	}
	return m.countCorrelations(ssn, []int64{id})
}

//OverCorrelatingValues implements CorrelationStore
func (m *MongoStore) OverCorrelatingValues() ([]data.OverCorrelatingValue, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var out []data.OverCorrelatingValue
	err := m.c(ssn, m.config.T.Correlation.OverCorrelatingValueTable).Find(nil).Sort("value").All(&out)
	return out, err
}

func (m *MongoStore) valueExists(table string, value string) (bool, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	n, err := m.c(ssn, table).Find(bson.M{"value": value}).Count()
	return n > 0, err
}

//IsOverCorrelatingValue implements CorrelationStore
func (m *MongoStore) IsOverCorrelatingValue(value string) (bool, error) {
	return m.valueExists(m.config.T.Correlation.OverCorrelatingValueTable, value)
}

//AddOverCorrelatingValue implements CorrelationStore
func (m *MongoStore) AddOverCorrelatingValue(value string, occurrence int) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	_, err := m.c(ssn, m.config.T.Correlation.OverCorrelatingValueTable).Upsert(
		bson.M{"value": value},
		data.OverCorrelatingValue{Value: value, Occurrence: occurrence},
	)
	return err
}

//DeleteOverCorrelatingValue implements CorrelationStore
func (m *MongoStore) DeleteOverCorrelatingValue(value string) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	_, err := m.c(ssn, m.config.T.Correlation.OverCorrelatingValueTable).RemoveAll(bson.M{"value": value})
	return err
}

//ExcludedCorrelations implements CorrelationStore
func (m *MongoStore) ExcludedCorrelations() ([]string, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var docs []valueDoc
	err := m.c(ssn, m.config.T.Correlation.ExclusionTable).Find(nil).Sort("value").All(&docs)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Value)
	}
	return out, nil
}

//IsExcludedCorrelation implements CorrelationStore
func (m *MongoStore) IsExcludedCorrelation(value string) (bool, error) {
	return m.valueExists(m.config.T.Correlation.ExclusionTable, value)
}

//AddExcludedCorrelation implements CorrelationStore
func (m *MongoStore) AddExcludedCorrelation(value string) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	_, err := m.c(ssn, m.config.T.Correlation.ExclusionTable).Upsert(bson.M{"value": value}, valueDoc{Value: value})
	return err
}

//Threshold implements CorrelationStore
func (m *MongoStore) Threshold() (int, bool, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var doc settingDoc
	err := m.c(ssn, m.config.T.Meta.SettingsTable).FindId(thresholdSetting).One(&doc)
	if err == mgo.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return doc.Value, true, nil
}

//SaveThreshold implements CorrelationStore
func (m *MongoStore) SaveThreshold(threshold int) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	_, err := m.c(ssn, m.config.T.Meta.SettingsTable).UpsertId(
		thresholdSetting,
		settingDoc{Name: thresholdSetting, Value: threshold},
	)
	return err
}

//LastUpdateCheck returns when the newest release was last looked up and
//the version found at the time
func (m *MongoStore) LastUpdateCheck() (time.Time, string, error) {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	var doc updateCheckDoc
	err := m.c(ssn, m.config.T.Meta.SettingsTable).FindId(updateCheckSetting).One(&doc)
	if err == mgo.ErrNotFound {
		return time.Time{}, "", nil
	}
	return doc.Checked, doc.Version, err
}

//SaveUpdateCheck records a release lookup
func (m *MongoStore) SaveUpdateCheck(checked time.Time, version string) error {
	ssn := m.database.Session.Copy()
	defer ssn.Close()
	_, err := m.c(ssn, m.config.T.Meta.SettingsTable).UpsertId(
		updateCheckSetting,
		updateCheckDoc{Name: updateCheckSetting, Checked: checked, Version: version},
	)
	return err
}
