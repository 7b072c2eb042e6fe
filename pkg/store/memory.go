package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/activecm/threatsync/pkg/data"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ Store = (*MemoryStore)(nil)

//MemoryStore is a thread-safe in-process Store. Values handed in and out
//are deep copies so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	counters map[string]int64

	events       map[int64]*data.Event
	eventsByUUID map[string]int64
	threatLevels map[int64]data.ThreatLevel
	proposals    map[string]*data.ShadowAttribute
	sightings    map[string]data.Sighting

	galaxies map[string]*data.Galaxy
	clusters map[string]*data.GalaxyCluster

	orgs          map[int64]*data.Organisation
	sharingGroups map[int64]*data.SharingGroup
	servers       map[int64]*data.Server
	blocklists    data.Blocklists

	values          map[string]int64
	correlations    map[int64]map[[2]int64]data.Correlation
	overCorrelating map[string]int
	excluded        data.StringSet
	threshold       int
	thresholdSaved  bool
}

//NewMemoryStore creates an empty store seeded with the default threat levels
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters:        map[string]int64{},
		events:          map[int64]*data.Event{},
		eventsByUUID:    map[string]int64{},
		threatLevels:    map[int64]data.ThreatLevel{},
		proposals:       map[string]*data.ShadowAttribute{},
		sightings:       map[string]data.Sighting{},
		galaxies:        map[string]*data.Galaxy{},
		clusters:        map[string]*data.GalaxyCluster{},
		orgs:            map[int64]*data.Organisation{},
		sharingGroups:   map[int64]*data.SharingGroup{},
		servers:         map[int64]*data.Server{},
		blocklists:      data.NewBlocklists(),
		values:          map[string]int64{},
		correlations:    map[int64]map[[2]int64]data.Correlation{},
		overCorrelating: map[string]int{},
		excluded:        data.StringSet{},
	}
	for _, level := range DefaultThreatLevels {
		s.threatLevels[level.ID] = level
	}
	return s
}

// deepCopy copies in into out through a JSON round trip
func deepCopy(in interface{}, out interface{}) {
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
}

// next must be called with the write lock held
func (s *MemoryStore) next(counter string) (int64, error) {
	s.counters[counter]++
	return s.counters[counter], nil
}

//AddServer inserts or replaces a peer record
func (s *MemoryStore) AddServer(server data.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[server.ID] = &server
}

//AddSharingGroup inserts a sharing group, assigning an id if it has none
func (s *MemoryStore) AddSharingGroup(sg data.SharingGroup) *data.SharingGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg.ID == 0 {
		sg.ID, _ = s.next(sharingGroupCounter)
	}
	stored := &data.SharingGroup{}
	deepCopy(sg, stored)
	s.sharingGroups[sg.ID] = stored
	return &sg
}

//BlockEvent adds an event UUID to the event blocklist
func (s *MemoryStore) BlockEvent(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocklists.Events.Insert(uuid)
}

//BlockOrg adds an organisation UUID to the organisation blocklist
func (s *MemoryStore) BlockOrg(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocklists.Orgs.Insert(uuid)
}

//BlockCluster adds a cluster UUID to the cluster blocklist
func (s *MemoryStore) BlockCluster(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocklists.Clusters.Insert(uuid)
}

//
// events
//

// loadEvent must be called with a lock held
func (s *MemoryStore) loadEvent(id int64) (*data.Event, error) {
	stored, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	event := &data.Event{}
	deepCopy(stored, event)
	if org, ok := s.orgs[event.OrgcID]; ok {
		orgc := *org
		event.Orgc = &orgc
	}
	if event.Distribution == data.SharingGroupDistribution {
		if sg, ok := s.sharingGroups[event.SharingGroupID]; ok {
			event.SharingGroup = &data.SharingGroup{}
			deepCopy(sg, event.SharingGroup)
		}
	}
	event.ShadowAttributes = nil
	for _, proposal := range s.proposals {
		if proposal.EventID == id {
			event.ShadowAttributes = append(event.ShadowAttributes, *proposal)
		}
	}
	sort.Slice(event.ShadowAttributes, func(i, j int) bool {
		return event.ShadowAttributes[i].ID < event.ShadowAttributes[j].ID
	})
	return event, nil
}

//EventByUUID implements EventStore
func (s *MemoryStore) EventByUUID(uuid string) (*data.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.eventsByUUID[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return s.loadEvent(id)
}

//EventByID implements EventStore
func (s *MemoryStore) EventByID(id int64) (*data.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadEvent(id)
}

//EventIDExists implements EventStore
func (s *MemoryStore) EventIDExists(uuid string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.eventsByUUID[uuid]
	return id, ok, nil
}

//MinimalEvents implements EventStore
func (s *MemoryStore) MinimalEvents() ([]data.MinimalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.MinimalEvent, 0, len(s.events))
	for _, event := range s.events {
		m := event.Minimal()
		if org, ok := s.orgs[event.OrgcID]; ok {
			m.OrgcUUID = org.UUID
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// storeEvent must be called with the write lock held
func (s *MemoryStore) storeEvent(event *data.Event, existing *data.Event) (*data.Event, error) {
	if err := assignEventIDs(event, existing, s.next); err != nil {
		return nil, err
	}
	stored := &data.Event{}
	deepCopy(event, stored)
	stored.Orgc = nil
	stored.SharingGroup = nil
	stored.ShadowAttributes = nil
	s.events[stored.ID] = stored
	s.eventsByUUID[stored.UUID] = stored.ID
	return s.loadEvent(stored.ID)
}

//CreateEvent implements EventStore
func (s *MemoryStore) CreateEvent(event *data.Event) (*data.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.eventsByUUID[event.UUID]; ok {
		return nil, &DuplicateError{Kind: "event", UUID: event.UUID}
	}
	return s.storeEvent(event, nil)
}

//UpdateEvent implements EventStore
func (s *MemoryStore) UpdateEvent(event *data.Event) (*data.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.eventsByUUID[event.UUID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.storeEvent(event, s.events[id])
}

//ThreatLevel implements EventStore
func (s *MemoryStore) ThreatLevel(id int64) (*data.ThreatLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	level, ok := s.threatLevels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &level, nil
}

//SaveProposal implements EventStore
func (s *MemoryStore) SaveProposal(proposal *data.ShadowAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.proposals[proposal.UUID]; ok {
		proposal.ID = old.ID
	} else {
		proposal.ID, _ = s.next(proposalCounter)
	}
	stored := *proposal
	s.proposals[proposal.UUID] = &stored
	return nil
}

//AddSightings implements EventStore
func (s *MemoryStore) AddSightings(sightings []data.Sighting) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, sighting := range sightings {
		if _, ok := s.sightings[sighting.UUID]; ok {
			continue
		}
		sighting.ID, _ = s.next(sightingCounter)
		s.sightings[sighting.UUID] = sighting
		added++
	}
	return added, nil
}

//EventSightings implements EventStore
func (s *MemoryStore) EventSightings(eventID int64) ([]data.Sighting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []data.Sighting
	for _, sighting := range s.sightings {
		if sighting.EventID == eventID {
			out = append(out, sighting)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

//
// galaxies
//

func copyCluster(in *data.GalaxyCluster) *data.GalaxyCluster {
	out := &data.GalaxyCluster{}
	deepCopy(in, out)
	return out
}

//ClusterByUUID implements ClusterStore
func (s *MemoryStore) ClusterByUUID(uuid string) (*data.GalaxyCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cluster, ok := s.clusters[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCluster(cluster), nil
}

//ClustersByUUID implements ClusterStore
func (s *MemoryStore) ClustersByUUID(uuids []string) ([]data.GalaxyCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []data.GalaxyCluster
	for _, uuid := range uuids {
		if cluster, ok := s.clusters[uuid]; ok {
			out = append(out, *copyCluster(cluster))
		}
	}
	return out, nil
}

func (s *MemoryStore) sortedClusters(keep func(*data.GalaxyCluster) bool) []data.GalaxyCluster {
	var out []data.GalaxyCluster
	for _, cluster := range s.clusters {
		if keep(cluster) {
			out = append(out, *copyCluster(cluster))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

//AccessibleClusters implements ClusterStore
func (s *MemoryStore) AccessibleClusters(user data.User) ([]data.GalaxyCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedClusters(func(c *data.GalaxyCluster) bool {
		return !c.Default && !c.Deleted && clusterAccessible(c, user, s.sharingGroups)
	}), nil
}

//PushableClusters implements ClusterStore
func (s *MemoryStore) PushableClusters() ([]data.GalaxyCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedClusters(func(c *data.GalaxyCluster) bool {
		return !c.Default && !c.Deleted && c.Published
	}), nil
}

// storeCluster must be called with the write lock held
func (s *MemoryStore) storeCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	if err := assignClusterIDs(cluster, s.next); err != nil {
		return nil, err
	}
	stored := copyCluster(cluster)
	stored.Galaxy = nil
	stored.Orgc = nil
	stored.SharingGroup = nil
	s.clusters[stored.UUID] = stored
	return copyCluster(stored), nil
}

//CreateCluster implements ClusterStore
func (s *MemoryStore) CreateCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[cluster.UUID]; ok {
		return nil, &DuplicateError{Kind: "galaxy cluster", UUID: cluster.UUID}
	}
	cluster.ID, _ = s.next(clusterCounter)
	if cluster.TagName == "" {
		cluster.TagName = data.ClusterTagName(cluster.Type, cluster.UUID)
	}
	return s.storeCluster(cluster)
}

//UpdateCluster implements ClusterStore
func (s *MemoryStore) UpdateCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.clusters[cluster.UUID]
	if !ok {
		return nil, ErrNotFound
	}
	cluster.ID = existing.ID
	if cluster.TagName == "" {
		cluster.TagName = existing.TagName
	}
	return s.storeCluster(cluster)
}

//GalaxyByID implements ClusterStore
func (s *MemoryStore) GalaxyByID(id int64) (*data.Galaxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, galaxy := range s.galaxies {
		if galaxy.ID == id {
			out := *galaxy
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

//GalaxyIDExists implements ClusterStore
func (s *MemoryStore) GalaxyIDExists(uuid string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	galaxy, ok := s.galaxies[uuid]
	if !ok {
		return 0, false, nil
	}
	return galaxy.ID, true, nil
}

//CreateGalaxy implements ClusterStore
func (s *MemoryStore) CreateGalaxy(galaxy *data.Galaxy) (*data.Galaxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.galaxies[galaxy.UUID]; ok {
		return nil, &DuplicateError{Kind: "galaxy", UUID: galaxy.UUID}
	}
	galaxy.ID, _ = s.next(galaxyCounter)
	stored := *galaxy
	s.galaxies[galaxy.UUID] = &stored
	out := stored
	return &out, nil
}

//
// organisations
//

func (s *MemoryStore) findOrg(match func(*data.Organisation) bool) (*data.Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.orgs {
		if match(org) {
			out := *org
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

//OrgByID implements OrgStore
func (s *MemoryStore) OrgByID(id int64) (*data.Organisation, error) {
	return s.findOrg(func(o *data.Organisation) bool { return o.ID == id })
}

//OrgByUUID implements OrgStore
func (s *MemoryStore) OrgByUUID(uuid string) (*data.Organisation, error) {
	return s.findOrg(func(o *data.Organisation) bool { return o.UUID == uuid })
}

//OrgByName implements OrgStore. Names are compared case insensitively.
func (s *MemoryStore) OrgByName(name string) (*data.Organisation, error) {
	return s.findOrg(func(o *data.Organisation) bool { return strings.EqualFold(o.Name, name) })
}

//CreateOrg implements OrgStore
func (s *MemoryStore) CreateOrg(org *data.Organisation) (*data.Organisation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if (org.UUID != "" && existing.UUID == org.UUID) || strings.EqualFold(existing.Name, org.Name) {
			return nil, &DuplicateError{Kind: "organisation", UUID: org.UUID}
		}
	}
	if org.ID == 0 {
		org.ID, _ = s.next(orgCounter)
	} else if org.ID > s.counters[orgCounter] {
		s.counters[orgCounter] = org.ID
	}
	stored := *org
	s.orgs[org.ID] = &stored
	out := stored
	return &out, nil
}

//SharingGroups implements OrgStore
func (s *MemoryStore) SharingGroups() ([]data.SharingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.SharingGroup, 0, len(s.sharingGroups))
	for _, sg := range s.sharingGroups {
		var c data.SharingGroup
		deepCopy(sg, &c)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

//SharingGroupByID implements OrgStore
func (s *MemoryStore) SharingGroupByID(id int64) (*data.SharingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.sharingGroups[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := &data.SharingGroup{}
	deepCopy(sg, out)
	return out, nil
}

//SharingGroupByUUID implements OrgStore
func (s *MemoryStore) SharingGroupByUUID(uuid string) (*data.SharingGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sg := range s.sharingGroups {
		if sg.UUID == uuid {
			out := &data.SharingGroup{}
			deepCopy(sg, out)
			return out, nil
		}
	}
	return nil, ErrNotFound
}

//
// servers
//

//Server implements ServerStore
func (s *MemoryStore) Server(id int64) (*data.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, ok := s.servers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *server
	return &out, nil
}

//SetLastPulledID implements ServerStore
func (s *MemoryStore) SetLastPulledID(serverID int64, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.servers[serverID]
	if !ok {
		return ErrNotFound
	}
	server.LastPulledID = eventID
	return nil
}

//SetLastPushedID implements ServerStore
func (s *MemoryStore) SetLastPushedID(serverID int64, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	server, ok := s.servers[serverID]
	if !ok {
		return ErrNotFound
	}
	server.LastPushedID = eventID
	return nil
}

//Blocklists implements ServerStore
func (s *MemoryStore) Blocklists() (data.Blocklists, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return data.Blocklists{
		Events:   data.NewStringSet(s.blocklists.Events.Items()...),
		Orgs:     data.NewStringSet(s.blocklists.Orgs.Items()...),
		Clusters: data.NewStringSet(s.blocklists.Clusters.Items()...),
	}, nil
}

//
// correlations
//

//AttributesWithValue implements CorrelationStore
func (s *MemoryStore) AttributesWithValue(value string) ([]data.CorrelatingAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []data.CorrelatingAttribute
	for _, event := range s.events {
		var minimal data.MinimalEvent
		loaded := false
		for _, attr := range event.AllAttributes() {
			if attr.Value != value {
				continue
			}
			if !loaded {
				minimal = event.Minimal()
				loaded = true
			}
			out = append(out, data.CorrelatingAttribute{Attribute: attr, Event: minimal})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attribute.ID < out[j].Attribute.ID })
	return out, nil
}

//CorrelationValues implements CorrelationStore
func (s *MemoryStore) CorrelationValues() ([]data.CorrelationValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.CorrelationValue, 0, len(s.values))
	for value, id := range s.values {
		out = append(out, data.CorrelationValue{ID: id, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

//AddCorrelationValue implements CorrelationStore
func (s *MemoryStore) AddCorrelationValue(value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.values[value]; ok {
		return id, nil
	}
	id, _ := s.next(valueCounter)
	s.values[value] = id
	return id, nil
}

//AddCorrelations implements CorrelationStore
func (s *MemoryStore) AddCorrelations(correlations []data.Correlation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, c := range correlations {
		pairs, ok := s.correlations[c.ValueID]
		if !ok {
			pairs = map[[2]int64]data.Correlation{}
			s.correlations[c.ValueID] = pairs
		}
		key := pairKey(c)
		if _, exists := pairs[key]; exists {
			continue
		}
		pairs[key] = c
		added++
	}
	return added, nil
}

//Correlations implements CorrelationStore
func (s *MemoryStore) Correlations(value string) ([]data.Correlation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.values[value]
	if !ok {
		return nil, nil
	}
	out := make([]data.Correlation, 0, len(s.correlations[id]))
	for _, c := range s.correlations[id] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := pairKey(out[i]), pairKey(out[j])
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		return a[1] < b[1]
	})
	return out, nil
}

//DeleteCorrelations implements CorrelationStore
func (s *MemoryStore) DeleteCorrelations(value string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.values[value]
	if !ok {
		return 0, nil
	}
	removed := len(s.correlations[id])
	delete(s.correlations, id)
	return removed, nil
}

//NumberOfCorrelations implements CorrelationStore
func (s *MemoryStore) NumberOfCorrelations(value string, correlationTableOnly bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !correlationTableOnly {
		if occurrence, ok := s.overCorrelating[value]; ok {
			return occurrence, nil
		}
	}
	id, ok := s.values[value]
	if !ok {
		return 0, nil
	}
	return len(s.correlations[id]), nil
}

//OverCorrelatingValues implements CorrelationStore
func (s *MemoryStore) OverCorrelatingValues() ([]data.OverCorrelatingValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]data.OverCorrelatingValue, 0, len(s.overCorrelating))
	for value, occurrence := range s.overCorrelating {
		out = append(out, data.OverCorrelatingValue{Value: value, Occurrence: occurrence})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

//IsOverCorrelatingValue implements CorrelationStore
func (s *MemoryStore) IsOverCorrelatingValue(value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.overCorrelating[value]
	return ok, nil
}

//AddOverCorrelatingValue implements CorrelationStore
func (s *MemoryStore) AddOverCorrelatingValue(value string, occurrence int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overCorrelating[value] = occurrence
	return nil
}

//DeleteOverCorrelatingValue implements CorrelationStore
func (s *MemoryStore) DeleteOverCorrelatingValue(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overCorrelating, value)
	return nil
}

//ExcludedCorrelations implements CorrelationStore
func (s *MemoryStore) ExcludedCorrelations() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.excluded.Items(), nil
}

//IsExcludedCorrelation implements CorrelationStore
func (s *MemoryStore) IsExcludedCorrelation(value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.excluded.Contains(value), nil
}

//AddExcludedCorrelation implements CorrelationStore
func (s *MemoryStore) AddExcludedCorrelation(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excluded.Insert(value)
	return nil
}

//Threshold implements CorrelationStore
func (s *MemoryStore) Threshold() (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold, s.thresholdSaved, nil
}

//SaveThreshold implements CorrelationStore
func (s *MemoryStore) SaveThreshold(threshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	s.thresholdSaved = true
	return nil
}
