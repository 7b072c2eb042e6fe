// Package peertest provides an in-memory peer for exercising sync logic
package peertest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/peer"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//Fake is a scripted remote instance. Fields may be set directly before the
//fake is handed to the code under test; recorded pushes are read afterwards.
type Fake struct {
	mu sync.Mutex

	Settings    data.ServerSettings
	SettingsErr error
	Version     data.ServerVersion
	VersionErr  error

	// remote state keyed by remote id / UUID
	Events        map[int64]*data.Event
	EventErrs     map[int64]error
	Clusters      map[string]*data.GalaxyCluster
	ClusterErrs   map[string]error
	ProposalList  []data.ShadowAttribute
	Sightings     map[string][]data.Sighting
	Groups        []data.SharingGroup
	Organisations map[string]*data.Organisation

	// ExistsOnPeer makes CreateEvent report a conflict for matching UUIDs
	ExistsOnPeer func(uuid string) bool
	CreateErr    error
	PushErr      error

	// recorded pushes
	CreatedEvents   []*data.Event
	UpdatedEvents   []*data.Event
	CreatedClusters []*data.GalaxyCluster
	UpdatedClusters []*data.GalaxyCluster
	PushedProposals map[string][]data.ShadowAttribute
	PushedSightings []data.Sighting

	Calls map[string]int
}

//New creates an empty fake advertising a sync capable 2.4 server
func New() *Fake {
	return &Fake{
		Settings:        data.ServerSettings{Version: "2.4.150"},
		Version:         data.ServerVersion{Version: "2.4.150", PermSync: true, PermSighting: true, PermGalaxyEditor: true},
		Events:          map[int64]*data.Event{},
		EventErrs:       map[int64]error{},
		Clusters:        map[string]*data.GalaxyCluster{},
		ClusterErrs:     map[string]error{},
		Sightings:       map[string][]data.Sighting{},
		Organisations:   map[string]*data.Organisation{},
		PushedProposals: map[string][]data.ShadowAttribute{},
		Calls:           map[string]int{},
	}
}

//Factory returns a peer.Factory always handing out this fake
func (f *Fake) Factory() peer.Factory {
	return func(server *data.Server) (peer.Client, error) {
		return f, nil
	}
}

//AddEvent stores an event on the fake under its id
func (f *Fake) AddEvent(event *data.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events[event.ID] = event
}

//AddCluster stores a cluster on the fake under its UUID
func (f *Fake) AddCluster(cluster *data.GalaxyCluster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clusters[cluster.UUID] = cluster
}

//CallCount returns how often the named method was invoked
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[name]
}

func (f *Fake) record(name string) {
	f.Calls[name]++
}

// clone deep copies v into out so callers never share state with the fake
func clone(v interface{}, out interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
}

func notFound(op string) error {
	return &peer.APIError{Op: op, StatusCode: http.StatusNotFound, Body: "not found"}
}

//ServerSettings implements peer.Client
func (f *Fake) ServerSettings(ctx context.Context) (data.ServerSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ServerSettings")
	return f.Settings, f.SettingsErr
}

//ServerVersion implements peer.Client
func (f *Fake) ServerVersion(ctx context.Context) (data.ServerVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ServerVersion")
	return f.Version, f.VersionErr
}

//Event implements peer.Client
func (f *Fake) Event(ctx context.Context, id int64) (*data.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Event")
	if err := f.EventErrs[id]; err != nil {
		return nil, err
	}
	event, ok := f.Events[id]
	if !ok {
		return nil, notFound("get event")
	}
	out := &data.Event{}
	clone(event, out)
	return out, nil
}

//MinimalEvents implements peer.Client. Only published events are listed and
//tag rules are applied unless ignoreFilterRules is set.
func (f *Fake) MinimalEvents(ctx context.Context, rules data.FilterRules, ignoreFilterRules bool) ([]data.MinimalEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MinimalEvents")
	var out []data.MinimalEvent
	for _, event := range f.Events {
		if !event.Published {
			continue
		}
		if !ignoreFilterRules && !matchTags(event.TagNames(), rules.Tags) {
			continue
		}
		out = append(out, event.Minimal())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchTags(tags []string, rules data.RuleSet) bool {
	has := func(list []string) bool {
		for _, want := range list {
			for _, tag := range tags {
				if tag == want {
					return true
				}
			}
		}
		return false
	}
	if len(rules.OR) > 0 && !has(rules.OR) {
		return false
	}
	return !has(rules.NOT)
}

//CreateEvent implements peer.Client
func (f *Fake) CreateEvent(ctx context.Context, event *data.Event) (*data.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateEvent")
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if f.ExistsOnPeer != nil && f.ExistsOnPeer(event.UUID) {
		return nil, &peer.APIError{Op: "create event", StatusCode: http.StatusConflict, Body: "Event already exists"}
	}
	sent := &data.Event{}
	clone(event, sent)
	f.CreatedEvents = append(f.CreatedEvents, sent)
	return sent, nil
}

//UpdateEvent implements peer.Client
func (f *Fake) UpdateEvent(ctx context.Context, event *data.Event) (*data.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateEvent")
	if f.PushErr != nil {
		return nil, f.PushErr
	}
	sent := &data.Event{}
	clone(event, sent)
	f.UpdatedEvents = append(f.UpdatedEvents, sent)
	return sent, nil
}

//GalaxyCluster implements peer.Client
func (f *Fake) GalaxyCluster(ctx context.Context, uuid string) (*data.GalaxyCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GalaxyCluster")
	if err := f.ClusterErrs[uuid]; err != nil {
		return nil, err
	}
	cluster, ok := f.Clusters[uuid]
	if !ok {
		return nil, notFound("get galaxy cluster")
	}
	out := &data.GalaxyCluster{}
	clone(cluster, out)
	return out, nil
}

//CustomClusters implements peer.Client
func (f *Fake) CustomClusters(ctx context.Context, conditions peer.ClusterConditions) ([]data.GalaxyCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CustomClusters")
	wanted := data.NewStringSet(conditions.UUIDs...)
	var out []data.GalaxyCluster
	for uuid, cluster := range f.Clusters {
		if cluster.Default {
			continue
		}
		if len(wanted) > 0 && !wanted.Contains(uuid) {
			continue
		}
		if conditions.Published && !cluster.Published {
			continue
		}
		var c data.GalaxyCluster
		clone(cluster, &c)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

//CreateCluster implements peer.Client
func (f *Fake) CreateCluster(ctx context.Context, cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateCluster")
	if f.PushErr != nil {
		return nil, f.PushErr
	}
	sent := &data.GalaxyCluster{}
	clone(cluster, sent)
	f.CreatedClusters = append(f.CreatedClusters, sent)
	f.Clusters[sent.UUID] = sent
	return sent, nil
}

//UpdateCluster implements peer.Client
func (f *Fake) UpdateCluster(ctx context.Context, cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateCluster")
	if f.PushErr != nil {
		return nil, f.PushErr
	}
	sent := &data.GalaxyCluster{}
	clone(cluster, sent)
	f.UpdatedClusters = append(f.UpdatedClusters, sent)
	f.Clusters[sent.UUID] = sent
	return sent, nil
}

//Proposals implements peer.Client
func (f *Fake) Proposals(ctx context.Context, since time.Time) ([]data.ShadowAttribute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Proposals")
	var out []data.ShadowAttribute
	for _, proposal := range f.ProposalList {
		if proposal.Timestamp >= since.Unix() {
			out = append(out, proposal)
		}
	}
	return out, nil
}

//PushProposals implements peer.Client
func (f *Fake) PushProposals(ctx context.Context, eventUUID string, proposals []data.ShadowAttribute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PushProposals")
	if f.PushErr != nil {
		return f.PushErr
	}
	f.PushedProposals[eventUUID] = append(f.PushedProposals[eventUUID], proposals...)
	return nil
}

//EventSightings implements peer.Client
func (f *Fake) EventSightings(ctx context.Context, eventUUID string) ([]data.Sighting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("EventSightings")
	return append([]data.Sighting(nil), f.Sightings[eventUUID]...), nil
}

//PushSightings implements peer.Client
func (f *Fake) PushSightings(ctx context.Context, sightings []data.Sighting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PushSightings")
	if f.PushErr != nil {
		return f.PushErr
	}
	f.PushedSightings = append(f.PushedSightings, sightings...)
	return nil
}

//SharingGroups implements peer.Client
func (f *Fake) SharingGroups(ctx context.Context) ([]data.SharingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SharingGroups")
	return append([]data.SharingGroup(nil), f.Groups...), nil
}

//Organisation implements peer.Client
func (f *Fake) Organisation(ctx context.Context, uuid string) (*data.Organisation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Organisation")
	org, ok := f.Organisations[uuid]
	if !ok {
		return nil, fmt.Errorf("organisation %s: %w", uuid, peer.ErrNotFound)
	}
	out := *org
	return &out, nil
}
