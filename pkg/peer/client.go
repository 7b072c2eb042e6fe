package peer

import (
	"context"
	"time"

	"github.com/activecm/threatsync/pkg/data"
)

type (
	//Client issues requests against the API of a single remote instance.
	//Implementations hold no business logic.
	Client interface {
		ServerSettings(ctx context.Context) (data.ServerSettings, error)
		ServerVersion(ctx context.Context) (data.ServerVersion, error)

		Event(ctx context.Context, id int64) (*data.Event, error)
		MinimalEvents(ctx context.Context, rules data.FilterRules, ignoreFilterRules bool) ([]data.MinimalEvent, error)
		CreateEvent(ctx context.Context, event *data.Event) (*data.Event, error)
		UpdateEvent(ctx context.Context, event *data.Event) (*data.Event, error)

		GalaxyCluster(ctx context.Context, uuid string) (*data.GalaxyCluster, error)
		CustomClusters(ctx context.Context, conditions ClusterConditions) ([]data.GalaxyCluster, error)
		CreateCluster(ctx context.Context, cluster *data.GalaxyCluster) (*data.GalaxyCluster, error)
		UpdateCluster(ctx context.Context, cluster *data.GalaxyCluster) (*data.GalaxyCluster, error)

		Proposals(ctx context.Context, since time.Time) ([]data.ShadowAttribute, error)
		PushProposals(ctx context.Context, eventUUID string, proposals []data.ShadowAttribute) error

		EventSightings(ctx context.Context, eventUUID string) ([]data.Sighting, error)
		PushSightings(ctx context.Context, sightings []data.Sighting) error

		SharingGroups(ctx context.Context) ([]data.SharingGroup, error)
		Organisation(ctx context.Context, uuid string) (*data.Organisation, error)
	}

	//ClusterConditions restricts a custom cluster search on the peer.
	//Only custom (non default) clusters are ever returned.
	ClusterConditions struct {
		UUIDs     []string `json:"uuid,omitempty"`
		Published bool     `json:"published,omitempty"`
		Minimal   bool     `json:"minimal,omitempty"`
	}

	//Factory creates a client for the given peer
	Factory func(server *data.Server) (Client, error)
)
