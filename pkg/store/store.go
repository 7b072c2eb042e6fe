package store

import (
	"errors"
	"fmt"

	"github.com/activecm/threatsync/pkg/data"
)

//ErrNotFound is returned when the requested row does not exist
var ErrNotFound = errors.New("not found")

//DuplicateError is returned when creating a row whose UUID is already stored
type DuplicateError struct {
	Kind string
	UUID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.UUID)
}

//IsDuplicate reports whether err is a DuplicateError
func IsDuplicate(err error) bool {
	var dup *DuplicateError
	return errors.As(err, &dup)
}

type (
	//EventStore reads and writes events together with their attributes,
	//objects, proposals and sightings
	EventStore interface {
		//EventByUUID returns the full event including attributes, objects,
		//proposals, the creating organisation and the sharing group
		EventByUUID(uuid string) (*data.Event, error)
		EventByID(id int64) (*data.Event, error)
		//EventIDExists resolves a UUID to the local event id
		EventIDExists(uuid string) (int64, bool, error)
		MinimalEvents() ([]data.MinimalEvent, error)
		//CreateEvent assigns local ids to the event, its objects and attributes
		CreateEvent(event *data.Event) (*data.Event, error)
		//UpdateEvent replaces the event with the same UUID, preserving local ids
		UpdateEvent(event *data.Event) (*data.Event, error)
		ThreatLevel(id int64) (*data.ThreatLevel, error)

		//SaveProposal inserts or replaces a proposal by UUID
		SaveProposal(proposal *data.ShadowAttribute) error
		//AddSightings stores the sightings whose UUID is not yet known and
		//returns how many were added
		AddSightings(sightings []data.Sighting) (int, error)
		EventSightings(eventID int64) ([]data.Sighting, error)
	}

	//ClusterStore reads and writes galaxies and galaxy clusters
	ClusterStore interface {
		ClusterByUUID(uuid string) (*data.GalaxyCluster, error)
		ClustersByUUID(uuids []string) ([]data.GalaxyCluster, error)
		//AccessibleClusters returns the non default clusters the user may see
		AccessibleClusters(user data.User) ([]data.GalaxyCluster, error)
		//PushableClusters returns the published custom clusters
		PushableClusters() ([]data.GalaxyCluster, error)
		CreateCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error)
		UpdateCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error)

		GalaxyByID(id int64) (*data.Galaxy, error)
		GalaxyIDExists(uuid string) (int64, bool, error)
		CreateGalaxy(galaxy *data.Galaxy) (*data.Galaxy, error)
	}

	//OrgStore reads and writes organisations and sharing groups
	OrgStore interface {
		OrgByID(id int64) (*data.Organisation, error)
		OrgByUUID(uuid string) (*data.Organisation, error)
		OrgByName(name string) (*data.Organisation, error)
		CreateOrg(org *data.Organisation) (*data.Organisation, error)

		SharingGroups() ([]data.SharingGroup, error)
		SharingGroupByID(id int64) (*data.SharingGroup, error)
		SharingGroupByUUID(uuid string) (*data.SharingGroup, error)
	}

	//ServerStore holds peer records, their sync high water marks and the blocklists
	ServerStore interface {
		Server(id int64) (*data.Server, error)
		SetLastPulledID(serverID int64, eventID int64) error
		SetLastPushedID(serverID int64, eventID int64) error
		Blocklists() (data.Blocklists, error)
	}

	//CorrelationStore holds correlation values, pairwise correlations,
	//over correlating values and exclusions
	CorrelationStore interface {
		//AttributesWithValue returns every attribute with the given value
		//together with the owning event
		AttributesWithValue(value string) ([]data.CorrelatingAttribute, error)

		CorrelationValues() ([]data.CorrelationValue, error)
		//AddCorrelationValue returns the id of the value, creating it if needed
		AddCorrelationValue(value string) (int64, error)
		//AddCorrelations inserts the correlations not yet stored and
		//returns how many were inserted
		AddCorrelations(correlations []data.Correlation) (int, error)
		//Correlations returns the correlations stored for the value
		Correlations(value string) ([]data.Correlation, error)
		//DeleteCorrelations removes every correlation keyed to the value and
		//returns how many were removed
		DeleteCorrelations(value string) (int, error)
		//NumberOfCorrelations counts the correlations of a value. Unless
		//correlationTableOnly is set, the occurrence of an over correlating
		//value is reported instead.
		NumberOfCorrelations(value string, correlationTableOnly bool) (int, error)

		OverCorrelatingValues() ([]data.OverCorrelatingValue, error)
		IsOverCorrelatingValue(value string) (bool, error)
		AddOverCorrelatingValue(value string, occurrence int) error
		DeleteOverCorrelatingValue(value string) error

		ExcludedCorrelations() ([]string, error)
		IsExcludedCorrelation(value string) (bool, error)
		AddExcludedCorrelation(value string) error

		//Threshold returns the persisted correlation threshold. ok is false
		//if none was saved.
		Threshold() (threshold int, ok bool, err error)
		SaveThreshold(threshold int) error
	}

	//Store is the full set of local persistence operations
	Store interface {
		EventStore
		ClusterStore
		OrgStore
		ServerStore
		CorrelationStore
	}
)
