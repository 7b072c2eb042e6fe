package reconciler

import (
	"errors"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/store"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

//Outcome is the result of reconciling a single entity
type Outcome int

const (
	//Skipped means the local copy is already up to date
	Skipped Outcome = iota
	//Created means the entity did not exist locally and was inserted
	Created
	//Updated means the local copy was replaced
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	}
	return "skipped"
}

var (
	//ErrDefaultCluster is returned for platform provided clusters which are never synced
	ErrDefaultCluster = errors.New("default galaxy clusters are not synchronized")

	//ErrMissingGalaxy is returned for a cluster without its parent galaxy
	ErrMissingGalaxy = errors.New("galaxy cluster has no parent galaxy")

	//ErrClusterNotLocked is returned when a local cluster was unlocked and
	//the peer is not internal
	ErrClusterNotLocked = errors.New("local galaxy cluster is not locked")

	//ErrGalaxyPermission is returned when a missing galaxy would have to be
	//created by a user lacking site admin and galaxy editor permissions
	ErrGalaxyPermission = errors.New("user may not create galaxies")

	//ErrOrgcUnresolved is returned when the creating organisation of an
	//event cannot be resolved or captured locally
	ErrOrgcUnresolved = errors.New("creating organisation could not be resolved")

	//ErrUnknownEvent is returned for proposals and sightings of an event
	//which does not exist locally
	ErrUnknownEvent = errors.New("event does not exist locally")
)

//Reconciler decides create versus update for pulled entities and rewrites
//their ownership and distribution before they are written locally
type Reconciler struct {
	store     store.Store
	hostOrgID int64
	orgs      *lru.Cache[string, int64]
	log       *log.Logger
}

//New creates a reconciler writing through the given store
func New(st store.Store, conf *config.Config, logger *log.Logger) (*Reconciler, error) {
	size := conf.S.Sync.OrgCacheSize
	if size <= 0 {
		size = 1024
	}
	orgs, err := lru.New[string, int64](size)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		store:     st,
		hostOrgID: conf.S.Sync.HostOrgID,
		orgs:      orgs,
		log:       logger,
	}, nil
}

// trusted reports whether entities from the server keep their distribution
func (r *Reconciler) trusted(server *data.Server) bool {
	return server.Internal && server.OrgID == r.hostOrgID
}

// downgrade applies the one hop distribution downgrade unless the server is trusted
func (r *Reconciler) downgrade(server *data.Server, d data.Distribution) data.Distribution {
	if r.trusted(server) {
		return d
	}
	return d.Downgrade()
}
