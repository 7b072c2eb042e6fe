package pull

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/reconciler"
	"github.com/activecm/threatsync/pkg/store"
	log "github.com/sirupsen/logrus"
)

//Technique selects which remote entities are candidates for a pull
type Technique string

const (
	//Full pulls every remote event and cluster regardless of local state
	Full Technique = "full"
	//Incremental refreshes the events already known locally
	Incremental Technique = "incremental"
	//RelevantClusters only refreshes clusters the local instance already holds
	RelevantClusters Technique = "pull_relevant_clusters"
)

//ErrUnknownTechnique is returned when parsing an unsupported technique name
var ErrUnknownTechnique = errors.New("unknown pull technique")

//ParseTechnique converts a technique name into a Technique
func ParseTechnique(name string) (Technique, error) {
	switch t := Technique(name); t {
	case Full, Incremental, RelevantClusters:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTechnique, name)
}

//Result tallies the outcome of a pull
type Result struct {
	EventsSuccess   int `json:"successes"`
	EventsFail      int `json:"fails"`
	EventsSkipped   int `json:"skipped"`
	ProposalsPulled int `json:"pulled_proposals"`
	SightingsPulled int `json:"pulled_sightings"`
	ClustersPulled  int `json:"pulled_clusters"`
}

//Puller pulls events, clusters, proposals and sightings from peers
type Puller struct {
	store      store.Store
	peers      peer.Factory
	reconciler *reconciler.Reconciler
	config     *config.Config
	log        *log.Logger
	metrics    *metrics.Metrics

	//ShowProgress draws progress bars while events are pulled
	ShowProgress bool
}

//New creates a Puller. m may be nil.
func New(st store.Store, peers peer.Factory, rec *reconciler.Reconciler, conf *config.Config,
	logger *log.Logger, m *metrics.Metrics) *Puller {
	return &Puller{
		store:      st,
		peers:      peers,
		reconciler: rec,
		config:     conf,
		log:        logger,
		metrics:    m,
	}
}

//Run pulls from the server acting as user. Unreachable or forbidden
//servers fail the whole job before anything is written. Failures of
//individual entities are logged and counted.
func (p *Puller) Run(ctx context.Context, user data.User, serverID int64, technique Technique) (Result, error) {
	var result Result
	start := time.Now()
	defer p.metrics.ObserveJob("pull", start)

	server, err := p.store.Server(serverID)
	if err != nil {
		return result, fmt.Errorf("server %d: %w", serverID, err)
	}
	client, err := p.peers(server)
	if err != nil {
		return result, err
	}

	if err := checkReachable(ctx, client); err != nil {
		return result, err
	}
	if !server.Pull {
		return result, fmt.Errorf("pull from server %d: %w", server.ID, peer.ErrForbiddenByServerSettings)
	}

	blocklists, err := p.store.Blocklists()
	if err != nil {
		return result, err
	}

	logger := p.log.WithFields(log.Fields{
		"server_id": server.ID,
		"technique": technique,
	})

	if server.PullGalaxyClusters || technique == RelevantClusters {
		result.ClustersPulled, err = p.pullClusters(ctx, client, user, server, technique, blocklists)
		if err != nil {
			return result, err
		}
		p.metrics.ClustersSynced(server.ID, metrics.Pulled, result.ClustersPulled)
	}
	if technique == RelevantClusters {
		logger.WithField("clusters", result.ClustersPulled).Info("Pulled relevant galaxy clusters")
		return result, nil
	}

	candidates, skipped, err := p.selectEvents(ctx, client, server, technique, blocklists)
	if err != nil {
		return result, err
	}
	result.EventsSkipped = skipped

	pulled, err := p.pullEvents(ctx, client, user, server, candidates)
	result.EventsSuccess = pulled.success
	result.EventsSkipped += pulled.skipped
	result.EventsFail = pulled.failed
	if err != nil {
		return result, err
	}

	result.ProposalsPulled = p.pullProposals(ctx, client, user, server)
	p.metrics.ProposalsSynced(server.ID, metrics.Pulled, result.ProposalsPulled)

	if p.config.S.Sync.SightingSync {
		result.SightingsPulled = p.pullSightings(ctx, client, server, pulled.uuids)
		p.metrics.SightingsSynced(server.ID, metrics.Pulled, result.SightingsPulled)
	}

	if pulled.maxID > server.LastPulledID {
		if err := p.store.SetLastPulledID(server.ID, pulled.maxID); err != nil {
			logger.WithField("error", err.Error()).Error("Could not save last pulled event id")
		}
	}

	logger.WithFields(log.Fields{
		"events_success": result.EventsSuccess,
		"events_fail":    result.EventsFail,
		"events_skipped": result.EventsSkipped,
		"proposals":      result.ProposalsPulled,
		"sightings":      result.SightingsPulled,
		"clusters":       result.ClustersPulled,
	}).Info("Pull finished")
	return result, nil
}

// checkReachable fetches the server settings of the peer. Malformed
// responses keep their own error kind, anything else means unreachable.
func checkReachable(ctx context.Context, client peer.Client) error {
	_, err := client.ServerSettings(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, peer.ErrServerNotReachable) || errors.Is(err, peer.ErrInvalidAPIResponse) {
		return err
	}
	return fmt.Errorf("%w: %v", peer.ErrServerNotReachable, err)
}
