package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/activecm/threatsync/pkg/visibility"
	"github.com/blang/semver"
	log "github.com/sirupsen/logrus"
)

//Technique selects which local events are candidates for a push
type Technique string

const (
	//Full pushes every eligible event
	Full Technique = "full"
	//Incremental pushes the eligible events created since the last push
	Incremental Technique = "incremental"
)

//ErrUnknownTechnique is returned when parsing an unsupported technique name
var ErrUnknownTechnique = errors.New("unknown push technique")

//ParseTechnique converts a technique name into a Technique
func ParseTechnique(name string) (Technique, error) {
	switch t := Technique(name); t {
	case Full, Incremental:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTechnique, name)
}

//Result reports the outcome of a push. Success is set once the push ran
//to completion, individual failures are only counted.
type Result struct {
	Success         bool `json:"success"`
	EventsPushed    int  `json:"events_pushed"`
	EventsFailed    int  `json:"events_failed"`
	ClustersPushed  int  `json:"clusters_pushed"`
	ProposalsPushed int  `json:"proposals_pushed"`
	SightingsPushed int  `json:"sightings_pushed"`
}

//Pusher pushes events, clusters, proposals and sightings to peers
type Pusher struct {
	store   store.Store
	peers   peer.Factory
	config  *config.Config
	log     *log.Logger
	metrics *metrics.Metrics

	//ShowProgress draws progress bars while events are pushed
	ShowProgress bool
}

//New creates a Pusher. m may be nil.
func New(st store.Store, peers peer.Factory, conf *config.Config, logger *log.Logger, m *metrics.Metrics) *Pusher {
	return &Pusher{
		store:   st,
		peers:   peers,
		config:  conf,
		log:     logger,
		metrics: m,
	}
}

// job carries the state shared by the stages of a single push
type job struct {
	client    peer.Client
	user      data.User
	server    *data.Server
	technique Technique
	version   data.ServerVersion
	groups    map[int64]*data.SharingGroup
	blocked   data.Blocklists
	logger    *log.Entry
}

//Run pushes to the server acting as user
func (p *Pusher) Run(ctx context.Context, user data.User, serverID int64, technique Technique) (Result, error) {
	var result Result
	start := time.Now()
	defer p.metrics.ObserveJob("push", start)

	server, err := p.store.Server(serverID)
	if err != nil {
		return result, fmt.Errorf("server %d: %w", serverID, err)
	}
	client, err := p.peers(server)
	if err != nil {
		return result, err
	}

	if !server.Push {
		return result, fmt.Errorf("push to server %d: %w", server.ID, peer.ErrForbiddenByServerSettings)
	}
	version, err := p.checkVersion(ctx, client)
	if err != nil {
		return result, err
	}

	groups, err := p.store.SharingGroups()
	if err != nil {
		return result, err
	}
	blocked, err := p.store.Blocklists()
	if err != nil {
		return result, err
	}

	j := &job{
		client:    client,
		user:      user,
		server:    server,
		technique: technique,
		version:   version,
		groups:    visibility.GroupsByID(groups),
		blocked:   blocked,
		logger: p.log.WithFields(log.Fields{
			"server_id": server.ID,
			"technique": technique,
		}),
	}

	if server.PushGalaxyClusters {
		if version.PermGalaxyEditor {
			result.ClustersPushed, err = p.pushClusters(ctx, j)
			if err != nil {
				return result, err
			}
			p.metrics.ClustersSynced(server.ID, metrics.Pushed, result.ClustersPushed)
		} else {
			j.logger.Warn("Remote server does not allow galaxy cluster edits, skipping clusters")
		}
	}

	eligible, err := p.eligibleEvents(j)
	if err != nil {
		return result, err
	}

	if version.PermSync {
		pushed, err := p.pushEvents(ctx, j, selectForTechnique(eligible, server, technique))
		result.EventsPushed = pushed.success
		result.EventsFailed = pushed.failed
		if err != nil {
			return result, err
		}
		if pushed.maxID > server.LastPushedID {
			if err := p.store.SetLastPushedID(server.ID, pushed.maxID); err != nil {
				j.logger.WithField("error", err.Error()).Error("Could not save last pushed event id")
			}
		}

		result.ProposalsPushed = p.pushProposals(ctx, j, eligible)
		p.metrics.ProposalsSynced(server.ID, metrics.Pushed, result.ProposalsPushed)
	}

	if p.config.S.Sync.SightingSync && server.PushSightings && version.PermSighting {
		result.SightingsPushed = p.pushSightings(ctx, j, eligible)
		p.metrics.SightingsSynced(server.ID, metrics.Pushed, result.SightingsPushed)
	}

	result.Success = true
	j.logger.WithFields(log.Fields{
		"events_pushed":    result.EventsPushed,
		"events_failed":    result.EventsFailed,
		"clusters_pushed":  result.ClustersPushed,
		"proposals_pushed": result.ProposalsPushed,
		"sightings_pushed": result.SightingsPushed,
	}).Info("Push finished")
	return result, nil
}

// checkVersion fetches the capabilities of the peer and makes sure it
// can receive anything at all. Failing to fetch them at all means the
// peer is unreachable.
func (p *Pusher) checkVersion(ctx context.Context, client peer.Client) (data.ServerVersion, error) {
	version, err := client.ServerVersion(ctx)
	if err != nil {
		if errors.Is(err, peer.ErrInvalidAPIResponse) {
			return version, fmt.Errorf("%w: %v", peer.ErrInvalidServerVersion, err)
		}
		if errors.Is(err, peer.ErrServerNotReachable) {
			return version, err
		}
		return version, fmt.Errorf("%w: %v", peer.ErrServerNotReachable, err)
	}

	parsed, err := semver.ParseTolerant(version.Version)
	if err != nil {
		return version, fmt.Errorf("%w: %q: %v", peer.ErrInvalidServerVersion, version.Version, err)
	}
	if parsed.LT(p.config.R.Sync.MinPeerVersion) {
		return version, fmt.Errorf("%w: %s is older than %s",
			peer.ErrInvalidServerVersion, parsed, p.config.R.Sync.MinPeerVersion)
	}
	if !version.PermSync && !version.PermSighting {
		return version, fmt.Errorf("remote user lacks sync and sighting permissions: %w",
			peer.ErrForbiddenByServerSettings)
	}
	return version, nil
}
