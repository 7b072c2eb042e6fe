package pull

import (
	"context"
	"fmt"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/reconciler"
	"github.com/activecm/threatsync/pkg/visibility"
	log "github.com/sirupsen/logrus"
)

// clusterCandidates lists the UUIDs of the remote custom clusters to fetch
func (p *Puller) clusterCandidates(ctx context.Context, client peer.Client, user data.User,
	technique Technique, blocklists data.Blocklists) ([]string, error) {

	conditions := peer.ClusterConditions{Published: true, Minimal: true}
	local := map[string]int64{}

	switch technique {
	case RelevantClusters:
		accessible, err := p.store.AccessibleClusters(user)
		if err != nil {
			return nil, err
		}
		for _, cluster := range accessible {
			local[cluster.UUID] = cluster.Version
			conditions.UUIDs = append(conditions.UUIDs, cluster.UUID)
		}
		// an empty UUID list would match every remote cluster
		if len(conditions.UUIDs) == 0 {
			return nil, nil
		}
	}

	remote, err := client.CustomClusters(ctx, conditions)
	if err != nil {
		return nil, fmt.Errorf("could not list remote galaxy clusters: %w", err)
	}
	remote = visibility.FilterBlockedClusters(remote, blocklists.Clusters)

	if technique == Incremental {
		uuids := make([]string, 0, len(remote))
		for _, cluster := range remote {
			uuids = append(uuids, cluster.UUID)
		}
		known, err := p.store.ClustersByUUID(uuids)
		if err != nil {
			return nil, err
		}
		for _, cluster := range known {
			local[cluster.UUID] = cluster.Version
		}
	}

	var candidates []string
	for _, cluster := range remote {
		if technique == RelevantClusters {
			if _, ok := local[cluster.UUID]; !ok {
				continue
			}
		}
		if version, ok := local[cluster.UUID]; ok && cluster.Version <= version {
			continue
		}
		candidates = append(candidates, cluster.UUID)
	}
	return candidates, nil
}

// pullClusters fetches and reconciles the candidate clusters one by one.
// Rejected or unreadable clusters are logged and skipped.
func (p *Puller) pullClusters(ctx context.Context, client peer.Client, user data.User,
	server *data.Server, technique Technique, blocklists data.Blocklists) (int, error) {

	candidates, err := p.clusterCandidates(ctx, client, user, technique, blocklists)
	if err != nil {
		return 0, err
	}

	pulled := 0
	for _, uuid := range candidates {
		if err := ctx.Err(); err != nil {
			return pulled, err
		}
		logger := p.log.WithFields(log.Fields{
			"server_id":    server.ID,
			"cluster_uuid": uuid,
		})

		cluster, err := client.GalaxyCluster(ctx, uuid)
		if err != nil {
			logger.WithField("error", err.Error()).Error("Could not fetch galaxy cluster")
			continue
		}
		outcome, err := p.reconciler.ReconcileCluster(user, server, cluster)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Galaxy cluster rejected")
			continue
		}
		if outcome != reconciler.Skipped {
			pulled++
		}
	}
	return pulled, nil
}
