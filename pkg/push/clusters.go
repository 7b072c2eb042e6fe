package push

import (
	"context"
	"fmt"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/activecm/threatsync/pkg/visibility"
	"github.com/activecm/threatsync/util"
)

// pushClusters sends every published custom cluster the peer may receive
func (p *Pusher) pushClusters(ctx context.Context, j *job) (int, error) {
	local, err := p.store.PushableClusters()
	if err != nil {
		return 0, err
	}
	return p.sendClusters(ctx, j, visibility.FilterBlockedClusters(local, j.blocked.Clusters))
}

// pushEventClusters sends the custom clusters an event is tagged with.
// seen keeps each cluster from being sent more than once per job.
func (p *Pusher) pushEventClusters(ctx context.Context, j *job, event *data.Event, seen util.Cache) {
	var uuids []string
	for _, tag := range event.Tags {
		_, uuid, ok := data.ParseClusterTagName(tag.Name)
		if !ok || seen.Lookup(uuid) {
			continue
		}
		uuids = append(uuids, uuid)
	}
	if len(uuids) == 0 {
		return
	}

	clusters, err := p.store.ClustersByUUID(uuids)
	if err != nil {
		j.logger.WithFields(logFields("event_uuid", event.UUID, err)).Error("Could not load event galaxy clusters")
		return
	}
	var custom []data.GalaxyCluster
	for _, cluster := range clusters {
		if cluster.Custom() && cluster.Published && !cluster.Deleted {
			custom = append(custom, cluster)
		}
	}
	custom = visibility.FilterBlockedClusters(custom, j.blocked.Clusters)
	if _, err := p.sendClusters(ctx, j, custom); err != nil {
		j.logger.WithFields(logFields("event_uuid", event.UUID, err)).Error("Could not push event galaxy clusters")
	}
}

// sendClusters creates or updates the clusters on the peer, leaving out
// those the peer holds in the same or a newer version
func (p *Pusher) sendClusters(ctx context.Context, j *job, local []data.GalaxyCluster) (int, error) {
	var outgoing []*data.GalaxyCluster
	var uuids []string
	for i := range local {
		out, err := p.outgoingCluster(&local[i])
		if err != nil {
			j.logger.WithFields(logFields("cluster_uuid", local[i].UUID, err)).Error("Could not prepare galaxy cluster")
			continue
		}
		if !visibility.IsClusterPushable(out, j.server, j.groups) {
			continue
		}
		outgoing = append(outgoing, out)
		uuids = append(uuids, out.UUID)
	}
	if len(outgoing) == 0 {
		return 0, nil
	}

	remote, err := j.client.CustomClusters(ctx, peer.ClusterConditions{UUIDs: uuids, Minimal: true})
	if err != nil {
		return 0, fmt.Errorf("could not list remote galaxy clusters: %w", err)
	}
	outgoing, exists := removeOlderClusters(outgoing, remote)

	pushed := 0
	for _, cluster := range outgoing {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		if exists.Contains(cluster.UUID) {
			_, err = j.client.UpdateCluster(ctx, cluster)
		} else {
			_, err = j.client.CreateCluster(ctx, cluster)
		}
		if err != nil {
			j.logger.WithFields(logFields("cluster_uuid", cluster.UUID, err)).Error("Could not push galaxy cluster")
			continue
		}
		pushed++
	}
	return pushed, nil
}

// removeOlderClusters drops the local clusters whose version does not
// exceed the version held by the peer. The UUIDs the peer already holds
// are returned alongside.
func removeOlderClusters(local []*data.GalaxyCluster, remote []data.GalaxyCluster) ([]*data.GalaxyCluster, data.StringSet) {
	remoteVersions := map[string]int64{}
	for _, cluster := range remote {
		remoteVersions[cluster.UUID] = cluster.Version
	}
	exists := data.NewStringSet()
	var out []*data.GalaxyCluster
	for _, cluster := range local {
		version, ok := remoteVersions[cluster.UUID]
		if ok {
			exists.Insert(cluster.UUID)
			if cluster.Version <= version {
				continue
			}
		}
		out = append(out, cluster)
	}
	return out, exists
}

// outgoingCluster attaches the galaxy, creator and sharing group a peer
// needs to reconcile the cluster and downgrades its distribution
func (p *Pusher) outgoingCluster(cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	out := *cluster
	out.Distribution = sendDistribution(cluster.Distribution)

	galaxy, err := p.store.GalaxyByID(cluster.GalaxyID)
	if err != nil {
		return nil, fmt.Errorf("galaxy %d: %w", cluster.GalaxyID, err)
	}
	out.Galaxy = galaxy

	orgc, err := p.store.OrgByID(cluster.OrgcID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	out.Orgc = orgc

	if out.Distribution == data.SharingGroupDistribution {
		sg, err := p.store.SharingGroupByID(cluster.SharingGroupID)
		if err != nil && err != store.ErrNotFound {
			return nil, err
		}
		out.SharingGroup = sg
	}
	return &out, nil
}
