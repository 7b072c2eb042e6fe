package visibility

import (
	"github.com/activecm/threatsync/pkg/data"
)

//EventIndex maps event UUIDs to the local index view of the event
type EventIndex map[string]data.MinimalEvent

//NewEventIndex indexes events by UUID
func NewEventIndex(events []data.MinimalEvent) EventIndex {
	index := make(EventIndex, len(events))
	for _, event := range events {
		index[event.UUID] = event
	}
	return index
}

//GroupsByID indexes sharing groups by their local id
func GroupsByID(groups []data.SharingGroup) map[int64]*data.SharingGroup {
	out := make(map[int64]*data.SharingGroup, len(groups))
	for i := range groups {
		out[groups[i].ID] = &groups[i]
	}
	return out
}

//ServerInSharingGroup reports whether the peer may receive entities
//distributed to the sharing group. Roaming groups and groups with an
//all_orgs server admit every peer. Otherwise the organisation operating
//the peer must be a member of the group.
func ServerInSharingGroup(sg *data.SharingGroup, server *data.Server) bool {
	if sg == nil || server == nil {
		return false
	}
	if sg.Roaming {
		return true
	}
	for _, s := range sg.Servers {
		if s.AllOrgs {
			return true
		}
	}
	return sg.HasMember(server.RemoteOrgID)
}

//IsEventPushable decides whether the index view of a local event may be
//sent to the peer. The event must be published, hold at least one
//attribute and be distributed beyond the owning organisation. Sharing
//group events additionally require the peer to be part of the group.
func IsEventPushable(event data.MinimalEvent, server *data.Server, groups map[int64]*data.SharingGroup) bool {
	if !event.Published || event.AttributeCount < 1 {
		return false
	}
	if event.Distribution > data.OwnOrganisation && event.Distribution < data.SharingGroupDistribution {
		return true
	}
	if event.Distribution != data.SharingGroupDistribution {
		return false
	}
	sg, ok := groups[event.SharingGroupID]
	return ok && ServerInSharingGroup(sg, server)
}

//IsClusterPushable decides whether a local custom cluster may be sent to
//the peer, following the same distribution rules as events
func IsClusterPushable(cluster *data.GalaxyCluster, server *data.Server, groups map[int64]*data.SharingGroup) bool {
	if cluster.Default || cluster.Deleted || !cluster.Published {
		return false
	}
	if cluster.Distribution > data.OwnOrganisation && cluster.Distribution < data.SharingGroupDistribution {
		return true
	}
	if cluster.Distribution != data.SharingGroupDistribution {
		return false
	}
	sg, ok := groups[cluster.SharingGroupID]
	return ok && ServerInSharingGroup(sg, server)
}

//IsEventAcceptableFromPull decides whether a remote event should be
//fetched. Blocked events and events created by blocked organisations are
//refused. A local copy that is at least as recent, or that was created
//locally rather than pulled (unlocked), is never overwritten. Unlike
//clusters this also holds for internal servers.
func IsEventAcceptableFromPull(event data.MinimalEvent, local EventIndex, blocklists data.Blocklists) bool {
	if blocklists.Events.Contains(event.UUID) {
		return false
	}
	if event.OrgcUUID != "" && blocklists.Orgs.Contains(event.OrgcUUID) {
		return false
	}
	existing, ok := local[event.UUID]
	if !ok {
		return true
	}
	if !existing.Locked {
		return false
	}
	return existing.Timestamp < event.Timestamp
}

//FilterBlockedEvents removes events whose UUID or creating organisation
//is blocked
func FilterBlockedEvents(events []data.MinimalEvent, blocklists data.Blocklists) []data.MinimalEvent {
	out := make([]data.MinimalEvent, 0, len(events))
	for _, event := range events {
		if blocklists.Events.Contains(event.UUID) {
			continue
		}
		if event.OrgcUUID != "" && blocklists.Orgs.Contains(event.OrgcUUID) {
			continue
		}
		out = append(out, event)
	}
	return out
}

//FilterBlockedClusters removes clusters whose UUID is blocked
func FilterBlockedClusters(clusters []data.GalaxyCluster, blocked data.StringSet) []data.GalaxyCluster {
	out := make([]data.GalaxyCluster, 0, len(clusters))
	for _, cluster := range clusters {
		if blocked.Contains(cluster.UUID) {
			continue
		}
		out = append(out, cluster)
	}
	return out
}
