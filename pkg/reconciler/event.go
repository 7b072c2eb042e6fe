package reconciler

import (
	"fmt"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/store"
)

//ReconcileEvent writes an event pulled from the server. A local copy
//created on this instance (unlocked) or at least as recent as the remote
//one is left alone. Unlike ReconcileCluster, an internal server gets no
//exception for unlocked copies. The stored event is returned unless skipped.
func (r *Reconciler) ReconcileEvent(user data.User, server *data.Server, event *data.Event) (Outcome, *data.Event, error) {
	_, exists, err := r.store.EventIDExists(event.UUID)
	if err != nil {
		return Skipped, nil, err
	}
	if exists {
		local, err := r.store.EventByUUID(event.UUID)
		if err != nil {
			return Skipped, nil, err
		}
		if !local.Locked || event.Timestamp <= local.Timestamp {
			return Skipped, nil, nil
		}
	}

	orgcID, err := r.CaptureOrgc(event.Orgc)
	if err != nil {
		return Skipped, nil, fmt.Errorf("%w: %v", ErrOrgcUnresolved, err)
	}
	event.OrgID = server.OrgID
	event.OrgcID = orgcID
	event.Locked = true

	remoteGroupID := event.SharingGroupID
	event.Distribution = r.downgrade(server, event.Distribution)
	event.Distribution, event.SharingGroupID = r.captureSharingGroup(
		event.Distribution, event.SharingGroup, user, server,
	)
	groups := groupMapping{remote: remoteGroupID, local: event.SharingGroupID}
	for i := range event.Attributes {
		r.rewriteAttribute(server, &event.Attributes[i], groups)
	}
	for i := range event.Objects {
		obj := &event.Objects[i]
		obj.Distribution, obj.SharingGroupID = r.rewriteDistribution(server, obj.Distribution, obj.SharingGroupID, groups)
		for j := range obj.Attributes {
			r.rewriteAttribute(server, &obj.Attributes[j], groups)
		}
	}

	if _, err := r.store.ThreatLevel(event.ThreatLevelID); err == store.ErrNotFound {
		event.ThreatLevelID = data.UndefinedThreatLevel
	} else if err != nil {
		return Skipped, nil, err
	}

	event.ID = 0
	event.ShadowAttributes = nil
	if exists {
		stored, err := r.store.UpdateEvent(event)
		if err != nil {
			return Skipped, nil, err
		}
		return Updated, stored, nil
	}
	stored, err := r.store.CreateEvent(event)
	if err != nil {
		return Skipped, nil, err
	}
	return Created, stored, nil
}

// groupMapping translates the remote sharing group id of the event onto
// the captured local id. local is 0 when the group was not captured.
type groupMapping struct {
	remote int64
	local  int64
}

func (r *Reconciler) rewriteAttribute(server *data.Server, attr *data.Attribute, groups groupMapping) {
	attr.Distribution, attr.SharingGroupID = r.rewriteDistribution(server, attr.Distribution, attr.SharingGroupID, groups)
}

// rewriteDistribution downgrades the distribution of an attribute or
// object. Sharing group distribution is only kept for the sharing group
// of the event itself, since other remote group ids mean nothing locally.
func (r *Reconciler) rewriteDistribution(server *data.Server, dist data.Distribution, sgID int64, groups groupMapping) (data.Distribution, int64) {
	dist = r.downgrade(server, dist)
	if dist != data.SharingGroupDistribution {
		return dist, 0
	}
	if groups.local != 0 && sgID == groups.remote {
		return dist, groups.local
	}
	return data.OwnOrganisation, 0
}
