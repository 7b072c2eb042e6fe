package reconciler

import (
	"github.com/activecm/threatsync/pkg/data"
)

//ReconcileProposal attaches a proposal pulled from the server to the local
//copy of its event and stores it. Proposals are keyed by UUID so pulling
//the same proposal again replaces it.
func (r *Reconciler) ReconcileProposal(server *data.Server, proposal *data.ShadowAttribute) error {
	eventID, ok, err := r.store.EventIDExists(proposal.EventUUID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownEvent
	}
	proposal.EventID = eventID
	proposal.OrgID = server.OrgID
	// attribute ids of the peer are meaningless locally
	proposal.OldID = 0
	return r.store.SaveProposal(proposal)
}

//ReconcileSightings attaches sightings pulled from the server to the local
//event and attributes and stores those not yet known. Sightings of
//attributes missing locally are dropped.
func (r *Reconciler) ReconcileSightings(server *data.Server, eventUUID string, sightings []data.Sighting) (int, error) {
	event, err := r.store.EventByUUID(eventUUID)
	if err != nil {
		return 0, err
	}
	attrs := map[string]int64{}
	for _, attr := range event.AllAttributes() {
		attrs[attr.UUID] = attr.ID
	}

	keep := make([]data.Sighting, 0, len(sightings))
	for _, sighting := range sightings {
		attrID, ok := attrs[sighting.AttributeUUID]
		if !ok {
			continue
		}
		sighting.ID = 0
		sighting.EventID = event.ID
		sighting.EventUUID = event.UUID
		sighting.AttributeID = attrID
		sighting.OrgID = server.OrgID
		keep = append(keep, sighting)
	}
	if len(keep) == 0 {
		return 0, nil
	}
	return r.store.AddSightings(keep)
}
