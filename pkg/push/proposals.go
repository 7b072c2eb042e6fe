package push

import (
	"context"

	"github.com/activecm/threatsync/pkg/data"
)

// pushProposals sends the proposals of every eligible event
func (p *Pusher) pushProposals(ctx context.Context, j *job, events []data.MinimalEvent) int {
	pushed := 0
	for _, candidate := range events {
		if ctx.Err() != nil {
			break
		}
		event, err := p.store.EventByID(candidate.ID)
		if err != nil {
			j.logger.WithFields(logFields("event_uuid", candidate.UUID, err)).Error("Could not load event proposals")
			continue
		}
		if len(event.ShadowAttributes) == 0 {
			continue
		}
		proposals := make([]data.ShadowAttribute, 0, len(event.ShadowAttributes))
		for _, proposal := range event.ShadowAttributes {
			proposal.ID = 0
			proposal.EventID = 0
			proposal.EventUUID = event.UUID
			proposals = append(proposals, proposal)
		}
		if err := j.client.PushProposals(ctx, event.UUID, proposals); err != nil {
			j.logger.WithFields(logFields("event_uuid", event.UUID, err)).Error("Could not push proposals")
			continue
		}
		pushed += len(proposals)
	}
	return pushed
}

// pushSightings sends the sightings of every eligible event. Sightings are
// sent as stored, the peer drops those it already holds by UUID.
func (p *Pusher) pushSightings(ctx context.Context, j *job, events []data.MinimalEvent) int {
	pushed := 0
	for _, candidate := range events {
		if ctx.Err() != nil {
			break
		}
		sightings, err := p.store.EventSightings(candidate.ID)
		if err != nil {
			j.logger.WithFields(logFields("event_uuid", candidate.UUID, err)).Error("Could not load sightings")
			continue
		}
		if len(sightings) == 0 {
			continue
		}
		for i := range sightings {
			sightings[i].ID = 0
			sightings[i].EventUUID = candidate.UUID
		}
		if err := j.client.PushSightings(ctx, sightings); err != nil {
			j.logger.WithFields(logFields("event_uuid", candidate.UUID, err)).Error("Could not push sightings")
			continue
		}
		pushed += len(sightings)
	}
	return pushed
}
