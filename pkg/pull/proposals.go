package pull

import (
	"context"
	"time"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/util"
	log "github.com/sirupsen/logrus"
)

// pullProposals stores the proposals the peer made within the proposal
// window. The parent event of each proposal is refreshed from the peer
// once per job before its proposals are attached.
func (p *Puller) pullProposals(ctx context.Context, client peer.Client, user data.User, server *data.Server) int {
	since := time.Now().Add(-p.config.R.Sync.ProposalWindow)
	proposals, err := client.Proposals(ctx, since)
	if err != nil {
		p.log.WithFields(log.Fields{
			"server_id": server.ID,
			"error":     err.Error(),
		}).Error("Could not list remote proposals")
		return 0
	}

	seen := util.NewCache()
	pulled := 0
	for i := range proposals {
		if ctx.Err() != nil {
			break
		}
		proposal := &proposals[i]
		logger := p.log.WithFields(log.Fields{
			"server_id":     server.ID,
			"proposal_uuid": proposal.UUID,
			"event_uuid":    proposal.EventUUID,
		})

		if !seen.Lookup(proposal.EventUUID) {
			p.refreshEvent(ctx, client, user, server, proposal.EventID, logger)
		}
		if err := p.reconciler.ReconcileProposal(server, proposal); err != nil {
			logger.WithField("error", err.Error()).Warn("Could not save proposal")
			continue
		}
		pulled++
	}
	return pulled
}

// refreshEvent fetches an event from the peer and reconciles it
func (p *Puller) refreshEvent(ctx context.Context, client peer.Client, user data.User,
	server *data.Server, remoteID int64, logger *log.Entry) {

	event, err := client.Event(ctx, remoteID)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Could not fetch the event of a proposal")
		return
	}
	if _, _, err := p.reconciler.ReconcileEvent(user, server, event); err != nil {
		logger.WithField("error", err.Error()).Warn("Could not save the event of a proposal")
	}
}

// pullSightings fetches the sightings of the events pulled in this job.
// Sightings are matched by UUID only. Remote timestamps are not compared
// against local ones.
func (p *Puller) pullSightings(ctx context.Context, client peer.Client, server *data.Server, eventUUIDs []string) int {
	pulled := 0
	for _, uuid := range eventUUIDs {
		if ctx.Err() != nil {
			break
		}
		logger := p.log.WithFields(log.Fields{
			"server_id":  server.ID,
			"event_uuid": uuid,
		})
		sightings, err := client.EventSightings(ctx, uuid)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Could not fetch sightings")
			continue
		}
		if len(sightings) == 0 {
			continue
		}
		added, err := p.reconciler.ReconcileSightings(server, uuid, sightings)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("Could not save sightings")
			continue
		}
		pulled += added
	}
	return pulled
}
