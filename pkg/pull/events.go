package pull

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/reconciler"
	"github.com/activecm/threatsync/pkg/visibility"
	"github.com/activecm/threatsync/util"
	log "github.com/sirupsen/logrus"
)

// selectEvents lists the remote events worth fetching. Events already up
// to date locally are counted as skipped.
func (p *Puller) selectEvents(ctx context.Context, client peer.Client, server *data.Server,
	technique Technique, blocklists data.Blocklists) ([]data.MinimalEvent, int, error) {

	// the full technique ignores the filter rules of the server
	remote, err := client.MinimalEvents(ctx, server.PullRules, technique == Full)
	if err != nil {
		return nil, 0, fmt.Errorf("could not list remote events: %w", err)
	}
	localEvents, err := p.store.MinimalEvents()
	if err != nil {
		return nil, 0, err
	}
	local := visibility.NewEventIndex(localEvents)

	remote = visibility.FilterBlockedEvents(remote, blocklists)

	var candidates []data.MinimalEvent
	skipped := 0
	for _, event := range remote {
		if technique == Incremental {
			if _, known := local[event.UUID]; !known {
				continue
			}
			if !visibility.AllowedByPullRules(event, server.PullRules) {
				continue
			}
		}
		if !visibility.IsEventAcceptableFromPull(event, local, blocklists) {
			skipped++
			continue
		}
		candidates = append(candidates, event)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, skipped, nil
}

// eventTally accumulates the outcome of the event workers
type eventTally struct {
	success int
	failed  int
	skipped int
	maxID   int64
	uuids   []string
}

// eventPuller fetches and reconciles remote events on a pool of workers
type eventPuller struct {
	puller  *Puller
	client  peer.Client
	user    data.User
	server  *data.Server
	bar     *util.ProgressBar
	channel chan data.MinimalEvent
	wg      sync.WaitGroup

	mu    sync.Mutex
	tally eventTally
}

// pullEvents fetches every candidate from the peer and reconciles it.
// Cancellation stops handing out events, events in flight still finish.
func (p *Puller) pullEvents(ctx context.Context, client peer.Client, user data.User,
	server *data.Server, candidates []data.MinimalEvent) (eventTally, error) {

	worker := &eventPuller{
		puller:  p,
		client:  client,
		user:    user,
		server:  server,
		bar:     util.NewProgressBar("Pulling Events", len(candidates), p.ShowProgress),
		channel: make(chan data.MinimalEvent),
	}

	for i := 0; i < util.Max(1, p.config.S.Sync.Workers); i++ {
		worker.start(ctx)
	}

	var err error
	for _, event := range candidates {
		if err = ctx.Err(); err != nil {
			break
		}
		worker.collect(event)
	}
	worker.close()
	worker.bar.Wait()

	sort.Strings(worker.tally.uuids)
	return worker.tally, err
}

func (w *eventPuller) collect(event data.MinimalEvent) {
	w.channel <- event
}

func (w *eventPuller) close() {
	close(w.channel)
	w.wg.Wait()
}

func (w *eventPuller) start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		for candidate := range w.channel {
			w.pull(ctx, candidate)
			w.bar.Increment()
		}
		w.wg.Done()
	}()
}

func (w *eventPuller) pull(ctx context.Context, candidate data.MinimalEvent) {
	logger := w.puller.log.WithFields(log.Fields{
		"server_id":  w.server.ID,
		"event_uuid": candidate.UUID,
	})

	event, err := w.client.Event(ctx, candidate.ID)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Could not fetch event")
		w.failed()
		return
	}

	outcome, _, err := w.puller.reconciler.ReconcileEvent(w.user, w.server, event)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Could not save event")
		w.failed()
		return
	}
	w.puller.metrics.EventSynced(w.server.ID, metrics.Pulled, outcome.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if outcome == reconciler.Skipped {
		w.tally.skipped++
		return
	}
	logger.WithField("outcome", outcome.String()).Debug("Pulled event")
	w.tally.success++
	w.tally.maxID = util.MaxInt64(w.tally.maxID, candidate.ID)
	w.tally.uuids = append(w.tally.uuids, candidate.UUID)
}

func (w *eventPuller) failed() {
	w.puller.metrics.EventSynced(w.server.ID, metrics.Pulled, "failed")
	w.mu.Lock()
	w.tally.failed++
	w.mu.Unlock()
}
