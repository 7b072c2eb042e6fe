package push

import (
	"context"
	"sort"
	"sync"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/visibility"
	"github.com/activecm/threatsync/util"
	log "github.com/sirupsen/logrus"
)

// sendDistribution is the distribution an entity is sent with. Entities
// shared with connected communities only travel one hop.
func sendDistribution(d data.Distribution) data.Distribution {
	if d == data.ConnectedCommunities {
		return data.ThisCommunity
	}
	return d
}

// eligibleEvents lists the local events the server may receive, sorted by id
func (p *Pusher) eligibleEvents(j *job) ([]data.MinimalEvent, error) {
	events, err := p.store.MinimalEvents()
	if err != nil {
		return nil, err
	}
	events = visibility.FilterBlockedEvents(events, j.blocked)

	var eligible []data.MinimalEvent
	for _, event := range events {
		event.Distribution = sendDistribution(event.Distribution)
		if !visibility.IsEventPushable(event, j.server, j.groups) {
			continue
		}
		if !visibility.AllowedByPushRules(event, j.server.PushRules) {
			continue
		}
		eligible = append(eligible, event)
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible, nil
}

// selectForTechnique drops the events already pushed for the incremental technique
func selectForTechnique(events []data.MinimalEvent, server *data.Server, technique Technique) []data.MinimalEvent {
	if technique != Incremental {
		return events
	}
	var out []data.MinimalEvent
	for _, event := range events {
		if event.ID > server.LastPushedID {
			out = append(out, event)
		}
	}
	return out
}

// outgoingEvent prepares the copy of an event sent to a peer: proposals
// travel separately, own organisation content stays local and connected
// community distribution is downgraded.
func outgoingEvent(event *data.Event) *data.Event {
	out := *event
	out.Distribution = sendDistribution(event.Distribution)
	out.ShadowAttributes = nil
	out.Attributes = outgoingAttributes(event.Attributes)

	out.Objects = nil
	for _, obj := range event.Objects {
		if obj.Distribution == data.OwnOrganisation {
			continue
		}
		obj.Distribution = sendDistribution(obj.Distribution)
		obj.Attributes = outgoingAttributes(obj.Attributes)
		out.Objects = append(out.Objects, obj)
	}
	out.AttributeCount = len(out.AllAttributes())
	return &out
}

func outgoingAttributes(attrs []data.Attribute) []data.Attribute {
	var out []data.Attribute
	for _, attr := range attrs {
		if attr.Distribution == data.OwnOrganisation {
			continue
		}
		attr.Distribution = sendDistribution(attr.Distribution)
		out = append(out, attr)
	}
	return out
}

// eventTally accumulates the outcome of the event workers
type eventTally struct {
	success int
	failed  int
	maxID   int64
}

// eventPusher sends local events to the peer on a pool of workers
type eventPusher struct {
	pusher   *Pusher
	job      *job
	clusters util.Cache
	bar      *util.ProgressBar
	channel  chan data.MinimalEvent
	wg       sync.WaitGroup

	mu    sync.Mutex
	tally eventTally
}

// pushEvents sends every selected event to the peer
func (p *Pusher) pushEvents(ctx context.Context, j *job, events []data.MinimalEvent) (eventTally, error) {
	worker := &eventPusher{
		pusher:   p,
		job:      j,
		clusters: util.NewCache(),
		bar:      util.NewProgressBar("Pushing Events", len(events), p.ShowProgress),
		channel:  make(chan data.MinimalEvent),
	}

	for i := 0; i < util.Max(1, p.config.S.Sync.Workers); i++ {
		worker.start(ctx)
	}

	var err error
	for _, event := range events {
		if err = ctx.Err(); err != nil {
			break
		}
		worker.collect(event)
	}
	worker.close()
	worker.bar.Wait()
	return worker.tally, err
}

func (w *eventPusher) collect(event data.MinimalEvent) {
	w.channel <- event
}

func (w *eventPusher) close() {
	close(w.channel)
	w.wg.Wait()
}

func (w *eventPusher) start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		for event := range w.channel {
			w.push(ctx, event)
			w.bar.Increment()
		}
		w.wg.Done()
	}()
}

// pushClustersFirst reports whether the custom clusters an event is tagged
// with are sent ahead of the event
func (w *eventPusher) pushClustersFirst() bool {
	return w.job.technique == Full && w.job.version.PermGalaxyEditor && w.job.server.PushGalaxyClusters
}

func (w *eventPusher) push(ctx context.Context, candidate data.MinimalEvent) {
	logger := w.job.logger.WithField("event_uuid", candidate.UUID)

	event, err := w.pusher.store.EventByID(candidate.ID)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Could not load event")
		w.failed()
		return
	}

	if w.pushClustersFirst() {
		w.pusher.pushEventClusters(ctx, w.job, event, w.clusters)
	}

	out := outgoingEvent(event)
	_, err = w.job.client.CreateEvent(ctx, out)
	if peer.IsConflict(err) {
		_, err = w.job.client.UpdateEvent(ctx, out)
	}
	if err != nil {
		logger.WithField("error", err.Error()).Error("Could not push event")
		w.failed()
		return
	}
	w.pusher.metrics.EventSynced(w.job.server.ID, metrics.Pushed, "pushed")

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tally.success++
	w.tally.maxID = util.MaxInt64(w.tally.maxID, candidate.ID)
	logger.WithField("event_id", candidate.ID).Debug("Pushed event")
}

func (w *eventPusher) failed() {
	w.pusher.metrics.EventSynced(w.job.server.ID, metrics.Pushed, "failed")
	w.mu.Lock()
	w.tally.failed++
	w.mu.Unlock()
}

// logFields names the entity a push failure is about
func logFields(key string, value string, err error) log.Fields {
	return log.Fields{key: value, "error": err.Error()}
}
