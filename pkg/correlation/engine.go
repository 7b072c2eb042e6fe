package correlation

import (
	"sync"
	"time"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/store"
	log "github.com/sirupsen/logrus"
)

//Result classifies a value
type Result struct {
	Found           bool     `json:"found"`
	Excluded        bool     `json:"excluded"`
	OverCorrelating bool     `json:"over_correlating"`
	Events          []string `json:"events,omitempty"`
}

//classification names the outcome for metrics and logs
func (r Result) classification() string {
	switch {
	case r.Excluded:
		return "excluded"
	case r.OverCorrelating:
		return "over_correlating"
	case r.Found:
		return "correlated"
	default:
		return "not_found"
	}
}

//Engine correlates attribute values held in the local store
type Engine struct {
	store    store.CorrelationStore
	config   *Config
	registry *Registry
	log      *log.Logger
	metrics  *metrics.Metrics
	locks    *valueLocks
	workers  int

	//ShowProgress renders progress bars during maintenance jobs
	ShowProgress bool
}

//New creates a correlation engine. A nil registry is replaced with the
//built in plugins.
func New(st store.CorrelationStore, cfg *Config, registry *Registry, workers int,
	logger *log.Logger, m *metrics.Metrics) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:    st,
		config:   cfg,
		registry: registry,
		log:      logger,
		metrics:  m,
		locks:    newValueLocks(),
		workers:  workers,
	}
}

//Config returns the threshold holder used by the engine
func (e *Engine) Config() *Config { return e.config }

//Registry returns the plugin registry used by the engine
func (e *Engine) Registry() *Registry { return e.registry }

//CorrelateValue classifies the value and stores its correlations
func (e *Engine) CorrelateValue(value string) (Result, error) {
	start := time.Now()
	defer e.metrics.ObserveJob("correlate", start)

	unlock := e.locks.lock(value)
	res, err := correlate(e.store, value, e.config.Threshold(), correlatable)
	unlock()
	if err != nil {
		return Result{}, err
	}
	e.record(value, "default", res)
	return res, nil
}

//CorrelationPlugin classifies the value with a registered plugin
func (e *Engine) CorrelationPlugin(name, value string) (Result, error) {
	plugin, err := e.registry.Lookup(name)
	if err != nil {
		return Result{}, err
	}
	start := time.Now()
	defer e.metrics.ObserveJob("correlate_plugin", start)

	unlock := e.locks.lock(value)
	res, err := plugin.Run(value, e.store, e.config.Threshold())
	unlock()
	if err != nil {
		return Result{}, err
	}
	e.record(value, name, res)
	return res, nil
}

func (e *Engine) record(value, plugin string, res Result) {
	e.metrics.Correlated(res.classification())
	e.log.WithFields(log.Fields{
		"value":          value,
		"plugin":         plugin,
		"classification": res.classification(),
		"events":         len(res.Events),
	}).Debug("Correlated value")
}

func correlatable(attr *data.Attribute) bool {
	return attr.Correlatable()
}

//correlate runs the classification shared by the engine and the built in
//plugins. keep selects the attributes which take part in correlation.
func correlate(st store.CorrelationStore, value string, threshold int,
	keep func(*data.Attribute) bool) (Result, error) {

	excluded, err := st.IsExcludedCorrelation(value)
	if err != nil {
		return Result{}, err
	}
	if excluded {
		return Result{Excluded: true}, nil
	}

	over, err := st.IsOverCorrelatingValue(value)
	if err != nil {
		return Result{}, err
	}
	if over {
		return Result{OverCorrelating: true}, nil
	}

	attrs, err := matchingAttributes(st, value, keep)
	if err != nil {
		return Result{}, err
	}

	if len(attrs) > threshold {
		// pairs written while the value was below the threshold go away
		if _, err := st.DeleteCorrelations(value); err != nil {
			return Result{}, err
		}
		if err := st.AddOverCorrelatingValue(value, len(attrs)); err != nil {
			return Result{}, err
		}
		return Result{Found: true, OverCorrelating: true}, nil
	}
	if len(attrs) <= 1 {
		return Result{}, nil
	}

	valueID, err := st.AddCorrelationValue(value)
	if err != nil {
		return Result{}, err
	}
	if _, err := st.AddCorrelations(pairs(valueID, attrs)); err != nil {
		return Result{}, err
	}
	return Result{Found: true, Events: eventUUIDs(attrs)}, nil
}

//matchingAttributes returns the attributes with the value that keep accepts
func matchingAttributes(st store.CorrelationStore, value string,
	keep func(*data.Attribute) bool) ([]data.CorrelatingAttribute, error) {
	all, err := st.AttributesWithValue(value)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for i := range all {
		if keep(&all[i].Attribute) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

//pairs builds one correlation per unordered pair of attributes living in
//different events
func pairs(valueID int64, attrs []data.CorrelatingAttribute) []data.Correlation {
	var out []data.Correlation
	for i := 0; i < len(attrs); i++ {
		for j := i + 1; j < len(attrs); j++ {
			if attrs[i].Event.ID == attrs[j].Event.ID {
				continue
			}
			out = append(out, data.Correlation{
				ValueID: valueID,
				Side1:   attrs[i].Side(),
				Side2:   attrs[j].Side(),
			})
		}
	}
	return out
}

func eventUUIDs(attrs []data.CorrelatingAttribute) []string {
	set := data.NewStringSet()
	for _, attr := range attrs {
		set.Insert(attr.Event.UUID)
	}
	return set.Items()
}

//valueLocks serializes work on the same value while letting distinct
//values proceed in parallel
type valueLocks struct {
	mu    sync.Mutex
	locks map[string]*valueLock
}

type valueLock struct {
	sync.Mutex
	refs int
}

func newValueLocks() *valueLocks {
	return &valueLocks{locks: map[string]*valueLock{}}
}

//lock acquires the lock for value and returns its release func
func (l *valueLocks) lock(value string) func() {
	l.mu.Lock()
	vl, ok := l.locks[value]
	if !ok {
		vl = &valueLock{}
		l.locks[value] = vl
	}
	vl.refs++
	l.mu.Unlock()

	vl.Lock()
	return func() {
		vl.Unlock()
		l.mu.Lock()
		vl.refs--
		if vl.refs == 0 {
			delete(l.locks, value)
		}
		l.mu.Unlock()
	}
}
