package correlation

import (
	"sort"
	"sync"
	"time"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/util"
	log "github.com/sirupsen/logrus"
)

//TopCorrelation is a correlation value ranked by its number of correlations
type TopCorrelation struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

//TopCorrelations ranks the correlation values by the number of
//correlations stored for them. Values without correlations are left out.
func (e *Engine) TopCorrelations() ([]TopCorrelation, error) {
	values, err := e.store.CorrelationValues()
	if err != nil {
		return nil, err
	}
	top := make([]TopCorrelation, 0, len(values))
	for _, value := range values {
		count, err := e.store.NumberOfCorrelations(value.Value, true)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		top = append(top, TopCorrelation{Value: value.Value, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})
	return top, nil
}

//CleanExcludedCorrelations removes the correlations of every excluded
//value and reports whether anything was removed
func (e *Engine) CleanExcludedCorrelations() (bool, error) {
	start := time.Now()
	defer e.metrics.ObserveJob("clean_excluded_correlations", start)

	excluded, err := e.store.ExcludedCorrelations()
	if err != nil {
		return false, err
	}
	removed := 0
	for _, value := range excluded {
		unlock := e.locks.lock(value)
		n, err := e.store.DeleteCorrelations(value)
		unlock()
		if err != nil {
			return removed > 0, err
		}
		removed += n
	}
	e.log.WithFields(log.Fields{
		"excluded": len(excluded),
		"removed":  removed,
	}).Info("Cleaned excluded correlations")
	return removed > 0, nil
}

// occurrence is a tracked value awaiting regeneration
type occurrence struct {
	value string
	over  bool
	count int
}

//RegenerateOccurrences recomputes every tracked value from the current
//attributes. Values move between the correlating and over correlating
//states when they cross the threshold and stale correlations are rebuilt.
func (e *Engine) RegenerateOccurrences() (bool, error) {
	start := time.Now()
	defer e.metrics.ObserveJob("regenerate_occurrences", start)

	tracked, err := e.trackedValues()
	if err != nil {
		return false, err
	}
	threshold := e.config.Threshold()

	r := &regenerator{
		engine:    e,
		threshold: threshold,
		bar:       util.NewProgressBar("Regenerating occurrences", len(tracked), e.ShowProgress),
		channel:   make(chan occurrence),
	}
	for i := 0; i < e.workers; i++ {
		r.start()
	}
	for _, item := range tracked {
		r.collect(item)
	}
	r.close()
	r.bar.Wait()

	e.log.WithFields(log.Fields{
		"values":    len(tracked),
		"changed":   r.changed,
		"threshold": threshold,
	}).Info("Regenerated correlation occurrences")
	return r.changed > 0, r.err
}

//trackedValues merges the over correlating and correlation values. A value
//present in both is treated as over correlating.
func (e *Engine) trackedValues() ([]occurrence, error) {
	over, err := e.store.OverCorrelatingValues()
	if err != nil {
		return nil, err
	}
	values, err := e.store.CorrelationValues()
	if err != nil {
		return nil, err
	}

	seen := data.NewStringSet()
	tracked := make([]occurrence, 0, len(over)+len(values))
	for _, value := range over {
		seen.Insert(value.Value)
		tracked = append(tracked, occurrence{value: value.Value, over: true, count: value.Occurrence})
	}
	for _, value := range values {
		if seen.Contains(value.Value) {
			continue
		}
		seen.Insert(value.Value)
		tracked = append(tracked, occurrence{value: value.Value})
	}
	return tracked, nil
}

// regenerator recomputes tracked values on a pool of workers
type regenerator struct {
	engine    *Engine
	threshold int
	bar       *util.ProgressBar
	channel   chan occurrence
	wg        sync.WaitGroup

	mu      sync.Mutex
	changed int
	err     error
}

func (r *regenerator) collect(item occurrence) {
	r.channel <- item
}

func (r *regenerator) close() {
	close(r.channel)
	r.wg.Wait()
}

func (r *regenerator) start() {
	r.wg.Add(1)
	go func() {
		for item := range r.channel {
			unlock := r.engine.locks.lock(item.value)
			changed, err := r.regenerate(item)
			unlock()

			r.mu.Lock()
			if changed {
				r.changed++
			}
			if err != nil && r.err == nil {
				r.err = err
			}
			r.mu.Unlock()
			if err != nil {
				r.engine.log.WithFields(log.Fields{
					"value": item.value,
					"error": err.Error(),
				}).Error("Could not regenerate correlation occurrence")
			}
			r.bar.Increment()
		}
		r.wg.Done()
	}()
}

func (r *regenerator) regenerate(item occurrence) (bool, error) {
	st := r.engine.store

	excluded, err := st.IsExcludedCorrelation(item.value)
	if err != nil || excluded {
		return false, err
	}

	attrs, err := matchingAttributes(st, item.value, correlatable)
	if err != nil {
		return false, err
	}
	n := len(attrs)

	if n > r.threshold {
		if item.over {
			if n == item.count {
				return false, nil
			}
			return true, st.AddOverCorrelatingValue(item.value, n)
		}
		if _, err := st.DeleteCorrelations(item.value); err != nil {
			return false, err
		}
		return true, st.AddOverCorrelatingValue(item.value, n)
	}

	changed := false
	if item.over {
		if err := st.DeleteOverCorrelatingValue(item.value); err != nil {
			return false, err
		}
		changed = true
	}

	if n <= 1 {
		removed, err := st.DeleteCorrelations(item.value)
		return changed || removed > 0, err
	}

	valueID, err := st.AddCorrelationValue(item.value)
	if err != nil {
		return changed, err
	}
	expected := pairs(valueID, attrs)
	current, err := st.Correlations(item.value)
	if err != nil {
		return changed, err
	}
	if !changed && samePairs(current, expected) {
		return false, nil
	}
	if _, err := st.DeleteCorrelations(item.value); err != nil {
		return changed, err
	}
	if _, err := st.AddCorrelations(expected); err != nil {
		return true, err
	}
	return true, nil
}

// samePairs reports whether both sets hold the same correlations,
// whatever the order of the pairs and of their sides
func samePairs(current, expected []data.Correlation) bool {
	if len(current) != len(expected) {
		return false
	}
	set := make(map[data.Correlation]struct{}, len(current))
	for _, c := range current {
		set[orderedSides(c)] = struct{}{}
	}
	for _, c := range expected {
		if _, ok := set[orderedSides(c)]; !ok {
			return false
		}
	}
	return true
}

func orderedSides(c data.Correlation) data.Correlation {
	if c.Side1.AttributeID > c.Side2.AttributeID {
		c.Side1, c.Side2 = c.Side2, c.Side1
	}
	return c
}
