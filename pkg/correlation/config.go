package correlation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/store"
)

//DefaultThreshold is used when neither the store nor the configuration
//provide a threshold
const DefaultThreshold = 20

//ErrInvalidThreshold is returned for thresholds below one
var ErrInvalidThreshold = errors.New("correlation threshold must be a positive integer")

//Config holds the over correlation threshold shared by every correlation
//job of the process
type Config struct {
	mu        sync.RWMutex
	threshold int
	store     store.CorrelationStore
}

//NewConfig loads the threshold saved in the store, falling back to the
//configured threshold
func NewConfig(st store.CorrelationStore, conf *config.Config) (*Config, error) {
	threshold := conf.S.Correlation.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	saved, ok, err := st.Threshold()
	if err != nil {
		return nil, err
	}
	if ok && saved > 0 {
		threshold = saved
	}
	return &Config{threshold: threshold, store: st}, nil
}

//Threshold returns the current threshold
func (c *Config) Threshold() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

//SetThreshold replaces the threshold and saves it. Invalid thresholds
//leave the current one in place.
func (c *Config) SetThreshold(threshold int) (old int, updated int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.threshold
	if threshold <= 0 {
		return old, old, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	if err := c.store.SaveThreshold(threshold); err != nil {
		return old, old, err
	}
	c.threshold = threshold
	return old, threshold, nil
}
