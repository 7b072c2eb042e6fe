package correlation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/store"
)

//Type tells which correlations a plugin produces
type Type string

const (
	//AllCorrelations plugins correlate every eligible attribute
	AllCorrelations Type = "all-correlations"
	//SelectedCorrelations plugins correlate a subset of the attributes
	SelectedCorrelations Type = "selected-correlations"
)

var (
	//ErrUnknownPlugin is returned when no plugin is registered under a name
	ErrUnknownPlugin = errors.New("unknown correlation plugin")

	//ErrPluginExists is returned when registering a name twice
	ErrPluginExists = errors.New("correlation plugin already registered")
)

//PluginInfo describes a plugin
type PluginInfo struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Author          string `json:"author"`
	Version         string `json:"version"`
	CorrelationType Type   `json:"correlation_type"`
}

//Plugin classifies a value using its own correlation strategy
type Plugin interface {
	Info() PluginInfo
	Run(value string, st store.CorrelationStore, threshold int) (Result, error)
}

//Registry maps plugin names to plugins
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

//NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{plugins: map[string]Plugin{}}
}

//DefaultRegistry creates a registry holding the built in plugins
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(defaultPlugin{})
	_ = r.Register(toIDsPlugin{})
	return r
}

//Register adds a plugin under the name it reports
func (r *Registry) Register(plugin Plugin) error {
	name := plugin.Info().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, name)
	}
	r.plugins[name] = plugin
	return nil
}

//Unregister removes a plugin, reporting whether it was registered
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.plugins[name]
	delete(r.plugins, name)
	return ok
}

//Lookup finds a plugin by name
func (r *Registry) Lookup(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return plugin, nil
}

//Plugins lists the registered plugins sorted by name
func (r *Registry) Plugins() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PluginInfo, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		out = append(out, plugin.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// defaultPlugin runs the built in correlation
type defaultPlugin struct{}

func (defaultPlugin) Info() PluginInfo {
	return PluginInfo{
		Name:            "default",
		Description:     "Correlates every attribute sharing the value",
		Author:          "threatsync",
		Version:         "1.0",
		CorrelationType: AllCorrelations,
	}
}

func (defaultPlugin) Run(value string, st store.CorrelationStore, threshold int) (Result, error) {
	return correlate(st, value, threshold, correlatable)
}

// toIDsPlugin only correlates attributes flagged for detection
type toIDsPlugin struct{}

func (toIDsPlugin) Info() PluginInfo {
	return PluginInfo{
		Name:            "to_ids",
		Description:     "Correlates the attributes flagged for intrusion detection",
		Author:          "threatsync",
		Version:         "1.0",
		CorrelationType: SelectedCorrelations,
	}
}

func (toIDsPlugin) Run(value string, st store.CorrelationStore, threshold int) (Result, error) {
	return correlate(st, value, threshold, func(attr *data.Attribute) bool {
		return correlatable(attr) && attr.ToIDs
	})
}
