package audit

import (
	"sort"
	"sync"
)

// alwaysExcluded fields never appear in a diff, whatever the registration says
var alwaysExcluded = []string{"updated_at", "password", "last_login"}

// TrackingOptions configures audit capture for one entity type
type TrackingOptions struct {
	// ExcludeFields are never tracked
	ExcludeFields []string `yaml:"exclude_fields" json:"exclude_fields,omitempty"`

	// MaskFields are tracked but their values are replaced by MaskSentinel
	MaskFields []string `yaml:"mask_fields" json:"mask_fields,omitempty"`

	// SnapshotOnCreateDelete stores the full field set on CREATE and DELETE
	SnapshotOnCreateDelete bool `yaml:"snapshot" json:"snapshot,omitempty"`
}

func (o TrackingOptions) excluded(field string) bool {
	return contains(alwaysExcluded, field) || contains(o.ExcludeFields, field)
}

func (o TrackingOptions) masked(field string) bool {
	return contains(o.MaskFields, field)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Registry holds the tracked entity types. Unregistered types produce no log records.
type Registry struct {
	mu    sync.RWMutex
	types map[EntityType]TrackingOptions
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[EntityType]TrackingOptions),
	}
}

// Register starts tracking the entity type
func (r *Registry) Register(t EntityType, opts TrackingOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t] = opts
}

// Lookup returns the tracking options of the entity type
func (r *Registry) Lookup(t EntityType) (TrackingOptions, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts, ok := r.types[t]
	return opts, ok
}

// Replace swaps the whole registration set
func (r *Registry) Replace(types map[EntityType]TrackingOptions) {
	next := make(map[EntityType]TrackingOptions, len(types))
	for t, opts := range types {
		next[t] = opts
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = next
}

// Types returns the registered entity types sorted by qualified name
func (r *Registry) Types() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]EntityType, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}
