package core

import (
	"fmt"
	"sync"
)

// PropertyMap is the mutable property bag of a resource. HMC property sets
// vary by machine generation and API version, so properties are kept as a
// map from name to a dynamically typed value (string, bool, float64,
// []interface{} or map[string]interface{} as decoded from JSON) rather than
// as static fields.
//
// All access goes through the methods; reads return snapshots so callers
// never observe a torn update from the auto-update goroutine.
type PropertyMap struct {
	mu    sync.RWMutex
	props map[string]interface{}
}

// NewPropertyMap builds a property map from decoded JSON properties. The
// input map is copied.
func NewPropertyMap(props map[string]interface{}) *PropertyMap {
	return &PropertyMap{props: copyProps(props)}
}

func copyProps(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the current properties.
func (p *PropertyMap) Snapshot() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyProps(p.props)
}

// Get returns a property value and whether it is present.
func (p *PropertyMap) Get(name string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.props[name]
	return v, ok
}

// GetDefault returns a property value, or def if absent.
func (p *PropertyMap) GetDefault(name string, def interface{}) interface{} {
	if v, ok := p.Get(name); ok {
		return v
	}
	return def
}

// GetString returns a string property, or "" if absent or of another type.
func (p *PropertyMap) GetString(name string) string {
	if v, ok := p.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Len returns the number of properties.
func (p *PropertyMap) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.props)
}

// Replace swaps the whole property set, as after a full GET of the
// resource.
func (p *PropertyMap) Replace(props map[string]interface{}) {
	fresh := copyProps(props)
	p.mu.Lock()
	p.props = fresh
	p.mu.Unlock()
}

// Update merges a property diff into the map.
func (p *PropertyMap) Update(diff map[string]interface{}) {
	p.mu.Lock()
	for k, v := range diff {
		p.props[k] = v
	}
	p.mu.Unlock()
}

// String renders the properties for debugging. Large values are not
// truncated; this is not used on the logging path.
func (p *PropertyMap) String() string {
	return fmt.Sprintf("PropertyMap(%d properties)", p.Len())
}
