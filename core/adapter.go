package core

import (
	"context"
)

// Adapter states as reported in the "state" property.
const (
	AdapterStateActive   = "active"
	AdapterStateStandby  = "stand-by"
	AdapterStateReserved = "reserved"
)

// AdapterClass describes the adapter resource class.
var AdapterClass = ResourceClass{
	Name:        "adapter",
	NameProp:    PropName,
	QueryProps:  []string{PropName, "adapter-id", "adapter-family", "type"},
	Cacheable:   true,
	ListSegment: "adapters",
	ListField:   "adapters",
}

// Adapter is one physical or logical adapter of a CPC.
type Adapter struct {
	*Resource
}

// AdapterManager lists and finds the adapters of one CPC.
type AdapterManager struct {
	*Manager
}

func newAdapterManager(cpc *Resource) *AdapterManager {
	return &AdapterManager{Manager: NewManager(AdapterClass, cpc.manager.session, cpc)}
}

// List returns the adapters matching the filter.
func (m *AdapterManager) List(ctx context.Context, filter *Filter, full bool) ([]*Adapter, error) {
	rs, err := m.Manager.List(ctx, filter, full)
	if err != nil {
		return nil, err
	}
	out := make([]*Adapter, len(rs))
	for i, r := range rs {
		out[i] = &Adapter{Resource: r}
	}
	return out, nil
}

// Find returns the single adapter matching the filter.
func (m *AdapterManager) Find(ctx context.Context, filter *Filter) (*Adapter, error) {
	r, err := m.Manager.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Adapter{Resource: r}, nil
}

// PortURIs returns the adapter's port element URIs. Network adapters carry
// network ports, storage adapters storage ports; an adapter has at most
// one of the two lists.
func (a *Adapter) PortURIs(ctx context.Context) ([]string, error) {
	props := a.Properties()
	_, hasNet := props["network-port-uris"]
	_, hasStor := props["storage-port-uris"]
	if !hasNet && !hasStor && !a.FullPropertiesPresent() {
		if err := a.PullFullProperties(ctx); err != nil {
			return nil, err
		}
		props = a.Properties()
	}
	nlist, _ := props["network-port-uris"].([]interface{})
	slist, _ := props["storage-port-uris"].([]interface{})
	if len(nlist) > 0 && len(slist) > 0 {
		return nil, &ConsistencyError{URI: a.URI(), Message: "adapter reports both network and storage ports"}
	}
	src := nlist
	if len(slist) > 0 {
		src = slist
	}
	out := make([]string, 0, len(src))
	for _, v := range src {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
