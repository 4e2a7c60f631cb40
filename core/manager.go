package core

import (
	"context"
	"net/url"
	"sync"
)

// ResourceClass is the metadata describing one HMC resource class. It is a
// value passed to the generic Manager, not an inheritance hierarchy: every
// concrete resource type is the pair (Manager with its class, Resource).
type ResourceClass struct {
	// Name is the HMC class string, e.g. "partition".
	Name string

	// NameProp is the property holding the resource name.
	NameProp string

	// CaseInsensitiveNames selects case-insensitive name lookup.
	CaseInsensitiveNames bool

	// QueryProps lists the properties the HMC can filter server-side on
	// the list URI. All other filter properties are evaluated client-side.
	QueryProps []string

	// Element marks element classes (identified by element-uri) as opposed
	// to object classes (object-uri).
	Element bool

	// Cacheable enables the name-to-URI cache for the class.
	Cacheable bool

	// BaseListURI is the absolute list URI of root classes, e.g.
	// "/api/cpcs". Empty for child classes.
	BaseListURI string

	// ListSegment is the URI segment appended to the parent resource URI
	// for child classes, e.g. "partitions".
	ListSegment string

	// ListField is the field of the list response holding the resource
	// array, e.g. "partitions".
	ListField string
}

// Manager provides the list/find operations of one resource class within
// one parent resource (or within the client, for root classes).
type Manager struct {
	class   ResourceClass
	session *Session
	parent  *Resource // nil for root managers

	mu         sync.Mutex
	autoUpdate bool
	live       []*Resource
}

// NewManager builds a manager for a class under the given parent resource
// (nil for root classes).
func NewManager(class ResourceClass, session *Session, parent *Resource) *Manager {
	return &Manager{class: class, session: session, parent: parent}
}

// Class returns the manager's resource class metadata.
func (m *Manager) Class() ResourceClass { return m.class }

// Session returns the session the manager operates through.
func (m *Manager) Session() *Session { return m.session }

// Parent returns the parent resource, or nil for root managers.
func (m *Manager) Parent() *Resource { return m.parent }

func (m *Manager) uriProp() string {
	if m.class.Element {
		return PropElementURI
	}
	return PropObjectURI
}

// listURI is the HMC list URI of this manager.
func (m *Manager) listURI() string {
	if m.parent == nil {
		return m.class.BaseListURI
	}
	return m.parent.URI() + "/" + m.class.ListSegment
}

// NewResource wraps a property set from the HMC into a Resource of this
// manager. Exposed for the mock-backed tests and the auto-update engine.
func (m *Manager) NewResource(props map[string]interface{}) *Resource {
	return newResource(m, props)
}

// List retrieves the resources of the class, narrowed by the filter.
// Filter properties the HMC supports server-side are attached to the list
// URI as query parameters; the remainder are evaluated client-side. With
// full=true each returned resource is populated with its full property set.
//
// On a manager in auto-update mode, List serves from the live list without
// network I/O, evaluating the whole filter client-side.
func (m *Manager) List(ctx context.Context, filter *Filter, full bool) ([]*Resource, error) {
	m.mu.Lock()
	if m.autoUpdate {
		live := make([]*Resource, len(m.live))
		copy(live, m.live)
		m.mu.Unlock()
		return filterResources(live, filter)
	}
	m.mu.Unlock()

	server, client := filter.Split(m.class.QueryProps)
	uri := m.listURI()
	if !server.Empty() {
		q := url.Values(server.QueryValues())
		uri += "?" + q.Encode()
	}

	body, err := m.session.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	items, _ := body[m.class.ListField].([]interface{})
	resources := make([]*Resource, 0, len(items))
	for _, item := range items {
		props, ok := item.(map[string]interface{})
		if !ok {
			return nil, &ConsistencyError{URI: uri, Message: "list entry is not a JSON object"}
		}
		resources = append(resources, newResource(m, props))
	}

	resources, err = filterResources(resources, client)
	if err != nil {
		return nil, err
	}
	if full {
		for _, r := range resources {
			if err := r.PullFullProperties(ctx); err != nil {
				return nil, err
			}
		}
	}
	return resources, nil
}

func filterResources(resources []*Resource, filter *Filter) ([]*Resource, error) {
	if filter.Empty() {
		return resources, nil
	}
	out := resources[:0:0]
	for _, r := range resources {
		ok, err := filter.Matches(r.Properties())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// FindAll is List without the full-properties retrieval; an empty result is
// not an error.
func (m *Manager) FindAll(ctx context.Context, filter *Filter) ([]*Resource, error) {
	return m.List(ctx, filter, false)
}

// Find returns the single resource matching the filter. Zero matches are a
// NotFoundError, several are a NoUniqueMatchError carrying every matching
// URI.
//
// When the only filter argument is the class's name property, its value is
// a plain literal and the class has a name-to-URI cache, the lookup goes
// through FindByName and the cache. A name value carrying regular-expression
// metacharacters keeps its pattern semantics and bypasses the cache.
func (m *Manager) Find(ctx context.Context, filter *Filter) (*Resource, error) {
	if m.class.Cacheable && len(filter.Props()) == 1 {
		if name, ok := filter.Value(m.class.NameProp); ok {
			if s, ok := name.(string); ok && regexpQuote(s) == s {
				return m.FindByName(ctx, s)
			}
		}
	}
	return m.findUncached(ctx, filter)
}

func (m *Manager) findUncached(ctx context.Context, filter *Filter) (*Resource, error) {
	matches, err := m.List(ctx, filter, false)
	if err != nil {
		return nil, err
	}
	return m.exactlyOne(matches, filter)
}

func (m *Manager) exactlyOne(matches []*Resource, filter *Filter) (*Resource, error) {
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Class: m.class.Name, Filter: filter.String()}
	case 1:
		return matches[0], nil
	default:
		uris := make([]string, len(matches))
		for i, r := range matches {
			uris[i] = r.URI()
		}
		return nil, &NoUniqueMatchError{Class: m.class.Name, Filter: filter.String(), URIs: uris}
	}
}

// FindByName returns the resource with the given name, going through the
// name-to-URI cache when the class has one.
func (m *Manager) FindByName(ctx context.Context, name string) (*Resource, error) {
	class := m.class
	filter := ByName(class.NameProp, regexpQuote(name))

	if class.Cacheable {
		if uri, ok := m.session.cache.Lookup(class.Name, name, class.CaseInsensitiveNames); ok {
			return newResource(m, map[string]interface{}{
				class.NameProp: name,
				m.uriProp():    uri,
			}), nil
		}
	}

	found, err := m.findUncached(ctx, filter)
	if err != nil {
		return nil, err
	}
	if class.Cacheable {
		m.session.cache.Put(class.Name, name, class.CaseInsensitiveNames, found.URI())
	}
	return found, nil
}

// InvalidateCache drops the name-to-URI cache entries of this class.
func (m *Manager) InvalidateCache() {
	m.session.cache.InvalidateClass(m.class.Name)
}

// Create posts a new resource to the manager's list URI and returns it,
// populated with the returned URI and the request properties. The cache
// entry for the name is refreshed.
func (m *Manager) Create(ctx context.Context, props map[string]interface{}, opts ...RequestOption) (*Resource, error) {
	result, _, err := m.session.Post(ctx, m.listURI(), props, opts...)
	if err != nil {
		return nil, err
	}
	merged := copyProps(props)
	for k, v := range result {
		merged[k] = v
	}
	r := newResource(m, merged)
	class := m.class
	if class.Cacheable {
		if name, ok := props[class.NameProp].(string); ok {
			m.session.cache.InvalidateName(class.Name, name, class.CaseInsensitiveNames)
			if r.URI() != "" {
				m.session.cache.Put(class.Name, name, class.CaseInsensitiveNames, r.URI())
			}
		}
	}
	m.mu.Lock()
	if m.autoUpdate {
		m.live = append(m.live, r)
	}
	m.mu.Unlock()
	return r, nil
}

// EnableAutoUpdate puts the manager into auto-update mode: it keeps a live
// resource list maintained from inventory-change notifications, and List
// serves from it without network I/O. The initial live list is fetched
// once.
func (m *Manager) EnableAutoUpdate(ctx context.Context) error {
	m.mu.Lock()
	if m.autoUpdate {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	initial, err := m.List(ctx, nil, false)
	if err != nil {
		return err
	}
	updater, err := m.session.autoUpdaterRef(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.live = initial
	m.autoUpdate = true
	m.mu.Unlock()
	updater.addManager(m)
	return nil
}

// DisableAutoUpdate leaves auto-update mode and drops the live list. When
// the manager was the session's last subscriber, the notification
// subscription is torn down.
func (m *Manager) DisableAutoUpdate() {
	m.mu.Lock()
	if !m.autoUpdate {
		m.mu.Unlock()
		return
	}
	m.autoUpdate = false
	m.live = nil
	m.mu.Unlock()
	m.session.autoUpdaterUnref(func(u *autoUpdater) { u.removeManager(m) })
}

// AutoUpdateEnabled reports whether the manager is in auto-update mode.
func (m *Manager) AutoUpdateEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoUpdate
}

// addLive appends a resource constructed from an inventory-add
// notification.
func (m *Manager) addLive(r *Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.autoUpdate {
		return
	}
	for _, existing := range m.live {
		if existing.URI() == r.URI() {
			return
		}
	}
	m.live = append(m.live, r)
}

// removeLive drops the resource with the given URI from the live list.
func (m *Manager) removeLive(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.live {
		if r.URI() == uri {
			m.live = append(m.live[:i], m.live[i+1:]...)
			return
		}
	}
}
