package core

import (
	"context"
	"sync"
	"time"
)

// Property names used by the generic model.
const (
	PropObjectURI  = "object-uri"
	PropElementURI = "element-uri"
	PropClass      = "class"
	PropName       = "name"
	PropStatus     = "status"
)

// Resource is the generic client-side representation of one HMC resource.
// Its object URI is its immutable identity; the property map is the
// mutable last-observed state. Concrete resource types embed it.
type Resource struct {
	manager *Manager
	uri     string
	props   *PropertyMap

	mu         sync.Mutex
	fullProps  bool
	ceased     bool
	autoUpdate bool
}

func newResource(m *Manager, props map[string]interface{}) *Resource {
	uri, _ := props[m.uriProp()].(string)
	return &Resource{
		manager: m,
		uri:     uri,
		props:   NewPropertyMap(props),
	}
}

// URI returns the resource's object (or element) URI.
func (r *Resource) URI() string { return r.uri }

// Manager returns the manager the resource belongs to.
func (r *Resource) Manager() *Manager { return r.manager }

// Session returns the session the resource operates through.
func (r *Resource) Session() *Session { return r.manager.session }

// Name returns the resource's name property, or "" when the minimal
// property set does not include it.
func (r *Resource) Name() string {
	return r.props.GetString(r.manager.class.NameProp)
}

// Properties returns an immutable snapshot of the current properties.
func (r *Resource) Properties() map[string]interface{} {
	return r.props.Snapshot()
}

// Prop returns a locally present property, falling back to def when
// absent. It never contacts the HMC.
func (r *Resource) Prop(name string, def interface{}) interface{} {
	return r.props.GetDefault(name, def)
}

// FullPropertiesPresent reports whether the property map holds the full
// property set rather than the minimal set from a list operation.
func (r *Resource) FullPropertiesPresent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullProps
}

// CeasedExistence reports whether an inventory-remove notification marked
// the underlying HMC resource as gone. The transition is terminal.
func (r *Resource) CeasedExistence() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ceased
}

// AutoUpdateEnabled reports whether the resource receives notifications.
func (r *Resource) AutoUpdateEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoUpdate
}

// checkExists guards operations that need the server-side resource.
func (r *Resource) checkExists() error {
	if r.CeasedExistence() {
		return &CeasedExistenceError{URI: r.uri}
	}
	return nil
}

// GetProperty returns a property, retrieving the full property set from
// the HMC when the property is not locally present.
func (r *Resource) GetProperty(ctx context.Context, name string) (interface{}, error) {
	if v, ok := r.props.Get(name); ok {
		return v, nil
	}
	if r.FullPropertiesPresent() {
		return nil, &NotFoundError{Class: r.manager.class.Name, Filter: "{property: " + name + "}"}
	}
	if err := r.PullFullProperties(ctx); err != nil {
		return nil, err
	}
	if v, ok := r.props.Get(name); ok {
		return v, nil
	}
	return nil, &NotFoundError{Class: r.manager.class.Name, Filter: "{property: " + name + "}"}
}

// PullFullProperties retrieves the resource's full property set and
// replaces the local map.
func (r *Resource) PullFullProperties(ctx context.Context) error {
	if err := r.checkExists(); err != nil {
		return err
	}
	props, err := r.manager.session.Get(ctx, r.uri)
	if err != nil {
		return err
	}
	r.props.Replace(props)
	r.mu.Lock()
	r.fullProps = true
	r.mu.Unlock()
	return nil
}

// UpdateProperties posts a property diff to the HMC and merges it into the
// local map. For auto-update-enabled resources the local merge is redundant
// with the incoming property-change notification, but harmless.
func (r *Resource) UpdateProperties(ctx context.Context, diff map[string]interface{}, opts ...RequestOption) error {
	if err := r.checkExists(); err != nil {
		return err
	}
	_, _, err := r.manager.session.Post(ctx, r.uri, diff, opts...)
	if err != nil {
		return err
	}
	class := r.manager.class
	if newName, ok := diff[class.NameProp].(string); ok && class.Cacheable {
		cache := r.manager.session.cache
		cache.InvalidateName(class.Name, r.Name(), class.CaseInsensitiveNames)
		cache.Put(class.Name, newName, class.CaseInsensitiveNames, r.uri)
	}
	r.props.Update(diff)
	return nil
}

// Delete removes the resource from the HMC, from the name-to-URI cache and
// from any live list of its manager.
func (r *Resource) Delete(ctx context.Context, opts ...RequestOption) error {
	if err := r.checkExists(); err != nil {
		return err
	}
	if err := r.manager.session.Delete(ctx, r.uri, opts...); err != nil {
		return err
	}
	class := r.manager.class
	if class.Cacheable {
		r.manager.session.cache.InvalidateName(class.Name, r.Name(), class.CaseInsensitiveNames)
	}
	r.manager.removeLive(r.uri)
	r.mu.Lock()
	r.ceased = true
	r.mu.Unlock()
	return nil
}

// EnableAutoUpdate subscribes the resource to the session's object
// notification topic. Property-change and status-change notifications for
// its URI are applied to the local property map; an inventory-remove marks
// it as ceased.
func (r *Resource) EnableAutoUpdate(ctx context.Context) error {
	if err := r.checkExists(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.autoUpdate {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	updater, err := r.manager.session.autoUpdaterRef(ctx)
	if err != nil {
		return err
	}
	updater.addResource(r)
	r.mu.Lock()
	r.autoUpdate = true
	r.mu.Unlock()
	return nil
}

// DisableAutoUpdate unsubscribes the resource. When it was the last
// subscriber of the session, the underlying notification subscription is
// torn down.
func (r *Resource) DisableAutoUpdate() {
	r.mu.Lock()
	if !r.autoUpdate {
		r.mu.Unlock()
		return
	}
	r.autoUpdate = false
	r.mu.Unlock()
	r.manager.session.autoUpdaterUnref(func(u *autoUpdater) { u.removeResource(r) })
}

// applyDiff merges a notification property diff. Called by the auto-update
// engine.
func (r *Resource) applyDiff(diff map[string]interface{}) {
	r.props.Update(diff)
}

// markCeased records the terminal exists-to-ceased transition.
func (r *Resource) markCeased() {
	r.mu.Lock()
	r.ceased = true
	r.mu.Unlock()
}

// WaitForStatus polls the resource's status property until it is one of the
// desired values. A zero timeout uses the session's status timeout. For
// auto-updated resources the locally maintained status is observed without
// extra HTTP requests.
func (r *Resource) WaitForStatus(ctx context.Context, desired []string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = r.manager.session.rt.StatusTimeout
	}
	deadline := time.Now().Add(timeout)
	wanted := make(map[string]bool, len(desired))
	for _, d := range desired {
		wanted[d] = true
	}

	var actual string
	for {
		if !r.AutoUpdateEnabled() {
			if err := r.PullFullProperties(ctx); err != nil {
				return err
			}
		}
		actual = r.props.GetString(PropStatus)
		if wanted[actual] {
			return nil
		}
		if time.Now().After(deadline) {
			return &StatusTimeoutError{URI: r.uri, Actual: actual, Desired: desired, Timeout: timeout}
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		case <-r.manager.session.closed:
			return ErrSessionClosed
		}
	}
}
