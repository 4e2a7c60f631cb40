package core

import (
	"context"
	"sync"
)

// autoUpdater is the per-session engine behind auto-update mode. It owns
// the session's single notification subscription — no matter how many
// resources and managers enable auto-update — and dispatches inbound
// notifications to the subscribed objects. It is created on the first
// enable and torn down when the last subscriber disables.
type autoUpdater struct {
	session *Session
	source  NotificationSource

	mu        sync.Mutex
	resources map[string]map[*Resource]struct{} // object URI -> subscribers
	managers  map[string]map[*Manager]struct{}  // class name -> subscribers

	stopOnce sync.Once
	done     chan struct{}
}

// autoUpdaterRef returns the session's auto-update engine, creating it (and
// its notification subscription on the session's object topic) on first
// use.
func (s *Session) autoUpdaterRef(ctx context.Context) (*autoUpdater, error) {
	s.updaterMu.Lock()
	defer s.updaterMu.Unlock()
	if s.updater != nil {
		return s.updater, nil
	}

	if err := s.ensureLoggedOn(ctx); err != nil {
		return nil, err
	}
	if s.sourceFactory == nil {
		return nil, &ConsistencyError{Message: "session has no notification source factory; auto-update is unavailable"}
	}
	source, err := s.sourceFactory(s.ObjectTopic())
	if err != nil {
		return nil, err
	}

	u := &autoUpdater{
		session:   s,
		source:    source,
		resources: make(map[string]map[*Resource]struct{}),
		managers:  make(map[string]map[*Manager]struct{}),
		done:      make(chan struct{}),
	}
	go u.run()
	s.updater = u
	return u, nil
}

// autoUpdaterUnref removes one subscriber and tears the engine down when it
// was the last one.
func (s *Session) autoUpdaterUnref(remove func(*autoUpdater)) {
	s.updaterMu.Lock()
	defer s.updaterMu.Unlock()
	if s.updater == nil {
		return
	}
	remove(s.updater)
	if s.updater.empty() {
		s.updater.stop()
		s.updater = nil
	}
}

func (u *autoUpdater) addResource(r *Resource) {
	u.mu.Lock()
	defer u.mu.Unlock()
	set, ok := u.resources[r.URI()]
	if !ok {
		set = make(map[*Resource]struct{})
		u.resources[r.URI()] = set
	}
	set[r] = struct{}{}
}

func (u *autoUpdater) removeResource(r *Resource) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if set, ok := u.resources[r.URI()]; ok {
		delete(set, r)
		if len(set) == 0 {
			delete(u.resources, r.URI())
		}
	}
}

func (u *autoUpdater) addManager(m *Manager) {
	u.mu.Lock()
	defer u.mu.Unlock()
	set, ok := u.managers[m.class.Name]
	if !ok {
		set = make(map[*Manager]struct{})
		u.managers[m.class.Name] = set
	}
	set[m] = struct{}{}
}

func (u *autoUpdater) removeManager(m *Manager) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if set, ok := u.managers[m.class.Name]; ok {
		delete(set, m)
		if len(set) == 0 {
			delete(u.managers, m.class.Name)
		}
	}
}

func (u *autoUpdater) empty() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.resources) == 0 && len(u.managers) == 0
}

// stop closes the subscription. Idempotent; the run goroutine exits when
// the source's channel closes.
func (u *autoUpdater) stop() {
	u.stopOnce.Do(func() {
		if err := u.source.Close(); err != nil {
			u.session.logger.Warn("closing notification source failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(u.done)
	})
}

// run drains the notification source. User goroutines reading resource
// properties observe a change after this goroutine has applied it; there
// is no ordering guarantee against concurrent REST responses.
func (u *autoUpdater) run() {
	for n := range u.source.Notifications() {
		if n.Err != nil {
			u.session.logger.Warn("notification error on auto-update subscription", map[string]interface{}{
				"error": n.Err.Error(),
			})
			continue
		}
		u.dispatch(n)
	}
}

func (u *autoUpdater) dispatch(n Notification) {
	switch n.Type() {
	case NotificationPropertyChange, NotificationStatusChange:
		u.applyChange(n)
	case NotificationInventoryChange:
		u.applyInventory(n)
	default:
		// os-message and job-completion notifications are not consumed by
		// the auto-update engine.
	}
}

// applyChange merges a property or status diff into every subscribed
// resource with the notification's URI. Notifications for unsubscribed
// URIs are dropped silently.
func (u *autoUpdater) applyChange(n Notification) {
	uri := n.ObjectURI()
	diff := n.PropertyDiff()
	if uri == "" || len(diff) == 0 {
		return
	}
	u.mu.Lock()
	subscribers := make([]*Resource, 0, len(u.resources[uri]))
	for r := range u.resources[uri] {
		subscribers = append(subscribers, r)
	}
	u.mu.Unlock()
	for _, r := range subscribers {
		r.applyDiff(diff)
	}
}

func (u *autoUpdater) applyInventory(n Notification) {
	uri := n.ObjectURI()
	class := n.Class()
	cache := u.session.cache

	switch n.Action() {
	case InventoryAdd:
		if name, ok := n.Body[PropName].(string); ok {
			cache.InvalidateName(class, name, false)
			cache.InvalidateName(class, name, true)
		} else {
			cache.InvalidateURI(class, uri)
		}
		u.mu.Lock()
		mgrs := make([]*Manager, 0, len(u.managers[class]))
		for m := range u.managers[class] {
			mgrs = append(mgrs, m)
		}
		u.mu.Unlock()
		for _, m := range mgrs {
			props := copyProps(n.Body)
			if _, ok := props[m.uriProp()]; !ok && uri != "" {
				props[m.uriProp()] = uri
			}
			m.addLive(m.NewResource(props))
		}

	case InventoryRemove:
		cache.InvalidateURI(class, uri)
		u.mu.Lock()
		subscribers := make([]*Resource, 0, len(u.resources[uri]))
		for r := range u.resources[uri] {
			subscribers = append(subscribers, r)
		}
		mgrs := make([]*Manager, 0, len(u.managers[class]))
		for m := range u.managers[class] {
			mgrs = append(mgrs, m)
		}
		u.mu.Unlock()
		for _, r := range subscribers {
			r.markCeased()
		}
		for _, m := range mgrs {
			m.removeLive(uri)
		}
	}
}
