package core

import (
	"strings"
	"sync"
	"time"
)

// nameURICache maps resource names to object URIs, per resource class, with
// a per-entry expiry. It is owned by the Session; there is no process-wide
// cache.
//
// Entries are invalidated by create, rename and delete operations issued
// through the same session, and by inventory-change notifications for the
// class.
type nameURICache struct {
	mu      sync.Mutex
	ttl     time.Duration
	classes map[string]map[string]nameCacheEntry // class name -> name key -> entry
	now     func() time.Time                     // stubbed in tests
}

type nameCacheEntry struct {
	uri     string
	expires time.Time
}

func newNameURICache(ttl time.Duration) *nameURICache {
	return &nameURICache{
		ttl:     ttl,
		classes: make(map[string]map[string]nameCacheEntry),
		now:     time.Now,
	}
}

// nameKey normalizes a name for lookup. Classes with case-insensitive names
// fold to lower case.
func nameKey(name string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}

// Lookup returns the cached URI for a name, honoring the entry expiry.
func (c *nameURICache) Lookup(class, name string, caseInsensitive bool) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.classes[class]
	if !ok {
		return "", false
	}
	key := nameKey(name, caseInsensitive)
	e, ok := entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(e.expires) {
		delete(entries, key)
		return "", false
	}
	return e.uri, true
}

// Put stores a name-to-URI entry valid for the cache TTL.
func (c *nameURICache) Put(class, name string, caseInsensitive bool, uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.classes[class]
	if !ok {
		entries = make(map[string]nameCacheEntry)
		c.classes[class] = entries
	}
	entries[nameKey(name, caseInsensitive)] = nameCacheEntry{
		uri:     uri,
		expires: c.now().Add(c.ttl),
	}
}

// InvalidateName drops the entry for one name of a class.
func (c *nameURICache) InvalidateName(class, name string, caseInsensitive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entries, ok := c.classes[class]; ok {
		delete(entries, nameKey(name, caseInsensitive))
	}
}

// InvalidateURI drops any entry of a class pointing at the given URI. Used
// for inventory-remove notifications, which carry the URI but not the name.
func (c *nameURICache) InvalidateURI(class, uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.classes[class]
	if !ok {
		return
	}
	for key, e := range entries {
		if e.uri == uri {
			delete(entries, key)
		}
	}
}

// InvalidateClass drops all entries of the given classes, or of every class
// when none are named.
func (c *nameURICache) InvalidateClass(classes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(classes) == 0 {
		c.classes = make(map[string]map[string]nameCacheEntry)
		return
	}
	for _, class := range classes {
		delete(c.classes, class)
	}
}
