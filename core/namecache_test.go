package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(ttl time.Duration) (*nameURICache, *time.Time) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c := newNameURICache(ttl)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCachePutLookup(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("partition", "P1", false, "/api/partitions/1")

	uri, ok := c.Lookup("partition", "P1", false)
	assert.True(t, ok)
	assert.Equal(t, "/api/partitions/1", uri)

	_, ok = c.Lookup("partition", "P2", false)
	assert.False(t, ok)
	_, ok = c.Lookup("cpc", "P1", false)
	assert.False(t, ok, "entries are scoped per class")
}

func TestCacheExpiry(t *testing.T) {
	c, now := newTestCache(time.Minute)
	c.Put("partition", "P1", false, "/api/partitions/1")

	*now = now.Add(59 * time.Second)
	_, ok := c.Lookup("partition", "P1", false)
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.Lookup("partition", "P1", false)
	assert.False(t, ok, "entry past its TTL must not be served")

	// The stale entry was dropped, not just skipped.
	*now = now.Add(-time.Hour)
	_, ok = c.Lookup("partition", "P1", false)
	assert.False(t, ok)
}

func TestCacheCaseInsensitiveNames(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("user", "Admin", true, "/api/users/1")

	uri, ok := c.Lookup("user", "ADMIN", true)
	assert.True(t, ok)
	assert.Equal(t, "/api/users/1", uri)

	c.InvalidateName("user", "admin", true)
	_, ok = c.Lookup("user", "Admin", true)
	assert.False(t, ok)
}

func TestCacheInvalidateName(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("partition", "P1", false, "/api/partitions/1")
	c.Put("partition", "P2", false, "/api/partitions/2")

	c.InvalidateName("partition", "P1", false)
	_, ok := c.Lookup("partition", "P1", false)
	assert.False(t, ok)
	_, ok = c.Lookup("partition", "P2", false)
	assert.True(t, ok)
}

func TestCacheInvalidateURI(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("partition", "P1", false, "/api/partitions/1")
	c.Put("partition", "P2", false, "/api/partitions/2")

	c.InvalidateURI("partition", "/api/partitions/1")
	_, ok := c.Lookup("partition", "P1", false)
	assert.False(t, ok)
	_, ok = c.Lookup("partition", "P2", false)
	assert.True(t, ok)
}

func TestCacheInvalidateClass(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("partition", "P1", false, "/api/partitions/1")
	c.Put("cpc", "CPC1", false, "/api/cpcs/1")

	c.InvalidateClass("partition")
	_, ok := c.Lookup("partition", "P1", false)
	assert.False(t, ok)
	_, ok = c.Lookup("cpc", "CPC1", false)
	assert.True(t, ok)

	c.Put("partition", "P1", false, "/api/partitions/1")
	c.InvalidateClass()
	_, ok = c.Lookup("partition", "P1", false)
	assert.False(t, ok)
	_, ok = c.Lookup("cpc", "CPC1", false)
	assert.False(t, ok, "no argument drops every class")
}
