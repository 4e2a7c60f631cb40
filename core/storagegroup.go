package core

import (
	"context"
	"time"
)

// StorageGroupClass describes the storage-group resource class. Storage
// groups are a root class: they live under the console, not under a CPC,
// and reference their CPC by URI.
var StorageGroupClass = ResourceClass{
	Name:        "storage-group",
	NameProp:    PropName,
	QueryProps:  []string{PropName, "cpc-uri", "type", "fulfillment-state"},
	Cacheable:   true,
	BaseListURI: "/api/storage-groups",
	ListField:   "storage-groups",
}

// StorageGroup is one storage group defined on the HMC.
type StorageGroup struct {
	*Resource
}

// StorageGroupManager lists and finds the HMC's storage groups.
type StorageGroupManager struct {
	*Manager
}

func newStorageGroupManager(session *Session) *StorageGroupManager {
	return &StorageGroupManager{Manager: NewManager(StorageGroupClass, session, nil)}
}

// List returns the storage groups matching the filter.
func (m *StorageGroupManager) List(ctx context.Context, filter *Filter, full bool) ([]*StorageGroup, error) {
	rs, err := m.Manager.List(ctx, filter, full)
	if err != nil {
		return nil, err
	}
	out := make([]*StorageGroup, len(rs))
	for i, r := range rs {
		out[i] = &StorageGroup{Resource: r}
	}
	return out, nil
}

// Find returns the single storage group matching the filter.
func (m *StorageGroupManager) Find(ctx context.Context, filter *Filter) (*StorageGroup, error) {
	r, err := m.Manager.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &StorageGroup{Resource: r}, nil
}

// defaultBusyRetry is applied to the attach and detach operations, which
// the HMC is known to answer with 409.1/409.2 while another storage
// operation is in flight.
func defaultBusyRetry(opts []RequestOption) []RequestOption {
	return append([]RequestOption{WithBusyRetry(5, 2*time.Second)}, opts...)
}

// AttachToPartition attaches the storage group to a partition.
func (g *StorageGroup) AttachToPartition(ctx context.Context, partitionURI string, opts ...RequestOption) error {
	if err := g.checkExists(); err != nil {
		return err
	}
	_, _, err := g.Session().Post(ctx, partitionURI+"/operations/attach-storage-group",
		map[string]interface{}{"storage-group-uri": g.URI()}, defaultBusyRetry(opts)...)
	return err
}

// DetachFromPartition detaches the storage group from a partition.
func (g *StorageGroup) DetachFromPartition(ctx context.Context, partitionURI string, opts ...RequestOption) error {
	if err := g.checkExists(); err != nil {
		return err
	}
	_, _, err := g.Session().Post(ctx, partitionURI+"/operations/detach-storage-group",
		map[string]interface{}{"storage-group-uri": g.URI()}, defaultBusyRetry(opts)...)
	return err
}
