package core

import (
	"context"
	"net/url"
)

// Partition statuses in DPM mode. Stop is only accepted from active or
// degraded; start only from stopped.
const (
	PartitionStatusActive   = "active"
	PartitionStatusDegraded = "degraded"
	PartitionStatusStopped  = "stopped"
	PartitionStatusPaused   = "paused"
)

// PartitionClass describes the partition resource class (DPM mode).
var PartitionClass = ResourceClass{
	Name:        "partition",
	NameProp:    PropName,
	QueryProps:  []string{PropName, PropStatus, "type"},
	Cacheable:   true,
	ListSegment: "partitions",
	ListField:   "partitions",
}

// NicClass describes the nic element class, children of a partition.
var NicClass = ResourceClass{
	Name:        "nic",
	NameProp:    PropName,
	Element:     true,
	ListSegment: "nics",
	ListField:   "nics",
}

// Partition is one DPM-mode partition of a CPC.
type Partition struct {
	*Resource
	nics *NicManager
}

// PartitionManager lists and finds the partitions of one CPC.
type PartitionManager struct {
	*Manager
}

func newPartitionManager(cpc *Resource) *PartitionManager {
	return &PartitionManager{Manager: NewManager(PartitionClass, cpc.manager.session, cpc)}
}

func (m *PartitionManager) wrap(r *Resource) *Partition {
	p := &Partition{Resource: r}
	p.nics = &NicManager{Manager: NewManager(NicClass, r.manager.session, r)}
	return p
}

// List returns the partitions matching the filter.
func (m *PartitionManager) List(ctx context.Context, filter *Filter, full bool) ([]*Partition, error) {
	rs, err := m.Manager.List(ctx, filter, full)
	if err != nil {
		return nil, err
	}
	out := make([]*Partition, len(rs))
	for i, r := range rs {
		out[i] = m.wrap(r)
	}
	return out, nil
}

// Find returns the single partition matching the filter.
func (m *PartitionManager) Find(ctx context.Context, filter *Filter) (*Partition, error) {
	r, err := m.Manager.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return m.wrap(r), nil
}

// FindByName returns the partition with the given name.
func (m *PartitionManager) FindByName(ctx context.Context, name string) (*Partition, error) {
	r, err := m.Manager.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.wrap(r), nil
}

// Create creates a partition on the CPC.
func (m *PartitionManager) Create(ctx context.Context, props map[string]interface{}, opts ...RequestOption) (*Partition, error) {
	r, err := m.Manager.Create(ctx, props, opts...)
	if err != nil {
		return nil, err
	}
	return m.wrap(r), nil
}

// Nics returns the manager of the partition's NICs.
func (p *Partition) Nics() *NicManager { return p.nics }

// Start starts the partition. The HMC runs this as an asynchronous job; by
// default the call polls the job to completion within the operation
// timeout.
func (p *Partition) Start(ctx context.Context, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	if err := p.checkExists(); err != nil {
		return nil, nil, err
	}
	return p.Session().Post(ctx, p.URI()+"/operations/start", nil, opts...)
}

// Stop stops the partition. Only partitions in status active or degraded
// can be stopped.
func (p *Partition) Stop(ctx context.Context, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	if err := p.checkExists(); err != nil {
		return nil, nil, err
	}
	return p.Session().Post(ctx, p.URI()+"/operations/stop", nil, opts...)
}

// MountISO uploads an ISO image to the partition and mounts it. The image
// is sent verbatim as an opaque body.
func (p *Partition) MountISO(ctx context.Context, image []byte, imageName, insFile string, opts ...RequestOption) error {
	if err := p.checkExists(); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("image-name", imageName)
	q.Set("ins-file-name", insFile)
	uri := p.URI() + "/operations/mount-iso-image?" + q.Encode()
	_, _, err := p.Session().Upload(ctx, uri, image, "application/octet-stream", opts...)
	return err
}

// UnmountISO unmounts the partition's ISO image.
func (p *Partition) UnmountISO(ctx context.Context, opts ...RequestOption) error {
	if err := p.checkExists(); err != nil {
		return err
	}
	_, _, err := p.Session().Post(ctx, p.URI()+"/operations/unmount-iso-image", nil, opts...)
	return err
}

// Nic is one network interface of a partition. NICs are elements: they
// exist only within their partition.
type Nic struct {
	*Resource
}

// NicManager lists and finds the NICs of one partition.
type NicManager struct {
	*Manager
}

// List returns the NICs matching the filter.
func (m *NicManager) List(ctx context.Context, filter *Filter, full bool) ([]*Nic, error) {
	rs, err := m.Manager.List(ctx, filter, full)
	if err != nil {
		return nil, err
	}
	out := make([]*Nic, len(rs))
	for i, r := range rs {
		out[i] = &Nic{Resource: r}
	}
	return out, nil
}

// Create creates a NIC on the partition.
func (m *NicManager) Create(ctx context.Context, props map[string]interface{}, opts ...RequestOption) (*Nic, error) {
	r, err := m.Manager.Create(ctx, props, opts...)
	if err != nil {
		return nil, err
	}
	return &Nic{Resource: r}, nil
}
