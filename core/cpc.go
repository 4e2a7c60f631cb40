package core

import (
	"context"
)

// CpcClass describes the cpc resource class.
var CpcClass = ResourceClass{
	Name:        "cpc",
	NameProp:    PropName,
	QueryProps:  []string{PropName},
	Cacheable:   true,
	BaseListURI: "/api/cpcs",
	ListField:   "cpcs",
}

// Cpc is one Central Processor Complex managed by the HMC. Depending on
// its operational mode it exposes partitions (DPM mode) or LPARs (classic
// mode).
type Cpc struct {
	*Resource
	partitions *PartitionManager
	lpars      *LparManager
	adapters   *AdapterManager
}

// CpcManager lists and finds the CPCs of an HMC.
type CpcManager struct {
	*Manager
}

func newCpcManager(session *Session) *CpcManager {
	return &CpcManager{Manager: NewManager(CpcClass, session, nil)}
}

func (m *CpcManager) wrap(r *Resource) *Cpc {
	c := &Cpc{Resource: r}
	c.partitions = newPartitionManager(r)
	c.lpars = newLparManager(r)
	c.adapters = newAdapterManager(r)
	return c
}

func (m *CpcManager) wrapAll(rs []*Resource) []*Cpc {
	out := make([]*Cpc, len(rs))
	for i, r := range rs {
		out[i] = m.wrap(r)
	}
	return out
}

// List returns the CPCs matching the filter.
func (m *CpcManager) List(ctx context.Context, filter *Filter, full bool) ([]*Cpc, error) {
	rs, err := m.Manager.List(ctx, filter, full)
	if err != nil {
		return nil, err
	}
	return m.wrapAll(rs), nil
}

// Find returns the single CPC matching the filter.
func (m *CpcManager) Find(ctx context.Context, filter *Filter) (*Cpc, error) {
	r, err := m.Manager.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return m.wrap(r), nil
}

// FindByName returns the CPC with the given name.
func (m *CpcManager) FindByName(ctx context.Context, name string) (*Cpc, error) {
	r, err := m.Manager.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.wrap(r), nil
}

// Partitions returns the manager of the CPC's partitions (DPM mode).
func (c *Cpc) Partitions() *PartitionManager { return c.partitions }

// Lpars returns the manager of the CPC's LPARs (classic mode).
func (c *Cpc) Lpars() *LparManager { return c.lpars }

// Adapters returns the manager of the CPC's adapters.
func (c *Cpc) Adapters() *AdapterManager { return c.adapters }

// DPMEnabled reports whether the CPC runs in DPM mode.
func (c *Cpc) DPMEnabled(ctx context.Context) (bool, error) {
	v, err := c.GetProperty(ctx, "dpm-enabled")
	if err != nil {
		return false, err
	}
	enabled, _ := v.(bool)
	return enabled, nil
}
