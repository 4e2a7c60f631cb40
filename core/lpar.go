package core

import (
	"context"
)

// LPAR statuses in classic mode. The HMC documentation of "not-operating"
// conflicts with observed behavior on some machine generations; consumers
// should treat this list as the closed set of values and rely on
// WaitForStatus rather than on individual transitions.
const (
	LparStatusOperating    = "operating"
	LparStatusNotOperating = "not-operating"
	LparStatusNotActivated = "not-activated"
	LparStatusExceptions   = "exceptions"
	LparStatusAcceptable   = "acceptable"
)

// LparClass describes the logical-partition resource class (classic mode).
var LparClass = ResourceClass{
	Name:        "logical-partition",
	NameProp:    PropName,
	QueryProps:  []string{PropName},
	Cacheable:   true,
	ListSegment: "logical-partitions",
	ListField:   "logical-partitions",
}

// Lpar is one classic-mode logical partition of a CPC.
type Lpar struct {
	*Resource
}

// LparManager lists and finds the LPARs of one CPC.
type LparManager struct {
	*Manager
}

func newLparManager(cpc *Resource) *LparManager {
	return &LparManager{Manager: NewManager(LparClass, cpc.manager.session, cpc)}
}

// List returns the LPARs matching the filter.
func (m *LparManager) List(ctx context.Context, filter *Filter, full bool) ([]*Lpar, error) {
	rs, err := m.Manager.List(ctx, filter, full)
	if err != nil {
		return nil, err
	}
	out := make([]*Lpar, len(rs))
	for i, r := range rs {
		out[i] = &Lpar{Resource: r}
	}
	return out, nil
}

// Find returns the single LPAR matching the filter.
func (m *LparManager) Find(ctx context.Context, filter *Filter) (*Lpar, error) {
	r, err := m.Manager.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Lpar{Resource: r}, nil
}

// FindByName returns the LPAR with the given name.
func (m *LparManager) FindByName(ctx context.Context, name string) (*Lpar, error) {
	r, err := m.Manager.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Lpar{Resource: r}, nil
}

// Activate activates the LPAR (asynchronous job).
func (l *Lpar) Activate(ctx context.Context, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	if err := l.checkExists(); err != nil {
		return nil, nil, err
	}
	return l.Session().Post(ctx, l.URI()+"/operations/activate", nil, opts...)
}

// Deactivate deactivates the LPAR (asynchronous job).
func (l *Lpar) Deactivate(ctx context.Context, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	if err := l.checkExists(); err != nil {
		return nil, nil, err
	}
	return l.Session().Post(ctx, l.URI()+"/operations/deactivate", nil, opts...)
}

// Load loads an operating system into the LPAR from the given load address
// (asynchronous job). The HMC rejects a load unless the LPAR is in a state
// from which load is permitted.
func (l *Lpar) Load(ctx context.Context, loadAddress string, opts ...RequestOption) (map[string]interface{}, *Job, error) {
	if err := l.checkExists(); err != nil {
		return nil, nil, err
	}
	var body map[string]interface{}
	if loadAddress != "" {
		body = map[string]interface{}{"load-address": loadAddress}
	}
	return l.Session().Post(ctx, l.URI()+"/operations/load", body, opts...)
}
