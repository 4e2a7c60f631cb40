package core

import (
	"context"
)

// Client is the top-level entry point into the resource tree of one HMC
// session. Ownership runs strictly downward: Client owns the root
// managers, managers own resources, resources own their child managers.
// Back-references (resource to manager, manager to session) are non-owning.
type Client struct {
	session       *Session
	cpcs          *CpcManager
	storageGroups *StorageGroupManager
}

// NewClient builds a client on an existing session.
func NewClient(session *Session) *Client {
	c := &Client{session: session}
	c.cpcs = newCpcManager(session)
	c.storageGroups = newStorageGroupManager(session)
	return c
}

// Session returns the client's session.
func (c *Client) Session() *Session { return c.session }

// Cpcs returns the manager of the CPCs managed by the HMC.
func (c *Client) Cpcs() *CpcManager { return c.cpcs }

// StorageGroups returns the manager of the HMC's storage groups.
func (c *Client) StorageGroups() *StorageGroupManager { return c.storageGroups }

// QueryAPIVersion fetches the HMC and API versions.
func (c *Client) QueryAPIVersion(ctx context.Context) (major, minor int, hmcVersion string, err error) {
	return c.session.QueryAPIVersion(ctx)
}

// WaitForAvailable probes the HMC until it answers, for use after an HMC
// restart. A zero timeout uses the session's operation timeout.
func (c *Client) WaitForAvailable(ctx context.Context) error {
	return c.session.WaitForAvailable(ctx, c.session.rt.OperationTimeout)
}
