package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhmcio/zhmcgo/core"
	"github.com/zhmcio/zhmcgo/mock"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func TestResourceAutoUpdateAppliesPropertyChanges(t *testing.T) {
	_, client, _ := inventorySetup(t)
	ctx := context.Background()

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	watched, err := cpc.Partitions().FindByName(ctx, "P1")
	require.NoError(t, err)
	require.NoError(t, watched.EnableAutoUpdate(ctx))
	defer watched.DisableAutoUpdate()
	assert.True(t, watched.AutoUpdateEnabled())

	// Mutate through a second handle of the same partition; the watched
	// handle must pick the change up from the notification alone.
	other, err := cpc.Partitions().FindByName(ctx, "P1")
	require.NoError(t, err)
	require.NoError(t, other.UpdateProperties(ctx, map[string]interface{}{"description": "changed remotely"}))

	assert.Eventually(t, func() bool {
		return watched.Prop("description", nil) == "changed remotely"
	}, waitFor, tick)
}

func TestResourceAutoUpdateObservesStatusChange(t *testing.T) {
	srv, client, _ := inventorySetup(t)
	srv.SetJobDelay(100 * time.Millisecond)
	ctx := context.Background()

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	part, err := cpc.Partitions().FindByName(ctx, "P2")
	require.NoError(t, err)
	require.NoError(t, part.EnableAutoUpdate(ctx))
	defer part.DisableAutoUpdate()

	_, _, err = part.Start(ctx, core.NoWait())
	require.NoError(t, err)

	listBefore := srv.Hits("GET", part.URI())
	assert.Eventually(t, func() bool {
		return part.Prop("status", "") == core.PartitionStatusActive
	}, waitFor, tick)
	assert.Equal(t, listBefore, srv.Hits("GET", part.URI()),
		"the status arrived by notification, not by polling")
}

func TestResourceAutoUpdateMarksCeased(t *testing.T) {
	_, client, _ := inventorySetup(t)
	ctx := context.Background()

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	watched, err := cpc.Partitions().FindByName(ctx, "P2")
	require.NoError(t, err)
	require.NoError(t, watched.EnableAutoUpdate(ctx))
	defer watched.DisableAutoUpdate()

	other, err := cpc.Partitions().FindByName(ctx, "P2")
	require.NoError(t, err)
	require.NoError(t, other.Delete(ctx))

	assert.Eventually(t, watched.CeasedExistence, waitFor, tick)

	err = watched.PullFullProperties(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCeasedExistence))
}

func TestManagerAutoUpdateMaintainsLiveList(t *testing.T) {
	srv, client, cpcURI := inventorySetup(t)
	ctx := context.Background()
	listPath := cpcURI + "/partitions"

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	partitions := cpc.Partitions()

	require.NoError(t, partitions.EnableAutoUpdate(ctx))
	defer partitions.DisableAutoUpdate()
	assert.True(t, partitions.AutoUpdateEnabled())

	live, err := partitions.List(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	hits := srv.Hits("GET", listPath)
	_, err = partitions.List(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, hits, srv.Hits("GET", listPath), "auto-update mode lists without network I/O")

	// An inventory add grows the live list.
	srv.AddPartition(cpcURI, map[string]interface{}{
		"name":   "P9",
		"status": core.PartitionStatusStopped,
	})
	srv.Hub().Publish(mock.ObjectTopic, core.Notification{
		Headers: map[string]string{
			"notification-type": core.NotificationInventoryChange,
			"object-uri":        "/api/partitions/p9-handle",
			"class":             "partition",
			"action":            core.InventoryAdd,
		},
		Body: map[string]interface{}{
			"class":      "partition",
			"name":       "P9",
			"object-uri": "/api/partitions/p9-handle",
		},
	})
	assert.Eventually(t, func() bool {
		live, err := partitions.List(ctx, nil, false)
		return err == nil && len(live) == 3
	}, waitFor, tick)

	// A filtered list in auto-update mode is evaluated client-side.
	named, err := partitions.List(ctx, core.ByName("name", "P9"), false)
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, "P9", named[0].Name())

	// An inventory remove shrinks it again.
	srv.Hub().Publish(mock.ObjectTopic, core.Notification{
		Headers: map[string]string{
			"notification-type": core.NotificationInventoryChange,
			"object-uri":        "/api/partitions/p9-handle",
			"class":             "partition",
			"action":            core.InventoryRemove,
		},
		Body: map[string]interface{}{"class": "partition"},
	})
	assert.Eventually(t, func() bool {
		live, err := partitions.List(ctx, nil, false)
		return err == nil && len(live) == 2
	}, waitFor, tick)
}

func TestManagerAutoUpdateSeesOwnCreate(t *testing.T) {
	_, client, _ := inventorySetup(t)
	ctx := context.Background()

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	partitions := cpc.Partitions()
	require.NoError(t, partitions.EnableAutoUpdate(ctx))
	defer partitions.DisableAutoUpdate()

	created, err := partitions.Create(ctx, map[string]interface{}{
		"name":   "P3",
		"status": core.PartitionStatusStopped,
	})
	require.NoError(t, err)

	live, err := partitions.List(ctx, nil, false)
	require.NoError(t, err)
	require.Len(t, live, 3)

	// The create answer and the inventory notification race; the live
	// list must hold the partition exactly once.
	assert.Eventually(t, func() bool {
		live, err := partitions.List(ctx, nil, false)
		if err != nil {
			return false
		}
		count := 0
		for _, p := range live {
			if p.URI() == created.URI() {
				count++
			}
		}
		return count == 1 && len(live) == 3
	}, waitFor, tick)
}

func TestAutoUpdateSubscriptionLifecycle(t *testing.T) {
	srv, client, _ := inventorySetup(t)
	ctx := context.Background()

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	p1, err := cpc.Partitions().FindByName(ctx, "P1")
	require.NoError(t, err)
	p2, err := cpc.Partitions().FindByName(ctx, "P2")
	require.NoError(t, err)

	assert.Equal(t, 0, srv.Hub().Subscribers(mock.ObjectTopic))

	require.NoError(t, p1.EnableAutoUpdate(ctx))
	require.NoError(t, p2.EnableAutoUpdate(ctx))
	assert.Equal(t, 1, srv.Hub().Subscribers(mock.ObjectTopic),
		"all subscribers share one session subscription")

	p1.DisableAutoUpdate()
	assert.Equal(t, 1, srv.Hub().Subscribers(mock.ObjectTopic))

	p2.DisableAutoUpdate()
	assert.Equal(t, 0, srv.Hub().Subscribers(mock.ObjectTopic),
		"the last unsubscribe tears the subscription down")
}

func TestAutoUpdateWithoutFactoryFails(t *testing.T) {
	srv := newMock(t)
	cpcURI := srv.AddCPC(map[string]interface{}{"name": "CPC1", "dpm-enabled": true})
	srv.AddPartition(cpcURI, map[string]interface{}{"name": "P1", "status": core.PartitionStatusStopped})

	s, err := core.NewSession([]string{srv.Host()}, testUserid, testPassword,
		core.WithCertPolicy(core.CertPolicy{Mode: core.CertInsecure}),
		core.WithRetryTimeoutConfig(fastRT()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Logoff(context.Background()) })
	ctx := context.Background()

	cpc, err := core.NewClient(s).Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	p, err := cpc.Partitions().FindByName(ctx, "P1")
	require.NoError(t, err)

	err = p.EnableAutoUpdate(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConsistency))
}

func TestLogoffStopsAutoUpdate(t *testing.T) {
	srv, client, _ := inventorySetup(t)
	ctx := context.Background()

	cpc, err := client.Cpcs().FindByName(ctx, "CPC1")
	require.NoError(t, err)
	p, err := cpc.Partitions().FindByName(ctx, "P1")
	require.NoError(t, err)
	require.NoError(t, p.EnableAutoUpdate(ctx))
	assert.Equal(t, 1, srv.Hub().Subscribers(mock.ObjectTopic))

	require.NoError(t, client.Session().Logoff(ctx))
	assert.Equal(t, 0, srv.Hub().Subscribers(mock.ObjectTopic))
}
