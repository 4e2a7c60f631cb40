package mock

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhmcio/zhmcgo/core"
)

const definitionYAML = `
hmc:
  name: testhmc
  hmc-version: 2.15.0
  api-major-version: 3
  api-minor-version: 12
cpcs:
  - properties:
      name: CPC1
      dpm-enabled: true
    partitions:
      - properties:
          name: P1
          status: stopped
        nics:
          - properties:
              name: nic0
    adapters:
      - properties:
          name: osa1
          adapter-family: osa
  - properties:
      name: CPC2
      dpm-enabled: false
    logical-partitions:
      - properties:
          name: LP1
          status: not-activated
storage-groups:
  - properties:
      name: SG1
      type: fcp
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(definitionYAML))
	require.NoError(t, err)

	assert.Equal(t, "testhmc", def.HMC.Name)
	assert.Equal(t, 3, def.HMC.APIMajor)
	require.Len(t, def.CPCs, 2)
	assert.Equal(t, "CPC1", def.CPCs[0].Properties["name"])
	require.Len(t, def.CPCs[0].Partitions, 1)
	assert.Len(t, def.CPCs[0].Partitions[0].Nics, 1)
	assert.Len(t, def.CPCs[1].Lpars, 1)
	assert.Len(t, def.StorageGroups, 1)
}

func TestParseDefinitionRejectsBadYAML(t *testing.T) {
	_, err := ParseDefinition([]byte("cpcs: [unterminated"))
	require.Error(t, err)
}

func TestDefinitionRoundTrip(t *testing.T) {
	def, err := ParseDefinition([]byte(definitionYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hmc.yaml")
	require.NoError(t, def.Save(path))

	loaded, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, def, loaded)
}

func TestApplyDefinition(t *testing.T) {
	srv := NewServer("u", "p")
	t.Cleanup(srv.Close)

	def, err := ParseDefinition([]byte(definitionYAML))
	require.NoError(t, err)
	srv.ApplyDefinition(def)

	found := map[string]int{}
	for uri := range srv.resources {
		props, ok := srv.Resource(uri)
		require.True(t, ok)
		class, _ := props["class"].(string)
		found[class]++
	}
	assert.Equal(t, map[string]int{
		"cpc":               2,
		"partition":         1,
		"nic":               1,
		"adapter":           1,
		"logical-partition": 1,
		"storage-group":     1,
	}, found)
}

func TestHandlersAnswer404ForVanishedResource(t *testing.T) {
	srv := NewServer("u", "p")
	t.Cleanup(srv.Close)

	// The routing check and the handler's own lookup are separate
	// critical sections; a delete can win in between, so each handler
	// re-checks instead of panicking on a missing entry.
	rec := httptest.NewRecorder()
	srv.handleGet(rec, "/api/partitions/gone")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleDelete(rec, "/api/partitions/gone")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/partitions/gone", strings.NewReader(`{"description":"x"}`))
	srv.handleUpdate(rec, req, "/api/partitions/gone")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("t1")
	b := hub.Subscribe("t1")
	other := hub.Subscribe("t2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	hub.Publish("t1", core.Notification{Headers: map[string]string{"notification-type": "status-change"}})

	for _, sub := range []*subscription{a, b} {
		n := <-sub.Notifications()
		assert.Equal(t, "status-change", n.Type())
	}
	select {
	case <-other.Notifications():
		t.Fatal("subscription on another topic must not receive the message")
	default:
	}
}

func TestHubCloseEndsStream(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("t1")
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.Notifications()
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("t1"))

	// Publishing after close must not panic or block.
	hub.Publish("t1", core.Notification{})
}
