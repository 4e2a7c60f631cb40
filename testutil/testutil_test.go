package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventoryYAML = `
hmcs:
  prodhmc:
    hosts: [10.11.12.13, 10.11.12.14]
    ca_bundle: /etc/zhmc/ca
    cpcs: [CPC1, CPC2]
  labhmc:
    host: 192.168.1.10
    verify_cert: false
groups:
  prod: [prodhmc]
  all: [prodhmc, labhmc]
`

const vaultYAML = `
hmc_auth:
  prodhmc:
    userid: ensadmin
    password: prodsecret
  labhmc:
    userid: labuser
    password: labsecret
`

func TestParseInventory(t *testing.T) {
	inv, err := ParseInventory([]byte(inventoryYAML))
	require.NoError(t, err)

	prod := inv.HMCs["prodhmc"]
	assert.Equal(t, []string{"10.11.12.13", "10.11.12.14"}, prod.HostList())
	assert.Equal(t, "/etc/zhmc/ca", prod.CABundle)
	assert.Equal(t, []string{"CPC1", "CPC2"}, prod.CPCs)

	lab := inv.HMCs["labhmc"]
	assert.Equal(t, []string{"192.168.1.10"}, lab.HostList())
	require.NotNil(t, lab.VerifyCert)
	assert.False(t, *lab.VerifyCert)
}

func TestInventoryGroups(t *testing.T) {
	inv, err := ParseInventory([]byte(inventoryYAML))
	require.NoError(t, err)

	prod, err := inv.Group("prod")
	require.NoError(t, err)
	assert.Len(t, prod, 1)

	all, err := inv.Group("all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = inv.Group("missing")
	require.Error(t, err)
}

func TestInventoryDefaultGroupWithoutGroups(t *testing.T) {
	inv, err := ParseInventory([]byte("hmcs:\n  only:\n    host: h1\n"))
	require.NoError(t, err)

	def, err := inv.Group("default")
	require.NoError(t, err)
	assert.Len(t, def, 1)
}

func TestParseVault(t *testing.T) {
	v, err := ParseVault([]byte(vaultYAML))
	require.NoError(t, err)

	c, err := v.Credentials("prodhmc")
	require.NoError(t, err)
	assert.Equal(t, "ensadmin", c.Userid)
	assert.Equal(t, "prodsecret", c.Password)

	_, err = v.Credentials("unknown")
	require.Error(t, err)
}

func TestCredentialsStringHidesPassword(t *testing.T) {
	c := Credentials{Userid: "ensadmin", Password: "prodsecret"}
	s := c.String()
	assert.Contains(t, s, "ensadmin")
	assert.NotContains(t, s, "prodsecret")
}

func TestLoadFromEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	invPath := filepath.Join(dir, "inv.yaml")
	vaultPath := filepath.Join(dir, "vault.yaml")
	require.NoError(t, os.WriteFile(invPath, []byte(inventoryYAML), 0o600))
	require.NoError(t, os.WriteFile(vaultPath, []byte(vaultYAML), 0o600))

	t.Setenv(EnvInventoryFile, invPath)
	t.Setenv(EnvVaultFile, vaultPath)

	inv, err := LoadInventory("")
	require.NoError(t, err)
	assert.Len(t, inv.HMCs, 2)

	v, err := LoadVault("")
	require.NoError(t, err)
	assert.Len(t, v.HMCAuth, 2)
}

func TestLoadExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "explicit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(inventoryYAML), 0o600))
	t.Setenv(EnvInventoryFile, filepath.Join(dir, "does-not-exist.yaml"))

	inv, err := LoadInventory(path)
	require.NoError(t, err)
	assert.Len(t, inv.HMCs, 2)
}
