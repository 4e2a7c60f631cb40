// Package testutil loads the HMC inventory and vault files that describe
// the consoles end-to-end tests run against. The inventory names the HMCs
// and their connection parameters; the vault holds the matching
// credentials and is kept outside version control.
package testutil

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default file locations, overridable through the environment.
const (
	EnvInventoryFile = "ZHMC_INVENTORY_FILE"
	EnvVaultFile     = "ZHMC_VAULT_FILE"

	DefaultInventoryFile = ".zhmc_inventory.yaml"
	DefaultVaultFile     = ".zhmc_vault.yaml"
)

// HMCEntry is one HMC in the inventory.
type HMCEntry struct {
	// Host, or Hosts for a redundant HMC pair managing the same CPCs.
	Host  string   `yaml:"host,omitempty"`
	Hosts []string `yaml:"hosts,omitempty"`

	// CABundle points at the file or directory with the HMC's CA
	// certificates. VerifyCert false disables verification.
	CABundle   string `yaml:"ca_bundle,omitempty"`
	VerifyCert *bool  `yaml:"verify_cert,omitempty"`

	// CPCs names the CPCs of this HMC that tests may operate on.
	CPCs []string `yaml:"cpcs,omitempty"`
}

// HostList returns the candidate hosts, regardless of which form the
// inventory used.
func (e HMCEntry) HostList() []string {
	if len(e.Hosts) > 0 {
		return e.Hosts
	}
	if e.Host != "" {
		return []string{e.Host}
	}
	return nil
}

// Inventory is the parsed inventory file.
type Inventory struct {
	HMCs   map[string]HMCEntry `yaml:"hmcs"`
	Groups map[string][]string `yaml:"groups,omitempty"`
}

// LoadInventory reads an inventory file. An empty path falls back to the
// environment and then to the default location in the home directory.
func LoadInventory(path string) (*Inventory, error) {
	path, err := resolvePath(path, EnvInventoryFile, DefaultInventoryFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HMC inventory: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory decodes inventory YAML.
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing HMC inventory: %w", err)
	}
	return &inv, nil
}

// Group resolves a group name to its HMC entries. The group "default"
// resolves to all HMCs when the inventory defines no groups.
func (inv *Inventory) Group(name string) (map[string]HMCEntry, error) {
	if len(inv.Groups) == 0 && name == "default" {
		return inv.HMCs, nil
	}
	members, ok := inv.Groups[name]
	if !ok {
		return nil, fmt.Errorf("inventory has no group %q", name)
	}
	out := make(map[string]HMCEntry, len(members))
	for _, m := range members {
		entry, ok := inv.HMCs[m]
		if !ok {
			return nil, fmt.Errorf("group %q references unknown HMC %q", name, m)
		}
		out[m] = entry
	}
	return out, nil
}

func resolvePath(path, envVar, defaultName string) (string, error) {
	if path != "" {
		return path, nil
	}
	if p := os.Getenv(envVar); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home + "/" + defaultName, nil
}
