package mock

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the serializable description of a mocked HMC: its identity
// and the resource tree it manages. Definitions are loaded from YAML to
// build reproducible test environments.
type Definition struct {
	HMC           HMCDefinition        `yaml:"hmc"`
	CPCs          []CPCDefinition      `yaml:"cpcs,omitempty"`
	StorageGroups []ResourceDefinition `yaml:"storage-groups,omitempty"`
}

// HMCDefinition describes the mocked console itself.
type HMCDefinition struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"hmc-version"`
	APIMajor int    `yaml:"api-major-version"`
	APIMinor int    `yaml:"api-minor-version"`
}

// CPCDefinition describes one CPC with its child resources.
type CPCDefinition struct {
	Properties map[string]interface{} `yaml:"properties"`
	Partitions []PartitionDefinition  `yaml:"partitions,omitempty"`
	Lpars      []ResourceDefinition   `yaml:"logical-partitions,omitempty"`
	Adapters   []ResourceDefinition   `yaml:"adapters,omitempty"`
}

// PartitionDefinition describes one DPM partition with its NICs.
type PartitionDefinition struct {
	Properties map[string]interface{} `yaml:"properties"`
	Nics       []ResourceDefinition   `yaml:"nics,omitempty"`
}

// ResourceDefinition describes a resource by its properties alone.
type ResourceDefinition struct {
	Properties map[string]interface{} `yaml:"properties"`
}

// ParseDefinition decodes a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing mock HMC definition: %w", err)
	}
	return &def, nil
}

// LoadDefinition reads and decodes a YAML definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mock HMC definition: %w", err)
	}
	return ParseDefinition(data)
}

// Save writes the definition as YAML.
func (d *Definition) Save(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
