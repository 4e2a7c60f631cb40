package testutil

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Credentials are the logon credentials of one HMC.
type Credentials struct {
	Userid   string `yaml:"userid"`
	Password string `yaml:"password"`
}

// Vault is the parsed vault file, keyed by the HMC names of the inventory.
type Vault struct {
	HMCAuth map[string]Credentials `yaml:"hmc_auth"`
}

// LoadVault reads a vault file. An empty path falls back to the
// environment and then to the default location in the home directory.
func LoadVault(path string) (*Vault, error) {
	path, err := resolvePath(path, EnvVaultFile, DefaultVaultFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HMC vault: %w", err)
	}
	return ParseVault(data)
}

// ParseVault decodes vault YAML.
func ParseVault(data []byte) (*Vault, error) {
	var v Vault
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing HMC vault: %w", err)
	}
	return &v, nil
}

// Credentials returns the credentials of an HMC.
func (v *Vault) Credentials(hmc string) (Credentials, error) {
	c, ok := v.HMCAuth[hmc]
	if !ok {
		return Credentials{}, fmt.Errorf("vault has no credentials for HMC %q", hmc)
	}
	return c, nil
}

// String renders the credentials with the password hidden, so that test
// output never leaks it.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Userid: %s, Password: ***}", c.Userid)
}
