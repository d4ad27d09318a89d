// Package config provides configuration management for Verso.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Home     string         `yaml:"home"`
	Network  string         `yaml:"network"`
	Electrum ElectrumConfig `yaml:"electrum"`
	Explorer ExplorerConfig `yaml:"explorer"`
	VerusID  VerusIDConfig  `yaml:"verusid"`
	Security SecurityConfig `yaml:"security"`
	Consent  ConsentConfig  `yaml:"consent"`
	Output   OutputConfig   `yaml:"output"`
}

// ElectrumConfig defines the electrum mirror set.
type ElectrumConfig struct {
	Servers        []string `yaml:"servers"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// ExplorerConfig defines the block explorer API endpoint.
type ExplorerConfig struct {
	API string `yaml:"api"`
}

// VerusIDConfig defines the identity RPC endpoint.
type VerusIDConfig struct {
	RPC string `yaml:"rpc"`
}

// SecurityConfig defines session and unlock settings.
type SecurityConfig struct {
	AutoLockSeconds int  `yaml:"auto_lock_seconds"`
	MemoryLock      bool `yaml:"memory_lock"`
}

// ConsentConfig defines the dApp consent surface.
type ConsentConfig struct {
	// TrustedOrigins get the full wallet surface; everything else is
	// limited to submitting requests.
	TrustedOrigins []string `yaml:"trusted_origins"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	Format  string `yaml:"format"`
	Color   string `yaml:"color"`
	Verbose bool   `yaml:"verbose"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefaults reads the config file if it exists, falling back to
// defaults when it does not.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// VaultPath returns the vault file path under home.
func (c *Config) VaultPath() string {
	return filepath.Join(c.Home, "vault.json")
}

// LimiterPath returns the unlock limiter state file path under home.
func (c *Config) LimiterPath() string {
	return filepath.Join(c.Home, "unlock_limiter.json")
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default verso home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".verso"
	}
	return filepath.Join(home, ".verso")
}
